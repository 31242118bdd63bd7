package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/996BC/btccrawler/p2p"
	"github.com/996BC/btccrawler/p2p/peer"
	"github.com/996BC/btccrawler/utils"
)

var logger = utils.NewLogger("crawler")

var ErrRunning = errors.New("crawl already running")

var ErrWorkerPanic = errors.New("worker panic")

// Contacter contacts a single address, p2p.Contactor is the network implementation
type Contacter interface {
	Contact(ctx context.Context, addr peer.Address) *p2p.Result
}

// PeerStore receives every created or updated record
type PeerStore interface {
	SaveRecord(r *peer.Record) error
}

// Reporter receives the final summary of a crawl
type Reporter interface {
	OnCrawlComplete(s *Summary)
}

type ReporterFunc func(s *Summary)

func (f ReporterFunc) OnCrawlComplete(s *Summary) {
	f(s)
}

// Observer is notified by the crawl loop goroutine
type Observer interface {
	OnDispatch(addr peer.Address)
	OnContact(result *p2p.Result)
	OnBatch(batch BatchStats, pending int, discovered int)
}

type Config struct {
	Network       string
	TargetCount   int
	Concurrency   int
	MaxIterations int
	BatchDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		TargetCount:   100000,
		Concurrency:   500,
		MaxIterations: 100,
		BatchDelay:    500 * time.Millisecond,
	}
}

func (c *Config) verify() error {
	if c.TargetCount <= 0 {
		return fmt.Errorf("target count must be positive, got %d", c.TargetCount)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", c.MaxIterations)
	}
	if c.BatchDelay < 0 {
		return fmt.Errorf("negative batch delay %v", c.BatchDelay)
	}
	return nil
}

type Option func(*Crawler)

func WithStore(store PeerStore) Option {
	return func(c *Crawler) {
		c.store = store
	}
}

func WithReporter(r Reporter) Option {
	return func(c *Crawler) {
		c.reporters = append(c.reporters, r)
	}
}

func WithObserver(o Observer) Option {
	return func(c *Crawler) {
		c.observer = o
	}
}

// Crawler expands a frontier of addresses batch by batch until the target count,
// the iteration budget or the frontier runs out
type Crawler struct {
	conf      Config
	contacter Contacter
	store     PeerStore
	reporters []Reporter
	observer  Observer

	mu      sync.Mutex
	running bool
	stats   *Stats
}

func New(conf Config, contacter Contacter, opts ...Option) (*Crawler, error) {
	if err := conf.verify(); err != nil {
		return nil, err
	}
	if contacter == nil {
		return nil, fmt.Errorf("nil contacter")
	}

	c := &Crawler{
		conf:      conf,
		contacter: contacter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Progress returns a snapshot of the current or last crawl, nil before the first Run
func (c *Crawler) Progress() *Summary {
	c.mu.Lock()
	stats := c.stats
	c.mu.Unlock()

	if stats == nil {
		return nil
	}
	return stats.Snapshot()
}

// session is the state of one Run, touched by the crawl loop goroutine only
type session struct {
	frontier *frontier
	records  map[peer.Address]*peer.Record
	stats    *Stats
}

// Run crawls from seeds until a stop condition is met. Contact failures are counted,
// never returned; a canceled ctx ends the crawl with StopCanceled and a nil error.
func (c *Crawler) Run(ctx context.Context, seeds []peer.Address) (*Summary, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, ErrRunning
	}
	c.running = true
	s := &session{
		frontier: newFrontier(),
		records:  make(map[peer.Address]*peer.Record),
		stats:    newStats(c.conf.Network, time.Now()),
	}
	c.stats = s.stats
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	now := time.Now()
	for _, addr := range seeds {
		if !addr.IsValid() {
			continue
		}
		if s.frontier.add(addr) {
			c.discover(s, addr, peer.SourceSeed, now)
		}
	}
	s.stats.setFrontier(s.frontier.discovered(), s.frontier.pendingLen())
	logger.Info("crawl %s started with %d seeds, target %d concurrency %d\n",
		s.stats.sum.SessionID, s.frontier.pendingLen(), c.conf.TargetCount, c.conf.Concurrency)

	reason := c.loop(ctx, s)
	s.stats.finish(reason, time.Now())

	summary := s.stats.Snapshot()
	logger.Info("crawl finished: %v\n", summary)
	for _, r := range c.reporters {
		r.OnCrawlComplete(summary)
	}
	return summary, nil
}

func (c *Crawler) loop(ctx context.Context, s *session) StopReason {
	for {
		if reason, stop := c.shouldStop(ctx, s); stop {
			return reason
		}

		batch := s.frontier.draw(c.conf.Concurrency)
		c.runBatch(ctx, s, batch)

		if _, stop := c.shouldStop(ctx, s); stop || c.conf.BatchDelay == 0 {
			continue
		}
		timer := time.NewTimer(c.conf.BatchDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (c *Crawler) shouldStop(ctx context.Context, s *session) (StopReason, bool) {
	switch {
	case ctx.Err() != nil:
		return StopCanceled, true
	case s.stats.iterations() >= c.conf.MaxIterations:
		return StopIterationBudget, true
	case s.frontier.discovered() >= c.conf.TargetCount:
		return StopTargetReached, true
	case s.frontier.pendingLen() == 0:
		return StopFrontierExhausted, true
	}
	return "", false
}

// runBatch contacts every address of batch concurrently and applies the results
// as they arrive. Only this goroutine touches the frontier and the records.
func (c *Crawler) runBatch(ctx context.Context, s *session, batch []peer.Address) {
	start := time.Now()
	iteration := s.stats.iterations() + 1
	bs := BatchStats{Iteration: iteration, Size: len(batch)}
	logger.Info("iteration %d/%d: contacting %d peers, %d discovered (%.1f%% of target)\n",
		iteration, c.conf.MaxIterations, len(batch), s.frontier.discovered(),
		float64(s.frontier.discovered())*100/float64(c.conf.TargetCount))

	results := make(chan *p2p.Result, len(batch))
	var g errgroup.Group
	g.SetLimit(c.conf.Concurrency)

	s.stats.dispatched(len(batch))
	for _, addr := range batch {
		if c.observer != nil {
			c.observer.OnDispatch(addr)
		}
		g.Go(func() error {
			results <- c.contact(ctx, addr)
			return nil
		})
	}
	go func() {
		g.Wait()
		close(results)
	}()

	for result := range results {
		fresh := c.apply(s, result)
		bs.NewDiscovered += fresh
		s.stats.setFrontier(s.frontier.discovered(), s.frontier.pendingLen())
		if result.Handshaked {
			bs.Successful++
		} else {
			bs.Failed++
		}
		if c.observer != nil {
			c.observer.OnContact(result)
		}
	}

	bs.Elapsed = time.Since(start)
	s.stats.addBatch(bs)
	s.stats.setFrontier(s.frontier.discovered(), s.frontier.pendingLen())
	if c.observer != nil {
		c.observer.OnBatch(bs, s.frontier.pendingLen(), s.frontier.discovered())
	}

	elapsed := time.Since(s.stats.sum.StartedAt)
	logger.Info("iteration %d: %d new peers, %d/%d handshakes, %d discovered, %.0f peers/minute\n",
		iteration, bs.NewDiscovered, bs.Successful, bs.Size, s.frontier.discovered(),
		float64(s.frontier.discovered())/elapsed.Minutes())
}

// contact runs in a worker goroutine
func (c *Crawler) contact(ctx context.Context, addr peer.Address) (result *p2p.Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("contact %s panic: %v\n", addr, r)
			result = &p2p.Result{Address: addr, Err: fmt.Errorf("%w: %v", ErrWorkerPanic, r)}
		}
	}()

	result = c.contacter.Contact(ctx, addr)
	if result == nil {
		result = &p2p.Result{Address: addr, Err: fmt.Errorf("no result from contacter")}
	}
	result.Address = addr
	return result
}

// apply updates the record of the contacted address and inserts the advertised peers,
// it returns how many of them were new
func (c *Crawler) apply(s *session, result *p2p.Result) int {
	now := time.Now()
	rec := s.records[result.Address]
	rec.Contacted = true

	if result.Handshaked {
		rec.HandshakeSucceeded = true
		rec.FailReason = ""
		rec.LastSeenAt = now
		if v := result.Remote; v != nil {
			rec.UserAgent = v.UserAgent
			rec.ProtocolVersion = v.ProtocolVersion
			rec.Services = v.Services
			rec.ReportedHeight = v.StartHeight
		}
		s.stats.contacted(true, "")
	} else {
		rec.FailReason = result.Reason()
		s.stats.contacted(false, rec.FailReason)
		logger.Debug("%v\n", result.Err)
	}

	fresh := 0
	source := result.Address.String()
	for _, addr := range result.Peers {
		if !addr.IsValid() {
			continue
		}
		if s.frontier.add(addr) {
			c.discover(s, addr, source, now)
			fresh++
		}
	}

	c.save(rec)
	return fresh
}

func (c *Crawler) discover(s *session, addr peer.Address, source string, now time.Time) {
	rec := peer.NewRecord(addr, source, now)
	s.records[addr] = rec
	c.save(rec)
}

func (c *Crawler) save(rec *peer.Record) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveRecord(rec.Clone()); err != nil {
		logger.Warn("save record %s failed:%v\n", rec.Address, err)
	}
}
