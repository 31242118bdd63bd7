package p2p

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/996BC/btccrawler/p2p/peer"
	"github.com/996BC/btccrawler/serialize/message"
	"github.com/996BC/btccrawler/utils"
)

var logger = utils.NewLogger("p2p")

const (
	stageConnect   = "connect"
	stageHandshake = "handshake"
	stageExchange  = "exchange"
)

// Result is the outcome of contacting one address
type Result struct {
	Address peer.Address

	// Handshaked is true once the session reached READY
	Handshaked bool
	Remote     *message.Version
	Peers      []peer.Address

	// Err is the connect or handshake failure, ExchangeErr a failure after READY
	Err         error
	ExchangeErr error

	Elapsed time.Duration
}

// Reason returns the failure label of the contact, "" on success
func (r *Result) Reason() string {
	return Reason(r.Err)
}

// Contactor runs dial, handshake and address exchange against single addresses
type Contactor struct {
	conf Config
}

func NewContactor(conf Config) (*Contactor, error) {
	if err := conf.verify(); err != nil {
		return nil, err
	}
	return &Contactor{conf: conf}, nil
}

func (c *Contactor) Config() Config {
	return c.conf
}

// Contact never returns an error, failures are reported in the Result
func (c *Contactor) Contact(ctx context.Context, addr peer.Address) *Result {
	start := time.Now()
	result := &Result{Address: addr}
	defer func() {
		result.Elapsed = time.Since(start)
	}()

	ctx, end := c.conf.Tracer.Start(ctx, "p2p.contact", attribute.String("peer", addr.String()))
	defer end()

	s, err := Dial(ctx, c.conf, addr)
	if err != nil {
		result.Err = &ErrContact{Addr: addr, Stage: stageConnect, Err: err}
		c.conf.Tracer.Fail(ctx, result.Err)
		return result
	}
	defer s.Close()

	if err := s.Handshake(ctx); err != nil {
		result.Err = &ErrContact{Addr: addr, Stage: stageHandshake, Err: err}
		c.conf.Tracer.Fail(ctx, result.Err)
		return result
	}
	result.Handshaked = true
	result.Remote = s.Remote()
	logger.Debug("handshake with %s done, %v\n", addr, result.Remote)

	peers, err := s.RequestAddresses(ctx)
	if err != nil {
		result.ExchangeErr = &ErrContact{Addr: addr, Stage: stageExchange, Err: err}
		logger.Debug("%v\n", result.ExchangeErr)
	}
	result.Peers = peers

	c.conf.Tracer.Annotate(ctx,
		attribute.String("user_agent", result.Remote.UserAgent),
		attribute.Int("peers", len(peers)))
	return result
}
