package crawler

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StopReason tells why a crawl ended
type StopReason string

const (
	StopTargetReached     StopReason = "target_reached"
	StopFrontierExhausted StopReason = "frontier_exhausted"
	StopIterationBudget   StopReason = "iteration_budget"
	StopCanceled          StopReason = "canceled"
)

// BatchStats is the outcome of one iteration
type BatchStats struct {
	Iteration     int           `json:"iteration"`
	Size          int           `json:"size"`
	Successful    int           `json:"successful"`
	Failed        int           `json:"failed"`
	NewDiscovered int           `json:"new_discovered"`
	Elapsed       time.Duration `json:"elapsed_ns"`
}

// Summary is the report of a crawl session
type Summary struct {
	SessionID string    `json:"session_id"`
	Network   string    `json:"network"`
	StartedAt time.Time `json:"started_at"`
	// EndedAt is zero while the crawl runs
	EndedAt time.Time     `json:"ended_at"`
	Elapsed time.Duration `json:"elapsed_ns"`

	Iterations int `json:"iterations"`
	Discovered int `json:"discovered"`
	Pending    int `json:"pending"`
	InFlight   int `json:"in_flight"`
	Contacted  int `json:"contacted"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`

	FailReasons map[string]int `json:"fail_reasons"`
	Batches     []BatchStats   `json:"batches"`
	StopReason  StopReason     `json:"stop_reason,omitempty"`
}

// Running reports whether the summary is a live snapshot
func (s *Summary) Running() bool {
	return s.EndedAt.IsZero()
}

func (s *Summary) String() string {
	return fmt.Sprintf("session %s network %s discovered %d contacted %d successful %d failed %d iterations %d elapsed %v stop %s",
		s.SessionID, s.Network, s.Discovered, s.Contacted, s.Successful, s.Failed,
		s.Iterations, s.Elapsed.Round(time.Millisecond), s.StopReason)
}

// Stats accumulates the counters of one crawl session.
// The crawl loop is the only writer, Snapshot may be called from any goroutine.
type Stats struct {
	mu  sync.RWMutex
	sum Summary
}

func newStats(network string, now time.Time) *Stats {
	return &Stats{
		sum: Summary{
			SessionID:   uuid.New().String(),
			Network:     network,
			StartedAt:   now,
			FailReasons: make(map[string]int),
		},
	}
}

func (s *Stats) setFrontier(discovered int, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum.Discovered = discovered
	s.sum.Pending = pending
}

func (s *Stats) dispatched(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum.InFlight += n
}

// contacted records one finished contact, reason is "" on success
func (s *Stats) contacted(success bool, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum.InFlight--
	s.sum.Contacted++
	if success {
		s.sum.Successful++
		return
	}
	s.sum.Failed++
	s.sum.FailReasons[reason]++
}

func (s *Stats) addBatch(b BatchStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum.Iterations++
	s.sum.Batches = append(s.sum.Batches, b)
}

func (s *Stats) iterations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sum.Iterations
}

func (s *Stats) finish(reason StopReason, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum.StopReason = reason
	s.sum.EndedAt = now
	s.sum.Elapsed = now.Sub(s.sum.StartedAt)
}

// Snapshot returns a copy sharing nothing with the live counters
func (s *Stats) Snapshot() *Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.sum
	if result.EndedAt.IsZero() {
		result.Elapsed = time.Since(result.StartedAt)
	}
	result.FailReasons = make(map[string]int, len(s.sum.FailReasons))
	for k, v := range s.sum.FailReasons {
		result.FailReasons[k] = v
	}
	result.Batches = append([]BatchStats(nil), s.sum.Batches...)
	return &result
}
