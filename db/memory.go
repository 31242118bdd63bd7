package db

import (
	"sync"

	"github.com/996BC/btccrawler/crawler"
	"github.com/996BC/btccrawler/p2p/peer"
)

// MemoryStore keeps everything in process, it is the default store of a single crawl
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[peer.Address]*peer.Record
	summaries map[string]*crawler.Summary
	closed    bool
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		records:   make(map[peer.Address]*peer.Record),
		summaries: make(map[string]*crawler.Summary),
	}
}

func (m *MemoryStore) SaveRecord(r *peer.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.records[r.Address] = merge(m.records[r.Address], r)
	return nil
}

func (m *MemoryStore) GetRecord(addr peer.Address) (*peer.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[addr]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// Records returns copies of all records ordered by address
func (m *MemoryStore) Records() ([]*peer.Record, error) {
	m.mu.RLock()
	result := make([]*peer.Record, 0, len(m.records))
	for _, r := range m.records {
		result = append(result, r.Clone())
	}
	m.mu.RUnlock()

	sortRecords(result)
	return result, nil
}

func (m *MemoryStore) SaveSummary(s *crawler.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.summaries[s.SessionID] = s
	return nil
}

func (m *MemoryStore) GetSummary(id string) (*crawler.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.summaries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
