package db

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/996BC/btccrawler/crawler"
	"github.com/996BC/btccrawler/p2p/peer"
)

var dbTestVar = struct {
	first time.Time
	later time.Time
}{
	first: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	later: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
}

func mustAddr(t *testing.T, s string) peer.Address {
	addr, err := peer.ParseAddress(s)
	require.NoError(t, err)
	return addr
}

type fakeRedis struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	sets   map[string]map[string]bool
	fail   error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]bool),
	}
}

func (f *fakeRedis) Ping(ctx context.Context) error {
	return f.fail
}

func (f *fakeRedis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	result := make(map[string]string)
	for k, v := range f.hashes[key] {
		result[k] = v
	}
	return result, nil
}

func (f *fakeRedis) SMembers(ctx context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	var result []string
	for m := range f.sets[key] {
		result = append(result, m)
	}
	sort.Strings(result)
	return result, nil
}

func (f *fakeRedis) Write(ctx context.Context, w *redisWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}

	h, ok := f.hashes[w.key]
	if !ok {
		h = make(map[string]string)
		f.hashes[w.key] = h
	}
	for k, v := range w.fields {
		h[k] = v
	}
	for _, set := range w.remove {
		delete(f.sets[set], w.member)
	}
	for _, set := range w.add {
		if f.sets[set] == nil {
			f.sets[set] = make(map[string]bool)
		}
		f.sets[set][w.member] = true
	}
	return nil
}

func (f *fakeRedis) Close() error {
	return nil
}

func (f *fakeRedis) members(set string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []string
	for m := range f.sets[set] {
		result = append(result, m)
	}
	sort.Strings(result)
	return result
}

type summaryGetter interface {
	GetSummary(id string) (*crawler.Summary, error)
}

func openStores(t *testing.T) map[string]Store {
	badgerStore, err := OpenBadger(t.TempDir())
	require.NoError(t, err)

	stores := map[string]Store{
		TypeMemory: NewMemory(),
		TypeBadger: badgerStore,
		TypeRedis:  newRedisStore(newFakeRedis()),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestStoreUpsert(t *testing.T) {
	tv := dbTestVar
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			addr := mustAddr(t, "203.0.113.5:8333")

			_, err := s.GetRecord(addr)
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.SaveRecord(peer.NewRecord(addr, peer.SourceSeed, tv.first)))

			// the same address rediscovered by another crawl, then contacted
			rec := peer.NewRecord(addr, "198.51.100.7:8333", tv.later)
			rec.Contacted = true
			rec.HandshakeSucceeded = true
			rec.UserAgent = "/Satoshi:26.0.0/"
			rec.ProtocolVersion = 70016
			rec.Services = 1033
			rec.ReportedHeight = 820000
			rec.Location = &peer.Location{Country: "Germany", CountryCode: "DE", Latitude: 51.3, Longitude: 9.5}
			require.NoError(t, s.SaveRecord(rec))

			got, err := s.GetRecord(addr)
			require.NoError(t, err)
			require.Equal(t, addr, got.Address)
			require.True(t, got.FirstSeenAt.Equal(tv.first))
			require.True(t, got.LastSeenAt.Equal(tv.later))
			require.True(t, got.Contacted)
			require.True(t, got.HandshakeSucceeded)
			require.Equal(t, "/Satoshi:26.0.0/", got.UserAgent)
			require.Equal(t, int32(70016), got.ProtocolVersion)
			require.Equal(t, uint64(1033), got.Services)
			require.Equal(t, int32(820000), got.ReportedHeight)
			require.Equal(t, "198.51.100.7:8333", got.Source)
			require.Equal(t, rec.Location, got.Location)

			// a later failure keeps the location
			failed := rec.Clone()
			failed.HandshakeSucceeded = false
			failed.FailReason = "read_timeout"
			failed.Location = nil
			require.NoError(t, s.SaveRecord(failed))

			got, err = s.GetRecord(addr)
			require.NoError(t, err)
			require.False(t, got.HandshakeSucceeded)
			require.Equal(t, "read_timeout", got.FailReason)
			require.NotNil(t, got.Location)
		})
	}
}

func TestStoreRecords(t *testing.T) {
	tv := dbTestVar
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, a := range []string{"203.0.113.9:8333", "198.51.100.7:8333", "203.0.113.9:18333", "203.0.113.10:8333"} {
				require.NoError(t, s.SaveRecord(peer.NewRecord(mustAddr(t, a), peer.SourceSeed, tv.first)))
			}

			records, err := s.Records()
			require.NoError(t, err)

			var got []string
			for _, r := range records {
				got = append(got, r.Address.String())
			}
			require.Equal(t, []string{
				"198.51.100.7:8333",
				"203.0.113.9:8333",
				"203.0.113.9:18333",
				"203.0.113.10:8333",
			}, got)
		})
	}
}

func TestStoreSummary(t *testing.T) {
	tv := dbTestVar
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			sum := &crawler.Summary{
				SessionID:   "5b0c7f5e-0000-4000-8000-000000000001",
				Network:     "testnet3",
				StartedAt:   tv.first,
				EndedAt:     tv.later,
				Elapsed:     tv.later.Sub(tv.first),
				Iterations:  3,
				Discovered:  120,
				Contacted:   40,
				Successful:  12,
				Failed:      28,
				FailReasons: map[string]int{"connect_timeout": 28},
				StopReason:  crawler.StopFrontierExhausted,
			}
			require.NoError(t, s.SaveSummary(sum))

			got, err := s.(summaryGetter).GetSummary(sum.SessionID)
			require.NoError(t, err)
			require.Equal(t, sum.Discovered, got.Discovered)
			require.Equal(t, sum.FailReasons, got.FailReasons)
			require.Equal(t, sum.StopReason, got.StopReason)
			require.True(t, got.EndedAt.Equal(tv.later))

			_, err = s.(summaryGetter).GetSummary("missing")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRedisIndexSets(t *testing.T) {
	tv := dbTestVar
	client := newFakeRedis()
	s := newRedisStore(client)

	a := mustAddr(t, "203.0.113.5:8333")
	b := mustAddr(t, "203.0.113.6:8333")
	require.NoError(t, s.SaveRecord(peer.NewRecord(a, peer.SourceSeed, tv.first)))
	require.NoError(t, s.SaveRecord(peer.NewRecord(b, peer.SourceSeed, tv.first)))

	require.Equal(t, []string{"203.0.113.5:8333", "203.0.113.6:8333"}, client.members(redisAllPeers))
	require.Equal(t, []string{"203.0.113.5:8333", "203.0.113.6:8333"}, client.members(redisUncontacted))
	require.Empty(t, client.members(redisContacted))

	rec := peer.NewRecord(a, peer.SourceSeed, tv.later)
	rec.Contacted = true
	rec.HandshakeSucceeded = true
	require.NoError(t, s.SaveRecord(rec))

	rec = peer.NewRecord(b, peer.SourceSeed, tv.later)
	rec.Contacted = true
	rec.FailReason = "connect_failed"
	require.NoError(t, s.SaveRecord(rec))

	require.Empty(t, client.members(redisUncontacted))
	require.Equal(t, []string{"203.0.113.5:8333", "203.0.113.6:8333"}, client.members(redisContacted))
	require.Equal(t, []string{"203.0.113.5:8333"}, client.members(redisSuccessful))

	h := client.hashes[getRedisPeerKey("203.0.113.5:8333")]
	require.Equal(t, "203.0.113.5", h["ip"])
	require.Equal(t, "8333", h["port"])
	require.Equal(t, "1", h["successful_handshake"])
}

func TestRedisError(t *testing.T) {
	client := newFakeRedis()
	client.fail = errors.New("connection refused")
	s := newRedisStore(client)

	err := s.SaveRecord(peer.NewRecord(mustAddr(t, "203.0.113.5:8333"), peer.SourceSeed, time.Now()))
	require.ErrorIs(t, err, ErrInternal)
	_, err = s.Records()
	require.ErrorIs(t, err, ErrInternal)
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(Config{Type: TypeBadger, Path: t.TempDir()})
	require.NoError(t, err)
	require.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(Config{Type: TypeBadger})
	require.Error(t, err)

	_, err = Open(Config{Type: TypeRedis})
	require.Error(t, err)

	_, err = Open(Config{Type: "sqlite"})
	require.ErrorAs(t, err, &ErrUnknownType{})
}

func TestMemoryClosed(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Close())
	err := s.SaveRecord(peer.NewRecord(mustAddr(t, "203.0.113.5:8333"), peer.SourceSeed, time.Now()))
	require.ErrorIs(t, err, ErrClosed)
}

func TestReporter(t *testing.T) {
	s := NewMemory()
	Reporter(s).OnCrawlComplete(&crawler.Summary{SessionID: "abc"})

	got, err := s.GetSummary("abc")
	require.NoError(t, err)
	require.Equal(t, "abc", got.SessionID)
}
