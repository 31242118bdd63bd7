package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/996BC/btccrawler/db"
	"github.com/996BC/btccrawler/p2p/peer"
	"github.com/996BC/btccrawler/rpc"
)

func testRecords() []*peer.Record {
	now := time.Now()
	var records []*peer.Record
	for i, agent := range []string{"/Satoshi:26.0.0/", "/Satoshi:26.0.0/", "/Satoshi:25.1.0/", ""} {
		addr := peer.NewAddress(netip.AddrFrom4([4]byte{203, 0, 113, byte(i + 1)}), 8333)
		r := peer.NewRecord(addr, peer.SourceSeed, now)
		r.Contacted = true
		r.HandshakeSucceeded = agent != ""
		r.UserAgent = agent
		if i < 2 {
			r.Location = &peer.Location{CountryCode: "DE"}
		}
		records = append(records, r)
	}
	return records
}

func TestCountBy(t *testing.T) {
	agents := countBy(testRecords(), func(r *peer.Record) string { return r.UserAgent })
	require.Equal(t, []count{{"/Satoshi:26.0.0/", 2}, {"/Satoshi:25.1.0/", 1}}, agents)
}

func TestWriteStats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeStats(&buf, testRecords()))
	out := buf.String()
	require.True(t, strings.HasPrefix(out, "records 4 contacted 4 successful 3\n"))
	require.Contains(t, out, "DE   2")

	require.Len(t, filter(testRecords(), true), 3)
	require.Len(t, filter(testRecords(), false), 4)
}

func TestBrowse(t *testing.T) {
	dir := t.TempDir()
	store, err := db.OpenBadger(dir)
	require.NoError(t, err)
	for _, r := range testRecords() {
		require.NoError(t, store.SaveRecord(r))
	}
	require.NoError(t, store.Close())

	out := filepath.Join(t.TempDir(), "records.txt")
	opts := &options{conf: db.Config{Type: db.TypeBadger, Path: dir}, successful: true, output: out}
	require.NoError(t, browse(opts))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(data), ">>>>> 203.0.113.1:8333")
	require.Contains(t, string(data), "3 records")

	require.Error(t, browse(&options{conf: db.Config{Type: db.TypeMemory}}))
	require.Error(t, browse(&options{conf: db.Config{Type: db.TypeBadger}}))
}

func TestBrowseServer(t *testing.T) {
	store := db.NewMemory()
	for _, r := range testRecords() {
		require.NoError(t, store.SaveRecord(r))
	}
	ts := httptest.NewServer(rpc.NewServer(&rpc.Config{Peers: store}).Handler)
	defer ts.Close()

	out := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, browse(&options{server: ts.URL, successful: true, asJSON: true, output: out}))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var records []*peer.Record
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 3)

	out = filepath.Join(t.TempDir(), "record.txt")
	require.NoError(t, browse(&options{server: ts.URL, addr: "203.0.113.4:8333", output: out}))
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(data), ">>>>> 203.0.113.4:8333")
	require.Contains(t, string(data), "1 records")

	require.Error(t, browse(&options{server: ts.URL, addr: "203.0.113.9:8333"}))
}
