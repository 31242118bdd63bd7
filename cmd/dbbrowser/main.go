package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/996BC/btccrawler/db"
	"github.com/996BC/btccrawler/p2p/peer"
	"github.com/996BC/btccrawler/rpc"
	"github.com/996BC/btccrawler/utils"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		log.Fatal(err)
	}
}

type options struct {
	conf       db.Config
	server     string
	addr       string
	successful bool
	stats      bool
	asJSON     bool
	output     string
}

func newRoot() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "dbbrowser",
		Short:         "View the peer records stored by the crawler",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return browse(opts)
		},
	}

	f := root.Flags()
	f.StringVar(&opts.conf.Type, "store", db.TypeBadger, "badger|redis")
	f.StringVar(&opts.conf.Path, "db-path", "", "badger directory")
	f.StringVar(&opts.conf.RedisAddr, "redis-addr", "", "redis address, like localhost:6379")
	f.StringVar(&opts.conf.RedisPassword, "redis-pass", "", "redis password")
	f.IntVar(&opts.conf.RedisDB, "redis-db", 0, "redis database")
	f.StringVar(&opts.server, "server", "", "read a running crawler's status server instead of the store, like 127.0.0.1:23666")
	f.StringVar(&opts.addr, "addr", "", "view the record of one address, like 203.0.113.5:8333")
	f.BoolVar(&opts.successful, "successful", false, "only the peers which completed the handshake")
	f.BoolVar(&opts.stats, "stats", false, "print the user agent and country distribution instead of the records")
	f.BoolVar(&opts.asJSON, "json", false, "print the records as json")
	f.StringVarP(&opts.output, "output", "o", "", "result output file; if it's null it will print to stdout")
	return root
}

func browse(opts *options) error {
	var records []*peer.Record
	var err error
	if len(opts.server) != 0 {
		records, err = loadRemote(context.Background(), rpc.NewClient(opts.server), opts)
	} else {
		records, err = loadStore(opts)
	}
	if err != nil {
		return err
	}
	records = filter(records, opts.successful)

	output := io.Writer(os.Stdout)
	if len(opts.output) != 0 {
		f, err := os.OpenFile(opts.output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("open file %s failed:%v", opts.output, err)
		}
		defer f.Close()
		output = f
	}

	switch {
	case opts.stats:
		return writeStats(output, records)
	case opts.asJSON:
		enc := json.NewEncoder(output)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	default:
		return writeRecords(output, records)
	}
}

func loadStore(opts *options) ([]*peer.Record, error) {
	if opts.conf.Type == db.TypeMemory {
		return nil, fmt.Errorf("the memory store does not outlive the crawler")
	}
	if opts.conf.Type == db.TypeBadger {
		if len(opts.conf.Path) == 0 {
			return nil, fmt.Errorf("empty db path")
		}
		if err := utils.AccessCheck(opts.conf.Path); err != nil {
			return nil, err
		}
	}

	store, err := db.Open(opts.conf)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if len(opts.addr) == 0 {
		return store.Records()
	}
	addr, err := peer.ParseAddress(opts.addr)
	if err != nil {
		return nil, err
	}
	rec, err := store.GetRecord(addr)
	if err != nil {
		return nil, fmt.Errorf("get record %s failed:%v", addr, err)
	}
	return []*peer.Record{rec}, nil
}

func loadRemote(ctx context.Context, c *rpc.Client, opts *options) ([]*peer.Record, error) {
	if len(opts.addr) == 0 {
		resp, err := c.Peers(ctx, opts.successful)
		if err != nil {
			return nil, fmt.Errorf("get peers from %s failed:%v", opts.server, err)
		}
		return resp.Records, nil
	}
	addr, err := peer.ParseAddress(opts.addr)
	if err != nil {
		return nil, err
	}
	rec, err := c.Peer(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("get record %s from %s failed:%v", addr, opts.server, err)
	}
	return []*peer.Record{rec}, nil
}

func filter(records []*peer.Record, successful bool) []*peer.Record {
	if !successful {
		return records
	}
	var result []*peer.Record
	for _, r := range records {
		if r.HandshakeSucceeded {
			result = append(result, r)
		}
	}
	return result
}

func writeRecords(w io.Writer, records []*peer.Record) error {
	format := `>>>>> %s
first seen	%s
last seen	%s
source		%s
%s
`
	for _, r := range records {
		location := ""
		if r.Location != nil {
			location = fmt.Sprintf("location	%s %s (%.4f, %.4f)\n", r.Location.CountryCode, r.Location.City,
				r.Location.Latitude, r.Location.Longitude)
		}
		if _, err := fmt.Fprintf(w, format+location, r.Address, utils.TimeToString(r.FirstSeenAt),
			utils.TimeToString(r.LastSeenAt), r.Source, r); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d records\n", len(records))
	return err
}

type count struct {
	key string
	n   int
}

// countBy returns the counts ordered from the most frequent
func countBy(records []*peer.Record, key func(r *peer.Record) string) []count {
	m := make(map[string]int)
	for _, r := range records {
		if k := key(r); len(k) != 0 {
			m[k]++
		}
	}

	result := make([]count, 0, len(m))
	for k, n := range m {
		result = append(result, count{k, n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].n != result[j].n {
			return result[i].n > result[j].n
		}
		return result[i].key < result[j].key
	})
	return result
}

func writeStats(w io.Writer, records []*peer.Record) error {
	contacted, successful := 0, 0
	for _, r := range records {
		if r.Contacted {
			contacted++
		}
		if r.HandshakeSucceeded {
			successful++
		}
	}
	fmt.Fprintf(w, "records %d contacted %d successful %d\n", len(records), contacted, successful)

	agents := countBy(records, func(r *peer.Record) string { return r.UserAgent })
	fmt.Fprintln(w, ">>>>> user agents")
	for i, c := range agents {
		if i == 10 {
			break
		}
		fmt.Fprintf(w, "%-40s %d\n", c.key, c.n)
	}

	countries := countBy(records, func(r *peer.Record) string {
		if r.Location == nil {
			return ""
		}
		return r.Location.CountryCode
	})
	fmt.Fprintln(w, ">>>>> countries")
	for _, c := range countries {
		if _, err := fmt.Fprintf(w, "%-4s %d\n", c.key, c.n); err != nil {
			return err
		}
	}
	return nil
}
