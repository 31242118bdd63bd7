package db

import (
	"sort"

	"github.com/996BC/btccrawler/crawler"
	"github.com/996BC/btccrawler/p2p/peer"
	"github.com/996BC/btccrawler/utils"
)

// Store keeps the peer records of all crawls and the crawl summaries.
// SaveRecord is an upsert that keeps the earliest FirstSeenAt of the address.
type Store interface {
	SaveRecord(r *peer.Record) error
	GetRecord(addr peer.Address) (*peer.Record, error)
	Records() ([]*peer.Record, error)
	SaveSummary(s *crawler.Summary) error
	Close() error
}

const (
	TypeMemory = "memory"
	TypeBadger = "badger"
	TypeRedis  = "redis"
)

type Config struct {
	Type string

	// badger
	Path string

	// redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

var logger = utils.NewLogger("db")

// Open opens the store selected by conf.Type, an empty type is the memory store
func Open(conf Config) (Store, error) {
	switch conf.Type {
	case "", TypeMemory:
		return NewMemory(), nil
	case TypeBadger:
		return OpenBadger(conf.Path)
	case TypeRedis:
		return OpenRedis(conf.RedisAddr, conf.RedisPassword, conf.RedisDB)
	default:
		return nil, ErrUnknownType{conf.Type}
	}
}

// Reporter saves the crawl summary into the store when a crawl completes
func Reporter(s Store) crawler.Reporter {
	return crawler.ReporterFunc(func(sum *crawler.Summary) {
		if err := s.SaveSummary(sum); err != nil {
			logger.Warn("save summary %s failed:%v\n", sum.SessionID, err)
		}
	})
}

func sortRecords(records []*peer.Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Address, records[j].Address
		if c := a.IP.Compare(b.IP); c != 0 {
			return c < 0
		}
		return a.Port < b.Port
	})
}
