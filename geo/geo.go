package geo

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/oschwald/maxminddb-golang"

	"github.com/996BC/btccrawler/crawler"
	"github.com/996BC/btccrawler/p2p/peer"
	"github.com/996BC/btccrawler/utils"
)

var logger = utils.NewLogger("geo")

// Locator resolves the physical location of an address, a nil location means unknown
type Locator interface {
	Lookup(ip netip.Addr) (*peer.Location, error)
}

// cityRecord is the part of a GeoLite2/DB-IP City record the crawler keeps
type cityRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
		TimeZone  string  `maxminddb:"time_zone"`
	} `maxminddb:"location"`
}

// DBLocator reads an offline mmdb file. Without a file it runs in degraded mode
// and every lookup returns an unknown location.
type DBLocator struct {
	db *maxminddb.Reader
}

// Open loads the City database at path, an empty path gives the degraded locator
func Open(path string) (*DBLocator, error) {
	if path == "" {
		logger.Debugln("no geo database configured, locations are not resolved")
		return &DBLocator{}, nil
	}

	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geo database %s failed: %w", path, err)
	}
	logger.Info("geo database %s type %s loaded\n", path, db.Metadata.DatabaseType)
	return &DBLocator{db: db}, nil
}

func (l *DBLocator) Degraded() bool {
	return l.db == nil
}

func (l *DBLocator) Lookup(ip netip.Addr) (*peer.Location, error) {
	if l.db == nil || !ip.IsValid() {
		return nil, nil
	}

	var record cityRecord
	if err := l.db.Lookup(ip.AsSlice(), &record); err != nil {
		return nil, err
	}
	if record.Country.ISOCode == "" && record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return nil, nil
	}

	return &peer.Location{
		Country:     record.Country.Names["en"],
		CountryCode: record.Country.ISOCode,
		City:        record.City.Names["en"],
		Latitude:    record.Location.Latitude,
		Longitude:   record.Location.Longitude,
		Timezone:    record.Location.TimeZone,
	}, nil
}

func (l *DBLocator) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Enricher attaches a location to every successful record before forwarding it
type Enricher struct {
	next    crawler.PeerStore
	locator Locator

	mu    sync.Mutex
	cache map[netip.Addr]*peer.Location
}

func NewEnricher(next crawler.PeerStore, locator Locator) *Enricher {
	return &Enricher{
		next:    next,
		locator: locator,
		cache:   make(map[netip.Addr]*peer.Location),
	}
}

func (e *Enricher) SaveRecord(r *peer.Record) error {
	if r.HandshakeSucceeded && r.Location == nil {
		if loc := e.locate(r.Address.IP); loc != nil {
			r = r.Clone()
			copied := *loc
			r.Location = &copied
		}
	}
	return e.next.SaveRecord(r)
}

func (e *Enricher) locate(ip netip.Addr) *peer.Location {
	e.mu.Lock()
	defer e.mu.Unlock()

	if loc, ok := e.cache[ip]; ok {
		return loc
	}

	loc, err := e.locator.Lookup(ip)
	if err != nil {
		logger.Debug("lookup %s failed:%v\n", ip, err)
		return nil
	}
	e.cache[ip] = loc
	return loc
}
