package geo

import (
	"errors"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maxmind/mmdbwriter"
	"github.com/maxmind/mmdbwriter/mmdbtype"
	"github.com/stretchr/testify/require"

	"github.com/996BC/btccrawler/p2p/peer"
)

type fakeLocator struct {
	locations map[netip.Addr]*peer.Location
	lookups   int
}

func (f *fakeLocator) Lookup(ip netip.Addr) (*peer.Location, error) {
	f.lookups++
	if ip == netip.MustParseAddr("203.0.113.66") {
		return nil, errors.New("corrupt search tree")
	}
	return f.locations[ip], nil
}

type recordSink []*peer.Record

func (s *recordSink) SaveRecord(r *peer.Record) error {
	*s = append(*s, r)
	return nil
}

func TestDegraded(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	require.True(t, l.Degraded())

	loc, err := l.Lookup(netip.MustParseAddr("203.0.113.5"))
	require.NoError(t, err)
	require.Nil(t, loc)
	require.NoError(t, l.Close())

	_, err = Open("/nonexistent/GeoLite2-City.mmdb")
	require.Error(t, err)
}

func TestEnricher(t *testing.T) {
	known := netip.MustParseAddr("203.0.113.5")
	berlin := &peer.Location{Country: "Germany", CountryCode: "DE", City: "Berlin", Latitude: 52.52, Longitude: 13.40, Timezone: "Europe/Berlin"}
	locator := &fakeLocator{locations: map[netip.Addr]*peer.Location{known: berlin}}

	var sink recordSink
	e := NewEnricher(&sink, locator)

	now := time.Now()
	succeeded := peer.NewRecord(peer.NewAddress(known, 8333), peer.SourceSeed, now)
	succeeded.Contacted = true
	succeeded.HandshakeSucceeded = true
	require.NoError(t, e.SaveRecord(succeeded))
	require.NoError(t, e.SaveRecord(succeeded))

	uncontacted := peer.NewRecord(peer.NewAddress(known, 18333), peer.SourceSeed, now)
	require.NoError(t, e.SaveRecord(uncontacted))

	broken := peer.NewRecord(peer.NewAddress(netip.MustParseAddr("203.0.113.66"), 8333), peer.SourceSeed, now)
	broken.Contacted = true
	broken.HandshakeSucceeded = true
	require.NoError(t, e.SaveRecord(broken))

	require.Len(t, sink, 4)
	require.Equal(t, berlin, sink[0].Location)
	require.Nil(t, succeeded.Location, "the caller's record is not modified")
	require.Nil(t, sink[2].Location)
	require.Nil(t, sink[3].Location)
	require.Equal(t, 2, locator.lookups)
}

func writeCityDB(t *testing.T) string {
	tree, err := mmdbwriter.New(mmdbwriter.Options{
		DatabaseType: "GeoLite2-City",
		RecordSize:   24,
		IPVersion:    4,
	})
	require.NoError(t, err)

	insert := func(cidr string, data mmdbtype.Map) {
		_, network, err := net.ParseCIDR(cidr)
		require.NoError(t, err)
		require.NoError(t, tree.Insert(network, data))
	}
	insert("81.2.69.0/24", mmdbtype.Map{
		"city": mmdbtype.Map{"names": mmdbtype.Map{"en": mmdbtype.String("London")}},
		"country": mmdbtype.Map{
			"iso_code": mmdbtype.String("GB"),
			"names":    mmdbtype.Map{"en": mmdbtype.String("United Kingdom")},
		},
		"location": mmdbtype.Map{
			"latitude":  mmdbtype.Float64(51.5142),
			"longitude": mmdbtype.Float64(-0.0931),
			"time_zone": mmdbtype.String("Europe/London"),
		},
	})
	// continent only, no country and no coordinates
	insert("2.125.160.0/24", mmdbtype.Map{
		"continent": mmdbtype.Map{"code": mmdbtype.String("EU")},
	})

	path := filepath.Join(t.TempDir(), "city.mmdb")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = tree.WriteTo(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return path
}

func TestDBLocator(t *testing.T) {
	l, err := Open(writeCityDB(t))
	require.NoError(t, err)
	defer l.Close()
	require.False(t, l.Degraded())

	loc, err := l.Lookup(netip.MustParseAddr("81.2.69.160"))
	require.NoError(t, err)
	require.Equal(t, &peer.Location{
		Country:     "United Kingdom",
		CountryCode: "GB",
		City:        "London",
		Latitude:    51.5142,
		Longitude:   -0.0931,
		Timezone:    "Europe/London",
	}, loc)

	// record without country or coordinates
	loc, err = l.Lookup(netip.MustParseAddr("2.125.160.216"))
	require.NoError(t, err)
	require.Nil(t, loc)

	// not in the database
	loc, err = l.Lookup(netip.MustParseAddr("8.8.8.8"))
	require.NoError(t, err)
	require.Nil(t, loc)

	_, err = Open(filepath.Join(t.TempDir(), "missing.mmdb"))
	require.Error(t, err)
}
