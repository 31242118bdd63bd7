package peer

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("203.0.113.5:8333")
	require.NoError(t, err)
	require.Equal(t, Address{IP: netip.MustParseAddr("203.0.113.5"), Port: 8333}, addr)
	require.Equal(t, "203.0.113.5:8333", addr.String())
	require.True(t, addr.IsValid())

	_, err = ParseAddress("[2001:db8::1]:8333")
	require.Error(t, err)

	require.False(t, NewAddress(netip.MustParseAddr("2001:db8::1"), 8333).IsValid())
	mapped := NewAddress(netip.MustParseAddr("::ffff:203.0.113.5"), 8333)
	require.Equal(t, addr, mapped)
}

func TestIsRoutable(t *testing.T) {
	var tests = []struct {
		ip       string
		routable bool
	}{
		{"203.0.113.5", true},
		{"8.8.8.8", true},
		{"172.32.0.1", true},
		{"223.255.255.255", true},
		{"10.0.0.5", false},
		{"172.16.3.4", false},
		{"172.31.255.255", false},
		{"192.168.1.1", false},
		{"127.0.0.1", false},
		{"0.1.2.3", false},
		{"224.0.0.1", false},
		{"239.255.255.250", false},
		{"240.0.0.1", false},
		{"255.255.255.255", false},
		{"2001:db8::1", false},
	}

	for _, test := range tests {
		require.Equal(t, test.routable, IsRoutable(netip.MustParseAddr(test.ip)), test.ip)
	}
}

func TestRecordClone(t *testing.T) {
	addr, _ := ParseAddress("203.0.113.5:8333")
	r := NewRecord(addr, SourceSeed, time.Now())
	r.Location = &Location{Country: "Japan"}

	c := r.Clone()
	c.Location.Country = "France"
	c.Contacted = true
	require.Equal(t, "Japan", r.Location.Country)
	require.False(t, r.Contacted)
}
