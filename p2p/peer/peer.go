package peer

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/996BC/btccrawler/utils"
)

// Address is a reachable IPv4 endpoint of a node, comparable and usable as map key
type Address struct {
	IP   netip.Addr
	Port uint16
}

// NewAddress returns the zero Address if ip is not IPv4
func NewAddress(ip netip.Addr, port uint16) Address {
	ip = ip.Unmap()
	if !ip.Is4() {
		return Address{}
	}
	return Address{IP: ip, Port: port}
}

// ParseAddress parses address like 203.0.113.5:8333
func ParseAddress(s string) (Address, error) {
	ip, port := utils.ParseIPPort(s)
	if !ip.IsValid() {
		return Address{}, fmt.Errorf("invalid IPv4 address %q", s)
	}
	return Address{IP: ip, Port: port}, nil
}

func (a Address) IsValid() bool {
	return a.IP.Is4() && a.Port != 0
}

// String returns the address like 203.0.113.5:8333
func (a Address) String() string {
	return netip.AddrPortFrom(a.IP, a.Port).String()
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	addr, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// AddrPort converts the address for the net package
func (a Address) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(a.IP, a.Port)
}

// excluded holds the ranges never put into the frontier,
// everything from 224.0.0.0 upward (multicast and reserved) included
var excluded = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("240.0.0.0/4"),
}

// IsRoutable reports whether ip is an IPv4 address outside the excluded ranges
func IsRoutable(ip netip.Addr) bool {
	ip = ip.Unmap()
	if !ip.Is4() {
		return false
	}
	for _, p := range excluded {
		if p.Contains(ip) {
			return false
		}
	}
	return true
}

// SourceSeed marks records that came from a seed source instead of another peer
const SourceSeed = "seed"

// Record is the crawl state of one distinct address.
// The optional fields are only meaningful when HandshakeSucceeded.
type Record struct {
	Address     Address   `json:"address"`
	FirstSeenAt time.Time `json:"first_seen"`
	LastSeenAt  time.Time `json:"last_seen"`

	Contacted          bool   `json:"contacted"`
	HandshakeSucceeded bool   `json:"handshake_succeeded"`
	FailReason         string `json:"fail_reason,omitempty"`

	UserAgent       string `json:"user_agent,omitempty"`
	ProtocolVersion int32  `json:"protocol_version,omitempty"`
	Services        uint64 `json:"services,omitempty"`
	ReportedHeight  int32  `json:"height,omitempty"`

	// Source is SourceSeed or the address of the peer which advertised this one
	Source   string    `json:"source,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// NewRecord creates the record of a newly discovered address
func NewRecord(addr Address, source string, now time.Time) *Record {
	return &Record{
		Address:     addr,
		FirstSeenAt: now,
		LastSeenAt:  now,
		Source:      source,
	}
}

// Clone returns a deep copy, the records handed to stores must not be shared with the crawler
func (r *Record) Clone() *Record {
	c := *r
	if r.Location != nil {
		loc := *r.Location
		c.Location = &loc
	}
	return &c
}

func (r *Record) String() string {
	if !r.HandshakeSucceeded {
		return fmt.Sprintf("%s contacted %v failed %q", r.Address, r.Contacted, r.FailReason)
	}
	return fmt.Sprintf("%s version %d agent %q services %d height %d",
		r.Address, r.ProtocolVersion, r.UserAgent, r.Services, r.ReportedHeight)
}

// Location is the physical location resolved from an offline geo database
type Location struct {
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	City        string  `json:"city,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone,omitempty"`
}
