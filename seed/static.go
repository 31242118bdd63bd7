package seed

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/996BC/btccrawler/p2p/peer"
)

type static struct {
	addrs []peer.Address
}

// NewStatic returns a Source of fixed addresses, an entry without port gets defaultPort
func NewStatic(defaultPort uint16, entries ...string) (Source, error) {
	var addrs []peer.Address
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		addr, err := parseEntry(e, defaultPort)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return &static{addrs: addrs}, nil
}

func parseEntry(e string, defaultPort uint16) (peer.Address, error) {
	if ip, err := netip.ParseAddr(e); err == nil {
		addr := peer.NewAddress(ip, defaultPort)
		if !addr.IsValid() {
			return peer.Address{}, fmt.Errorf("invalid seed %q", e)
		}
		return addr, nil
	}
	addr, err := peer.ParseAddress(e)
	if err != nil {
		return peer.Address{}, fmt.Errorf("invalid seed %q", e)
	}
	return addr, nil
}

func (s *static) Name() string {
	return "static"
}

func (s *static) InitialAddresses(ctx context.Context) ([]peer.Address, error) {
	return normalize(s.addrs), nil
}

// ParseList splits a comma separated list, empty items are dropped
func ParseList(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
