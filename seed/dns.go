package seed

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/996BC/btccrawler/p2p/peer"
)

// Resolver is satisfied by *net.Resolver
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

type DNSOptions struct {
	// Names are the DNS seed host names, params.Network.DNSSeeds usually
	Names []string
	// Port is assigned to every resolved address, the A records have none
	Port uint16
	// Timeout bounds each lookup, 10s if zero
	Timeout  time.Duration
	Resolver Resolver
}

type dnsSeeds struct {
	opts DNSOptions
}

func NewDNS(opts DNSOptions) Source {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Resolver == nil {
		opts.Resolver = net.DefaultResolver
	}
	return &dnsSeeds{opts: opts}
}

func (d *dnsSeeds) Name() string {
	return "dns"
}

func (d *dnsSeeds) InitialAddresses(ctx context.Context) ([]peer.Address, error) {
	var result []peer.Address
	failed := 0
	for _, name := range d.opts.Names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		addrs, err := d.lookup(ctx, name)
		if err != nil {
			logger.Warn("resolve dns seed %s failed:%v\n", name, err)
			failed++
			continue
		}
		logger.Debug("dns seed %s: %d IPv4 addresses\n", name, len(addrs))
		result = append(result, addrs...)
	}

	if len(result) == 0 && failed > 0 {
		return nil, fmt.Errorf("all %d dns seeds failed", failed)
	}
	return normalize(result), nil
}

func (d *dnsSeeds) lookup(ctx context.Context, name string) ([]peer.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	hosts, err := d.opts.Resolver.LookupHost(ctx, name)
	if err != nil {
		return nil, err
	}

	var result []peer.Address
	for _, h := range hosts {
		ip, err := netip.ParseAddr(h)
		if err != nil {
			continue
		}
		if addr := peer.NewAddress(ip, d.opts.Port); addr.IsValid() {
			result = append(result, addr)
		}
	}
	return result, nil
}
