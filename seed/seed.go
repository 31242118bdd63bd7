package seed

import (
	"context"
	"errors"

	"github.com/996BC/btccrawler/p2p/peer"
	"github.com/996BC/btccrawler/utils"
)

var logger = utils.NewLogger("seed")

var ErrNoSeeds = errors.New("no seed address")

// Source provides the bootstrap addresses of a crawl
type Source interface {
	Name() string
	InitialAddresses(ctx context.Context) ([]peer.Address, error)
}

// normalize drops duplicates and addresses the crawler would never contact, keeping the order
func normalize(addrs []peer.Address) []peer.Address {
	seen := make(map[peer.Address]struct{}, len(addrs))
	result := make([]peer.Address, 0, len(addrs))
	for _, a := range addrs {
		if !a.IsValid() || !peer.IsRoutable(a.IP) {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		result = append(result, a)
	}
	return result
}

type multi struct {
	sources []Source
}

// Multi returns the union of sources, a failing source is logged and skipped.
// It fails only when every source failed or nothing was found.
func Multi(sources ...Source) Source {
	return &multi{sources: append([]Source(nil), sources...)}
}

func (m *multi) Name() string {
	return "multi"
}

func (m *multi) InitialAddresses(ctx context.Context) ([]peer.Address, error) {
	var all []peer.Address
	var errs []error
	for _, s := range m.sources {
		addrs, err := s.InitialAddresses(ctx)
		if err != nil {
			logger.Warn("seed source %s failed:%v\n", s.Name(), err)
			errs = append(errs, err)
			continue
		}
		logger.Info("seed source %s returned %d addresses\n", s.Name(), len(addrs))
		all = append(all, addrs...)
	}

	result := normalize(all)
	if len(result) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(append([]error{ErrNoSeeds}, errs...)...)
		}
		return nil, ErrNoSeeds
	}
	return result, nil
}

type fallback struct {
	primary  Source
	fallback Source
}

// Fallback returns primary's addresses, or fallback's when primary fails or finds nothing
func Fallback(primary, secondary Source) Source {
	return &fallback{primary: primary, fallback: secondary}
}

func (f *fallback) Name() string {
	return f.primary.Name() + "|" + f.fallback.Name()
}

func (f *fallback) InitialAddresses(ctx context.Context) ([]peer.Address, error) {
	addrs, err := f.primary.InitialAddresses(ctx)
	if err == nil {
		if addrs = normalize(addrs); len(addrs) > 0 {
			return addrs, nil
		}
	}
	logger.Info("seed source %s gave no address (%v), falling back to %s\n", f.primary.Name(), err, f.fallback.Name())

	addrs, ferr := f.fallback.InitialAddresses(ctx)
	if ferr != nil {
		return nil, errors.Join(ferr, err)
	}
	if addrs = normalize(addrs); len(addrs) == 0 {
		return nil, errors.Join(ErrNoSeeds, err)
	}
	return addrs, nil
}
