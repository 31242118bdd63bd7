package seed

import (
	"context"

	"github.com/996BC/btccrawler/p2p/peer"
)

// RecordLister is implemented by the peer stores of package db
type RecordLister interface {
	Records() ([]*peer.Record, error)
}

type StoreOptions struct {
	// IncludeSuccessful revisits the peers which answered the handshake before
	IncludeSuccessful bool
	// IncludeFailed retries the peers whose contact failed
	IncludeFailed bool
}

type storeSeeds struct {
	lister RecordLister
	opts   StoreOptions
}

// NewStore returns a Source continuing from the records of previous runs.
// Records never contacted are always returned, the others depending on opts.
func NewStore(lister RecordLister, opts StoreOptions) Source {
	return &storeSeeds{lister: lister, opts: opts}
}

func (s *storeSeeds) Name() string {
	return "store"
}

func (s *storeSeeds) InitialAddresses(ctx context.Context) ([]peer.Address, error) {
	records, err := s.lister.Records()
	if err != nil {
		return nil, err
	}

	var result []peer.Address
	for _, r := range records {
		switch {
		case !r.Contacted:
		case r.HandshakeSucceeded && s.opts.IncludeSuccessful:
		case !r.HandshakeSucceeded && s.opts.IncludeFailed:
		default:
			continue
		}
		result = append(result, r.Address)
	}
	return normalize(result), nil
}
