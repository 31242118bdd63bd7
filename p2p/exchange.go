package p2p

import (
	"context"
	"errors"

	"github.com/996BC/btccrawler/p2p/peer"
	"github.com/996BC/btccrawler/serialize/message"
)

// RequestAddresses asks a ready peer for its known peers.
// It returns at the first addr message yielding a usable address. A peer which stays
// silent until the read budget or the read timeout runs out yields an empty list and no error.
func (s *Session) RequestAddresses(ctx context.Context) ([]peer.Address, error) {
	if s.state != StateReady {
		return nil, ErrNotReady
	}

	if err := s.send(ctx, message.CmdGetAddr, nil); err != nil {
		return nil, err
	}

	for i := 0; i < s.conf.ExchangeAttempts; i++ {
		h, payload, err := s.read(ctx)
		if errors.Is(err, ErrReadTimeout) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		switch h.Command {
		case message.CmdAddr:
			if addrs := message.DecodeAddressList(payload); len(addrs) > 0 {
				return addrs, nil
			}
		default:
			if err := s.handleCommon(ctx, h.Command, payload); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}
