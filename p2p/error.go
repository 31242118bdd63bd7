package p2p

import (
	"context"
	"errors"
	"fmt"

	"github.com/996BC/btccrawler/p2p/peer"
	"github.com/996BC/btccrawler/serialize/message"
)

var ErrConnectTimeout = errors.New("connect timeout")

var ErrConnectFailed = errors.New("connect failed")

var ErrReadTimeout = errors.New("read timeout")

var ErrWriteTimeout = errors.New("write timeout")

var ErrHandshakeIncomplete = errors.New("handshake incomplete")

var ErrCanceled = errors.New("canceled")

var ErrNotReady = errors.New("session is not ready")

// ErrUnexpectedState is returned when a session operation is called out of order
type ErrUnexpectedState struct {
	op    string
	state State
}

func (e ErrUnexpectedState) Error() string {
	return fmt.Sprintf("%s in state %s", e.op, e.state)
}

// ErrContact carries the peer and the stage where a contact failed
type ErrContact struct {
	Addr  peer.Address
	Stage string
	Err   error
}

func (e *ErrContact) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Addr, e.Err)
}

func (e *ErrContact) Unwrap() error {
	return e.Err
}

// failure reasons, stable labels for stores and metrics
const (
	ReasonConnectTimeout      = "connect_timeout"
	ReasonConnectFailed       = "connect_failed"
	ReasonReadTimeout         = "read_timeout"
	ReasonWriteTimeout        = "write_timeout"
	ReasonBadMagic            = "bad_magic"
	ReasonOversizedPayload    = "oversized_payload"
	ReasonChecksumMismatch    = "checksum_mismatch"
	ReasonHandshakeIncomplete = "handshake_incomplete"
	ReasonTruncatedInput      = "truncated_input"
	ReasonMalformedPayload    = "malformed_payload"
	ReasonCanceled            = "canceled"
	ReasonIOError             = "io_error"
)

var reasons = []struct {
	err   error
	label string
}{
	{ErrCanceled, ReasonCanceled},
	{context.Canceled, ReasonCanceled},
	{ErrConnectTimeout, ReasonConnectTimeout},
	{ErrConnectFailed, ReasonConnectFailed},
	{ErrReadTimeout, ReasonReadTimeout},
	{ErrWriteTimeout, ReasonWriteTimeout},
	{message.ErrBadMagic, ReasonBadMagic},
	{message.ErrOversizedPayload, ReasonOversizedPayload},
	{message.ErrChecksumMismatch, ReasonChecksumMismatch},
	{ErrHandshakeIncomplete, ReasonHandshakeIncomplete},
	{message.ErrTruncatedInput, ReasonTruncatedInput},
	{message.ErrMalformedPayload, ReasonMalformedPayload},
}

// Reason maps err to its failure label, nil maps to ""
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return ReasonIOError
}
