package p2p

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/996BC/btccrawler/serialize/message"
	"github.com/996BC/btccrawler/utils"
)

// readMessage reads one framed message, header and payload are each bound to timeout
func readMessage(ctx context.Context, conn utils.TCPConn, magic uint32, maxPayload uint32,
	timeout time.Duration) (*message.Header, []byte, error) {

	header := make([]byte, message.HeaderSize)
	if err := conn.ReadFull(header, timeout); err != nil {
		return nil, nil, transportErr(ctx, err, ErrReadTimeout)
	}

	h, err := message.ParseHeader(header, magic, maxPayload)
	if err != nil {
		return nil, nil, err
	}

	payload := make([]byte, h.Length)
	if h.Length > 0 {
		if err := conn.ReadFull(payload, timeout); err != nil {
			return nil, nil, transportErr(ctx, err, ErrReadTimeout)
		}
	}

	if !message.VerifyChecksum(payload, h.Checksum) {
		return nil, nil, fmt.Errorf("%w: %s", message.ErrChecksumMismatch, h.Command)
	}
	return h, payload, nil
}

func writeMessage(ctx context.Context, conn utils.TCPConn, magic uint32, command string,
	payload []byte, timeout time.Duration) error {

	packet, err := message.BuildMessage(magic, command, payload)
	if err != nil {
		return err
	}
	if err := conn.Write(packet, timeout); err != nil {
		return transportErr(ctx, err, ErrWriteTimeout)
	}
	return nil
}

// transportErr classifies a socket error, a closed socket after cancellation is ErrCanceled
func transportErr(ctx context.Context, err error, onTimeout error) error {
	if ctx.Err() != nil {
		return ErrCanceled
	}
	if isTimeout(err) {
		return onTimeout
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("connection closed by peer: %w", err)
	}
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
