package p2p

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/996BC/btccrawler/p2p/peer"
	"github.com/996BC/btccrawler/params"
	"github.com/996BC/btccrawler/serialize/message"
	"github.com/996BC/btccrawler/tracing"
	"github.com/996BC/btccrawler/utils"
)

/*
outbound handshake:
	1. send version
	2. read until both the peer's version and verack arrived, in any order
	   - version: record the peer metadata, reply verack
	   - ping: reply pong with the same nonce
	   - others: skipped
	3. READY, or CLOSED_FAILED when the read budget is exhausted
*/

type State int

const (
	StateInit State = iota
	StateVersionSent
	StateVersionReceived
	StateReady
	StateClosedOK
	StateClosedFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateVersionSent:
		return "VERSION_SENT"
	case StateVersionReceived:
		return "VERSION_RECEIVED"
	case StateReady:
		return "READY"
	case StateClosedOK:
		return "CLOSED_OK"
	case StateClosedFailed:
		return "CLOSED_FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config is the per connection configuration of the sessions
type Config struct {
	Magic      uint32
	MaxPayload uint32

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// bounded message reads of each phase
	HandshakeAttempts int
	ExchangeAttempts  int

	ProtocolVersion int32
	UserAgent       string

	// Dialer is net.Dialer backed if nil
	Dialer utils.Dialer
	// Tracer spans every contact, nil disables tracing
	Tracer *tracing.Tracer
}

// DefaultConfig returns the configuration used by the crawler against the network of magic
func DefaultConfig(magic uint32) Config {
	return Config{
		Magic:             magic,
		MaxPayload:        params.MaxPayloadSize,
		ConnectTimeout:    5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		HandshakeAttempts: 10,
		ExchangeAttempts:  5,
		ProtocolVersion:   params.ProtocolVersion,
		UserAgent:         params.UserAgent,
	}
}

func (c *Config) verify() error {
	if c.ConnectTimeout <= 0 || c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.HandshakeAttempts <= 0 || c.ExchangeAttempts <= 0 {
		return fmt.Errorf("attempts must be positive")
	}
	if c.MaxPayload == 0 {
		c.MaxPayload = params.MaxPayloadSize
	}
	if c.Dialer == nil {
		c.Dialer = utils.NewDialer()
	}
	return nil
}

// Session is one outbound connection driven through the handshake.
// A Session is used by one goroutine.
type Session struct {
	conf  Config
	addr  peer.Address
	conn  utils.TCPConn
	state State

	gotVersion bool
	gotVerack  bool
	remote     *message.Version
	nonce      uint64
	err        error
}

// Dial connects to addr, cancelling ctx closes the connection at any later point
func Dial(ctx context.Context, conf Config, addr peer.Address) (*Session, error) {
	if err := conf.verify(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrCanceled
	}

	conn, err := conf.Dialer.Dial(ctx, addr.String(), conf.ConnectTimeout)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, ErrCanceled
		case isTimeout(err):
			return nil, ErrConnectTimeout
		default:
			return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
		}
	}

	return &Session{
		conf:  conf,
		addr:  addr,
		conn:  conn,
		state: StateInit,
		nonce: rand.Uint64(),
	}, nil
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) Addr() peer.Address {
	return s.addr
}

// Remote returns the peer's version, nil before it arrived
func (s *Session) Remote() *message.Version {
	return s.remote
}

// Err returns the error which failed the session
func (s *Session) Err() error {
	return s.err
}

// Handshake exchanges version and verack with the peer
func (s *Session) Handshake(ctx context.Context) error {
	if s.state != StateInit {
		return ErrUnexpectedState{op: "handshake", state: s.state}
	}

	recv := message.NewNetAddress(s.addr, 0)
	version := message.NewVersion(s.conf.ProtocolVersion, s.conf.UserAgent, recv, s.nonce)
	if err := s.send(ctx, message.CmdVersion, version.Marshal()); err != nil {
		return s.fail(err)
	}
	s.state = StateVersionSent

	for i := 0; i < s.conf.HandshakeAttempts; i++ {
		h, payload, err := s.read(ctx)
		if err != nil {
			return s.fail(err)
		}

		switch h.Command {
		case message.CmdVersion:
			if err := s.onVersion(ctx, payload); err != nil {
				return s.fail(err)
			}
		case message.CmdVerack:
			s.gotVerack = true
		default:
			if err := s.handleCommon(ctx, h.Command, payload); err != nil {
				return s.fail(err)
			}
		}

		if s.gotVersion && s.gotVerack {
			s.state = StateReady
			return nil
		}
	}

	return s.fail(fmt.Errorf("%w: version %v verack %v after %d messages",
		ErrHandshakeIncomplete, s.gotVersion, s.gotVerack, s.conf.HandshakeAttempts))
}

func (s *Session) onVersion(ctx context.Context, payload []byte) error {
	if s.gotVersion {
		return nil
	}
	v, err := message.UnmarshalVersion(payload)
	if err != nil {
		return err
	}
	if err := s.send(ctx, message.CmdVerack, nil); err != nil {
		return err
	}
	s.remote = v
	s.gotVersion = true
	s.state = StateVersionReceived
	return nil
}

// handleCommon answers the messages which may arrive in any phase
func (s *Session) handleCommon(ctx context.Context, command string, payload []byte) error {
	if command != message.CmdPing {
		logger.Debug("%s skip %s\n", s.addr, command)
		return nil
	}
	nonce, ok := message.DecodeNonce(payload)
	if !ok {
		return nil
	}
	return s.send(ctx, message.CmdPong, message.EncodeNonce(nonce))
}

func (s *Session) send(ctx context.Context, command string, payload []byte) error {
	return writeMessage(ctx, s.conn, s.conf.Magic, command, payload, s.conf.WriteTimeout)
}

func (s *Session) read(ctx context.Context) (*message.Header, []byte, error) {
	if ctx.Err() != nil {
		return nil, nil, ErrCanceled
	}
	return readMessage(ctx, s.conn, s.conf.Magic, s.conf.MaxPayload, s.conf.ReadTimeout)
}

func (s *Session) fail(err error) error {
	s.err = err
	s.Close()
	return err
}

// Close releases the connection, it is safe to call more than once
func (s *Session) Close() error {
	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}

	switch s.state {
	case StateReady, StateClosedOK:
		s.state = StateClosedOK
	default:
		s.state = StateClosedFailed
	}
	return err
}
