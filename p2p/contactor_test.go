package p2p

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/996BC/btccrawler/p2p/peer"
	"github.com/996BC/btccrawler/serialize/message"
	"github.com/996BC/btccrawler/tracing"
)

func TestContactSuccess(t *testing.T) {
	tv := sessionTestVar
	fp := newFakePeer(t, func(conn net.Conn) error {
		if err := answerHandshake(conn); err != nil {
			return err
		}
		if _, err := expectMsg(conn, message.CmdGetAddr); err != nil {
			return err
		}
		if err := sendMsg(conn, message.CmdAddr, addrPayload(tv.publicA, tv.publicB)); err != nil {
			return err
		}
		return drain(conn)
	})

	c, err := NewContactor(testConfig())
	require.NoError(t, err)

	result := c.Contact(context.Background(), fp.addr)
	require.NoError(t, result.Err)
	require.NoError(t, result.ExchangeErr)
	require.True(t, result.Handshaked)
	require.Equal(t, "", result.Reason())
	require.Equal(t, tv.peerAgent, result.Remote.UserAgent)
	require.Len(t, result.Peers, 2)
	require.Equal(t, fp.addr, result.Address)
	require.Greater(t, result.Elapsed, time.Duration(0))
	fp.wait(t)
}

func TestContactHandshakeFailure(t *testing.T) {
	fp := newFakePeer(t, drain)

	conf := testConfig()
	conf.ReadTimeout = 100 * time.Millisecond
	c, err := NewContactor(conf)
	require.NoError(t, err)

	result := c.Contact(context.Background(), fp.addr)
	require.False(t, result.Handshaked)
	require.ErrorIs(t, result.Err, ErrReadTimeout)
	require.Equal(t, ReasonReadTimeout, result.Reason())

	var contactErr *ErrContact
	require.ErrorAs(t, result.Err, &contactErr)
	require.Equal(t, stageHandshake, contactErr.Stage)
	fp.wait(t)
}

func TestContactExchangeFailure(t *testing.T) {
	fp := newFakePeer(t, func(conn net.Conn) error {
		if err := answerHandshake(conn); err != nil {
			return err
		}
		if _, err := expectMsg(conn, message.CmdGetAddr); err != nil {
			return err
		}
		msg, _ := message.BuildMessage(testMagic, message.CmdAddr, addrPayload(sessionTestVar.publicA))
		msg[message.HeaderSize] ^= 0xff
		conn.Write(msg)
		return drain(conn)
	})

	c, err := NewContactor(testConfig())
	require.NoError(t, err)

	result := c.Contact(context.Background(), fp.addr)
	require.NoError(t, result.Err)
	require.True(t, result.Handshaked)
	require.ErrorIs(t, result.ExchangeErr, message.ErrChecksumMismatch)
	require.Empty(t, result.Peers)
	fp.wait(t)
}

func TestContactTraced(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())

	conf := testConfig()
	conf.Tracer = tracing.New(tp)
	c, err := NewContactor(conf)
	require.NoError(t, err)

	// refused
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	refused, err := peer.ParseAddress(ln.Addr().String())
	require.NoError(t, err)
	ln.Close()

	result := c.Contact(context.Background(), refused)
	require.ErrorIs(t, result.Err, ErrConnectFailed)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "p2p.contact", spans[0].Name())
	require.Contains(t, spans[0].Attributes(), attribute.String("peer", refused.String()))
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Equal(t, result.Err.Error(), spans[0].Status().Description)

	// handshaked
	fp := newFakePeer(t, func(conn net.Conn) error {
		if err := answerHandshake(conn); err != nil {
			return err
		}
		if _, err := expectMsg(conn, message.CmdGetAddr); err != nil {
			return err
		}
		if err := sendMsg(conn, message.CmdAddr, addrPayload(sessionTestVar.publicA)); err != nil {
			return err
		}
		return drain(conn)
	})
	result = c.Contact(context.Background(), fp.addr)
	require.True(t, result.Handshaked)
	fp.wait(t)

	spans = sr.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, codes.Unset, spans[1].Status().Code)
	require.Contains(t, spans[1].Attributes(), attribute.Int("peers", 1))
}

func TestNewContactorInvalidConfig(t *testing.T) {
	conf := testConfig()
	conf.HandshakeAttempts = 0
	_, err := NewContactor(conf)
	require.Error(t, err)
}
