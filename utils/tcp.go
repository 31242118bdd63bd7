package utils

import (
	"context"
	"io"
	"net"
	"sync"
	"time"
)

// TCPConn is an outbound connection whose every read and write is bound to its own timeout.
// It is owned by one goroutine; only Close may be called concurrently.
type TCPConn interface {
	// ReadFull fills buf or fails, the deadline is reset on each call
	ReadFull(buf []byte, timeout time.Duration) error
	Write(data []byte, timeout time.Duration) error
	RemoteAddr() net.Addr
	Close() error
}

// Dialer opens TCP connections, the crawler swaps it in tests
type Dialer interface {
	Dial(ctx context.Context, address string, timeout time.Duration) (TCPConn, error)
}

type netDialer struct{}

// NewDialer returns a Dialer on top of net.Dialer
func NewDialer() Dialer {
	return netDialer{}
}

func (netDialer) Dial(ctx context.Context, address string, timeout time.Duration) (TCPConn, error) {
	d := &net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return NewTCPConn(ctx, conn), nil
}

// NewTCPConn wraps conn; cancelling ctx closes it so blocked reads return at once
func NewTCPConn(ctx context.Context, conn net.Conn) TCPConn {
	c := &tcpConn{conn: conn}
	c.mu.Lock()
	c.stopAfter = context.AfterFunc(ctx, func() {
		c.Close()
	})
	c.mu.Unlock()
	return c
}

type tcpConn struct {
	conn      net.Conn
	mu        sync.Mutex
	stopAfter func() bool
	closeOnce sync.Once
	closeErr  error
}

func (c *tcpConn) ReadFull(buf []byte, timeout time.Duration) error {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	_, err := io.ReadFull(c.conn, buf)
	return err
}

func (c *tcpConn) Write(data []byte, timeout time.Duration) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	_, err := c.conn.Write(data)
	return err
}

func (c *tcpConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *tcpConn) Close() error {
	c.closeOnce.Do(func() {
		// the AfterFunc may fire before NewTCPConn stored stopAfter
		c.mu.Lock()
		stop := c.stopAfter
		c.mu.Unlock()
		if stop != nil {
			stop()
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
