// Package tcp retrieves payloads from raw TCP endpoints. A fetch opens one
// socket, optionally sends a request, then reads in one of three modes:
// exactly N bytes, until the peer closes, or until a delimiter is observed.
// A zero-length read is end-of-stream in every mode, never an error.
package tcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/databridge/databridge/internal/connector"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultBufferSize = 4096
)

type Connector struct {
	timeout    time.Duration
	bufferSize int
}

func New(opts ...Option) *Connector {
	c := &Connector{
		timeout:    defaultTimeout,
		bufferSize: defaultBufferSize,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type Option func(*Connector)

func WithTimeout(d time.Duration) Option {
	return func(c *Connector) { c.timeout = d }
}

func WithBufferSize(n int) Option {
	return func(c *Connector) { c.bufferSize = n }
}

func (c *Connector) Type() string { return connector.TypeTCP }

func (c *Connector) Fetch(ctx context.Context, cfg *connector.Config) ([]byte, error) {
	if cfg == nil || cfg.TCP == nil {
		return nil, connector.Errorf(connector.KindConnectionFailed, "tcp config is required")
	}
	tc := cfg.TCP

	conn, err := c.Dial(ctx, tc)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	timeout := c.timeoutFor(tc)
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if tc.SendData != "" {
		if _, err := conn.Write([]byte(tc.SendData)); err != nil {
			return nil, connector.WrapError(connector.KindConnectionFailed, fmt.Errorf("send: %w", err))
		}
	}

	switch {
	case tc.ExpectSize > 0:
		return readExact(conn, tc.ExpectSize)
	case tc.Delimiter != "":
		return readUntil(conn, []byte(tc.Delimiter))
	default:
		return c.readAll(conn)
	}
}

// SendReceive sends a request over a fresh connection and returns the
// response, sized by expectSize when positive.
func (c *Connector) SendReceive(ctx context.Context, tc *connector.TCPConfig, request []byte, expectSize int) ([]byte, error) {
	cfg := *tc
	cfg.SendData = string(request)
	cfg.ExpectSize = expectSize
	return c.Fetch(ctx, &connector.Config{Type: connector.TypeTCP, TCP: &cfg})
}

// Dial opens the socket with the configured timeout. The caller owns the
// connection and must close it.
func (c *Connector) Dial(ctx context.Context, tc *connector.TCPConfig) (net.Conn, error) {
	addr := net.JoinHostPort(tc.Host, fmt.Sprintf("%d", tc.Port))
	d := net.Dialer{Timeout: c.timeoutFor(tc)}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if isTimeout(err) {
			return nil, connector.WrapError(connector.KindTimeout, fmt.Errorf("dial %s: %w", addr, err))
		}
		return nil, connector.WrapError(connector.KindConnectionFailed, fmt.Errorf("dial %s: %w", addr, err))
	}
	return conn, nil
}

func (c *Connector) timeoutFor(tc *connector.TCPConfig) time.Duration {
	if tc.Timeout > 0 {
		return time.Duration(tc.Timeout) * time.Second
	}
	return c.timeout
}

// readAll drains the connection until the peer closes. A read deadline expiry
// ends the read with whatever arrived; slow peers are bounded, not fatal.
func (c *Connector) readAll(conn net.Conn) ([]byte, error) {
	var data []byte
	buf := make([]byte, c.bufferSize)
	for {
		n, err := conn.Read(buf)
		data = append(data, buf[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) || isTimeout(err) {
				return data, nil
			}
			return nil, connector.WrapError(connector.KindConnectionFailed, fmt.Errorf("read: %w", err))
		}
	}
}

// readExact reads exactly size bytes, or fewer if the peer closes first.
func readExact(conn net.Conn, size int) ([]byte, error) {
	data := make([]byte, size)
	n, err := io.ReadFull(conn, data)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return data[:n], nil
		}
		if isTimeout(err) {
			return nil, connector.WrapError(connector.KindTimeout, fmt.Errorf("read %d bytes: %w", size, err))
		}
		return nil, connector.WrapError(connector.KindConnectionFailed, fmt.Errorf("read %d bytes: %w", size, err))
	}
	return data, nil
}

// readUntil scans byte at a time until the delimiter is observed, returning
// the data including the delimiter. Peer close ends the read.
func readUntil(conn net.Conn, delim []byte) ([]byte, error) {
	var data []byte
	buf := make([]byte, 1)
	for !bytes.Contains(data, delim) {
		n, err := conn.Read(buf)
		if n > 0 {
			data = append(data, buf[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return data, nil
			}
			if isTimeout(err) {
				return nil, connector.WrapError(connector.KindTimeout, fmt.Errorf("read until %q: %w", delim, err))
			}
			return nil, connector.WrapError(connector.KindConnectionFailed, fmt.Errorf("read until %q: %w", delim, err))
		}
	}
	return data, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
