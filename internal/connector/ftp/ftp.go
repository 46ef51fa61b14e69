// Package ftp retrieves files from FTP servers, with optional explicit TLS.
// Every operation opens one control session and tears it down on all exit
// paths, including partial transfers.
package ftp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"golang.org/x/sync/errgroup"

	"github.com/databridge/databridge/internal/connector"
)

const (
	defaultPort    = 21
	defaultTimeout = 30 * time.Second
	// One session per concurrent transfer; servers commonly cap logins.
	maxConcurrentTransfers = 4
)

type Connector struct {
	timeout time.Duration
}

func New(opts ...Option) *Connector {
	c := &Connector{
		timeout: defaultTimeout,
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

func (c *Connector) Type() string { return connector.TypeFTP }

// Fetch downloads the configured remote file and returns its content.
func (c *Connector) Fetch(ctx context.Context, cfg *connector.Config) ([]byte, error) {
	if cfg == nil || cfg.FTP == nil {
		return nil, connector.Errorf(connector.KindConnectionFailed, "ftp config is required")
	}

	var content []byte
	err := c.withSession(ctx, cfg.FTP, func(conn *ftp.ServerConn) error {
		data, err := retrieve(conn, cfg.FTP.FilePath)
		if err != nil {
			return err
		}
		content = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

// List returns the names in a remote directory.
func (c *Connector) List(ctx context.Context, cfg *connector.Config, remotePath string) ([]string, error) {
	if cfg == nil || cfg.FTP == nil {
		return nil, connector.Errorf(connector.KindConnectionFailed, "ftp config is required")
	}
	if remotePath == "" {
		remotePath = "/"
	}

	var names []string
	err := c.withSession(ctx, cfg.FTP, func(conn *ftp.ServerConn) error {
		entries, err := conn.NameList(remotePath)
		if err != nil {
			return connector.WrapError(connector.KindRemoteError, fmt.Errorf("list %s: %w", remotePath, err))
		}
		names = entries
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// FetchMultiple downloads several files, best effort: a failed path is
// recorded in errs and does not abort the batch. Each file gets its own
// session since the control connection cannot multiplex transfers.
func (c *Connector) FetchMultiple(ctx context.Context, cfg *connector.Config, remotePaths []string) (map[string][]byte, map[string]error, error) {
	if cfg == nil || cfg.FTP == nil {
		return nil, nil, connector.Errorf(connector.KindConnectionFailed, "ftp config is required")
	}

	var mu sync.Mutex
	results := make(map[string][]byte, len(remotePaths))
	errs := make(map[string]error)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTransfers)
	for _, p := range remotePaths {
		g.Go(func() error {
			var data []byte
			err := c.withSession(ctx, cfg.FTP, func(conn *ftp.ServerConn) error {
				d, err := retrieve(conn, p)
				if err != nil {
					return err
				}
				data = d
				return nil
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[p] = err
			} else {
				results[p] = data
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, errs, nil
}

// withSession dials, authenticates, runs fn and always closes the session.
func (c *Connector) withSession(ctx context.Context, cfg *connector.FTPConfig, fn func(*ftp.ServerConn) error) error {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	timeout := c.timeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", port))

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(timeout),
	}
	if cfg.UseTLS {
		// Explicit TLS; the client negotiates data-channel protection
		// (PBSZ/PROT P) after the handshake.
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: cfg.Host}))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return classifyDial(addr, err)
	}
	defer func() {
		// Quit is polite; if the server already dropped us the deferred
		// close below is the fallback inside the library.
		_ = conn.Quit()
	}()

	user, pass := cfg.Username, cfg.Password
	if user == "" {
		user = "anonymous"
		if pass == "" {
			pass = "anonymous"
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return connector.WrapError(connector.KindAuthFailed, fmt.Errorf("login %s: %w", user, err))
	}

	return fn(conn)
}

func retrieve(conn *ftp.ServerConn, remotePath string) ([]byte, error) {
	resp, err := conn.Retr(remotePath)
	if err != nil {
		return nil, connector.WrapError(connector.KindRemoteError, fmt.Errorf("retrieve %s: %w", remotePath, err))
	}
	defer func() { _ = resp.Close() }()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, connector.WrapError(connector.KindRemoteError, fmt.Errorf("read %s: %w", remotePath, err))
	}
	return data, nil
}

func classifyDial(addr string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return connector.WrapError(connector.KindTimeout, fmt.Errorf("dial %s: %w", addr, err))
	}
	return connector.WrapError(connector.KindConnectionFailed, fmt.Errorf("dial %s: %w", addr, err))
}
