package nntp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"time"
)

// ErrArticleMissing is the soft failure reported when a server replies that
// it does not carry a given article (NNTP 423/430). Distinct from a fatal
// transport/protocol error, which the caller must treat as a server-health
// event instead.
var ErrArticleMissing = errors.New("nntp: article missing on server")

const defaultOpTimeout = 30 * time.Second

// Client is a single NNTP connection, text-protocol framed per RFC 3977.
type Client struct {
	conn     *textproto.Conn
	netConn  net.Conn
	cfg      ServerConfig
	LastUsed time.Time
}

// Dial opens and authenticates a new connection to cfg's server.
func Dial(ctx context.Context, cfg ServerConfig) (*Client, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	dialer := &net.Dialer{}
	if dl, ok := ctx.Deadline(); ok {
		dialer.Deadline = dl
	}

	var conn net.Conn
	var err error
	if cfg.UseSSL {
		tlsDialer := &tls.Dialer{NetDialer: dialer}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("nntp: dial %s: %w", addr, err)
	}

	conn.SetDeadline(time.Now().Add(defaultOpTimeout))
	tp := textproto.NewConn(conn)
	// 200 (posting allowed) or 201 (no posting) are both accepted greetings.
	if _, _, err := tp.ReadResponse(20); err != nil {
		tp.Close()
		return nil, fmt.Errorf("nntp: greeting: %w", err)
	}
	conn.SetDeadline(time.Time{})

	c := &Client{conn: tp, netConn: conn, cfg: cfg, LastUsed: time.Now()}
	if cfg.User != "" {
		if err := c.authenticate(cfg.User, cfg.Pass); err != nil {
			c.Close()
			return nil, fmt.Errorf("nntp: auth: %w", err)
		}
	}
	return c, nil
}

func (c *Client) authenticate(user, pass string) error {
	c.setDeadline()
	id, err := c.conn.Cmd("AUTHINFO USER %s", user)
	if err != nil {
		return err
	}
	c.conn.StartResponse(id)
	code, _, err := c.conn.ReadCodeLine(381)
	c.conn.EndResponse(id)
	if err != nil {
		if code == 281 {
			return nil
		}
		return err
	}

	id, err = c.conn.Cmd("AUTHINFO PASS %s", pass)
	if err != nil {
		return err
	}
	c.conn.StartResponse(id)
	_, _, err = c.conn.ReadCodeLine(281)
	c.conn.EndResponse(id)
	return err
}

func (c *Client) setDeadline() {
	c.netConn.SetDeadline(time.Now().Add(defaultOpTimeout))
}

func (c *Client) deadlineFromContext(ctx context.Context) {
	if dl, ok := ctx.Deadline(); ok {
		c.netConn.SetDeadline(dl)
		return
	}
	c.setDeadline()
}

// Stat probes for article existence via the STAT command without transferring
// the body. Returns ErrArticleMissing on 423/430; any other error is fatal.
func (c *Client) Stat(ctx context.Context, articleID string) error {
	c.deadlineFromContext(ctx)
	id, err := c.conn.Cmd("STAT <%s>", articleID)
	if err != nil {
		return err
	}
	c.conn.StartResponse(id)
	code, _, err := c.conn.ReadCodeLine(223)
	c.conn.EndResponse(id)
	if err == nil {
		return nil
	}
	if code == 423 || code == 430 {
		return ErrArticleMissing
	}
	return err
}

// Body fetches the raw (yEnc-encoded) body of an article. The returned reader
// is a dot-stuffing-unescaped stream positioned at the first body line;
// callers must read it to EOF before issuing another command on this
// connection. Close on the returned ReadCloser does nothing; it does not
// discard the unread remainder.
func (c *Client) Body(ctx context.Context, articleID string) (io.ReadCloser, error) {
	c.deadlineFromContext(ctx)
	id, err := c.conn.Cmd("BODY <%s>", articleID)
	if err != nil {
		return nil, err
	}
	c.conn.StartResponse(id)
	code, _, err := c.conn.ReadCodeLine(222)
	c.conn.EndResponse(id)
	if err != nil {
		if code == 423 || code == 430 {
			return nil, ErrArticleMissing
		}
		return nil, err
	}
	return io.NopCloser(c.conn.DotReader()), nil
}

// Group selects a newsgroup, required by some servers before BODY/STAT will
// succeed outside of a prior session context.
func (c *Client) Group(ctx context.Context, group string) error {
	c.deadlineFromContext(ctx)
	id, err := c.conn.Cmd("GROUP %s", group)
	if err != nil {
		return err
	}
	c.conn.StartResponse(id)
	_, _, err = c.conn.ReadCodeLine(211)
	c.conn.EndResponse(id)
	return err
}

// Close terminates the connection with QUIT, then closes the socket.
func (c *Client) Close() error {
	if c.conn != nil {
		c.conn.Cmd("QUIT")
		return c.conn.Close()
	}
	return nil
}
