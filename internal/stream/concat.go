package stream

import (
	"context"
	"io"
)

// Concatenated lazily concatenates the sub-streams yielded by a Window,
// reading the current one to EOF before disposing it and advancing. On
// explicit cancellation it fails rather than silently yielding zero bytes.
// Grounded on pkg/unpack/virtual_stream.go's worker loop, restructured
// around Window instead of a hand-rolled channel protocol.
type Concatenated struct {
	ctx    context.Context
	win    *Window
	cur    io.ReadCloser
	closed bool
}

// NewConcatenated builds a Concatenated stream over futures with bounded
// concurrency k.
func NewConcatenated(ctx context.Context, futures []Future, k int) *Concatenated {
	return &Concatenated{ctx: ctx, win: NewWindow(ctx, futures, k)}
}

func (c *Concatenated) Read(p []byte) (int, error) {
	for {
		if c.closed {
			return 0, io.ErrClosedPipe
		}
		if err := c.ctx.Err(); err != nil {
			return 0, err
		}

		if c.cur == nil {
			r, err := c.win.Next(c.ctx)
			if err != nil {
				return 0, err
			}
			c.cur = r
		}

		n, err := c.cur.Read(p)
		if n > 0 {
			return n, nil
		}
		if err == io.EOF {
			c.cur.Close()
			c.cur = nil
			continue
		}
		if err != nil {
			return 0, err
		}
	}
}

// Close disposes the current sub-stream and every queued-but-unopened one,
// via Window.Close.
func (c *Concatenated) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.cur != nil {
		c.cur.Close()
		c.cur = nil
	}
	return c.win.Close()
}
