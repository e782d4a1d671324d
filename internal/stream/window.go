// Package stream implements random-access article-stream assembly, lazy
// concatenation with bounded concurrency, and the length-limiting adapter.
package stream

import (
	"context"
	"io"
	"time"
)

// Future opens one sub-stream on demand. Futures are supplied lazily so the
// window below only ever has k in flight at once.
type Future func(ctx context.Context) (io.ReadCloser, error)

type windowResult struct {
	r   io.ReadCloser
	err error
}

// Window iterates a slice of Futures with bounded parallelism k: the first
// future is launched immediately (to minimize time-to-first-byte), and up
// to k-1 further futures are kept in flight ahead of the consumer.
// Grounded on pkg/unpack/virtual_stream.go's channel-driven worker shape,
// generalized with a permit-semaphore channel to support bounded concurrent
// opens across multiple segments at once rather than a single active volume
// reader.
type Window struct {
	ctx     context.Context
	cancel  context.CancelFunc
	futures []Future
	chans   []chan windowResult
	sem     chan struct{}

	launched int
	consumed int
	closed   bool
}

// NewWindow constructs a Window over futures with concurrency k (k clamped
// to at least 1).
func NewWindow(ctx context.Context, futures []Future, k int) *Window {
	if k < 1 {
		k = 1
	}
	wctx, cancel := context.WithCancel(ctx)
	w := &Window{
		ctx:     wctx,
		cancel:  cancel,
		futures: futures,
		chans:   make([]chan windowResult, len(futures)),
		sem:     make(chan struct{}, k),
	}
	for i := range w.chans {
		w.chans[i] = make(chan windowResult, 1)
	}
	initial := k
	if initial > len(futures) {
		initial = len(futures)
	}
	for i := 0; i < initial; i++ {
		w.launch(i)
	}
	return w
}

func (w *Window) launch(i int) {
	w.sem <- struct{}{}
	w.launched++
	go func() {
		defer func() { <-w.sem }()
		r, err := w.futures[i](w.ctx)
		w.chans[i] <- windowResult{r: r, err: err}
	}()
}

// Next blocks until the next sub-stream in order is ready, launches the next
// not-yet-started future to keep the window full, and returns the
// sub-stream. Returns io.EOF once every future has been consumed.
func (w *Window) Next(ctx context.Context) (io.ReadCloser, error) {
	if w.consumed >= len(w.futures) {
		return nil, io.EOF
	}

	select {
	case res := <-w.chans[w.consumed]:
		w.consumed++
		if w.launched < len(w.futures) {
			w.launch(w.launched)
		}
		if res.err != nil {
			return nil, res.err
		}
		return res.r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.ctx.Done():
		return nil, w.ctx.Err()
	}
}

// Close cancels any in-progress futures and awaits every
// already-enqueued-but-unconsumed future (each bounded by a short timeout)
// so its stream is disposed rather than leaked.
func (w *Window) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.cancel()

	for i := w.consumed; i < w.launched; i++ {
		select {
		case res := <-w.chans[i]:
			if res.r != nil {
				res.r.Close()
			}
		case <-time.After(5 * time.Second):
		}
	}
	return nil
}
