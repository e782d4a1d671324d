package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type closerString struct {
	*strings.Reader
	closed *bool
}

func (c closerString) Close() error {
	*c.closed = true
	return nil
}

func futureFor(s string, closed *bool) Future {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return closerString{strings.NewReader(s), closed}, nil
	}
}

func TestWindowNextYieldsInOrder(t *testing.T) {
	closed := make([]bool, 3)
	futures := []Future{
		futureFor("a", &closed[0]),
		futureFor("b", &closed[1]),
		futureFor("c", &closed[2]),
	}
	w := NewWindow(context.Background(), futures, 2)
	defer w.Close()

	for i, want := range []string{"a", "b", "c"} {
		r, err := w.Next(context.Background())
		if err != nil {
			t.Fatalf("Next() %d error: %v", i, err)
		}
		buf, _ := io.ReadAll(r)
		if string(buf) != want {
			t.Fatalf("Next() %d = %q, want %q", i, buf, want)
		}
	}
	if _, err := w.Next(context.Background()); err != io.EOF {
		t.Fatalf("Next() after exhaustion = %v, want io.EOF", err)
	}
}

func TestWindowLimitsConcurrentLaunches(t *testing.T) {
	const k = 2
	var inFlight int32
	var maxSeen int32
	release := make(chan struct{})

	futures := make([]Future, 5)
	for i := range futures {
		futures[i] = func(ctx context.Context) (io.ReadCloser, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&maxSeen)
				if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&inFlight, -1)
			return io.NopCloser(strings.NewReader("x")), nil
		}
	}

	w := NewWindow(context.Background(), futures, k)
	defer w.Close()

	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt32(&maxSeen); got > k {
		t.Fatalf("max concurrent launches = %d, want <= %d", got, k)
	}
	close(release)
}

func TestWindowPropagatesFutureError(t *testing.T) {
	wantErr := errors.New("open failed")
	futures := []Future{
		func(ctx context.Context) (io.ReadCloser, error) { return nil, wantErr },
	}
	w := NewWindow(context.Background(), futures, 1)
	defer w.Close()

	_, err := w.Next(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("Next() = %v, want %v", err, wantErr)
	}
}

func TestWindowCloseDisposesUnconsumedFutures(t *testing.T) {
	closed := make([]bool, 3)
	futures := []Future{
		futureFor("a", &closed[0]),
		futureFor("b", &closed[1]),
		futureFor("c", &closed[2]),
	}
	w := NewWindow(context.Background(), futures, 3)

	time.Sleep(20 * time.Millisecond)
	w.Close()

	for i, c := range closed {
		if !c {
			t.Errorf("future %d's stream was not closed by Window.Close()", i)
		}
	}
}
