package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func stringFuture(s string) Future {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

func TestConcatenatedReadsAcrossSubStreams(t *testing.T) {
	c := NewConcatenated(context.Background(), []Future{
		stringFuture("hello "),
		stringFuture("concatenated "),
		stringFuture("world"),
	}, 2)
	defer c.Close()

	got, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if string(got) != "hello concatenated world" {
		t.Fatalf("ReadAll() = %q, want %q", got, "hello concatenated world")
	}
}

func TestConcatenatedEmptyFutureListIsImmediateEOF(t *testing.T) {
	c := NewConcatenated(context.Background(), nil, 1)
	defer c.Close()

	buf := make([]byte, 10)
	_, err := c.Read(buf)
	if err != io.EOF {
		t.Fatalf("Read() on empty Concatenated = %v, want io.EOF", err)
	}
}

func TestConcatenatedPropagatesOpenError(t *testing.T) {
	wantErr := errors.New("dial failed")
	c := NewConcatenated(context.Background(), []Future{
		func(ctx context.Context) (io.ReadCloser, error) { return nil, wantErr },
	}, 1)
	defer c.Close()

	buf := make([]byte, 10)
	_, err := c.Read(buf)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Read() = %v, want %v", err, wantErr)
	}
}

func TestConcatenatedReadAfterCloseFails(t *testing.T) {
	c := NewConcatenated(context.Background(), []Future{stringFuture("x")}, 1)
	c.Close()

	buf := make([]byte, 1)
	_, err := c.Read(buf)
	if err != io.ErrClosedPipe {
		t.Fatalf("Read() after Close() = %v, want io.ErrClosedPipe", err)
	}
}

func TestConcatenatedRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	c := NewConcatenated(ctx, []Future{
		func(ctx context.Context) (io.ReadCloser, error) {
			<-block
			return io.NopCloser(strings.NewReader("late")), nil
		},
	}, 1)
	defer c.Close()

	cancel()
	buf := make([]byte, 10)
	_, err := c.Read(buf)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Read() after cancellation = %v, want context.Canceled", err)
	}
	close(block)
}
