// Package retrypolicy wraps SegmentStore calls with a fixed 3-attempt,
// 100ms/500ms/1s backoff schedule. Grounded on javi11-altmount's
// usenet_reader.go/parser.go/claimer.go, all of which call
// github.com/avast/retry-go/v4's retry.Do with Attempts/DelayType/Context
// options; this package fixes an exact 3-step delay schedule rather than
// an exponential backoff curve.
package retrypolicy

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Delays is the fixed 3-attempt backoff schedule applied to every
// SegmentStore call.
var Delays = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

// OnRetry is called before each retry attempt with the attempt number
// (0-based) and the error that triggered it. Pass nil to skip logging.
type OnRetry func(attempt uint, err error)

// Do runs fn up to len(Delays)+1 times, waiting Delays[i] before the
// (i+1)th retry. It stops retrying once ctx is canceled.
func Do(ctx context.Context, fn func() error, onRetry OnRetry) error {
	opts := []retry.Option{
		retry.Attempts(uint(len(Delays) + 1)),
		retry.Context(ctx),
		retry.DelayType(func(n uint, err error, cfg *retry.Config) time.Duration {
			idx := int(n)
			if idx < 0 || idx >= len(Delays) {
				return Delays[len(Delays)-1]
			}
			return Delays[idx]
		}),
	}
	if onRetry != nil {
		opts = append(opts, retry.OnRetry(func(n uint, err error) { onRetry(n, err) }))
	}
	return retry.Do(fn, opts...)
}
