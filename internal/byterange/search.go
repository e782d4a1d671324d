package byterange

import (
	"context"

	"nzbstream/internal/nzberrors"
)

// Probe returns the byte range spanned by the i-th entry of the index.
type Probe func(ctx context.Context, i int) (Range, error)

// Result is the outcome of a successful Find: the index whose probed range
// contains the target offset, and that probed range itself.
type Result struct {
	Index int
	Range Range
}

// Find locates the index i in [indexStart, indexEnd) whose probe(i) contains
// target, using interpolation search: the probed byte range is assumed to
// grow roughly linearly with index, so the next guess is placed proportionally
// within the remaining byte span rather than at the midpoint. Converges in
// 1-3 probes when entries are close to equal-sized (the common case for yEnc
// article parts); widely varying entry sizes can take more probes, up to one
// per remaining index.
//
// Fails with a SeekError wrapping nzberrors.ErrSeekPositionNotFound if target
// ever leaves byteRange, if the index range empties, or if a probed range is
// not contained within the current byte search window (index inconsistency).
func Find(ctx context.Context, target int64, indexStart, indexEnd int, byteRange Range, probe Probe) (Result, error) {
	lo, hi := indexStart, indexEnd
	bLo, bHi := byteRange.Start, byteRange.End

	if target < bLo || target >= bHi {
		return Result{}, nzberrors.NewSeekError(target, bLo, bHi, lo, hi)
	}

	for {
		if lo >= hi {
			return Result{}, nzberrors.NewSeekError(target, bLo, bHi, lo, hi)
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		span := hi - lo
		bytesPerIndex := (bHi - bLo) / int64(span)
		if bytesPerIndex <= 0 {
			bytesPerIndex = 1
		}

		guess := lo + int(float64(target-bLo)/float64(bytesPerIndex))
		if guess < lo {
			guess = lo
		}
		if guess >= hi {
			guess = hi - 1
		}

		probed, err := probe(ctx, guess)
		if err != nil {
			return Result{}, err
		}
		if !probed.IsContainedWithin(Range{Start: bLo, End: bHi}) {
			return Result{}, nzberrors.NewSeekError(target, bLo, bHi, lo, hi)
		}

		switch {
		case probed.End <= target:
			lo = guess + 1
			bLo = probed.End
		case probed.Start > target:
			hi = guess
			bHi = probed.Start
		default:
			return Result{Index: guess, Range: probed}, nil
		}
	}
}
