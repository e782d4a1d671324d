// Package nzberrors defines the error taxonomy shared across the streaming engine.
package nzberrors

import (
	"errors"
	"fmt"
)

// ErrSeekPositionNotFound is returned when interpolation search cannot locate an
// offset within the given index/byte search space.
var ErrSeekPositionNotFound = errors.New("nzberrors: seek position not found")

// ErrServerUnavailable is returned when every enabled server failed with a
// transport or authentication error for an operation.
var ErrServerUnavailable = errors.New("nzberrors: all servers unavailable")

// ErrUnsupportedCompression is returned when a container entry's coder chain is
// not an identity copy.
var ErrUnsupportedCompression = errors.New("nzberrors: unsupported compression")

// ErrInvalidPassword is returned when a RAR5 password-check field fails to
// validate the supplied password.
var ErrInvalidPassword = errors.New("nzberrors: invalid archive password")

// ErrOutOfBounds is returned when a seek targets a position outside [0, length].
var ErrOutOfBounds = errors.New("nzberrors: seek out of bounds")

// ArticleNotFoundError reports that an article was reported missing by every
// enabled server.
type ArticleNotFoundError struct {
	ArticleID string
}

func (e *ArticleNotFoundError) Error() string {
	return fmt.Sprintf("nzberrors: article not found: %s", e.ArticleID)
}

// NewArticleNotFound constructs an ArticleNotFoundError.
func NewArticleNotFound(articleID string) error {
	return &ArticleNotFoundError{ArticleID: articleID}
}

// IsArticleNotFound reports whether err is (or wraps) an ArticleNotFoundError.
func IsArticleNotFound(err error) bool {
	var target *ArticleNotFoundError
	return errors.As(err, &target)
}

// SeekError carries the offset and search range that failed to resolve, for
// diagnostics attached to ErrSeekPositionNotFound.
type SeekError struct {
	Offset      int64
	RangeStart  int64
	RangeEnd    int64
	IndexStart  int
	IndexEnd    int
}

func (e *SeekError) Error() string {
	return fmt.Sprintf("nzberrors: seek position %d not found in byte range [%d,%d) / index range [%d,%d)",
		e.Offset, e.RangeStart, e.RangeEnd, e.IndexStart, e.IndexEnd)
}

func (e *SeekError) Unwrap() error { return ErrSeekPositionNotFound }

// NewSeekError builds a SeekError wrapping ErrSeekPositionNotFound.
func NewSeekError(offset, rangeStart, rangeEnd int64, indexStart, indexEnd int) error {
	return &SeekError{
		Offset:     offset,
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
		IndexStart: indexStart,
		IndexEnd:   indexEnd,
	}
}
