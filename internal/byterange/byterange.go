// Package byterange implements half-open byte ranges and the interpolation
// search used to locate a byte offset within a monotonic index->byterange
// mapping without a sequential or binary scan.
package byterange

// Range is a half-open interval [Start, End) over non-negative byte offsets.
type Range struct {
	Start int64
	End   int64
}

// Size returns End - Start.
func (r Range) Size() int64 { return r.End - r.Start }

// Contains reports whether x falls within [Start, End).
func (r Range) Contains(x int64) bool { return x >= r.Start && x < r.End }

// IsContainedWithin reports whether r is a subset of o.
func (r Range) IsContainedWithin(o Range) bool {
	return r.Start >= o.Start && r.End <= o.End
}

// Empty reports whether the range contains no bytes.
func (r Range) Empty() bool { return r.End <= r.Start }
