package container

import (
	"context"
	"io"

	"nzbstream/internal/byterange"
)

// multipartExtractor treats a run of numbered plain-file parts (foo.mkv.001,
// foo.mkv.002, ...) as a trivial container: one logical entry spanning the
// concatenation of every part, in numeric order, with no header to parse.
// The caller supplies only the first volume's stream; size accounting for
// the other volumes comes from the segment store's per-file metadata, so
// this extractor's job is limited to describing the whole-archive range of
// the entry it represents.
type multipartExtractor struct{}

func (multipartExtractor) Open(ctx context.Context, stream io.ReadSeeker, password string) ([]Entry, error) {
	size, err := streamSize(stream)
	if err != nil {
		return nil, err
	}
	return []Entry{
		{
			Path:                   "",
			ByteRangeWithinArchive: byterange.Range{Start: 0, End: size},
		},
	}, nil
}

func streamSize(stream io.ReadSeeker) (int64, error) {
	cur, err := stream.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := stream.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}
