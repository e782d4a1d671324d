// Package virtualfile composes a container.Entry's byte range over a
// MultipartVirtualFile's parts into one seekable stream: it locates the
// covering parts, streams each part's slice, and decrypts the result when
// the entry carries AES parameters.
package virtualfile

import (
	"context"
	"io"

	"nzbstream/internal/aescbc"
	"nzbstream/internal/byterange"
	"nzbstream/internal/container"
	"nzbstream/internal/segment"
	"nzbstream/internal/stream"
)

// File is a read-seek-closer over one container entry's plaintext bytes.
//
// Not safe for concurrent use; callers must serialize Read/Seek, same
// contract as internal/stream.SegmentStream.
type File struct {
	ctx         context.Context
	entry       container.Entry
	mvf         *segment.MultipartVirtualFile
	opener      stream.ArticleOpener
	concurrency int
	size        int64

	position int64

	// cur is the live sub-stream. For an unencrypted entry it is rebuilt
	// on every Seek (Concatenated has no native Seek); for an encrypted
	// entry it is built once and reused, since aescbc.Reader seeks in
	// place.
	cur io.ReadCloser
	aes *aescbc.Reader
}

// Open builds a File over entry's bytes within mvf, fetching article bodies
// through opener with up to concurrency prefetched sub-streams per part.
func Open(ctx context.Context, entry container.Entry, mvf *segment.MultipartVirtualFile, opener stream.ArticleOpener, concurrency int) (*File, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	return &File{
		ctx:         ctx,
		entry:       entry,
		mvf:         mvf,
		opener:      opener,
		concurrency: concurrency,
		size:        entry.ByteRangeWithinArchive.Size(),
	}, nil
}

// Length returns the entry's decoded size.
func (f *File) Length() int64 { return f.size }

func (f *File) partProbe(_ context.Context, i int) (byterange.Range, error) {
	if i < 0 || i >= len(f.mvf.Parts) {
		return byterange.Range{}, io.EOF
	}
	return f.mvf.Parts[i].ByteRangeInWhole, nil
}

// buildRawRange opens the ciphertext (or, for unencrypted entries, the
// plaintext) bytes of [absStart, absEnd] — offsets within the whole
// MultipartVirtualFile, inclusive — as a single concatenated stream.
func (f *File) buildRawRange(ctx context.Context, absStart, absEnd int64) (io.ReadCloser, error) {
	if absEnd < absStart {
		return io.NopCloser(&emptyReader{}), nil
	}

	i0, err := byterange.Find(ctx, absStart, 0, len(f.mvf.Parts), byterange.Range{Start: 0, End: f.mvf.Size}, f.partProbe)
	if err != nil {
		return nil, err
	}
	i1, err := byterange.Find(ctx, absEnd, 0, len(f.mvf.Parts), byterange.Range{Start: 0, End: f.mvf.Size}, f.partProbe)
	if err != nil {
		return nil, err
	}

	futures := make([]stream.Future, 0, i1.Index-i0.Index+1)
	for i := i0.Index; i <= i1.Index; i++ {
		part := f.mvf.Parts[i].File
		whole := f.mvf.Parts[i].ByteRangeInWhole

		interStart := max64(absStart, whole.Start)
		interEnd := min64(absEnd+1, whole.End)
		innerStart := interStart - whole.Start
		innerSize := interEnd - interStart

		partCopy := part
		futures = append(futures, func(ctx context.Context) (io.ReadCloser, error) {
			ss := stream.NewSegmentStream(ctx, &partCopy, f.opener, f.concurrency)
			if innerStart > 0 {
				if _, err := ss.Seek(innerStart, io.SeekStart); err != nil {
					ss.Close()
					return nil, err
				}
			}
			return stream.NewLimited(ss, innerSize), nil
		})
	}

	return stream.NewConcatenated(ctx, futures, f.concurrency), nil
}

func (f *File) openPlain(p int64) error {
	absStart := f.entry.ByteRangeWithinArchive.Start + p
	absEnd := f.entry.ByteRangeWithinArchive.End - 1
	rc, err := f.buildRawRange(f.ctx, absStart, absEnd)
	if err != nil {
		return err
	}
	f.cur = rc
	return nil
}

func (f *File) openEncrypted() error {
	rangeOpen := func(ctx context.Context, start, end int64) (io.ReadCloser, error) {
		base := f.entry.ByteRangeWithinArchive.Start
		return f.buildRawRange(ctx, base+start, base+end)
	}
	r, err := aescbc.NewReader(f.ctx, rangeOpen, f.entry.Aes.Key, f.entry.Aes.IV[:], f.size)
	if err != nil {
		return err
	}
	f.aes = r
	f.cur = r
	return nil
}

func (f *File) Read(p []byte) (int, error) {
	if f.size == 0 {
		return 0, io.EOF
	}
	if f.position >= f.size {
		return 0, io.EOF
	}

	if f.cur == nil {
		var err error
		if f.entry.Aes != nil {
			err = f.openEncrypted()
			if err == nil && f.position > 0 {
				_, err = f.aes.Seek(f.position, io.SeekStart)
			}
		} else {
			err = f.openPlain(f.position)
		}
		if err != nil {
			return 0, err
		}
	}

	n, err := f.cur.Read(p)
	f.position += int64(n)
	if err == io.EOF && f.entry.Aes == nil {
		f.cur.Close()
		f.cur = nil
	}
	return n, err
}

// Seek repositions the file. An encrypted entry's decoder seeks in place;
// a plain entry closes its current sub-stream and lazily rebuilds it at
// the new position on the next Read, never opening eagerly.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = f.position + offset
	case io.SeekEnd:
		target = f.size + offset
	}
	if target < 0 || target > f.size {
		return 0, io.ErrUnexpectedEOF
	}

	if f.entry.Aes != nil {
		if f.cur == nil {
			if err := f.openEncrypted(); err != nil {
				return 0, err
			}
		}
		abs, err := f.aes.Seek(target, io.SeekStart)
		if err != nil {
			return 0, err
		}
		f.position = abs
		return abs, nil
	}

	if target == f.position {
		return target, nil
	}
	if f.cur != nil {
		f.cur.Close()
		f.cur = nil
	}
	f.position = target
	return target, nil
}

func (f *File) Close() error {
	if f.cur != nil {
		err := f.cur.Close()
		f.cur = nil
		return err
	}
	return nil
}

type emptyReader struct{}

func (*emptyReader) Read([]byte) (int, error) { return 0, io.EOF }

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
