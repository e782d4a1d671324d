// Package container implements from-scratch, store-only header parsers for
// RAR3, RAR5, and 7z archives, plus the trivial "numbered plain file parts"
// container. None of this delegates to a third-party archive library — it
// reads container bytes directly off a seekable stream. Field naming is
// grounded on third_party/rardecode/archive_info.go's ArchiveFileInfo /
// FilePartInfo (read for naming only, never imported).
package container

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"nzbstream/internal/byterange"
	"nzbstream/internal/segment"
)

// Kind tags which container format an archive volume uses.
type Kind int

const (
	KindUnknown Kind = iota
	KindRAR3
	KindRAR5
	KindSevenZip
	KindMultipart
)

// Entry is one file discoverable inside a container, with its byte range
// expressed relative to the archive's own byte stream. The later remap of
// that range onto a MultipartVirtualFile is internal/virtualfile's job.
type Entry struct {
	Path                   string
	ByteRangeWithinArchive byterange.Range
	Aes                    *segment.AesParams
	ReleaseDate            time.Time
}

// Extractor reads a container's header/trailer structures off stream
// (seekable; no decompression ever occurs) and returns its entries.
type Extractor interface {
	Open(ctx context.Context, stream io.ReadSeeker, password string) ([]Entry, error)
}

// DetectKind guesses a container kind from a volume's file name. The
// persistence layer is expected to have already classified containers at
// ingest time; this is a convenience for tests and CLI tooling.
func DetectKind(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".rar"):
		return KindRAR3 // disambiguated to RAR5 by signature once opened
	case strings.HasSuffix(lower, ".7z"):
		return KindSevenZip
	case isNumberedPart(lower):
		return KindMultipart
	default:
		return KindUnknown
	}
}

func isNumberedPart(lower string) bool {
	i := strings.LastIndex(lower, ".")
	if i < 0 || i == len(lower)-1 {
		return false
	}
	ext := lower[i+1:]
	if len(ext) < 2 {
		return false
	}
	for _, r := range ext {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Open dispatches to the extractor registered for kind. RAR is special-cased:
// both RAR3 and RAR5 share the ".rar" extension and are disambiguated by
// reading the volume's magic signature.
func Open(ctx context.Context, kind Kind, stream io.ReadSeeker, password string) ([]Entry, error) {
	switch kind {
	case KindRAR3, KindRAR5:
		actual, err := detectRARVersion(stream)
		if err != nil {
			return nil, err
		}
		if actual == KindRAR3 {
			return (rar3Extractor{}).Open(ctx, stream, password)
		}
		return (rar5Extractor{}).Open(ctx, stream, password)
	case KindSevenZip:
		return (sevenZipExtractor{}).Open(ctx, stream, password)
	case KindMultipart:
		return (multipartExtractor{}).Open(ctx, stream, password)
	default:
		return nil, fmt.Errorf("container: unsupported kind %v", kind)
	}
}
