// Package segment defines the immutable descriptor types that make up a
// virtual file's article list, and the read-only store port the external
// persistence layer implements.
package segment

import (
	"context"

	"nzbstream/internal/byterange"
)

// ArticleID is an opaque, printable identifier, unique on a given Usenet
// network.
type ArticleID string

// Descriptor pairs an article with its logical byte offset within the file
// it belongs to, as reported by that article's yEnc header.
type Descriptor struct {
	ArticleID     ArticleID
	PartByteRange byterange.Range
}

// AesParams describes the AES-CBC parameters covering a virtual file's raw
// bytes. len(Key) is always 16 or 32; the ciphertext length (DecodedSize after
// accounting for no padding) is always a multiple of 16.
type AesParams struct {
	IV          [16]byte
	Key         []byte
	DecodedSize int64
}

// VirtualFile is an ordered list of article descriptors making up one
// logical file, plus its total size and optional encryption parameters.
//
// Invariant: Segments[i].PartByteRange are strictly increasing, contiguous,
// and together cover [0, Size).
type VirtualFile struct {
	ID       string
	Segments []Descriptor
	Size     int64
	Aes      *AesParams
}

// FilePart is one member of a MultipartVirtualFile: a VirtualFile plus the
// byte range it occupies within the whole.
type FilePart struct {
	File              VirtualFile
	ByteRangeInWhole  byterange.Range
}

// MultipartVirtualFile is an ordered list of FileParts that abut with no gap
// or overlap; the last part's ByteRangeInWhole ends at the whole's size.
type MultipartVirtualFile struct {
	ID    string
	Parts []FilePart
	Size  int64
}

// Store is the read-only persistence port the core consumes. The
// implementation (SQLite) lives outside this module; the core only ever
// calls through this interface.
type Store interface {
	GetNzbFile(ctx context.Context, fileID string) (*VirtualFile, error)
	GetMultipartFile(ctx context.Context, fileID string) (*MultipartVirtualFile, error)
}
