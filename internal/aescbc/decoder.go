// Package aescbc decrypts AES-CBC-encrypted container entries with deferred
// mid-stream seeks: Seek only records the target offset, and the actual
// re-initialization — recomputing the block IV from the previous ciphertext
// block, reopening the source at the new block boundary, and skipping into
// the block — happens lazily on the next Read. A seek to byte N therefore
// costs one extra block read on the following Read rather than a full linear
// replay, and issuing several Seeks with no Read between them opens nothing.
package aescbc

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"
)

// RangeOpener opens a ciphertext sub-stream covering [start, end] (inclusive)
// of the encrypted entry. internal/virtualfile supplies one backed by
// SegmentStream and Concatenated.
type RangeOpener func(ctx context.Context, start, end int64) (io.ReadCloser, error)

type Reader struct {
	ctx    context.Context
	open   RangeOpener
	key    []byte
	origIV []byte

	source    io.ReadCloser
	decrypter cipher.BlockMode

	buffer    []byte
	bufferPos int
	bufferLen int

	offset int64
	size   int64
	closed bool
}

// NewReader builds a seekable AES-CBC decrypting reader over an entry of
// size bytes, using key/iv as derived by internal/container's RAR3/RAR5
// header parsers.
func NewReader(ctx context.Context, open RangeOpener, key, iv []byte, size int64) (*Reader, error) {
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, fmt.Errorf("aescbc: invalid key size %d", len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("aescbc: invalid iv size %d", len(iv))
	}

	if _, err := aes.NewCipher(key); err != nil {
		return nil, err
	}

	return &Reader{
		ctx:    ctx,
		open:   open,
		key:    key,
		origIV: append([]byte(nil), iv...),
		buffer: make([]byte, aes.BlockSize*64),
		size:   size,
	}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, io.ErrClosedPipe
	}

	if r.source == nil {
		if err := r.lazyInit(); err != nil {
			return 0, err
		}
	}

	total := 0
	for total < len(p) {
		if r.bufferPos < r.bufferLen {
			n := copy(p[total:], r.buffer[r.bufferPos:r.bufferLen])
			r.bufferPos += n
			r.offset += int64(n)
			total += n
			continue
		}

		readSize := len(r.buffer)
		if r.offset+int64(readSize) > r.size {
			readSize = int(r.size - r.offset)
			if readSize%aes.BlockSize != 0 {
				readSize += aes.BlockSize - (readSize % aes.BlockSize)
			}
		}
		if readSize == 0 {
			if total > 0 {
				return total, nil
			}
			return 0, io.EOF
		}

		enc := make([]byte, readSize)
		n, err := io.ReadFull(r.source, enc)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return total, err
		}
		if n == 0 {
			if total > 0 {
				return total, nil
			}
			return 0, io.EOF
		}
		if n%aes.BlockSize != 0 {
			n = (n / aes.BlockSize) * aes.BlockSize
		}
		if n > 0 {
			r.decrypter.CryptBlocks(enc[:n], enc[:n])
			decLen := n
			if r.offset+int64(n) > r.size {
				decLen = int(r.size - r.offset)
			}
			copy(r.buffer, enc[:decLen])
			r.bufferLen = decLen
			r.bufferPos = 0
		}
		if (err == io.EOF || err == io.ErrUnexpectedEOF) && r.bufferLen == 0 {
			if total > 0 {
				return total, nil
			}
			return 0, io.EOF
		}
	}
	return total, nil
}

// Seek only records the target offset and drops any open source; it performs
// no I/O of its own. The IV recovery, reopen, and in-block skip all happen
// in lazyInit on the next Read.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, io.ErrClosedPipe
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.offset + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, fmt.Errorf("aescbc: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("aescbc: negative seek position %d", abs)
	}
	if abs > r.size {
		return 0, fmt.Errorf("aescbc: seek beyond end: %d > %d", abs, r.size)
	}
	if abs == r.offset {
		return abs, nil
	}

	if r.source != nil {
		r.source.Close()
		r.source = nil
	}
	r.offset = abs
	r.bufferPos = 0
	r.bufferLen = 0

	return abs, nil
}

// lazyInit (re)establishes source/decrypter for r.offset: it recomputes the
// block IV from the previous ciphertext block (or uses the original IV for
// block 0), reopens the source at the new block boundary, and skips any
// partial-block prefix. Called from Read the first time after construction
// or after a Seek left r.source nil.
func (r *Reader) lazyInit() error {
	target := r.offset
	blockNum := target / int64(aes.BlockSize)
	blockOffset := target % int64(aes.BlockSize)

	var newIV []byte
	if blockNum == 0 {
		newIV = append([]byte(nil), r.origIV...)
	} else {
		prevStart := (blockNum - 1) * int64(aes.BlockSize)
		prevReader, err := r.open(r.ctx, prevStart, prevStart+int64(aes.BlockSize)-1)
		if err != nil {
			return fmt.Errorf("aescbc: open iv block: %w", err)
		}
		newIV = make([]byte, aes.BlockSize)
		_, err = io.ReadFull(prevReader, newIV)
		prevReader.Close()
		if err != nil {
			return fmt.Errorf("aescbc: read iv block: %w", err)
		}
	}

	src, err := r.open(r.ctx, blockNum*int64(aes.BlockSize), r.size-1)
	if err != nil {
		return fmt.Errorf("aescbc: open source: %w", err)
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		src.Close()
		return err
	}

	r.source = src
	r.decrypter = cipher.NewCBCDecrypter(block, newIV)
	r.offset = blockNum * int64(aes.BlockSize)
	r.bufferPos = 0
	r.bufferLen = 0

	if blockOffset > 0 {
		skip := make([]byte, blockOffset)
		if _, err := io.ReadFull(r, skip); err != nil {
			return fmt.Errorf("aescbc: skip into block: %w", err)
		}
	}

	return nil
}

func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.source != nil {
		return r.source.Close()
	}
	return nil
}
