package container

import (
	"bufio"
	"context"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"nzbstream/internal/byterange"
	"nzbstream/internal/nzberrors"
	"nzbstream/internal/segment"
)

// RAR5 header types (ISO 14.1 block layout).
const (
	rar5HeaderMain    = 1
	rar5HeaderFile    = 2
	rar5HeaderService = 3
	rar5HeaderCrypt   = 4
	rar5HeaderEnd     = 5
)

// RAR5 header flag bits (common block header).
const (
	rar5FlagExtra = 0x0001
	rar5FlagData  = 0x0002
)

// RAR5 file-header extra-record type for per-file encryption parameters.
const rar5ExtraCrypt = 0x01

type rar5Extractor struct{}

func (rar5Extractor) Open(ctx context.Context, stream io.ReadSeeker, password string) ([]Entry, error) {
	if _, err := stream.Seek(8, io.SeekStart); err != nil {
		return nil, err
	}
	r := bufio.NewReader(stream)

	var entries []Entry
	var offset int64 = 8

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		block, consumed, err := readRAR5Block(r, password)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if block.headerType == rar5HeaderEnd {
			break
		}

		headerAndDataLen := consumed + block.dataSize
		if block.headerType == rar5HeaderFile && block.dataSize > 0 {
			entries = append(entries, Entry{
				Path: block.name,
				ByteRangeWithinArchive: byterange.Range{
					Start: offset + consumed,
					End:   offset + consumed + block.dataSize,
				},
				Aes: block.aes,
			})
		}

		if block.dataSize > 0 {
			if _, err := io.CopyN(io.Discard, r, block.dataSize); err != nil {
				return nil, err
			}
		}
		offset += headerAndDataLen
	}

	return entries, nil
}

type rar5Block struct {
	headerType int64
	dataSize   int64
	name       string
	aes        *segment.AesParams
}

func readRAR5Block(r *bufio.Reader, password string) (rar5Block, int64, error) {
	var crc [4]byte
	if _, err := io.ReadFull(r, crc[:]); err != nil {
		return rar5Block{}, 0, err
	}

	headerSize, n1, err := readVint(r)
	if err != nil {
		return rar5Block{}, 0, err
	}
	body := make([]byte, headerSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return rar5Block{}, 0, err
	}
	br := &vintReader{buf: body}

	headerType, _ := br.vint()
	flags, _ := br.vint()

	var extraSize, dataSize int64
	if flags&rar5FlagExtra != 0 {
		extraSize, _ = br.vint()
	}
	if flags&rar5FlagData != 0 {
		dataSize, _ = br.vint()
	}

	block := rar5Block{headerType: headerType, dataSize: dataSize}

	if headerType == rar5HeaderFile {
		_, _ = br.vint() // file flags
		_, _ = br.vint() // unpacked size
		_, _ = br.vint() // attributes
		compInfo, _ := br.vint()
		_, _ = br.vint() // host OS
		nameLen, _ := br.vint()
		nameBytes := br.take(int(nameLen))
		block.name = string(nameBytes)

		method := (compInfo >> 7) & 0x7
		if method != 0 {
			return rar5Block{}, 0, nzberrors.ErrUnsupportedCompression
		}

		if extraSize > 0 {
			extra := br.take(int(extraSize))
			aes, err := parseRAR5CryptExtra(extra, password)
			if err != nil {
				return rar5Block{}, 0, err
			}
			block.aes = aes
		}
	}

	consumed := int64(4) + n1 + headerSize
	return block, consumed, nil
}

// parseRAR5CryptExtra scans a file header's extra-area records for the
// per-file encryption record (type 0x01), deriving AES parameters via
// PBKDF2.
func parseRAR5CryptExtra(extra []byte, password string) (*segment.AesParams, error) {
	br := &vintReader{buf: extra}
	for br.pos < len(br.buf) {
		size, ok := br.vint()
		if !ok {
			break
		}
		start := br.pos
		recType, _ := br.vint()
		end := start + int(size)
		if end > len(br.buf) {
			end = len(br.buf)
		}

		if recType == rar5ExtraCrypt {
			rec := br.buf[br.pos:end]
			return deriveRAR5AesParams(rec, password)
		}
		br.pos = end
	}
	return nil, nil
}

// deriveRAR5AesParams implements RAR5's key derivation: PBKDF2-HMAC-SHA256
// over the password and a 16-byte salt, with an effective iteration count of
// 2^LG2Count, validated against the derived key stream's 3rd-iteration
// password-check field before being trusted.
func deriveRAR5AesParams(rec []byte, password string) (*segment.AesParams, error) {
	if len(rec) < 1+16 {
		return nil, errors.New("container: rar5 crypt record too short")
	}
	lg2Count := int(rec[0])
	salt := rec[1:17]
	var checkValue []byte
	if len(rec) >= 1+16+1+12 {
		flags := rec[17]
		if flags&0x01 != 0 && len(rec) >= 1+16+1+12 {
			checkValue = rec[19 : 19+12]
		}
	}

	iterations := 1 << uint(lg2Count)
	derived := pbkdf2.Key([]byte(password), salt, iterations*3, 32+16, sha256.New)
	key := derived[:32]

	if checkValue != nil {
		psValue := sha256.Sum256(derived[32 : 32+16])
		if !bytesEqualPrefix(psValue[:], checkValue, 12) {
			return nil, nzberrors.ErrInvalidPassword
		}
	}

	var iv [16]byte
	copy(iv[:], derived[32:48])
	return &segment.AesParams{IV: iv, Key: key}, nil
}

func bytesEqualPrefix(a, b []byte, n int) bool {
	if len(a) < n || len(b) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// vintReader reads RAR5's protobuf-style base-128 variable-length integers
// (7 data bits per byte, MSB continuation flag, little-endian group order).
type vintReader struct {
	buf []byte
	pos int
}

func (v *vintReader) vint() (int64, bool) {
	var result int64
	var shift uint
	for {
		if v.pos >= len(v.buf) {
			return 0, false
		}
		b := v.buf[v.pos]
		v.pos++
		result |= int64(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, true
		}
		shift += 7
	}
}

func (v *vintReader) take(n int) []byte {
	if v.pos+n > len(v.buf) {
		n = len(v.buf) - v.pos
	}
	out := v.buf[v.pos : v.pos+n]
	v.pos += n
	return out
}

// readVint reads a single vint directly from a byte-at-a-time reader,
// returning the decoded value and the number of bytes consumed.
func readVint(r *bufio.Reader) (int64, int64, error) {
	var result int64
	var shift uint
	var n int64
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, n, err
		}
		n++
		result |= int64(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, n, nil
		}
		shift += 7
	}
}
