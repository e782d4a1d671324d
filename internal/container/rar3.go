package container

import (
	"bufio"
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"encoding"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"golang.org/x/text/encoding/charmap"

	"nzbstream/internal/byterange"
	"nzbstream/internal/nzberrors"
	"nzbstream/internal/segment"
)

var rar3Signature = []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00}
var rar5Signature = []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00}

// RAR3 block types relevant to store-only entry enumeration.
const (
	blockMarker   = 0x72
	blockMain     = 0x73
	blockFile     = 0x74
	blockEndArc   = 0x7B
)

// RAR3 FILE_HEAD flag bits.
const (
	flagSplitBefore = 0x0001
	flagSplitAfter  = 0x0002
	flagPassword    = 0x0004
	flagLargeFile   = 0x0100
	flagUnicodeName = 0x0200
)

// methodStore is the RAR3 "no compression" method byte.
const methodStore = 0x30

func detectRARVersion(stream io.ReadSeeker) (Kind, error) {
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return KindUnknown, err
	}
	sig := make([]byte, 8)
	if _, err := io.ReadFull(stream, sig); err != nil {
		return KindUnknown, err
	}
	switch {
	case string(sig) == string(rar5Signature):
		return KindRAR5, nil
	case string(sig[:7]) == string(rar3Signature):
		if _, err := stream.Seek(7, io.SeekStart); err != nil {
			return KindUnknown, err
		}
		return KindRAR3, nil
	default:
		return KindUnknown, errors.New("container: not a RAR volume")
	}
}

type rar3Extractor struct{}

// rar3BlockHeader is the 7-byte (or 11-byte, if SIZE_LARGE) common block
// header every RAR3 structure begins with.
type rar3BlockHeader struct {
	CRC   uint16
	Type  byte
	Flags uint16
	Size  uint16
}

func (rar3Extractor) Open(ctx context.Context, stream io.ReadSeeker, password string) ([]Entry, error) {
	if _, err := detectRARVersion(stream); err != nil {
		return nil, err
	}

	r := bufio.NewReader(stream)
	var entries []Entry
	var archiveOffset int64 = 7

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hdr, headerLen, err := readRAR3BlockHeader(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		bodyLen := int64(hdr.Size) - int64(headerLen)
		if hdr.Type == blockEndArc {
			break
		}
		if hdr.Type != blockFile {
			if bodyLen > 0 {
				if _, err := io.CopyN(io.Discard, r, bodyLen); err != nil {
					return nil, err
				}
			}
			archiveOffset += int64(hdr.Size)
			continue
		}

		entry, dataSize, err := parseRAR3FileHeader(r, hdr, password)
		if err != nil {
			return nil, err
		}
		entry.ByteRangeWithinArchive = byterange.Range{
			Start: archiveOffset + int64(hdr.Size),
			End:   archiveOffset + int64(hdr.Size) + dataSize,
		}
		entries = append(entries, entry)

		if err := discardN(r, dataSize); err != nil {
			return nil, err
		}
		archiveOffset += int64(hdr.Size) + dataSize
	}

	return entries, nil
}

func readRAR3BlockHeader(r *bufio.Reader) (rar3BlockHeader, int, error) {
	var raw [7]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return rar3BlockHeader{}, 0, err
	}
	hdr := rar3BlockHeader{
		CRC:   binary.LittleEndian.Uint16(raw[0:2]),
		Type:  raw[2],
		Flags: binary.LittleEndian.Uint16(raw[3:5]),
		Size:  binary.LittleEndian.Uint16(raw[5:7]),
	}
	headerLen := 7
	if hdr.Flags&0x8000 != 0 { // has an extra 4-byte ADD_SIZE field
		var addSize [4]byte
		if _, err := io.ReadFull(r, addSize[:]); err != nil {
			return rar3BlockHeader{}, 0, err
		}
		headerLen += 4
	}
	return hdr, headerLen, nil
}

func parseRAR3FileHeader(r *bufio.Reader, hdr rar3BlockHeader, password string) (Entry, int64, error) {
	var fixed [21]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return Entry{}, 0, err
	}
	packSize := int64(binary.LittleEndian.Uint32(fixed[0:4]))
	fileTime := binary.LittleEndian.Uint32(fixed[8:12])
	method := fixed[13]
	nameSize := binary.LittleEndian.Uint16(fixed[14:16])

	if hdr.Flags&flagLargeFile != 0 {
		var high [8]byte
		if _, err := io.ReadFull(r, high[:]); err != nil {
			return Entry{}, 0, err
		}
		highPack := int64(binary.LittleEndian.Uint32(high[0:4]))
		packSize |= highPack << 32
	}

	name := make([]byte, nameSize)
	if _, err := io.ReadFull(r, name); err != nil {
		return Entry{}, 0, err
	}

	var aesParams *segment.AesParams
	if hdr.Flags&flagPassword != 0 {
		var salt [8]byte
		if _, err := io.ReadFull(r, salt[:]); err != nil {
			return Entry{}, 0, err
		}
		key, iv := rar3DeriveKeyIV(password, salt)
		aesParams = &segment.AesParams{IV: iv, Key: key[:], DecodedSize: packSize}
	}

	if method != methodStore {
		return Entry{}, 0, nzberrors.ErrUnsupportedCompression
	}

	return Entry{
		Path:        decodeRAR3Name(name, hdr.Flags),
		Aes:         aesParams,
		ReleaseDate: dosTimeToTime(fileTime),
	}, packSize, nil
}

// decodeRAR3Name decodes a FILE_HEAD name field. Without FHD_UNICODE the
// whole field is a single legacy CP437-encoded name; with it, only the
// NUL-terminated ASCII prefix is used, since the custom RLE+UTF-16 unicode
// encoding RAR3 appends after the NUL isn't decoded here.
func decodeRAR3Name(name []byte, flags uint16) string {
	if flags&flagUnicodeName != 0 {
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		return string(name)
	}
	decoded, err := charmap.CodePage437.NewDecoder().Bytes(name)
	if err != nil {
		return string(name)
	}
	return string(decoded)
}

// rar3DeriveKeyIV implements RAR3's key derivation: 262,144 rounds of SHA-1
// over (rawPassword || salt || 3-byte little-endian round counter), with the IV's 16
// bytes sampled from the last byte of the running digest's checkpointed
// intermediate state every 0x4000th round. Reconstructed from the public
// RAR3 format description — no reference implementation in this corpus
// exercises it, so this is a from-scratch derivation rather than an
// adaptation.
func rar3DeriveKeyIV(password string, salt [8]byte) (key [16]byte, iv [16]byte) {
	raw := append([]byte(password), salt[:]...)

	h := sha1.New()
	const rounds = 0x40000
	const checkpointEvery = rounds / 16

	for i := 0; i < rounds; i++ {
		h.Write(raw)
		h.Write([]byte{byte(i), byte(i >> 8), byte(i >> 16)})
		if i%checkpointEvery == 0 {
			digest := cloneSHA1Sum(h)
			iv[i/checkpointEvery] = digest[19]
		}
	}

	final := h.Sum(nil)
	for i := 0; i < 4; i++ {
		// Key bytes are the digest's 32-bit words, little-endian per word.
		word := binary.BigEndian.Uint32(final[i*4 : i*4+4])
		binary.LittleEndian.PutUint32(key[i*4:i*4+4], word)
	}
	return key, iv
}

// cloneSHA1Sum returns the SHA-1 digest of h's state so far without
// disturbing h's ability to keep accumulating writes, using the
// encoding.BinaryMarshaler support crypto/sha1's digest type provides.
func cloneSHA1Sum(h interface{ io.Writer }) []byte {
	marshaler := h.(encoding.BinaryMarshaler)
	state, err := marshaler.MarshalBinary()
	if err != nil {
		return nil
	}
	clone := sha1.New()
	clone.(encoding.BinaryUnmarshaler).UnmarshalBinary(state)
	return clone.Sum(nil)
}

func discardN(r *bufio.Reader, n int64) error {
	_, err := io.CopyN(io.Discard, r, n)
	return err
}

// rar3NewCBCDecrypter builds a plain (non-AEAD) AES-CBC block mode from a
// RAR3 entry's key and IV. Nothing in this module calls it; internal/aescbc
// constructs its own decrypter from the entry's Aes params.
func rar3NewCBCDecrypter(key, iv []byte) (cipher.BlockMode, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewCBCDecrypter(block, iv), nil
}

// dosTimeToTime converts a classic MS-DOS packed date/time (as used by
// RAR3's FileTime field) into a time.Time.
func dosTimeToTime(dt uint32) time.Time {
	sec := int((dt & 0x1F) * 2)
	min := int((dt >> 5) & 0x3F)
	hour := int((dt >> 11) & 0x1F)
	day := int((dt >> 16) & 0x1F)
	month := time.Month((dt >> 21) & 0x0F)
	year := int((dt>>25)&0x7F) + 1980
	if day == 0 || month == 0 {
		return time.Time{}
	}
	return time.Date(year, month, day, hour, min, sec, 0, time.UTC)
}
