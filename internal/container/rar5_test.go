package container

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"testing"

	"golang.org/x/crypto/pbkdf2"

	"nzbstream/internal/nzberrors"
)

func encodeVint(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

func TestVintReaderRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, 127, 128, 300, 1 << 20} {
		buf := encodeVint(v)
		vr := &vintReader{buf: buf}
		got, ok := vr.vint()
		if !ok {
			t.Fatalf("vint(%d): decode failed", v)
		}
		if got != v {
			t.Fatalf("vint(%d) roundtrip = %d", v, got)
		}
	}
}

func TestReadVintFromByteStream(t *testing.T) {
	buf := encodeVint(300)
	got, n, err := readVint(bufio.NewReader(bytes.NewReader(buf)))
	if err != nil {
		t.Fatalf("readVint() error: %v", err)
	}
	if got != 300 {
		t.Fatalf("readVint() = %d, want 300", got)
	}
	if n != int64(len(buf)) {
		t.Fatalf("readVint() consumed = %d, want %d", n, len(buf))
	}
}

// buildRAR5FileHeaderBody constructs the body (post header-size-vint) of a
// RAR5 file header block: headerType, flags, optional extraSize/dataSize,
// then the file-header-specific fields (flags, unpacked size, attributes,
// compression info, host OS, name length, name), followed by an optional
// extra-area blob.
func buildRAR5FileHeaderBody(name string, dataSize int64, compInfo int64, extra []byte) []byte {
	var body []byte
	body = append(body, encodeVint(rar5HeaderFile)...)

	flags := int64(rar5FlagData)
	if len(extra) > 0 {
		flags |= rar5FlagExtra
	}
	body = append(body, encodeVint(flags)...)
	if len(extra) > 0 {
		body = append(body, encodeVint(int64(len(extra)))...)
	}
	body = append(body, encodeVint(dataSize)...)

	body = append(body, encodeVint(0)...)        // file flags
	body = append(body, encodeVint(dataSize)...) // unpacked size
	body = append(body, encodeVint(0)...)        // attributes
	body = append(body, encodeVint(compInfo)...) // compression info
	body = append(body, encodeVint(0)...)        // host OS
	body = append(body, encodeVint(int64(len(name)))...)
	body = append(body, []byte(name)...)
	body = append(body, extra...)
	return body
}

func wrapRAR5Block(body []byte) []byte {
	var block []byte
	block = append(block, []byte{0, 0, 0, 0}...) // CRC, unchecked by the parser
	block = append(block, encodeVint(int64(len(body)))...)
	block = append(block, body...)
	return block
}

func buildRAR5EndBlock() []byte {
	body := encodeVint(rar5HeaderEnd)
	body = append(body, encodeVint(0)...) // flags
	return wrapRAR5Block(body)
}

func TestReadRAR5BlockStoredFile(t *testing.T) {
	data := []byte("hello rar5")
	body := buildRAR5FileHeaderBody("movie.mkv", int64(len(data)), 0, nil)
	block := wrapRAR5Block(body)
	block = append(block, data...)

	r := bufio.NewReader(bytes.NewReader(block))
	got, _, err := readRAR5Block(r, "")
	if err != nil {
		t.Fatalf("readRAR5Block() error: %v", err)
	}
	if got.headerType != rar5HeaderFile {
		t.Fatalf("headerType = %d, want rar5HeaderFile", got.headerType)
	}
	if got.name != "movie.mkv" {
		t.Fatalf("name = %q, want movie.mkv", got.name)
	}
	if got.dataSize != int64(len(data)) {
		t.Fatalf("dataSize = %d, want %d", got.dataSize, len(data))
	}
	if got.aes != nil {
		t.Fatal("aes should be nil for an unencrypted entry")
	}
}

func TestReadRAR5BlockRejectsCompressedMethod(t *testing.T) {
	// compInfo's method bits (bits 7-9) set to a non-zero compression method.
	compInfo := int64(1) << 7
	body := buildRAR5FileHeaderBody("movie.mkv", 10, compInfo, nil)
	block := wrapRAR5Block(body)

	r := bufio.NewReader(bytes.NewReader(block))
	if _, _, err := readRAR5Block(r, ""); !errors.Is(err, nzberrors.ErrUnsupportedCompression) {
		t.Fatalf("readRAR5Block() error = %v, want ErrUnsupportedCompression", err)
	}
}

// buildRAR5CryptExtraRecord builds a single extra-area record of type
// rar5ExtraCrypt wrapping a crypt body (lg2Count || salt || flags || filler ||
// checkValue), matching the byte layout deriveRAR5AesParams reads:
// rec[0]=lg2Count, rec[1:17]=salt, rec[17]=flags, rec[19:31]=checkValue.
func buildRAR5CryptExtraRecord(lg2Count byte, salt [16]byte, checkValue []byte) []byte {
	cryptBody := []byte{lg2Count}
	cryptBody = append(cryptBody, salt[:]...)
	if checkValue != nil {
		cryptBody = append(cryptBody, 0x01) // PswCheck present
		cryptBody = append(cryptBody, 0x00) // filler byte at rec[18]
		cryptBody = append(cryptBody, checkValue...)
	} else {
		cryptBody = append(cryptBody, 0x00)
	}

	rec := encodeVint(rar5ExtraCrypt)
	rec = append(rec, cryptBody...)

	size := encodeVint(int64(len(rec)))
	return append(size, rec...)
}

func TestDeriveRAR5AesParamsWithoutCheckValue(t *testing.T) {
	var salt [16]byte
	for i := range salt {
		salt[i] = byte(i)
	}
	rec := []byte{2} // lg2Count
	rec = append(rec, salt[:]...)
	rec = append(rec, 0x00) // flags: no PswCheck

	params, err := deriveRAR5AesParams(rec, "hunter2")
	if err != nil {
		t.Fatalf("deriveRAR5AesParams() error: %v", err)
	}
	if len(params.Key) != 32 {
		t.Fatalf("len(Key) = %d, want 32", len(params.Key))
	}
}

func TestDeriveRAR5AesParamsValidatesCheckValue(t *testing.T) {
	var salt [16]byte
	for i := range salt {
		salt[i] = byte(i + 1)
	}
	lg2Count := byte(1)
	derived := pbkdf2.Key([]byte("correct-horse"), salt[:], (1<<lg2Count)*3, 32+16, sha256.New)
	psValue := sha256.Sum256(derived[32:48])

	rec := []byte{lg2Count}
	rec = append(rec, salt[:]...)
	rec = append(rec, 0x01) // PswCheck present
	rec = append(rec, 0x00) // filler byte at rec[18]
	rec = append(rec, psValue[:12]...)

	if _, err := deriveRAR5AesParams(rec, "correct-horse"); err != nil {
		t.Fatalf("deriveRAR5AesParams() with correct password: %v", err)
	}
	if _, err := deriveRAR5AesParams(rec, "wrong-password"); !errors.Is(err, nzberrors.ErrInvalidPassword) {
		t.Fatalf("deriveRAR5AesParams() with wrong password error = %v, want ErrInvalidPassword", err)
	}
}

func TestParseRAR5CryptExtraDerivesParams(t *testing.T) {
	var salt [16]byte
	for i := range salt {
		salt[i] = byte(i * 3)
	}
	extra := buildRAR5CryptExtraRecord(1, salt, nil)

	params, err := parseRAR5CryptExtra(extra, "hunter2")
	if err != nil {
		t.Fatalf("parseRAR5CryptExtra() error: %v", err)
	}
	if params == nil {
		t.Fatal("parseRAR5CryptExtra() returned nil params for a crypt record")
	}
}

func TestRAR5ExtractorOpenEnumeratesStoredEntry(t *testing.T) {
	var archive bytes.Buffer
	archive.Write(rar5Signature) // already 8 bytes; Open() seeks past exactly this

	data := []byte("payload bytes")
	body := buildRAR5FileHeaderBody("clip.mkv", int64(len(data)), 0, nil)
	archive.Write(wrapRAR5Block(body))
	archive.Write(data)
	archive.Write(buildRAR5EndBlock())

	entries, err := (rar5Extractor{}).Open(context.Background(), bytes.NewReader(archive.Bytes()), "")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Path != "clip.mkv" {
		t.Fatalf("entries[0].Path = %q, want clip.mkv", entries[0].Path)
	}
	if entries[0].ByteRangeWithinArchive.End-entries[0].ByteRangeWithinArchive.Start != int64(len(data)) {
		t.Fatalf("entries[0] range = %+v, want length %d", entries[0].ByteRangeWithinArchive, len(data))
	}
}
