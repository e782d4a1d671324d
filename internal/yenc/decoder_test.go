package yenc

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"testing"
)

// encodeYenc builds a minimal single-line yEnc 1.3 article body for data,
// the inverse of decodeLine's escaping rule, so the round trip exercises
// the decoder exactly the way a real NNTP BODY response would.
func encodeYenc(name string, data []byte) []byte {
	var body bytes.Buffer
	fmt.Fprintf(&body, "=ybegin line=128 size=%d name=%s\r\n", len(data), name)

	for _, b := range data {
		v := b + 42
		if v == 0x00 || v == 0x0A || v == 0x0D || v == '=' {
			body.WriteByte('=')
			body.WriteByte(v + 64)
		} else {
			body.WriteByte(v)
		}
	}
	body.WriteString("\r\n")

	crc := crc32.ChecksumIEEE(data)
	fmt.Fprintf(&body, "=yend size=%d crc32=%08x\r\n", len(data), crc)
	return body.Bytes()
}

func TestDecoderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "plain ascii", data: []byte("the quick brown fox jumps over the lazy dog")},
		{name: "all critical bytes", data: []byte{0x100 - 42, 0x10A - 42, 0x10D - 42, '=' - 42}},
		{name: "every byte value", data: allByteValues()},
		{name: "empty body", data: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := encodeYenc("test.bin", tt.data)
			dec, err := NewDecoder(bytes.NewReader(encoded))
			if err != nil {
				t.Fatalf("NewDecoder() error: %v", err)
			}
			if dec.Header.Name != "test.bin" {
				t.Errorf("Header.Name = %q, want test.bin", dec.Header.Name)
			}
			if dec.Header.PartRange.Size() != int64(len(tt.data)) {
				t.Errorf("Header.PartRange.Size() = %d, want %d", dec.Header.PartRange.Size(), len(tt.data))
			}

			got, err := io.ReadAll(dec)
			if err != nil {
				t.Fatalf("ReadAll() error: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Fatalf("decoded %d bytes, want %d bytes matching the original", len(got), len(tt.data))
			}
			if dec.FinalCRC32() != crc32.ChecksumIEEE(tt.data) {
				t.Errorf("FinalCRC32() = %08x, want %08x", dec.FinalCRC32(), crc32.ChecksumIEEE(tt.data))
			}
		})
	}
}

func TestDecoderMultiPartHeader(t *testing.T) {
	var body bytes.Buffer
	body.WriteString("=ybegin part=2 total=3 line=128 size=3000 name=movie.mkv\r\n")
	body.WriteString("=ypart begin=1001 end=2000\r\n")

	data := bytes.Repeat([]byte{'A'}, 1000)
	for _, b := range data {
		v := b + 42
		body.WriteByte(v)
	}
	body.WriteString("\r\n")
	body.WriteString(fmt.Sprintf("=yend size=%d pcrc32=%08x\r\n", len(data), crc32.ChecksumIEEE(data)))

	dec, err := NewDecoder(&body)
	if err != nil {
		t.Fatalf("NewDecoder() error: %v", err)
	}
	if dec.Header.PartRange.Start != 1000 || dec.Header.PartRange.End != 2000 {
		t.Fatalf("Header.PartRange = %+v, want [1000, 2000)", dec.Header.PartRange)
	}
}

func TestDecoderMissingHeaderFails(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader([]byte("not a yenc article\r\n")))
	if err == nil {
		t.Fatal("NewDecoder() on a headerless body should fail")
	}
}

func allByteValues() []byte {
	out := make([]byte, 256)
	for i := range out {
		out[i] = byte(i)
	}
	return out
}
