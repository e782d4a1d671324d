package stream

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"testing"

	"nzbstream/internal/byterange"
	"nzbstream/internal/segment"
)

func encodeYencBody(name string, data []byte) []byte {
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
	fmt.Fprintf(&body, "=yend size=%d crc32=%08x\r\n", len(data), crc32.ChecksumIEEE(data))
	return body.Bytes()
}

type fakeOpener struct {
	bodies map[string][]byte
}

func (o *fakeOpener) Open(ctx context.Context, articleID string) (io.ReadCloser, error) {
	b, ok := o.bodies[articleID]
	if !ok {
		return nil, fmt.Errorf("unknown article %q", articleID)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func buildTestVirtualFile(parts ...[]byte) (*segment.VirtualFile, *fakeOpener) {
	vf := &segment.VirtualFile{ID: "vf1"}
	opener := &fakeOpener{bodies: map[string][]byte{}}
	var offset int64
	for i, p := range parts {
		id := fmt.Sprintf("seg-%d", i)
		vf.Segments = append(vf.Segments, segment.Descriptor{
			ArticleID:     segment.ArticleID(id),
			PartByteRange: byterange.Range{Start: offset, End: offset + int64(len(p))},
		})
		opener.bodies[id] = encodeYencBody(fmt.Sprintf("part%d.bin", i), p)
		offset += int64(len(p))
	}
	vf.Size = offset
	return vf, opener
}

func TestSegmentStreamReadsSequentially(t *testing.T) {
	vf, opener := buildTestVirtualFile([]byte("hello "), []byte("world"))
	s := NewSegmentStream(context.Background(), vf, opener, 2)
	defer s.Close()

	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("ReadAll() = %q, want %q", got, "hello world")
	}
}

func TestSegmentStreamSeekMidSegment(t *testing.T) {
	vf, opener := buildTestVirtualFile([]byte("0123456789"), []byte("abcdefghij"))
	s := NewSegmentStream(context.Background(), vf, opener, 1)
	defer s.Close()

	if _, err := s.Seek(5, io.SeekStart); err != nil {
		t.Fatalf("Seek() error: %v", err)
	}
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if string(got) != "56789abcdefghij" {
		t.Fatalf("ReadAll() after Seek(5) = %q, want %q", got, "56789abcdefghij")
	}
}

func TestSegmentStreamSeekToSecondSegmentBoundary(t *testing.T) {
	vf, opener := buildTestVirtualFile([]byte("0123456789"), []byte("abcdefghij"))
	s := NewSegmentStream(context.Background(), vf, opener, 1)
	defer s.Close()

	if _, err := s.Seek(10, io.SeekStart); err != nil {
		t.Fatalf("Seek() error: %v", err)
	}
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if string(got) != "abcdefghij" {
		t.Fatalf("ReadAll() after Seek(10) = %q, want %q", got, "abcdefghij")
	}
}

func TestSegmentStreamSeekCacheIsConsultedOnRepeatSeek(t *testing.T) {
	vf, opener := buildTestVirtualFile([]byte("0123456789"), []byte("abcdefghij"))
	s := NewSegmentStream(context.Background(), vf, opener, 1)
	defer s.Close()

	for i := 0; i < 3; i++ {
		if _, err := s.Seek(12, io.SeekStart); err != nil {
			t.Fatalf("Seek() iteration %d error: %v", i, err)
		}
		buf := make([]byte, 2)
		n, err := io.ReadFull(s, buf)
		if err != nil {
			t.Fatalf("Read() iteration %d error: %v", i, err)
		}
		if string(buf[:n]) != "cd" {
			t.Fatalf("Read() iteration %d = %q, want %q", i, buf[:n], "cd")
		}
	}
}

func TestSegmentStreamSeekOutOfBoundsFails(t *testing.T) {
	vf, opener := buildTestVirtualFile([]byte("short"))
	s := NewSegmentStream(context.Background(), vf, opener, 1)
	defer s.Close()

	if _, err := s.Seek(1000, io.SeekStart); err == nil {
		t.Fatal("Seek() past the end of the file should fail")
	}
	if _, err := s.Seek(-1, io.SeekStart); err == nil {
		t.Fatal("Seek() to a negative offset should fail")
	}
}

func TestSegmentStreamLengthMatchesVirtualFileSize(t *testing.T) {
	vf, opener := buildTestVirtualFile([]byte("abc"), []byte("defgh"))
	s := NewSegmentStream(context.Background(), vf, opener, 1)
	defer s.Close()

	if s.Length() != vf.Size {
		t.Fatalf("Length() = %d, want %d", s.Length(), vf.Size)
	}
}
