package container

import (
	"bytes"
	"context"
	"testing"
)

func TestMultipartExtractorOpenReturnsWholeStreamRange(t *testing.T) {
	data := bytes.NewReader(make([]byte, 1234))
	entries, err := (multipartExtractor{}).Open(context.Background(), data, "")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].ByteRangeWithinArchive.Start != 0 || entries[0].ByteRangeWithinArchive.End != 1234 {
		t.Fatalf("entry range = %+v, want [0, 1234)", entries[0].ByteRangeWithinArchive)
	}
}

func TestMultipartExtractorOpenPreservesStreamPosition(t *testing.T) {
	data := bytes.NewReader(make([]byte, 100))
	data.Seek(42, 0)

	_, err := (multipartExtractor{}).Open(context.Background(), data, "")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	pos, _ := data.Seek(0, 1)
	if pos != 42 {
		t.Fatalf("stream position after Open() = %d, want unchanged at 42", pos)
	}
}
