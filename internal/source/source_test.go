package source

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileReadAtAndLen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	content := "Hello, world\n\nThis is a test.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if got := s.Len(); got != int64(len(content)) {
		t.Fatalf("Len() = %d, want %d", got, len(content))
	}

	buf := make([]byte, 5)
	n, err := s.ReadAt(0, buf)
	if err != nil || n != 5 || string(buf) != "Hello" {
		t.Fatalf("ReadAt = %q, %d, %v", buf[:n], n, err)
	}

	lo, hi := s.Chunk(10, DefaultChunk)
	if lo != 0 || hi != int64(len(content)) {
		t.Fatalf("Chunk = [%d,%d), want clamped to file bounds", lo, hi)
	}
}

func TestFileCloseStopsWaitForMore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	if err := os.WriteFile(path, []byte("x\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	s.pollTick = time.Millisecond
	s.Close()
	if s.IsOpen() {
		t.Fatalf("IsOpen() = true after Close")
	}
	if s.WaitForMore(time.Time{}) {
		t.Fatalf("WaitForMore() = true on a closed source")
	}
}

func TestCachedStreamDrainsAndReports(t *testing.T) {
	r := strings.NewReader("line one\nline two\nline three\n")
	cs := NewCachedStream(context.Background(), "test", r)

	deadline := time.Now().Add(2 * time.Second)
	for cs.IsOpen() {
		if !cs.WaitForMore(deadline) {
			break
		}
	}
	if err := cs.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	want := "line one\nline two\nline three\n"
	got := make([]byte, cs.Len())
	n, err := cs.ReadAt(0, got)
	if err != nil || int64(n) != int64(len(want)) {
		t.Fatalf("ReadAt = %d, %v, want %d bytes", n, err, len(want))
	}
	if string(got) != want {
		t.Fatalf("ReadAt content = %q, want %q", got, want)
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("Hello, world\n\n"),
		[]byte("This is a test.\nThis is only a test.\n"),
		[]byte("\nEnd of message\n"),
	}
	var container bytes.Buffer
	for _, p := range payloads {
		frame, err := EncodeFrame(p)
		if err != nil {
			t.Fatalf("EncodeFrame: %v", err)
		}
		container.Write(frame)
	}

	src := OpenCompressed("test.gvf", bytes.NewReader(container.Bytes()), int64(container.Len()))
	src.Close()

	want := bytes.Join(payloads, nil)
	got := make([]byte, len(want))
	n, err := src.ReadAt(0, got)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != len(want) {
		t.Fatalf("ReadAt returned %d bytes, want %d", n, len(want))
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadAt content mismatch:\ngot  %q\nwant %q", got, want)
	}

	if got := src.Len(); got != int64(len(want)) {
		t.Fatalf("Len() = %d, want %d", got, len(want))
	}

	// Seeking into the middle frame should decode correctly too.
	mid := make([]byte, 10)
	off := int64(len(payloads[0]))
	n, err = src.ReadAt(off, mid)
	if err != nil || n != len(mid) {
		t.Fatalf("mid ReadAt = %d, %v", n, err)
	}
	if string(mid) != string(want[off:off+10]) {
		t.Fatalf("mid ReadAt content = %q, want %q", mid, want[off:off+10])
	}
}
