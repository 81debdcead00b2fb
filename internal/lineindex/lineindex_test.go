package lineindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gaby/grokview/internal/source"
	"github.com/gaby/grokview/internal/waypoint"
)

const sampleFile = "Hello, world\n\nThis is a test.\nThis is only a test.\n\nEnd of message\n"

func newTestIndexer(t *testing.T, content string) *Indexer {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	src, err := source.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	src.Close()
	return New(src)
}

func TestIndexerForwardIteration(t *testing.T) {
	ix := newTestIndexer(t, sampleFile)

	var offsets []int64
	for {
		pos, err := ix.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if pos.Kind == waypoint.KindInvalid {
			break
		}
		off, ok := pos.Offset()
		if !ok {
			t.Fatalf("position not mapped: %+v", pos)
		}
		offsets = append(offsets, off)
	}

	want := []int64{0, 13, 14, 30, 51, 52}
	if len(offsets) != len(want) {
		t.Fatalf("got %v offsets, want %v", offsets, want)
	}
	for i := range want {
		if offsets[i] != want[i] {
			t.Fatalf("got %v, want %v", offsets, want)
		}
	}
}

func TestIndexerReadLine(t *testing.T) {
	ix := newTestIndexer(t, sampleFile)
	for {
		pos, err := ix.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if pos.Kind == waypoint.KindInvalid {
			break
		}
	}

	line, err := ix.ReadLine(14)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line.Text != "This is a test." {
		t.Fatalf("ReadLine(14).Text = %q, want %q", line.Text, "This is a test.")
	}
}

func TestIndexerForwardBackwardRendezvous(t *testing.T) {
	ix := newTestIndexer(t, sampleFile)

	fwdCount := 0
	for i := 0; i < 3; i++ {
		pos, err := ix.Next()
		if err != nil || pos.Kind == waypoint.KindInvalid {
			t.Fatalf("Next() #%d failed early: %v, %+v", i, err, pos)
		}
		fwdCount++
	}

	revCount := 0
	for {
		pos, err := ix.NextBack()
		if err != nil {
			t.Fatalf("NextBack: %v", err)
		}
		if pos.Kind == waypoint.KindInvalid {
			break
		}
		revCount++
	}

	// Forward consumed 3 of 6 real line offsets (the trailing phantom
	// offset at EOF is never yielded); backward should consume the
	// remaining 3 before the two cursors meet and both go Invalid.
	if revCount != 3 {
		t.Fatalf("revCount = %d, want 3 (fwdCount=%d)", revCount, fwdCount)
	}

	pos, err := ix.Next()
	if err != nil {
		t.Fatalf("Next after rendezvous: %v", err)
	}
	if pos.Kind != waypoint.KindInvalid {
		t.Fatalf("Next after rendezvous = %+v, want Invalid", pos)
	}
}

func TestIndexerLatin1Fallback(t *testing.T) {
	// 0xE9 alone is not valid UTF-8; as Latin-1 it's the letter e-acute.
	content := "caf\xe9 terminé\n"
	ix := newTestIndexer(t, content)
	pos, err := ix.Next()
	if err != nil || pos.Kind == waypoint.KindInvalid {
		t.Fatalf("Next: %v, %+v", err, pos)
	}
	line, err := ix.ReadLine(0)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line.Text == "" {
		t.Fatalf("ReadLine returned empty text for non-UTF-8 line")
	}
}
