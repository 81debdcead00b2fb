package logstack

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gaby/grokview/internal/lineindex"
	"github.com/gaby/grokview/internal/search"
	"github.com/gaby/grokview/internal/source"
	"github.com/gaby/grokview/internal/waypoint"
)

const sampleLog = "alpha line one\nbeta line two\nalpha line three\nbeta line four\nalpha line five\n"

func newStack(t *testing.T, content string) *LogStack {
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
	return New(path, lineindex.New(src))
}

func TestLogStackPlainIteration(t *testing.T) {
	ls := newStack(t, sampleLog)
	count := 0
	for {
		pos, err := ls.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if pos.Kind == waypoint.KindInvalid {
			break
		}
		count++
	}
	if count != 5 {
		t.Fatalf("count = %d, want 5", count)
	}
}

func TestLogStackFilterInThenPop(t *testing.T) {
	ls := newStack(t, sampleLog)
	ls.FilterIn(search.Literal("alpha"))
	if ls.Depth() != 2 {
		t.Fatalf("Depth() = %d, want 2", ls.Depth())
	}

	count := 0
	for {
		pos, err := ls.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if pos.Kind == waypoint.KindInvalid {
			break
		}
		count++
	}
	if count != 3 {
		t.Fatalf("filtered count = %d, want 3", count)
	}

	if !ls.PopFilter() {
		t.Fatalf("PopFilter() = false, want true")
	}
	if ls.Depth() != 1 {
		t.Fatalf("Depth() after pop = %d, want 1", ls.Depth())
	}
	if ls.PopFilter() {
		t.Fatalf("PopFilter() on base-only stack should return false")
	}
}

func TestLogStackSearchNext(t *testing.T) {
	ls := newStack(t, sampleLog)
	off, ok, err := ls.SearchNext(0, search.Literal("beta"), 2)
	if err != nil {
		t.Fatalf("SearchNext: %v", err)
	}
	if !ok {
		t.Fatalf("SearchNext did not find a 2nd match")
	}
	line, err := ls.ReadLine(off)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line.Text != "beta line four" {
		t.Fatalf("2nd beta match = %q, want %q", line.Text, "beta line four")
	}
}

func TestLogStackRunPendingDrainsGaps(t *testing.T) {
	ls := newStack(t, sampleLog)
	if !ls.HasPending() {
		t.Fatalf("expected a fresh stack to have pending gaps")
	}
	deadline := time.Now().Add(time.Second)
	for ls.HasPending() {
		if err := ls.RunPending(deadline); err != nil {
			t.Fatalf("RunPending: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatalf("RunPending did not converge before deadline")
		}
	}
}

func TestLogStackInfoMentionsLayers(t *testing.T) {
	ls := newStack(t, sampleLog)
	ls.FilterIn(search.Literal("alpha"))
	info := ls.Info()
	if info == "" {
		t.Fatalf("Info() returned empty string")
	}
	if !strings.Contains(info, "2 layer(s)") || !strings.Contains(info, "filter-in alpha") {
		t.Fatalf("Info() = %q, want it to mention 2 layers and the filter-in alpha layer", info)
	}
}
