package merge

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/gaby/grokview/internal/lineindex"
	"github.com/gaby/grokview/internal/logstack"
	"github.com/gaby/grokview/internal/source"
)

var tsRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})`)

func extractRFC3339Prefix(line string) (time.Time, bool) {
	m := tsRe.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02T15:04:05", m[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func newStack(t *testing.T, name, content string) *logstack.LogStack {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	src, err := source.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	src.Close()
	return logstack.New(name, lineindex.New(src))
}

func TestMergedInterleavesByTimestamp(t *testing.T) {
	a := newStack(t, "a.log",
		"2024-01-01T00:00:00 from a first\n2024-01-01T00:00:03 from a second\n")
	b := newStack(t, "b.log",
		"2024-01-01T00:00:01 from b first\n2024-01-01T00:00:02 from b second\n")

	m := New([]*logstack.LogStack{a, b}, extractRFC3339Prefix)

	var got []string
	for {
		line, _, ok, err := m.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, line.Text)
	}

	want := []string{
		"2024-01-01T00:00:00 from a first",
		"2024-01-01T00:00:01 from b first",
		"2024-01-01T00:00:02 from b second",
		"2024-01-01T00:00:03 from a second",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestMergedFallsBackToFileOrderOnUnparseable(t *testing.T) {
	a := newStack(t, "a.log", "no timestamp here a\n")
	b := newStack(t, "b.log", "no timestamp here b\n")

	m := New([]*logstack.LogStack{a, b}, extractRFC3339Prefix)

	line1, idx1, ok, err := m.Next()
	if err != nil || !ok {
		t.Fatalf("Next: %v, %v", err, ok)
	}
	line2, idx2, ok, err := m.Next()
	if err != nil || !ok {
		t.Fatalf("Next: %v, %v", err, ok)
	}
	if idx1 != 0 || idx2 != 1 {
		t.Fatalf("expected file order (0, 1), got (%d, %d)", idx1, idx2)
	}
	if line1.Text != "no timestamp here a" || line2.Text != "no timestamp here b" {
		t.Fatalf("unexpected lines: %q, %q", line1.Text, line2.Text)
	}
}
