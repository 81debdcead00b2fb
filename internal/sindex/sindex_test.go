package sindex

import (
	"math/rand"
	"testing"

	"github.com/gaby/grokview/internal/waypoint"
)

const sampleFile = "Hello, world\n\nThis is a test.\nThis is only a test.\n\nEnd of message\n"

func assertWaypoints(t *testing.T, got []waypoint.Waypoint, want []waypoint.Waypoint) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d waypoints %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range got {
		if got[i].IsMapped() != want[i].IsMapped() {
			t.Fatalf("waypoint %d: mapped mismatch got %+v want %+v", i, got[i], want[i])
		}
		if got[i].IsMapped() {
			if got[i].Offset() != want[i].Offset() {
				t.Fatalf("waypoint %d: offset got %d want %d", i, got[i].Offset(), want[i].Offset())
			}
		} else {
			if got[i].Lo() != want[i].Lo() || got[i].Hi() != want[i].Hi() {
				t.Fatalf("waypoint %d: range got [%d,%d) want [%d,%d)", i, got[i].Lo(), got[i].Hi(), want[i].Lo(), want[i].Hi())
			}
		}
	}
}

func m(offset int64) waypoint.Waypoint { return waypoint.Mapped(offset) }
func u(lo, hi int64) waypoint.Waypoint { return waypoint.Unmapped(lo, hi) }

func TestSaneIndexBasic(t *testing.T) {
	idx := New()
	idx.Insert([]int64{0}, 0, 13)
	assertWaypoints(t, idx.Waypoints(), []waypoint.Waypoint{m(0), u(13, waypoint.Max)})

	idx.Insert([]int64{13}, 13, 14)
	assertWaypoints(t, idx.Waypoints(), []waypoint.Waypoint{m(0), m(13), u(14, waypoint.Max)})

	idx.Insert([]int64{14}, 14, 30)
	assertWaypoints(t, idx.Waypoints(), []waypoint.Waypoint{m(0), m(13), m(14), u(30, waypoint.Max)})

	idx.Insert([]int64{30}, 30, 51)
	assertWaypoints(t, idx.Waypoints(), []waypoint.Waypoint{m(0), m(13), m(14), m(30), u(51, waypoint.Max)})

	idx.Insert([]int64{51}, 51, 52)
	assertWaypoints(t, idx.Waypoints(), []waypoint.Waypoint{m(0), m(13), m(14), m(30), m(51), u(52, waypoint.Max)})

	idx.Insert(nil, 52, 67)
	assertWaypoints(t, idx.Waypoints(), []waypoint.Waypoint{m(0), m(13), m(14), m(30), m(51), u(67, waypoint.Max)})

	if idx.Len() != 6 {
		t.Fatalf("row count = %d, want 6", idx.Len())
	}
}

func TestSaneIndexBasicReverse(t *testing.T) {
	idx := New()
	idx.Insert(nil, 52, 67)
	assertWaypoints(t, idx.Waypoints(), []waypoint.Waypoint{u(0, 52), u(67, waypoint.Max)})

	idx.Insert([]int64{13}, 13, 14)
	assertWaypoints(t, idx.Waypoints(), []waypoint.Waypoint{u(0, 13), m(13), u(14, 52), u(67, waypoint.Max)})

	idx.Insert(nil, 0, 13)
	assertWaypoints(t, idx.Waypoints(), []waypoint.Waypoint{m(13), u(14, 52), u(67, waypoint.Max)})

	idx.Insert([]int64{14}, 14, 30)
	assertWaypoints(t, idx.Waypoints(), []waypoint.Waypoint{m(13), m(14), u(30, 52), u(67, waypoint.Max)})
}

func wantFullyParsed() []waypoint.Waypoint {
	return []waypoint.Waypoint{m(0), m(13), m(14), m(30), m(51), m(52), m(67), u(67, waypoint.Max)}
}

func TestSaneIndexParseBasic(t *testing.T) {
	idx := New()
	idx.ParseChunk(0, []byte(sampleFile))
	assertWaypoints(t, idx.Waypoints(), wantFullyParsed())
}

func TestSaneIndexParseChunks(t *testing.T) {
	idx := New()
	const start = 35
	idx.ParseChunk(start, []byte(sampleFile[start:]))
	assertWaypoints(t, idx.Waypoints(), []waypoint.Waypoint{u(0, start), m(51), m(52), m(67), u(67, waypoint.Max)})

	idx.ParseChunk(0, []byte(sampleFile[:start]))
	assertWaypoints(t, idx.Waypoints(), wantFullyParsed())
}

func TestSaneIndexParseChunksRandomBytes(t *testing.T) {
	idx := New()
	order := rand.Perm(len(sampleFile))
	for _, i := range order {
		idx.ParseChunk(int64(i), []byte(sampleFile[i:i+1]))
	}
	assertWaypoints(t, idx.Waypoints(), wantFullyParsed())
}

func TestSaneIndexParseChunksRandomChunks(t *testing.T) {
	idx := New()
	n := len(sampleFile)

	cuts := rand.Perm(n - 1)
	for i := range cuts {
		cuts[i]++ // 1..=n-1
	}
	take := len(cuts) / 3
	chosen := append([]int{}, cuts[:take]...)
	chosen = append(chosen, n)

	sortInts(chosen)

	type span struct{ lo, hi int }
	var spans []span
	start := 0
	for _, c := range chosen {
		spans = append(spans, span{start, c})
		start = c
	}
	rand.Shuffle(len(spans), func(i, j int) { spans[i], spans[j] = spans[j], spans[i] })

	for _, s := range spans {
		idx.ParseChunk(int64(s.lo), []byte(sampleFile[s.lo:s.hi]))
	}
	assertWaypoints(t, idx.Waypoints(), wantFullyParsed())
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func TestSaneIndexCountLinesAndIndexedBytes(t *testing.T) {
	idx := New()
	idx.ParseChunk(0, []byte(sampleFile))
	if got := idx.CountLines(); got != 7 {
		t.Fatalf("CountLines() = %d, want 7", got)
	}
	if got := idx.IndexedBytes(); got != 67 {
		t.Fatalf("IndexedBytes() = %d, want 67", got)
	}
}

func TestSaneIndexNextWalksInOrder(t *testing.T) {
	idx := New()
	idx.ParseChunk(0, []byte(sampleFile))

	var got []int64
	pos := waypoint.Start()
	for {
		pos = idx.NextPos(pos)
		if pos.Kind == waypoint.KindInvalid {
			break
		}
		if off, ok := pos.Offset(); ok {
			got = append(got, off)
		}
	}
	want := []int64{0, 13, 14, 30, 51, 52, 67}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
