// Package sindex implements SaneIndex, a partial index over a growing
// byte range: a sparse, insertion-order-independent map from explored
// offsets to line starts, with the unexplored remainder tracked as a
// small number of Unmapped ranges rather than one entry per byte.
//
// Ported from the row-major layout in indexed_file's sane_index.rs: the
// index is a slice of rows, where each row holds either exactly one
// Unmapped waypoint, or a dense run of Mapped waypoints inserted
// together by a single parse_chunk call. Binary search locates a row
// by its first element; a second binary search inside that row
// resolves the position within a Mapped run.
package sindex

import (
	"sort"

	"github.com/gaby/grokview/internal/waypoint"
)

// Index is a SaneIndex: a partial map of line-start offsets.
type Index struct {
	rows [][]waypoint.Waypoint
}

// New returns an index that is entirely unexplored, from offset 0 to
// waypoint.Max (the unknown tail of a source that may still grow).
func New() *Index {
	return &Index{rows: [][]waypoint.Waypoint{{waypoint.Unmapped(0, waypoint.Max)}}}
}

// At returns the waypoint stored at (row, col).
func (x *Index) At(at waypoint.RowCol) waypoint.Waypoint {
	return x.rows[at.Row][at.Col]
}

// Valid reports whether (row, col) names a real element.
func (x *Index) Valid(at waypoint.RowCol) bool {
	return at.Row >= 0 && at.Row < len(x.rows) && at.Col >= 0 && at.Col < len(x.rows[at.Row])
}

// Prev returns the element immediately before at, if any.
func (x *Index) Prev(at waypoint.RowCol) (waypoint.RowCol, bool) {
	if at.Col > 0 {
		return waypoint.RowCol{Row: at.Row, Col: at.Col - 1}, true
	}
	if at.Row > 0 {
		prevRow := at.Row - 1
		return waypoint.RowCol{Row: prevRow, Col: len(x.rows[prevRow]) - 1}, true
	}
	return waypoint.RowCol{}, false
}

// Next returns the element immediately after at, if any.
func (x *Index) Next(at waypoint.RowCol) (waypoint.RowCol, bool) {
	if at.Col+1 < len(x.rows[at.Row]) {
		return waypoint.RowCol{Row: at.Row, Col: at.Col + 1}, true
	}
	if at.Row+1 < len(x.rows) {
		return waypoint.RowCol{Row: at.Row + 1, Col: 0}, true
	}
	return waypoint.RowCol{}, false
}

// Len returns the number of rows, mostly useful for tests.
func (x *Index) Len() int { return len(x.rows) }

// eq reports whether a and b compare equal under waypoint.Less.
func eq(a, b waypoint.Waypoint) bool { return !waypoint.Less(a, b) && !waypoint.Less(b, a) }

// search locates the row/col holding offset, or the insertion point if
// no element maps it exactly, then adjusts into a neighboring element
// when offset falls within its Unmapped range.
func (x *Index) search(offset int64) waypoint.RowCol {
	target := waypoint.Mapped(offset)

	// Binary search rows by their first element (Rust: binary_search_by_key).
	i := sort.Search(len(x.rows), func(i int) bool {
		return !waypoint.Less(x.rows[i][0], target)
	})

	var at waypoint.RowCol
	if i < len(x.rows) && eq(x.rows[i][0], target) {
		at = waypoint.RowCol{Row: i, Col: 0}
	} else {
		row := i - 1
		if row < 0 {
			row = 0
		}
		j := sort.Search(len(x.rows[row]), func(j int) bool {
			return !waypoint.Less(x.rows[row][j], target)
		})
		switch {
		case j < len(x.rows[row]) && eq(x.rows[row][j], target):
			at = waypoint.RowCol{Row: row, Col: j}
		case j == len(x.rows[row]):
			at = waypoint.RowCol{Row: row + 1, Col: 0}
		default:
			at = waypoint.RowCol{Row: row, Col: j}
		}
	}

	if prev, ok := x.Prev(at); ok {
		if x.At(prev).Contains(offset) {
			return prev
		}
	}
	if x.Valid(at) && offset > x.At(at).CmpOffset() {
		if next, ok := x.Next(at); ok {
			return next
		}
	}
	return at
}

// Search returns the Position for offset: Existing if an element maps
// or contains it.
func (x *Index) Search(offset int64) waypoint.Position {
	at := x.search(offset)
	if !x.Valid(at) {
		return waypoint.Invalid()
	}
	return waypoint.Existing(at, x.At(at))
}

// resolveGap finds the Unmapped row covering [lo, hi) and splits it
// into up to three rows (left remainder, the target range, right
// remainder), returning the row index of the target range. Unmapped
// ranges always occupy their own single-element row.
func (x *Index) resolveGap(lo, hi int64) int {
	at := x.search(lo)
	if x.Valid(at) && x.At(at).IsMapped() {
		if next, ok := x.Next(at); ok {
			at = next
		}
	} else if prev, ok := x.Prev(at); ok {
		if x.At(prev).Contains(lo) {
			at = prev
		}
	}

	row := at.Row
	unmapped := x.rows[row][0]

	left, right, _ := unmapped.Split(lo, hi)

	insertAt := row
	if left != nil {
		x.rows = insertRow(x.rows, insertAt, []waypoint.Waypoint{*left})
		insertAt++
	}
	if right != nil {
		x.rows = insertRow(x.rows, insertAt+1, []waypoint.Waypoint{*right})
	}
	return insertAt
}

func insertRow(rows [][]waypoint.Waypoint, at int, row []waypoint.Waypoint) [][]waypoint.Waypoint {
	rows = append(rows, nil)
	copy(rows[at+1:], rows[at:])
	rows[at] = row
	return rows
}

func removeRow(rows [][]waypoint.Waypoint, at int) [][]waypoint.Waypoint {
	copy(rows[at:], rows[at+1:])
	return rows[:len(rows)-1]
}

// Insert records that [lo, hi) has been scanned and found to contain
// line starts at offsets (which may be empty, meaning the whole range
// held no newline). It replaces the Unmapped row covering the range
// with one Mapped waypoint per offset, or removes the row entirely if
// offsets is empty.
func (x *Index) Insert(offsets []int64, lo, hi int64) {
	row := x.resolveGap(lo, hi)
	if len(offsets) == 0 {
		x.rows = removeRow(x.rows, row)
		return
	}
	mapped := make([]waypoint.Waypoint, len(offsets))
	for i, off := range offsets {
		mapped[i] = waypoint.Mapped(off)
	}
	x.rows[row] = mapped
}

// ScanNewlines returns the line-start offsets found in chunk (the
// bytes at [offset, offset+len(chunk))): one past every '\n', plus
// offset 0 itself when offset is 0 (a line always starts at byte 0,
// even though it is never itself preceded by '\n').
func ScanNewlines(offset int64, chunk []byte) []int64 {
	var offsets []int64
	if offset == 0 {
		offsets = append(offsets, 0)
	}
	for i, b := range chunk {
		if b == '\n' {
			offsets = append(offsets, offset+int64(i)+1)
		}
	}
	return offsets
}

// ParseChunk scans chunk for line-start offsets and records them via
// Insert, with the resolved range running exactly [offset, offset+len(chunk)).
func (x *Index) ParseChunk(offset int64, chunk []byte) {
	x.Insert(ScanNewlines(offset, chunk), offset, offset+int64(len(chunk)))
}

// NextPos advances pos forward by one mapped or unmapped waypoint.
// KindStart walks to the first element; KindEnd/KindInvalid produce
// Invalid; a bound KindExisting position walks to its successor, or
// Invalid if there is none.
func (x *Index) NextPos(pos waypoint.Position) waypoint.Position {
	switch pos.Kind {
	case waypoint.KindStart:
		if len(x.rows) == 0 || len(x.rows[0]) == 0 {
			return waypoint.Invalid()
		}
		at := waypoint.RowCol{Row: 0, Col: 0}
		return waypoint.Existing(at, x.At(at))
	case waypoint.KindExisting:
		if next, ok := x.Next(pos.At); ok {
			return waypoint.Existing(next, x.At(next))
		}
		return waypoint.Invalid()
	case waypoint.KindBefore, waypoint.KindAtOrAfter:
		return x.Search(pos.Target)
	default:
		return waypoint.Invalid()
	}
}

// NextPosBack is the mirror of NextPos for reverse iteration.
func (x *Index) NextPosBack(pos waypoint.Position) waypoint.Position {
	switch pos.Kind {
	case waypoint.KindEnd:
		last := len(x.rows) - 1
		if last < 0 {
			return waypoint.Invalid()
		}
		at := waypoint.RowCol{Row: last, Col: len(x.rows[last]) - 1}
		return waypoint.Existing(at, x.At(at))
	case waypoint.KindExisting:
		if prev, ok := x.Prev(pos.At); ok {
			return waypoint.Existing(prev, x.At(prev))
		}
		return waypoint.Invalid()
	case waypoint.KindBefore, waypoint.KindAtOrAfter:
		return x.Search(pos.Target)
	default:
		return waypoint.Invalid()
	}
}

// Waypoints returns every waypoint in order, mapped and unmapped
// alike. Intended for tests that assert against the shape of the
// index directly, mirroring the Rust originals' `index.iter().collect()`.
func (x *Index) Waypoints() []waypoint.Waypoint {
	var out []waypoint.Waypoint
	for _, row := range x.rows {
		out = append(out, row...)
	}
	return out
}

// CountLines returns the number of Mapped waypoints (known line
// starts) currently in the index.
func (x *Index) CountLines() int {
	n := 0
	for _, row := range x.rows {
		for _, w := range row {
			if w.IsMapped() {
				n++
			}
		}
	}
	return n
}

// IndexedBytes returns the total span covered by Mapped runs: for each
// run, its last offset minus its first. This is less than the number
// of bytes actually scanned whenever a chunk's first line start lies
// past its low bound or its last line start before its high bound.
func (x *Index) IndexedBytes() int64 {
	var total int64
	for _, row := range x.rows {
		if len(row) == 0 || !row[0].IsMapped() {
			continue
		}
		total += row[len(row)-1].EndOffset() - row[0].Lo()
	}
	return total
}
