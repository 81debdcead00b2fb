// Package waypoint holds the atomic data types shared by the partial
// index and its callers: waypoints, cursor positions, and gaps.
package waypoint

import "math"

// Max is the sentinel "infinity" upper bound for an Unmapped waypoint
// whose extent is not yet known (the tail of a growing source).
const Max int64 = math.MaxInt64

// Waypoint is either a Mapped line-start offset or an Unmapped range
// known to contain zero or more unexplored line starts.
type Waypoint struct {
	mapped bool
	lo     int64 // Mapped: the offset. Unmapped: the range's low bound.
	hi     int64 // Unmapped only: the range's exclusive high bound.
}

// Mapped returns a waypoint representing an exactly-known line start.
func Mapped(offset int64) Waypoint {
	return Waypoint{mapped: true, lo: offset}
}

// Unmapped returns a waypoint representing a half-open unexplored range.
func Unmapped(lo, hi int64) Waypoint {
	if hi < lo {
		hi = lo
	}
	return Waypoint{mapped: false, lo: lo, hi: hi}
}

// IsMapped reports whether the waypoint is an exactly-known line start.
func (w Waypoint) IsMapped() bool { return w.mapped }

// Offset returns the mapped line-start offset. Only valid if IsMapped.
func (w Waypoint) Offset() int64 { return w.lo }

// Lo returns the low bound of an Unmapped range, or the offset of a
// Mapped point (for ordering purposes both compare on this field).
func (w Waypoint) Lo() int64 { return w.lo }

// Hi returns the exclusive high bound of an Unmapped range. For a
// Mapped waypoint this equals Lo, since it occupies a single point.
func (w Waypoint) Hi() int64 {
	if w.mapped {
		return w.lo
	}
	return w.hi
}

// CmpOffset returns the value used to order waypoints against each
// other and against a raw offset during binary search.
func (w Waypoint) CmpOffset() int64 { return w.lo }

// EndOffset returns the offset just past this waypoint's extent.
func (w Waypoint) EndOffset() int64 {
	if w.mapped {
		return w.lo
	}
	return w.hi
}

// Contains reports whether an Unmapped waypoint's range contains offset.
// Mapped waypoints never contain anything; they are single points.
func (w Waypoint) Contains(offset int64) bool {
	if w.mapped {
		return false
	}
	return offset >= w.lo && offset < w.hi
}

// Less orders two waypoints by their comparison offset, breaking ties
// so that an Unmapped waypoint sorts before a Mapped one at the same
// offset (an Unmapped range's lo can coincide with the next Mapped
// point once the range is split down to zero width).
func Less(a, b Waypoint) bool {
	if a.lo != b.lo {
		return a.lo < b.lo
	}
	return !a.mapped && b.mapped
}

// Split divides an Unmapped waypoint at [lo, hi) into the portion
// before the cut and the portion after, both possibly nil. ok is false
// if w is Mapped or doesn't contain [lo, hi).
func (w Waypoint) Split(lo, hi int64) (left, right *Waypoint, ok bool) {
	if w.mapped {
		return nil, nil, false
	}
	if lo < w.lo || hi > w.hi {
		return nil, nil, false
	}
	if lo > w.lo {
		l := Unmapped(w.lo, lo)
		left = &l
	}
	if hi < w.hi {
		r := Unmapped(hi, w.hi)
		right = &r
	}
	return left, right, true
}
