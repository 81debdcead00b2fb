// Package filter implements a predicate-driven view over a
// line-producing layer (either internal/lineindex.Indexer or another
// FilteredLog), maintaining its own dependent partial index restricted
// to the lines that pass the predicate.
//
// Grounded on indexed_file's index_filter.rs (IndexFilter) and
// filtered_log.rs (FilteredLog).
package filter

import (
	"github.com/gaby/grokview/internal/lineindex"
	"github.com/gaby/grokview/internal/search"
	"github.com/gaby/grokview/internal/sindex"
	"github.com/gaby/grokview/internal/waypoint"
)

// Layer is the contract both internal/lineindex.Indexer and FilteredLog
// satisfy, letting filters stack arbitrarily deep.
type Layer interface {
	Next() (waypoint.Position, error)
	NextBack() (waypoint.Position, error)
	ReadLine(offset int64) (lineindex.Line, error)
	Len() int64
	HasGaps() bool
	Rewind()
}

// bookmarks tracks offsets explicitly marked by the user, consulted by
// a KindBookmark filter in place of Search.Match.
type bookmarks map[int64]struct{}

// IndexFilter is immutable once constructed: changing the predicate or
// the include/exclude sense means building a new IndexFilter (and a
// new FilteredLog around it), never mutating one in place. This
// mirrors index_filter.rs's IndexFilter, which the original rebinds by
// replacing rather than mutating on every search change.
type IndexFilter struct {
	query   search.Search
	include bool
	marks   bookmarks
	index   *sindex.Index
}

// New returns a filter matching lines where query.Match(line) == include.
// include=true is "keep matches" (filter-in); include=false is "drop
// matches" (filter-out).
func New(query search.Search, include bool) *IndexFilter {
	return &IndexFilter{query: query, include: include, marks: bookmarks{}, index: sindex.New()}
}

// Query returns the predicate this filter applies.
func (f *IndexFilter) Query() search.Search { return f.query }

// Include reports whether this filter keeps matches (true) or drops
// them (false).
func (f *IndexFilter) Include() bool { return f.include }

// IsMatch reports whether line (found at offset) should pass the filter.
func (f *IndexFilter) IsMatch(offset int64, line string) bool {
	var hit bool
	if f.query.Kind() == search.KindBookmark {
		_, hit = f.marks[offset]
	} else {
		hit = f.query.Match(line)
	}
	return hit == f.include
}

// Mark adds offset to the bookmark set. Only meaningful for a
// KindBookmark filter; harmless no-op otherwise since IsMatch never
// consults marks for other kinds.
func (f *IndexFilter) Mark(offset int64) { f.marks[offset] = struct{}{} }

// Unmark removes offset from the bookmark set.
func (f *IndexFilter) Unmark(offset int64) { delete(f.marks, offset) }

// FilteredLog wraps an inner Layer, exposing only the lines that pass
// filter's predicate, with its own SaneIndex of filtered-in offsets so
// repeatedly walking the filtered view doesn't re-evaluate the
// predicate against lines it has already classified.
type FilteredLog struct {
	inner  Layer
	filter *IndexFilter

	fwd waypoint.Position
	rev waypoint.Position
}

// Wrap returns a FilteredLog over inner using filter.
func Wrap(inner Layer, filter *IndexFilter) *FilteredLog {
	return &FilteredLog{
		inner:  inner,
		filter: filter,
		fwd:    waypoint.Start(),
		rev:    waypoint.End(),
	}
}

// Filter returns the predicate this layer applies, for Info() reporting.
func (fl *FilteredLog) Filter() *IndexFilter { return fl.filter }

// Len delegates to the inner layer: a filtered view's length is
// bounded by, but not equal to, how much of the source it has scanned.
func (fl *FilteredLog) Len() int64 { return fl.inner.Len() }

// HasGaps reports whether either this layer's own index or the inner
// layer still has unresolved regions.
func (fl *FilteredLog) HasGaps() bool {
	if fl.inner.HasGaps() {
		return true
	}
	for _, w := range fl.filter.index.Waypoints() {
		if !w.IsMapped() {
			return true
		}
	}
	return false
}

// Rewind resets both this layer's and (transitively) the inner
// layer's iteration cursors, without discarding anything indexed.
func (fl *FilteredLog) Rewind() {
	fl.fwd = waypoint.Start()
	fl.rev = waypoint.End()
	fl.inner.Rewind()
}

// indexGap drives the inner layer forward across [lo, hi), evaluating
// the predicate against each line it produces and recording the
// offsets that pass into this layer's own index. Ported from
// filtered_log.rs's index_chunk.
func (fl *FilteredLog) indexGap(lo, hi int64) error {
	var passed []int64
	for {
		pos, err := fl.inner.Next()
		if err != nil {
			return err
		}
		if pos.Kind == waypoint.KindInvalid {
			break
		}
		off, ok := pos.Offset()
		if !ok {
			continue
		}
		if off < lo {
			continue
		}
		if off >= hi {
			break
		}
		line, err := fl.inner.ReadLine(off)
		if err != nil {
			return err
		}
		if fl.filter.IsMatch(off, line.Text) {
			passed = append(passed, off)
		}
	}
	upper := hi
	if !fl.inner.HasGaps() && hi >= fl.inner.Len() {
		upper = waypoint.Max
	}
	fl.filter.index.Insert(passed, lo, upper)
	return nil
}

// Next advances the forward cursor to the next line passing the
// filter, resolving gaps in this layer's own index (by driving the
// inner layer) as needed.
func (fl *FilteredLog) Next() (waypoint.Position, error) {
	for {
		next := fl.filter.index.NextPos(fl.fwd)
		if next.Kind == waypoint.KindInvalid {
			fl.fwd = next
			return next, nil
		}
		if next.IsGap() {
			gap, _ := next.AsGap(fl.inner.Len())
			if err := fl.indexGap(gap.Lo, gap.Hi); err != nil {
				return fl.fwd, err
			}
			continue
		}
		if waypoint.Equal(next, fl.rev) {
			fl.fwd, fl.rev = waypoint.Invalid(), waypoint.Invalid()
			return fl.fwd, nil
		}
		fl.fwd = next
		return next, nil
	}
}

// NextBack is the mirror of Next for reverse iteration.
func (fl *FilteredLog) NextBack() (waypoint.Position, error) {
	for {
		next := fl.filter.index.NextPosBack(fl.rev)
		if next.Kind == waypoint.KindInvalid {
			fl.rev = next
			return next, nil
		}
		if next.IsGap() {
			gap, _ := next.AsGap(fl.inner.Len())
			if err := fl.indexGap(gap.Lo, gap.Hi); err != nil {
				return fl.rev, err
			}
			continue
		}
		if waypoint.Equal(next, fl.fwd) {
			fl.fwd, fl.rev = waypoint.Invalid(), waypoint.Invalid()
			return fl.rev, nil
		}
		fl.rev = next
		return next, nil
	}
}

// ReadLine delegates straight to the inner layer; a filtered view
// never changes a line's text, only which lines are visible.
func (fl *FilteredLog) ReadLine(offset int64) (lineindex.Line, error) {
	return fl.inner.ReadLine(offset)
}
