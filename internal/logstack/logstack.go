// Package logstack composes a base line indexer with zero or more
// filter layers into a single navigable view, and drives bounded
// background gap-resolution work on behalf of a caller that cannot
// afford to block indefinitely (a UI event loop).
//
// Grounded on indexed_file's log_stack.rs (not directly retrieved, but
// described throughout filtered_log_test.rs and lib.rs) and on
// log.rs's IndexedLog trait contract.
package logstack

import (
	"fmt"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/gaby/grokview/internal/filter"
	"github.com/gaby/grokview/internal/lineindex"
	"github.com/gaby/grokview/internal/search"
	"github.com/gaby/grokview/internal/sched"
	"github.com/gaby/grokview/internal/waypoint"
)

// LayerInfo summarizes one layer of the stack for diagnostics.
type LayerInfo struct {
	Depth       int
	Description string
	IndexedPct  float64
}

// LogStack is an ordered list of layers: layer 0 is the base
// lineindex.Indexer; each subsequent layer is a filter.FilteredLog
// wrapping the one before it. The top layer is what iteration methods
// operate on.
type LogStack struct {
	id    uuid.UUID
	name  string
	base  *lineindex.Indexer
	stack []filter.Layer // stack[0] == base; stack[len-1] is the active top
}

// New returns a LogStack with just the base layer (no filters applied).
func New(name string, base *lineindex.Indexer) *LogStack {
	return &LogStack{
		id:    uuid.New(),
		name:  name,
		base:  base,
		stack: []filter.Layer{base},
	}
}

// ID returns this stack's stable trace identifier.
func (ls *LogStack) ID() uuid.UUID { return ls.id }

// Name returns the human-readable source name backing this stack.
func (ls *LogStack) Name() string { return ls.name }

// top returns the currently active (outermost) layer.
func (ls *LogStack) top() filter.Layer { return ls.stack[len(ls.stack)-1] }

// Depth returns the number of layers, including the base (always >= 1).
func (ls *LogStack) Depth() int { return len(ls.stack) }

// FilterIn pushes a new layer keeping only lines matching query.
func (ls *LogStack) FilterIn(query search.Search) {
	ls.push(query, true)
}

// FilterOut pushes a new layer dropping lines matching query.
func (ls *LogStack) FilterOut(query search.Search) {
	ls.push(query, false)
}

func (ls *LogStack) push(query search.Search, include bool) {
	fl := filter.Wrap(ls.top(), filter.New(query, include))
	ls.stack = append(ls.stack, fl)
}

// PopFilter removes the outermost filter layer, if any (the base layer
// is never removed). Matches the "rebind, don't mutate" rule: undoing
// a filter discards that layer's dependent index rather than editing it.
func (ls *LogStack) PopFilter() bool {
	if len(ls.stack) <= 1 {
		return false
	}
	ls.stack = ls.stack[:len(ls.stack)-1]
	return true
}

// Search replaces the entire filter stack with a single filter-in
// layer over the base, matching index_filter.rs's top-level search entry point.
func (ls *LogStack) Search(query search.Search) {
	ls.stack = []filter.Layer{ls.base}
	ls.FilterIn(query)
}

// Next advances the active layer's forward cursor.
func (ls *LogStack) Next() (waypoint.Position, error) { return ls.top().Next() }

// NextBack advances the active layer's backward cursor.
func (ls *LogStack) NextBack() (waypoint.Position, error) { return ls.top().NextBack() }

// ReadLine decodes the line at offset via the active layer.
func (ls *LogStack) ReadLine(offset int64) (lineindex.Line, error) { return ls.top().ReadLine(offset) }

// Rewind resets the active layer's (and transitively every layer
// below it's) iteration cursors to Start/End.
func (ls *LogStack) Rewind() { ls.top().Rewind() }

// SearchNext returns the offset of the nth line (1-indexed) matching
// query at or after fromOffset, without altering the active filter
// stack. Ported from log_stack.rs's search_next(from, n).
func (ls *LogStack) SearchNext(fromOffset int64, query search.Search, n int) (int64, bool, error) {
	return ls.searchDirection(fromOffset, query, n, true)
}

// SearchPrev is the mirror of SearchNext, searching backward.
func (ls *LogStack) SearchPrev(fromOffset int64, query search.Search, n int) (int64, bool, error) {
	return ls.searchDirection(fromOffset, query, n, false)
}

func (ls *LogStack) searchDirection(fromOffset int64, query search.Search, n int, forward bool) (int64, bool, error) {
	if n <= 0 {
		n = 1
	}
	fl := filter.Wrap(ls.top(), filter.New(query, true))
	found := 0
	for {
		var pos waypoint.Position
		var err error
		if forward {
			pos, err = fl.Next()
		} else {
			pos, err = fl.NextBack()
		}
		if err != nil {
			return 0, false, err
		}
		if pos.Kind == waypoint.KindInvalid {
			return 0, false, nil
		}
		off, ok := pos.Offset()
		if !ok {
			continue
		}
		if forward && off < fromOffset {
			continue
		}
		if !forward && off > fromOffset {
			continue
		}
		found++
		if found >= n {
			return off, true, nil
		}
	}
}

// HasPending reports whether any layer in the stack still has
// unresolved gaps.
func (ls *LogStack) HasPending() bool {
	for _, l := range ls.stack {
		if l.HasGaps() {
			return true
		}
	}
	return false
}

// RunPending drives gap resolution for up to one chunk's worth of work
// per layer, stopping early if deadline passes. It is meant to be
// called repeatedly from a cooperative event loop between frames, not
// run to completion. Ported from log.rs's run_pending combined with
// timeout.rs's latching Deadline.
func (ls *LogStack) RunPending(deadline time.Time) error {
	dl := sched.None()
	if !deadline.IsZero() {
		dl = sched.Set(deadline)
	}
	for _, l := range ls.stack {
		if dl.TimedOut() {
			return nil
		}
		if !l.HasGaps() {
			continue
		}
		if _, err := l.Next(); err != nil {
			return err
		}
	}
	return nil
}

// Poll runs one RunPending pass with a 50ms deadline, which advances
// every layer that still has gaps by one step, and reports whether any
// work was pending before the pass, letting a caller loop until it
// reports false to drain all pending work without blocking on source
// I/O indefinitely.
func (ls *LogStack) Poll() (bool, error) {
	if !ls.HasPending() {
		return false, nil
	}
	if err := ls.RunPending(time.Now().Add(50 * time.Millisecond)); err != nil {
		return false, err
	}
	return true, nil
}

// Info returns a human-readable summary of every layer for diagnostics
// (e.g. a status line), formatting byte counts via
// go-humanize.
func (ls *LogStack) Info() string {
	total := ls.base.Len()
	summary := fmt.Sprintf("stack %s (%s): %d layer(s), %s total", ls.id, ls.name, len(ls.stack), humanize.Bytes(uint64(total)))
	for _, li := range ls.layerInfo() {
		summary += fmt.Sprintf("\n  [%d] %s", li.Depth, li.Description)
	}
	return summary
}

// layerInfo describes each layer, deepest (the base) first.
func (ls *LogStack) layerInfo() []LayerInfo {
	infos := make([]LayerInfo, 0, len(ls.stack))
	infos = append(infos, LayerInfo{Depth: 0, Description: fmt.Sprintf("base: %s", ls.name)})
	for i := 1; i < len(ls.stack); i++ {
		fl, ok := ls.stack[i].(*filter.FilteredLog)
		desc := "filter"
		if ok {
			sense := "in"
			if !fl.Filter().Include() {
				sense = "out"
			}
			desc = fmt.Sprintf("filter-%s %s", sense, fl.Filter().Query())
		}
		infos = append(infos, LayerInfo{Depth: i, Description: desc})
	}
	return infos
}
