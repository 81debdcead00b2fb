// Package merge implements a k-way merged view across several
// LogStacks, presenting their lines interleaved by timestamp. Lines
// whose timestamp can't be parsed are ordered by (file order, offset)
// instead, so a merge of mixed well-formed and malformed sources still
// produces a total order rather than failing.
//
// Grounded on the original's MergedLogs concept (referenced by
// tools/src/cat.rs's tac_cmd/merged_cat_cmd), reimplemented here with
// container/heap since the pack has no retrieved Rust source file for
// merged_log.rs itself.
package merge

import (
	"container/heap"
	"time"

	"github.com/gaby/grokview/internal/lineindex"
	"github.com/gaby/grokview/internal/logstack"
	"github.com/gaby/grokview/internal/waypoint"
)

// TimestampExtractor parses a leading timestamp out of a line's text,
// returning ok=false if none is found (the line falls back to file
// order + offset tie-breaking).
type TimestampExtractor func(line string) (time.Time, bool)

// item is one candidate line waiting to be emitted, tagged with which
// stack it came from and the stack's position in the original input
// order (used for the tie-break rule).
type item struct {
	stackIdx int
	offset   int64
	ts       time.Time
	hasTS    bool
	line     lineindex.Line
}

// heapOrder implements heap.Interface ordered by timestamp ascending,
// breaking ties by (stackIdx, offset); a line with no parseable
// timestamp sorts as if its timestamp were the zero time, which in
// practice means "before everything with a real one," consistent with
// treating unparseable lines as indeterminate rather than silently
// dropping them.
type heapOrder struct {
	items []item
	max   bool // true for a max-heap (used by the backward view)
}

func (h *heapOrder) Len() int { return len(h.items) }
func (h *heapOrder) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	less := lessItem(a, b)
	if h.max {
		return !less && !equalItem(a, b)
	}
	return less
}
func (h *heapOrder) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *heapOrder) Push(x interface{}) { h.items = append(h.items, x.(item)) }
func (h *heapOrder) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

func lessItem(a, b item) bool {
	if a.hasTS && b.hasTS && !a.ts.Equal(b.ts) {
		return a.ts.Before(b.ts)
	}
	if a.hasTS != b.hasTS {
		// A line without a parseable timestamp sorts before any line
		// with one, so it surfaces promptly rather than being starved
		// behind well-formed lines.
		return !a.hasTS
	}
	if a.stackIdx != b.stackIdx {
		return a.stackIdx < b.stackIdx
	}
	return a.offset < b.offset
}

func equalItem(a, b item) bool {
	return a.hasTS == b.hasTS && a.ts.Equal(b.ts) && a.stackIdx == b.stackIdx && a.offset == b.offset
}

// Merged presents several LogStacks as one ordered view.
type Merged struct {
	stacks    []*logstack.LogStack
	extract   TimestampExtractor
	fwdHeap   *heapOrder
	revHeap   *heapOrder
	fwdPrimed []bool
	revPrimed []bool
}

// New returns a Merged view over stacks, using extract to derive each
// line's sort key.
func New(stacks []*logstack.LogStack, extract TimestampExtractor) *Merged {
	return &Merged{
		stacks:    stacks,
		extract:   extract,
		fwdHeap:   &heapOrder{},
		revHeap:   &heapOrder{max: true},
		fwdPrimed: make([]bool, len(stacks)),
		revPrimed: make([]bool, len(stacks)),
	}
}

// fillForward ensures stack i has a candidate on the forward heap by
// advancing it one step forward, if it isn't already represented.
// fillBackward is its mirror for the backward heap.
func (m *Merged) fillForward(i int) error {
	if m.fwdPrimed[i] {
		return nil
	}
	pos, err := m.stacks[i].Next()
	if err != nil {
		return err
	}
	m.fwdPrimed[i] = true
	if pos.Kind == waypoint.KindInvalid {
		return nil
	}
	off, ok := pos.Offset()
	if !ok {
		return nil
	}
	line, err := m.stacks[i].ReadLine(off)
	if err != nil {
		return err
	}
	it := item{stackIdx: i, offset: off, line: line}
	it.ts, it.hasTS = m.extract(line.Text)
	heap.Push(m.fwdHeap, it)
	return nil
}

func (m *Merged) fillBackward(i int) error {
	if m.revPrimed[i] {
		return nil
	}
	pos, err := m.stacks[i].NextBack()
	if err != nil {
		return err
	}
	m.revPrimed[i] = true
	if pos.Kind == waypoint.KindInvalid {
		return nil
	}
	off, ok := pos.Offset()
	if !ok {
		return nil
	}
	line, err := m.stacks[i].ReadLine(off)
	if err != nil {
		return err
	}
	it := item{stackIdx: i, offset: off, line: line}
	it.ts, it.hasTS = m.extract(line.Text)
	heap.Push(m.revHeap, it)
	return nil
}

// Next returns the next line across all stacks in timestamp order, or
// ok=false once every stack is exhausted.
func (m *Merged) Next() (lineindex.Line, int, bool, error) {
	for i := range m.stacks {
		if err := m.fillForward(i); err != nil {
			return lineindex.Line{}, 0, false, err
		}
	}
	if m.fwdHeap.Len() == 0 {
		return lineindex.Line{}, 0, false, nil
	}
	top := heap.Pop(m.fwdHeap).(item)
	m.fwdPrimed[top.stackIdx] = false
	return top.line, top.stackIdx, true, nil
}

// NextBack is the mirror of Next for reverse (tail-style) iteration.
func (m *Merged) NextBack() (lineindex.Line, int, bool, error) {
	for i := range m.stacks {
		if err := m.fillBackward(i); err != nil {
			return lineindex.Line{}, 0, false, err
		}
	}
	if m.revHeap.Len() == 0 {
		return lineindex.Line{}, 0, false, nil
	}
	top := heap.Pop(m.revHeap).(item)
	m.revPrimed[top.stackIdx] = false
	return top.line, top.stackIdx, true, nil
}
