// Package lineindex couples a byte source with a partial index of
// line-start offsets, resolving gaps chunk by chunk as callers iterate
// forward or backward, and decoding each line's bytes as UTF-8 with a
// Latin-1 fallback for lines that aren't valid UTF-8.
package lineindex

import (
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"golang.org/x/text/encoding/charmap"

	"github.com/gaby/grokview/internal/sindex"
	"github.com/gaby/grokview/internal/source"
	"github.com/gaby/grokview/internal/waypoint"
)

// Line is one decoded line: its text (newline stripped) and the byte
// offset of its first byte in the source. Ported from iterator.rs's LogLine.
type Line struct {
	Text   string
	Offset int64
}

// Indexer couples a byte Source with a sindex.Index, growing the index
// on demand as Next/NextBack are asked to cross an unexplored gap.
//
// Grounded on indexed_file's log.rs (the Log adapter around
// SaneIndexer<LogSource>) and line_indexer.rs for the chunk-resolution
// shape, reimplemented around the Go Source interface instead of
// threaded mmap scanning.
type Indexer struct {
	src   source.Source
	index *sindex.Index
	log   *log.Logger

	fwd Position
	rev Position

	chunkSize int64
}

// Position is the exported alias for a waypoint.Position, returned by
// Next/NextBack so callers can resume iteration from where it left off.
type Position = waypoint.Position

// New returns an Indexer over src with an empty index and default
// chunk size.
func New(src source.Source) *Indexer {
	return &Indexer{
		src:       src,
		index:     sindex.New(),
		log:       log.With("indexer", src.Name()),
		fwd:       waypoint.Start(),
		rev:       waypoint.End(),
		chunkSize: source.DefaultChunk,
	}
}

// SetChunkSize overrides the gap-resolution chunk size, clamped to
// source.MinChunk.
func (ix *Indexer) SetChunkSize(n int64) {
	if n < source.MinChunk {
		n = source.MinChunk
	}
	ix.chunkSize = n
}

// Len returns the source's currently known length.
func (ix *Indexer) Len() int64 { return ix.src.Len() }

// HasGaps reports whether the index has any unresolved region at all,
// used by RunPending/HasPending in the layer above to decide whether
// background work remains.
func (ix *Indexer) HasGaps() bool {
	for _, w := range ix.index.Waypoints() {
		if !w.IsMapped() {
			return true
		}
	}
	return false
}

// resolveChunk reads and indexes one chunk of the source covering
// target, splitting exactly at the next newline at-or-after the
// chunk's high boundary so that a line is never attributed to the
// wrong chunk: a '\n' landing exactly at the chunk boundary belongs to
// the chunk that contains it, not the one that starts right after.
func (ix *Indexer) resolveChunk(target int64) error {
	lo, hi := ix.src.Chunk(target, ix.chunkSize)
	// Chunk centers its window on target, which can reach back over
	// lines an earlier chunk already indexed; start no earlier than the
	// gap holding target so Insert only ever splits that gap.
	if gp := ix.index.Search(target); gp.IsGap() && lo < gp.Waypoint.Lo() {
		lo = gp.Waypoint.Lo()
	}
	if hi <= lo {
		// Nothing left to resolve in this chunk. If the source is still
		// open it may grow past lo later, so only collapse the gap as
		// far as lo; once it's known-closed, collapse all the way to
		// Max so a backward iterator stops retrying this tail forever.
		insertHi := lo
		if !ix.src.IsOpen() {
			insertHi = waypoint.Max
		}
		ix.index.Insert(nil, lo, insertHi)
		return nil
	}
	buf := make([]byte, hi-lo)
	n, err := ix.src.ReadAt(lo, buf)
	if err != nil {
		if n == 0 {
			return err
		}
	}
	buf = buf[:n]
	hi = lo + int64(n)

	// Extend the chunk to the next newline so a line isn't split across
	// two indexed chunks.
	if ix.src.Len() > hi || ix.src.IsOpen() {
		extra := make([]byte, 1)
		for {
			m, rerr := ix.src.ReadAt(hi, extra)
			if m == 0 || rerr != nil {
				break
			}
			buf = append(buf, extra[0])
			hi++
			if extra[0] == '\n' {
				break
			}
		}
	}

	// Once the source is known-closed and this chunk reaches its current
	// end, there is no more data coming: collapse the remaining tail
	// range all the way to waypoint.Max instead of just to hi, or the
	// trailing Unmapped(hi, Max) waypoint would be re-split into an
	// identical empty range on every subsequent resolution and never
	// disappear (its Insert(nil, lo, hi) would be a no-op, looping a
	// backward iterator at the tail forever).
	insertHi := hi
	if !ix.src.IsOpen() && hi >= ix.src.Len() {
		insertHi = waypoint.Max
	}
	ix.index.Insert(sindex.ScanNewlines(lo, buf), lo, insertHi)
	ix.log.Debug("resolved chunk", "lo", lo, "hi", hi)
	return nil
}

// Next advances the forward cursor past one line, resolving gaps as
// needed, and returns the new position. A forward and backward cursor
// that meet at the same waypoint both become Invalid (the rendezvous
// rule), signaled by both Next and NextBack subsequently returning
// Invalid.
func (ix *Indexer) Next() (Position, error) {
	for {
		next := ix.index.NextPos(ix.fwd)
		if next.Kind == waypoint.KindInvalid {
			ix.fwd = next
			return next, nil
		}
		if next.IsGap() {
			gap, _ := next.AsGap(ix.src.Len())
			target := gap.Target
			if target == 0 && ix.fwd.Kind == waypoint.KindStart {
				target = 0
			}
			if err := ix.resolveChunk(target); err != nil {
				return ix.fwd, err
			}
			continue
		}
		if off, ok := next.Offset(); ok && off >= ix.src.Len() {
			// A mapped waypoint sitting exactly at the source's current
			// end is the start of a line that doesn't exist yet - for a
			// closed, newline-terminated source it never will
			// (ScanNewlines records one offset past every '\n',
			// including the final one). Advance past it instead of
			// yielding it as a line, mirroring iterator.rs's next()
			// EOF filter.
			ix.fwd = next
			continue
		}
		if waypoint.Equal(next, ix.rev) {
			ix.fwd = waypoint.Invalid()
			ix.rev = waypoint.Invalid()
			return ix.fwd, nil
		}
		ix.fwd = next
		return next, nil
	}
}

// NextBack is the mirror of Next for reverse iteration.
func (ix *Indexer) NextBack() (Position, error) {
	for {
		next := ix.index.NextPosBack(ix.rev)
		if next.Kind == waypoint.KindInvalid {
			ix.rev = next
			return next, nil
		}
		if next.IsGap() {
			gap, _ := next.AsGap(ix.src.Len())
			if err := ix.resolveChunk(gap.Target); err != nil {
				return ix.rev, err
			}
			continue
		}
		if off, ok := next.Offset(); ok && off >= ix.src.Len() {
			// Same phantom-tail waypoint Next() skips; a reverse walk
			// must skip it too or the artifact resurfaces as a spurious
			// last line when iterating backward from the end.
			ix.rev = next
			continue
		}
		if waypoint.Equal(next, ix.fwd) {
			ix.fwd = waypoint.Invalid()
			ix.rev = waypoint.Invalid()
			return ix.rev, nil
		}
		ix.rev = next
		return next, nil
	}
}

// ReadLine decodes the line starting at offset, reading up to the next
// mapped line start (or the source's current end). Bytes that are not
// valid UTF-8 are decoded as Latin-1 instead of being replaced with
// U+FFFD, matching the "treat opaque non-UTF-8 bytes as latin-1"
// fallback (grounded on golang.org/x/text/encoding/charmap).
func (ix *Indexer) ReadLine(offset int64) (Line, error) {
	end := ix.nextMappedOffsetOrEnd(offset)
	n := end - offset
	if n <= 0 {
		return Line{Offset: offset}, nil
	}
	buf := make([]byte, n)
	read, err := ix.src.ReadAt(offset, buf)
	if err != nil && read == 0 {
		return Line{}, err
	}
	buf = buf[:read]
	for len(buf) > 0 && (buf[len(buf)-1] == '\n' || buf[len(buf)-1] == '\r') {
		buf = buf[:len(buf)-1]
	}

	if utf8.Valid(buf) {
		return Line{Text: string(buf), Offset: offset}, nil
	}
	text, decErr := charmap.ISO8859_1.NewDecoder().String(string(buf))
	if decErr != nil {
		return Line{Text: string(buf), Offset: offset}, nil
	}
	return Line{Text: text, Offset: offset}, nil
}

func (ix *Indexer) nextMappedOffsetOrEnd(offset int64) int64 {
	pos := ix.index.Search(offset)
	if pos.Kind == waypoint.KindExisting {
		if next, ok := ix.index.Next(pos.At); ok {
			nw := ix.index.At(next)
			if nw.IsMapped() {
				return nw.Offset()
			}
		}
	}
	return ix.src.Len()
}

// WaitForEnd blocks, repeatedly advancing the forward cursor, until
// the source closes or WaitForMore reports no new bytes before
// deadline. Ported from indexed_file's log.rs wait_for_end. The CLI's
// reverse mode does not call it; it marks file sources closed before
// iterating instead.
func (ix *Indexer) WaitForEnd(deadline time.Time) error {
	for {
		pos, err := ix.Next()
		if err != nil {
			return err
		}
		if pos.Kind == waypoint.KindInvalid {
			if !ix.src.IsOpen() {
				return nil
			}
			if !ix.src.WaitForMore(deadline) {
				return nil
			}
			ix.fwd = waypoint.Start()
			continue
		}
	}
}

// Rewind resets the forward and backward cursors to Start/End without
// discarding anything already indexed, so iteration can restart.
func (ix *Indexer) Rewind() {
	ix.fwd = waypoint.Start()
	ix.rev = waypoint.End()
}

// Index exposes the underlying partial index for introspection
// (Info() reporting, tests).
func (ix *Indexer) Index() *sindex.Index { return ix.index }
