package source

import (
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/gaby/grokview/internal/cache"
)

// frameMagic tags the start of each frame in the container format this
// source reads: a 4-byte magic, an 8-byte declared uncompressed length
// (0 meaning "unknown, this is the frontier frame"), an 8-byte
// compressed payload length, then the flate-compressed payload itself.
// No example repo in the retrieved pack imports a seekable compression
// codec as a dependency; this framing is original, built on stdlib
// compress/flate as the payload codec (see DESIGN.md).
var frameMagic = [4]byte{'G', 'V', 'F', '1'}

const frameHeaderLen = 4 + 8 + 8

// Breadcrumb records where one frame begins, both physically (in the
// compressed container) and logically (in the decompressed stream),
// and how many decompressed bytes it contains. A Len of 0 marks the
// frontier: the last frame seen so far, whose true length isn't known
// until scanNextFrameLocked decodes that frame and backfills it.
//
// Ported from compressed_file_proto.rs's Breadcrumb.
type Breadcrumb struct {
	Physical int64
	Logical  int64
	Len      int64

	compLen int64 // compressed payload size; 0 until the frame header is read
}

func (b Breadcrumb) isFrontier() bool { return b.Len == 0 }

// Compressed is a Source that lazily decompresses a frame-oriented
// compressed file, keeping a sparse list of breadcrumbs so a seek to
// an arbitrary logical offset only has to decode forward from the
// nearest earlier frame rather than from the start of the file.
type Compressed struct {
	id   uuid.UUID
	name string
	log  *log.Logger

	mu          sync.Mutex
	r           io.ReaderAt
	physicalLen int64
	breadcrumbs []Breadcrumb // sorted by Logical; last entry may be the frontier
	closed      bool

	decodeCache *cache.FrameCache
	ring        *cache.Ring
	ringBase    int64 // logical offset of ring's frame
	ringPhys    int64 // physical offset (past the header) of the frame currently buffered in ring; -1 when empty
	ringDecoder io.ReadCloser // in-progress flate reader for that frame; nil once fully drained

	group singleflight.Group
}

// decodeCacheBudget is the byte budget of decodeCache, which records
// the decoded size of each frame and evicts the least recently touched
// records once their total exceeds it. It bounds that bookkeeping only:
// decodeCache holds no decoded bytes, and the ring is reset on every
// frame change rather than trimmed against this budget.
const decodeCacheBudget = 8 * 1024 * 1024

// LooksCompressed reports whether the first bytes readable from r
// carry this package's frame magic, letting a caller decide whether to
// open a path as a Compressed source or a plain File.
func LooksCompressed(r io.ReaderAt) bool {
	var hdr [4]byte
	n, err := r.ReadAt(hdr[:], 0)
	if n < len(hdr) || (err != nil && err != io.EOF) {
		return false
	}
	return hdr == frameMagic
}

// OpenCompressed wraps r, a ReaderAt over physicalLen bytes of
// frame-container data, as a Compressed source.
func OpenCompressed(name string, r io.ReaderAt, physicalLen int64) *Compressed {
	return &Compressed{
		id:          uuid.New(),
		name:        name,
		log:         log.With("source", name),
		r:           r,
		physicalLen: physicalLen,
		breadcrumbs: []Breadcrumb{{Physical: 0, Logical: 0, Len: 0}},
		decodeCache: cache.NewFrameCache(decodeCacheBudget),
		ring:        cache.NewRing(),
		ringPhys:    -1,
	}
}

func (c *Compressed) ID() uuid.UUID { return c.id }
func (c *Compressed) Name() string  { return c.name }

func (c *Compressed) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close marks the source final and scans every remaining frame, so the
// frontier breadcrumb is backfilled with its now-known length and Len
// reports the full logical length. A frame that fails to decode stops
// the scan; a later read that reaches it returns that error.
func (c *Compressed) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for {
		n := len(c.breadcrumbs)
		if err := c.scanNextFrameLocked(); err != nil || len(c.breadcrumbs) == n {
			break
		}
	}
}

func (c *Compressed) Len() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.knownLogicalLenLocked()
}

func (c *Compressed) knownLogicalLenLocked() int64 {
	if len(c.breadcrumbs) == 0 {
		return 0
	}
	last := c.breadcrumbs[len(c.breadcrumbs)-1]
	if !last.isFrontier() {
		return last.Logical + last.Len
	}
	// Frontier's true extent is unknown until backfilled. If the ring
	// happens to be caching exactly this frame, report what has
	// actually been decoded of it so far; otherwise fall back to the
	// conservative "confirmed up to the frontier's start" answer.
	if c.ringPhys == last.Physical+frameHeaderLen {
		return c.ringBase + c.ring.Cap()
	}
	return last.Logical
}

func (c *Compressed) WaitForMore(deadline time.Time) bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false
	}
	// The container's physical length is fixed at open, so the known
	// logical length grows only as reads scan further frames. Sleep
	// once, whatever the deadline, and report whether it grew meanwhile.
	before := c.Len()
	time.Sleep(50 * time.Millisecond)
	return c.Len() > before
}

func (c *Compressed) Chunk(target, chunkHint int64) (int64, int64) {
	return clampChunk(target, c.Len(), chunkHint)
}

// lookupFrame finds the breadcrumb whose logical range contains
// target, decoding and appending new breadcrumbs as needed. It mirrors
// compressed_file_proto.rs's lookup_frame_index, but binary-searches
// the breadcrumbs on every call: there is no fast path that checks the
// frames around the last one used.
func (c *Compressed) lookupFrame(target int64) (Breadcrumb, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		i := sort.Search(len(c.breadcrumbs), func(i int) bool {
			b := c.breadcrumbs[i]
			return b.isFrontier() || b.Logical+b.Len > target
		})
		if i < len(c.breadcrumbs) && c.breadcrumbs[i].Logical <= target {
			b := c.breadcrumbs[i]
			if !b.isFrontier() {
				return b, nil
			}
			// target falls in the frontier: try decoding that frame to
			// backfill its length. A closed source's frontier
			// is necessarily scannable right now; an open source's may
			// not be yet, in which case scanNextFrameLocked below
			// returns io.EOF and the caller falls back to what's known.
		}
		if err := c.scanNextFrameLocked(); err != nil {
			if i > 0 {
				return c.breadcrumbs[i-1], nil
			}
			return Breadcrumb{}, err
		}
	}
}

// scanNextFrameLocked decodes the current frontier frame (header and
// payload), backfills its now-known length, and appends a new frontier
// breadcrumb for the frame after it unless the container ends there.
// Caller holds c.mu.
func (c *Compressed) scanNextFrameLocked() error {
	if len(c.breadcrumbs) == 0 {
		return io.EOF
	}
	frontier := &c.breadcrumbs[len(c.breadcrumbs)-1]
	if !frontier.isFrontier() {
		return io.EOF
	}

	physical := frontier.Physical
	hdr := make([]byte, frameHeaderLen)
	n, err := c.r.ReadAt(hdr, physical)
	if n < frameHeaderLen {
		if err == io.EOF || n == 0 {
			return io.EOF
		}
		return &IOError{Offset: physical, Err: err}
	}
	if hdr[0] != frameMagic[0] || hdr[1] != frameMagic[1] || hdr[2] != frameMagic[2] || hdr[3] != frameMagic[3] {
		return &FormatError{Err: fmt.Errorf("bad frame magic at physical offset %d", physical)}
	}
	uncompLen := int64(binary.BigEndian.Uint64(hdr[4:12]))
	compLen := int64(binary.BigEndian.Uint64(hdr[12:20]))

	decoded, err := c.decodeFrame(physical+frameHeaderLen, compLen, uncompLen)
	if err != nil {
		return err
	}

	frontier.Len = int64(len(decoded))
	frontier.compLen = compLen
	nextPhysical := physical + frameHeaderLen + compLen
	if nextPhysical < c.physicalLen {
		c.breadcrumbs = append(c.breadcrumbs, Breadcrumb{
			Physical: nextPhysical,
			Logical:  frontier.Logical + frontier.Len,
			Len:      0,
		})
	}
	return nil
}

// decodeFrame inflates the flate payload at [physStart,
// physStart+compLen), deduping concurrent requests for the same frame
// via singleflight — grounded on EDRmount's fusefs/rawfs.go
// package-level singleflight.Group used to dedupe concurrent chunk
// downloads — and records the decoded size in decodeCache keyed by its
// physical offset. The decoded bytes are not kept after it returns.
func (c *Compressed) decodeFrame(physStart, compLen, uncompLen int64) ([]byte, error) {
	key := fmt.Sprintf("%d", physStart)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		raw := make([]byte, compLen)
		if _, err := c.r.ReadAt(raw, physStart); err != nil && err != io.EOF {
			return nil, &IOError{Offset: physStart, Err: err}
		}
		fr := flate.NewReader(&byteReader{b: raw})
		defer fr.Close()
		out := make([]byte, 0, uncompLen)
		buf := make([]byte, 32*1024)
		for {
			n, rerr := fr.Read(buf)
			out = append(out, buf[:n]...)
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return nil, &FormatError{Err: rerr}
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	decoded := v.([]byte)
	c.decodeCache.Touch(physStart, int64(len(decoded)))
	return decoded, nil
}

// ReadAt decodes and returns the bytes at logical offset off, decoding
// whichever frame(s) cover [off, off+len(buf)) in order.
func (c *Compressed) ReadAt(off int64, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		b, err := c.lookupFrame(off + int64(total))
		if err != nil {
			if err == io.EOF {
				if total > 0 {
					return total, nil
				}
				return 0, fmt.Errorf("compressed %s at %d: %w", c.name, off, ErrClosedSource)
			}
			return total, err
		}
		frameOff := off + int64(total) - b.Logical
		if frameOff < 0 {
			break
		}
		n, err := c.readFrameRange(b, frameOff, buf[total:])
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			break
		}
	}
	return total, nil
}

// readFrameRange serves up to len(buf) bytes starting frameOff bytes
// into breadcrumb b's decompressed payload. If the ring already holds
// b's frame and has decoded far enough, it serves straight from the
// ring; otherwise it decodes forward block by block only as far as
// needed to cover the request (scanning the frame's breadcrumb has
// already inflated the whole frame once, separately). Repeated reads that
// stay within the same frame reuse the ring instead of re-decoding
// from the frame's start each time.
func (c *Compressed) readFrameRange(b Breadcrumb, frameOff int64, buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !b.isFrontier() && frameOff >= b.Len {
		return 0, nil
	}
	want := frameOff + int64(len(buf))
	if !b.isFrontier() && want > b.Len {
		want = b.Len
	}
	if err := c.fillRingLocked(b.Physical+frameHeaderLen, b.compLen, b.Logical, want); err != nil {
		return 0, err
	}
	c.decodeCache.Touch(b.Physical+frameHeaderLen, c.ring.Cap())

	avail := c.ring.Cap() - frameOff
	if avail <= 0 {
		return 0, nil
	}
	n := int64(len(buf))
	if n > avail {
		n = avail
	}
	c.ring.Seek(frameOff, io.SeekStart)
	read, _ := c.ring.Read(buf[:n])
	return read, nil
}

// fillRingLocked decodes the frame whose compressed payload starts at
// physStart forward until the ring holds at least wantLen bytes of it
// (or the frame is exhausted), reusing the in-progress flate reader
// across calls instead of restarting from the frame's first byte each
// time. Switching to a different frame discards whatever the ring held
// for the previous one. Caller holds c.mu.
func (c *Compressed) fillRingLocked(physStart, compLen, logicalStart, wantLen int64) error {
	if c.ringPhys != physStart {
		raw := make([]byte, compLen)
		if _, err := c.r.ReadAt(raw, physStart); err != nil && err != io.EOF {
			return &IOError{Offset: physStart, Err: err}
		}
		if c.ringDecoder != nil {
			c.ringDecoder.Close()
		}
		c.ringDecoder = flate.NewReader(&byteReader{b: raw})
		c.ring.Reset(logicalStart)
		c.ringPhys = physStart
		c.ringBase = logicalStart
	}

	block := make([]byte, 32*1024)
	for c.ring.Cap() < wantLen && c.ringDecoder != nil {
		n, err := c.ringDecoder.Read(block)
		if n > 0 {
			c.ring.Write(block[:n])
		}
		if err == io.EOF {
			c.ringDecoder.Close()
			c.ringDecoder = nil
			break
		}
		if err != nil {
			return &FormatError{Err: err}
		}
	}
	return nil
}

// byteReader adapts a []byte to io.Reader for flate.NewReader.
type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}
