// Package source defines the byte-source contract shared by every
// input a log stack can read from — a plain file, a live piped
// stream, or a gzip/zstd-style compressed file — plus the plain-file
// implementation. The contract intentionally says nothing about
// lines: chunking and line-start discovery live in internal/lineindex.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// ErrClosedSource is returned (wrapped) by ReadAt and is not itself an
// error condition: it means the source has reached a known, final
// length and no more bytes will ever arrive.
var ErrClosedSource = errors.New("source closed")

// IOError wraps a transient read failure. Callers should retry later
// rather than treat the source as dead.
type IOError struct {
	Offset int64
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("source: io error at offset %d: %v", e.Offset, e.Err)
}
func (e *IOError) Unwrap() error { return e.Err }

// FormatError wraps a fatal decode failure (e.g. a corrupt compressed
// frame). Returning it leaves the source's state unchanged: the source
// is not closed or marked dead, and a later read of the same region
// fails the same way.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string { return fmt.Sprintf("source: format error: %v", e.Err) }
func (e *FormatError) Unwrap() error { return e.Err }

// Source is the minimal contract a byte source must satisfy. All
// implementations must be safe for concurrent ReadAt/Len/IsOpen calls
// from multiple goroutines. Chunk and WaitForMore may block briefly;
// they never block indefinitely once deadline has passed.
type Source interface {
	// ReadAt fills buf starting at off and returns the number of bytes
	// read. It behaves like io.ReaderAt except that returning fewer
	// bytes than len(buf) without an error is allowed when off+len(buf)
	// reaches past the currently-known length of a still-growing source.
	ReadAt(off int64, buf []byte) (int, error)

	// Len returns the currently known length of the source. For a
	// growing source this is a lower bound that increases over time.
	Len() int64

	// IsOpen reports whether more bytes may still arrive.
	IsOpen() bool

	// WaitForMore blocks until either more bytes are available, the
	// source closes, or deadline elapses, returning true only in the
	// first case. A zero deadline means block until one of the first two
	// happens.
	WaitForMore(deadline time.Time) bool

	// Chunk returns a window [lo, hi) of chunkHint bytes (never fewer
	// than MinChunk) centered on target, clamped to the source's current
	// bounds.
	// Callers use this to decide how much to read before indexing it.
	Chunk(target int64, chunkHint int64) (lo, hi int64)

	// ID returns a stable identifier for this source, used for tracing
	// and for tie-breaking merged-view ordering.
	ID() uuid.UUID

	// Name returns a human-readable label (typically a filename or "stdin").
	Name() string
}

// MinChunk and DefaultChunk bound the window Chunk should return: never
// smaller than MinChunk (to keep gap-resolution overhead amortized),
// and DefaultChunk unless the caller's source is smaller.
const (
	MinChunk     = 64 * 1024
	DefaultChunk = 1024 * 1024
)

// clampChunk centers a chunkHint-sized window on target, clamped to
// [0, length), and never smaller than MinChunk unless length itself is
// smaller.
func clampChunk(target, length, chunkHint int64) (int64, int64) {
	if chunkHint < MinChunk {
		chunkHint = MinChunk
	}
	lo := target - chunkHint/2
	if lo < 0 {
		lo = 0
	}
	hi := lo + chunkHint
	if length >= 0 && hi > length {
		hi = length
		lo = hi - chunkHint
		if lo < 0 {
			lo = 0
		}
	}
	return lo, hi
}

// File is a Source backed by a plain, possibly still-growing, file on
// disk. Growth is detected by polling Stat, mirroring the Rust
// original's text_log_file.rs plus a tail(1)-style poll loop for
// WaitForMore (there is no portable blocking "file grew" notification
// across platforms, so EDRmount's style of periodic goroutine polling
// is used instead of inotify).
type File struct {
	f        *os.File
	id       uuid.UUID
	name     string
	len      int64
	closed   bool
	log      *log.Logger
	pollTick time.Duration
}

// OpenFile opens path for reading as a File source.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source: stat %s: %w", path, err)
	}
	return &File{
		f:        f,
		id:       uuid.New(),
		name:     path,
		len:      st.Size(),
		log:      log.With("source", path),
		pollTick: 200 * time.Millisecond,
	}, nil
}

func (s *File) ID() uuid.UUID { return s.id }
func (s *File) Name() string  { return s.name }

func (s *File) ReadAt(off int64, buf []byte) (int, error) {
	n, err := s.f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return n, &IOError{Offset: off, Err: err}
	}
	return n, nil
}

func (s *File) Len() int64 {
	st, err := s.f.Stat()
	if err != nil {
		s.log.Warn("stat failed", "err", err)
		return s.len
	}
	if st.Size() > s.len {
		s.len = st.Size()
	}
	return s.len
}

// IsOpen always reports true for a plain file: there is no reliable,
// portable "this file will never be appended to again" signal short of
// the caller explicitly marking it closed via Close.
func (s *File) IsOpen() bool { return !s.closed }

// Close marks the file as closed, after which IsOpen returns false and
// WaitForMore returns immediately. It does not release the underlying
// os.File handle, since ReadAt may still be called against the final
// known length.
func (s *File) Close() { s.closed = true }

func (s *File) WaitForMore(deadline time.Time) bool {
	if s.closed {
		return false
	}
	before := s.Len()
	timer := time.NewTimer(s.pollTick)
	defer timer.Stop()
	for {
		<-timer.C
		after := s.Len()
		if after > before {
			return true
		}
		if s.closed {
			return false
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false
		}
		timer.Reset(s.pollTick)
	}
}

func (s *File) Chunk(target, chunkHint int64) (int64, int64) {
	return clampChunk(target, s.Len(), chunkHint)
}
