package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// queueSize bounds how many unread lines the background reader may get
// ahead of the consumer by, providing backpressure against an
// unbounded pipe. Mirrors cached_stream_reader.rs's QUEUE_SIZE.
const queueSize = 100

// CachedStream is a Source backed by a live, non-seekable io.Reader
// (typically stdin or a pipe). A background goroutine drains it line
// by line into an append-only in-memory buffer; readers see only the
// buffer, never the underlying reader directly, so ReadAt/Chunk behave
// exactly as they would for a file that happens to grow one line at a
// time.
//
// Grounded on indexed_file's files/cached_stream_reader.rs, adapted
// from a raw thread + mpsc::sync_channel to an errgroup-supervised
// goroutine and a buffered Go channel, matching EDRmount's preference
// for errgroup to own background-goroutine lifecycle (internal/nntp,
// internal/streamer both launch long-running goroutines from an
// errgroup-style supervisor).
type CachedStream struct {
	id   uuid.UUID
	name string
	log  *log.Logger

	mu     sync.Mutex
	buf    []byte
	closed bool
	err    error
	cond   *sync.Cond

	lines chan []byte
	group *errgroup.Group
}

// NewCachedStream starts draining r in the background and returns
// immediately. Call Wait after the caller is done to observe any
// terminal read error.
func NewCachedStream(ctx context.Context, name string, r io.Reader) *CachedStream {
	cs := &CachedStream{
		id:    uuid.New(),
		name:  name,
		log:   log.With("source", name),
		lines: make(chan []byte, queueSize),
	}
	cs.cond = sync.NewCond(&cs.mu)

	g, ctx := errgroup.WithContext(ctx)
	cs.group = g
	g.Go(func() error { return cs.pump(ctx, r) })
	g.Go(func() error { return cs.drain() })
	return cs
}

// pump reads lines from r and feeds them to cs.lines, blocking when
// the channel is full (queueSize lines ahead of the drainer) to apply
// backpressure to whatever is producing r.
func (cs *CachedStream) pump(ctx context.Context, r io.Reader) error {
	defer close(cs.lines)
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			select {
			case cs.lines <- line:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("cachedstream %s: read: %w", cs.name, err)
		}
	}
}

// drain moves lines from cs.lines into the append-only buffer under
// cs.mu, waking any ReadAt/WaitForMore callers blocked on cs.cond.
func (cs *CachedStream) drain() error {
	for line := range cs.lines {
		cs.mu.Lock()
		cs.buf = append(cs.buf, line...)
		cs.cond.Broadcast()
		cs.mu.Unlock()
	}
	cs.mu.Lock()
	cs.closed = true
	cs.cond.Broadcast()
	cs.mu.Unlock()
	return nil
}

// Wait blocks until the background pump/drain goroutines finish,
// returning the first error either reported (typically nil, since EOF
// is the expected termination).
func (cs *CachedStream) Wait() error {
	err := cs.group.Wait()
	cs.mu.Lock()
	if cs.err == nil {
		cs.err = err
	}
	cs.mu.Unlock()
	return err
}

func (cs *CachedStream) ID() uuid.UUID { return cs.id }
func (cs *CachedStream) Name() string  { return cs.name }

func (cs *CachedStream) Len() int64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return int64(len(cs.buf))
}

func (cs *CachedStream) IsOpen() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return !cs.closed
}

func (cs *CachedStream) ReadAt(off int64, buf []byte) (int, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if off >= int64(len(cs.buf)) {
		if cs.closed {
			return 0, fmt.Errorf("cachedstream %s at %d: %w", cs.name, off, ErrClosedSource)
		}
		return 0, nil
	}
	n := copy(buf, cs.buf[off:])
	return n, nil
}

func (cs *CachedStream) WaitForMore(deadline time.Time) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	before := len(cs.buf)
	for len(cs.buf) == before && !cs.closed {
		if deadline.IsZero() {
			cs.cond.Wait()
			continue
		}
		if !waitUntil(cs.cond, deadline) {
			return false
		}
	}
	return len(cs.buf) > before
}

func (cs *CachedStream) Chunk(target, chunkHint int64) (int64, int64) {
	return clampChunk(target, cs.Len(), chunkHint)
}

// waitUntil blocks on cond until it is signaled or deadline elapses,
// returning false in the latter case. sync.Cond has no native
// deadline support, so a helper goroutine broadcasts once the deadline
// passes to wake the waiter.
func waitUntil(cond *sync.Cond, deadline time.Time) bool {
	timer := time.AfterFunc(time.Until(deadline), cond.Broadcast)
	defer timer.Stop()
	cond.Wait()
	return time.Now().Before(deadline)
}
