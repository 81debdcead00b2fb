// Command grokview is a thin, non-interactive consumer of the indexed
// log substrate: it opens each INPUT (or stdin) as a byte source, lets
// a LogStack index it, and dumps lines to stdout in forward order, tail
// order, or reverse order. It does not implement a pager UI — that
// layer is a consumed interface intentionally left to internal/style,
// out of scope here — but it exercises every other package end to end.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"

	"github.com/gaby/grokview/internal/config"
	"github.com/gaby/grokview/internal/lineindex"
	"github.com/gaby/grokview/internal/logstack"
	"github.com/gaby/grokview/internal/merge"
	"github.com/gaby/grokview/internal/source"
	"github.com/gaby/grokview/internal/termsize"
	"github.com/gaby/grokview/internal/waypoint"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin *os.File, stdout, stderr io.Writer) int {
	cfg, err := config.Parse(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if cfg.ShowVersion {
		fmt.Fprintln(stdout, "grokview", config.Version)
		return 0
	}
	if cfg.ShowHelp {
		fmt.Fprint(stdout, config.UsageText())
		return 0
	}

	logger := log.With("cmd", "grokview")

	stacks, closers, err := openStacks(cfg, stdin, logger)
	defer closeAll(closers)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if err := dump(cfg, stacks, stdout); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

// openStacks builds one LogStack per resolved input, in command-line
// order. An empty Inputs list, or a single "-", means stdin.
func openStacks(cfg config.Config, stdin *os.File, logger *log.Logger) ([]*logstack.LogStack, []io.Closer, error) {
	names := cfg.Inputs
	if len(names) == 0 {
		names = []string{"-"}
	}

	var stacks []*logstack.LogStack
	var closers []io.Closer

	for _, name := range names {
		src, closer, err := openSource(name, stdin, logger)
		if err != nil {
			return nil, closers, fmt.Errorf("open %s: %w", name, err)
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		stacks = append(stacks, logstack.New(name, lineindex.New(src)))
	}
	return stacks, closers, nil
}

func openSource(name string, stdin *os.File, logger *log.Logger) (source.Source, io.Closer, error) {
	if name == "-" {
		if isatty.IsTerminal(stdin.Fd()) {
			logger.Debug("reading from interactive stdin; will block until EOF (Ctrl-D)")
		}
		cs := source.NewCachedStream(context.Background(), "stdin", stdin)
		return cs, waitCloser{cs}, nil
	}

	raw, err := os.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("source: open %s: %w", name, err)
	}
	st, err := raw.Stat()
	if err != nil {
		raw.Close()
		return nil, nil, fmt.Errorf("source: stat %s: %w", name, err)
	}

	if source.LooksCompressed(raw) {
		logger.Debug("detected frame-container magic, reading as compressed", "name", name)
		cs := source.OpenCompressed(name, raw, st.Size())
		// Same one-shot-dump reasoning as the plain-file case below: mark
		// it closed immediately so a reverse or tail dump doesn't wait on
		// growth this CLI will never observe.
		cs.Close()
		return cs, raw, nil
	}
	raw.Close()

	f, err := source.OpenFile(name)
	if err != nil {
		return nil, nil, err
	}
	// A plain file opened for a one-shot dump is read to its current
	// length and then marked closed immediately, so the tail waypoint
	// collapses fully instead of waiting indefinitely for growth that a
	// non-interactive dump will never observe.
	f.Close()
	return f, nil, nil
}

// waitCloser blocks on CachedStream.Wait so its background goroutines
// are reaped before main returns.
type waitCloser struct{ cs *source.CachedStream }

func (w waitCloser) Close() error { return w.cs.Wait() }

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}

// dump writes the resolved stacks to w according to cfg's --tail /
// --reverse flags, merging in file order when there's more than one
// input (see noTimestamp): one unified entry point instead of separate
// cat/tail/tac binaries. Lines are chopped to the output's column
// width when --chop-long-lines is set, rather than left for the
// terminal to wrap.
func dump(cfg config.Config, stacks []*logstack.LogStack, w io.Writer) error {
	width := outputWidth(w)
	switch {
	case cfg.Tail > 0:
		return dumpTail(stacks, cfg.Tail, w, cfg.ChopLongLines, width)
	case cfg.Reverse:
		return dumpReverse(stacks, w, cfg.ChopLongLines, width)
	default:
		return dumpForward(stacks, w, cfg.ChopLongLines, width)
	}
}

// outputWidth returns the column width to chop lines at, falling back
// to termsize.DefaultWidth when w isn't backed by a terminal (a pipe,
// a file, or, in tests, an in-memory buffer).
func outputWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return termsize.DefaultWidth
	}
	return termsize.Width(f)
}

// printLine writes text to w, chopping it to width columns first when
// chop is set.
func printLine(w io.Writer, text string, chop bool, width int) {
	if chop && width > 0 {
		if r := []rune(text); len(r) > width {
			text = string(r[:width])
		}
	}
	fmt.Fprintln(w, text)
}

func dumpForward(stacks []*logstack.LogStack, w io.Writer, chop bool, width int) error {
	if len(stacks) == 1 {
		return forEachLine(stacks[0], w, chop, width)
	}
	m := merge.New(stacks, noTimestamp)
	for {
		line, _, ok, err := m.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		printLine(w, line.Text, chop, width)
	}
}

func dumpReverse(stacks []*logstack.LogStack, w io.Writer, chop bool, width int) error {
	if len(stacks) == 1 {
		return forEachLineBack(stacks[0], w, chop, width)
	}
	m := merge.New(stacks, noTimestamp)
	for {
		line, _, ok, err := m.NextBack()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		printLine(w, line.Text, chop, width)
	}
}

// dumpTail collects up to n lines from the end of the (merged) input
// and prints them in forward order, mirroring tools/src/cat.rs's
// tail_cmd.
func dumpTail(stacks []*logstack.LogStack, n int, w io.Writer, chop bool, width int) error {
	var lines []string
	collect := func(text string) bool {
		lines = append(lines, text)
		return len(lines) < n
	}

	if len(stacks) == 1 {
		ls := stacks[0]
		for len(lines) < n {
			pos, err := ls.NextBack()
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
			line, err := ls.ReadLine(off)
			if err != nil {
				return err
			}
			if !collect(line.Text) {
				break
			}
		}
	} else {
		m := merge.New(stacks, noTimestamp)
		for len(lines) < n {
			line, _, ok, err := m.NextBack()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			if !collect(line.Text) {
				break
			}
		}
	}

	for i := len(lines) - 1; i >= 0; i-- {
		printLine(w, lines[i], chop, width)
	}
	return nil
}

func forEachLine(ls *logstack.LogStack, w io.Writer, chop bool, width int) error {
	for {
		pos, err := ls.Next()
		if err != nil {
			return err
		}
		if pos.Kind == waypoint.KindInvalid {
			return nil
		}
		off, ok := pos.Offset()
		if !ok {
			continue
		}
		line, err := ls.ReadLine(off)
		if err != nil {
			return err
		}
		printLine(w, line.Text, chop, width)
	}
}

func forEachLineBack(ls *logstack.LogStack, w io.Writer, chop bool, width int) error {
	for {
		pos, err := ls.NextBack()
		if err != nil {
			return err
		}
		if pos.Kind == waypoint.KindInvalid {
			return nil
		}
		off, ok := pos.Offset()
		if !ok {
			continue
		}
		line, err := ls.ReadLine(off)
		if err != nil {
			return err
		}
		printLine(w, line.Text, chop, width)
	}
}

// noTimestamp is the TimestampExtractor used for the CLI's multi-input
// merge: the dump command has no notion of a log line's timestamp
// format, so every line falls back to merge's file-order tie-break.
func noTimestamp(string) (time.Time, bool) { return time.Time{}, false }
