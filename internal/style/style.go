// Package style defines the interfaces a presentation layer (a pager
// UI, out of scope for this repository) would implement to consume
// lines from a LogStack or Merged view. No implementation lives here
// deliberately: this package exists so the domain layer has a stable,
// documented seam to render against.
package style

// UserCommand enumerates the navigation/search actions a presentation
// layer translates user input into.
type UserCommand int

const (
	CommandNone UserCommand = iota
	CommandLineDown
	CommandLineUp
	CommandPageDown
	CommandPageUp
	CommandGoToStart
	CommandGoToEnd
	CommandSearchForward
	CommandSearchBackward
	CommandFilterIn
	CommandFilterOut
	CommandPopFilter
	CommandToggleBookmark
	CommandQuit
)

// StyledSpan is one run of text sharing a single visual treatment
// (e.g. a search-match highlight), as a presentation layer would
// derive from a raw Line plus the active search predicate.
type StyledSpan struct {
	Text      string
	Highlight bool
}

// StyledLine is a fully laid-out line ready for a terminal renderer:
// its spans, the original byte offset (for status-line reporting), and
// whether it's chopped (truncated to terminal width, --chop-long-lines)
// versus wrapped.
type StyledLine struct {
	Spans   []StyledSpan
	Offset  int64
	Chopped bool
}

// Styler turns a decoded line into a StyledLine, given the terminal
// width available to render it in. A presentation layer supplies its
// own implementation (color scheme, wrap vs. chop); this package only
// fixes the seam.
type Styler interface {
	Style(text string, width int, chopLongLines bool) StyledLine
}
