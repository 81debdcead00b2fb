// Package search defines the predicate types a filter layer matches
// lines against: regular expressions, plain substrings, bookmarked
// offsets, and the trivial "everything passes" predicate.
package search

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind tags which predicate variant a Search holds.
type Kind int

const (
	// KindAll matches every line; used for a filter layer that exists
	// only to hold bookmarks or as a transparent pass-through.
	KindAll Kind = iota
	KindRegex
	KindLiteral
	KindBookmark
)

// Search is an immutable predicate descriptor, ported from
// index_filter.rs's SearchType. There is no corresponding example
// repo dependency for a third-party regex engine (see DESIGN.md), so
// KindRegex uses stdlib regexp.
type Search struct {
	kind    Kind
	re      *regexp.Regexp
	literal string
}

// All returns the pass-through predicate.
func All() Search { return Search{kind: KindAll} }

// Bookmark returns the predicate matching only explicitly bookmarked
// offsets, which a caller adds separately (see filter.IndexFilter.Mark).
func Bookmark() Search { return Search{kind: KindBookmark} }

// Literal returns a predicate matching lines containing substr exactly.
func Literal(substr string) Search { return Search{kind: KindLiteral, literal: substr} }

// Regex compiles pattern and returns a predicate matching lines it finds in.
func Regex(pattern string) (Search, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Search{}, fmt.Errorf("search: invalid regex %q: %w", pattern, err)
	}
	return Search{kind: KindRegex, re: re}, nil
}

// Kind reports which variant s is.
func (s Search) Kind() Kind { return s.kind }

// Match reports whether line satisfies the predicate. It always
// returns false for KindBookmark, since bookmark membership is
// per-offset state the predicate itself doesn't carry; callers check
// bookmark membership separately before falling back to Match.
func (s Search) Match(line string) bool {
	switch s.kind {
	case KindAll:
		return true
	case KindLiteral:
		return strings.Contains(line, s.literal)
	case KindRegex:
		return s.re.MatchString(line)
	default:
		return false
	}
}

// String returns a human-readable description, used in LogStack.Info().
func (s Search) String() string {
	switch s.kind {
	case KindAll:
		return "*"
	case KindLiteral:
		return s.literal
	case KindRegex:
		return s.re.String()
	case KindBookmark:
		return "<bookmarks>"
	default:
		return "<unknown>"
	}
}
