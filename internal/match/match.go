// Package match implements the glob-style path predicate used by the
// reindex(Match) and remove(Match) query operations.
package match

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Match is a path predicate: either an exact path, a glob pattern, or (when
// empty) a wildcard matching everything.
type Match struct {
	pattern string
}

// New builds a Match from a literal path or glob pattern.
func New(pattern string) Match {
	return Match{pattern: pattern}
}

// Empty is the always-matches predicate, used where the spec calls for
// "match.isEmpty()" meaning every file qualifies.
var Empty = Match{}

// IsEmpty reports whether m matches everything.
func (m Match) IsEmpty() bool {
	return m.pattern == ""
}

// Pattern returns the underlying pattern string.
func (m Match) Pattern() string {
	return m.pattern
}

// Match reports whether path satisfies the predicate: an exact match, a
// doublestar glob match, or (for Empty) unconditionally true.
func (m Match) Match(path string) bool {
	if m.IsEmpty() {
		return true
	}
	if m.pattern == path {
		return true
	}
	if ok, _ := doublestar.Match(m.pattern, path); ok {
		return true
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		if ok, _ := doublestar.Match(m.pattern, abs); ok {
			return true
		}
	}
	return false
}
