// Package location interns absolute file paths to small integer ids and
// provides a totally ordered (FileID, line, column) value for range scans.
package location

import (
	"path/filepath"
	"sort"
	"sync"
)

// FileID is a process-wide interned handle to an absolute, resolved path.
// The zero value is invalid; ids are assigned monotonically and never
// recycled.
type FileID uint32

// Invalid is the zero FileID, used as a miss sentinel.
const Invalid FileID = 0

// Registry interns absolute paths to FileIDs. It is safe for concurrent use
// and is constructed once per process and shared across projects, per the
// "process-wide singletons" design note: it has no ambient global state,
// callers hold the *Registry they were given.
type Registry struct {
	mu      sync.RWMutex
	byPath  map[string]FileID
	byID    []string // index 0 unused, so byID[id] is valid for id>=1
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byPath: make(map[string]FileID),
		byID:   []string{""},
	}
}

// Intern resolves path to an absolute, cleaned form and returns its FileID,
// assigning a new one if this is the first time the path has been seen.
func (r *Registry) Intern(path string) FileID {
	resolved := resolve(path)

	r.mu.RLock()
	if id, ok := r.byPath[resolved]; ok {
		r.mu.RUnlock()
		return id
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byPath[resolved]; ok {
		return id
	}
	id := FileID(len(r.byID))
	r.byID = append(r.byID, resolved)
	r.byPath[resolved] = id
	return id
}

// Lookup returns the FileID for path if it has already been interned,
// without creating a new entry.
func (r *Registry) Lookup(path string) (FileID, bool) {
	resolved := resolve(path)
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPath[resolved]
	return id, ok
}

// Paths returns every interned path in ascending FileID order (index i
// holds the path for FileID i+1), for internal/persist to save and later
// re-intern in the same order on restore, reproducing the same FileIDs.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.byID)-1)
	copy(out, r.byID[1:])
	return out
}

// Path returns the interned path for id, or "" if id is unknown.
func (r *Registry) Path(id FileID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) <= 0 || int(id) >= len(r.byID) {
		return ""
	}
	return r.byID[id]
}

func resolve(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(abs)
}

// Location is a totally ordered position within an interned file: primarily
// by FileID, then Line, then Column. All locations belonging to one file
// are contiguous and ascending, which is what makes range scans by FileID
// (used by dirty, §4.F) and lower_bound lookups (used by cursor, §4.G)
// correct.
type Location struct {
	File   FileID
	Line   uint32
	Column uint32
}

// Less reports whether l sorts before o.
func (l Location) Less(o Location) bool {
	if l.File != o.File {
		return l.File < o.File
	}
	if l.Line != o.Line {
		return l.Line < o.Line
	}
	return l.Column < o.Column
}

// Compare returns -1, 0, or 1 the way sort.Search/Slice comparators expect.
func Compare(a, b Location) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}

// IsNull reports whether l is the zero Location (no file).
func (l Location) IsNull() bool {
	return l.File == Invalid
}

// SortLocations sorts locs in ascending order in place.
func SortLocations(locs []Location) {
	sort.Slice(locs, func(i, j int) bool { return locs[i].Less(locs[j]) })
}
