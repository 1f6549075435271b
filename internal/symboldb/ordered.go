package symboldb

import (
	"sort"
	"strings"

	"github.com/rtagsd/rtagsd/internal/location"
)

// locIndex is the ordered usrs: Location -> CursorInfo map from spec §3. It
// is backed by a sorted slice rather than a library B-tree: no ordered-map
// package exists anywhere in the example pack, and sort.Search over a slice
// is the idiomatic stdlib way to get lower_bound semantics without one.
type locIndex struct {
	entries []locEntry
}

type locEntry struct {
	loc location.Location
	ci  CursorInfo
}

func newLocIndex() *locIndex {
	return &locIndex{}
}

func (idx *locIndex) search(loc location.Location) int {
	return sort.Search(len(idx.entries), func(i int) bool {
		return !idx.entries[i].loc.Less(loc)
	})
}

// Set inserts or overwrites the CursorInfo at loc.
func (idx *locIndex) Set(loc location.Location, ci CursorInfo) {
	i := idx.search(loc)
	if i < len(idx.entries) && idx.entries[i].loc == loc {
		idx.entries[i].ci = ci
		return
	}
	idx.entries = append(idx.entries, locEntry{})
	copy(idx.entries[i+1:], idx.entries[i:])
	idx.entries[i] = locEntry{loc: loc, ci: ci}
}

// Get returns the CursorInfo at loc, if any.
func (idx *locIndex) Get(loc location.Location) (CursorInfo, bool) {
	i := idx.search(loc)
	if i < len(idx.entries) && idx.entries[i].loc == loc {
		return idx.entries[i].ci, true
	}
	return CursorInfo{}, false
}

// Delete removes the entry at loc, if present.
func (idx *locIndex) Delete(loc location.Location) bool {
	i := idx.search(loc)
	if i < len(idx.entries) && idx.entries[i].loc == loc {
		idx.entries = append(idx.entries[:i], idx.entries[i+1:]...)
		return true
	}
	return false
}

// LowerBound returns the index of the first entry with key >= loc.
func (idx *locIndex) LowerBound(loc location.Location) int {
	return idx.search(loc)
}

// At returns the entry at slice index i.
func (idx *locIndex) At(i int) (location.Location, CursorInfo) {
	return idx.entries[i].loc, idx.entries[i].ci
}

// Len is the number of entries.
func (idx *locIndex) Len() int {
	return len(idx.entries)
}

// FileRange returns [lo, hi) bounding all entries belonging to file, relying
// on Location's (file, line, column) ordering keeping them contiguous.
func (idx *locIndex) FileRange(file location.FileID) (lo, hi int) {
	lo = sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].loc.File >= file
	})
	hi = sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].loc.File > file
	})
	return lo, hi
}

// DeleteFile removes every entry belonging to file and returns the removed
// entries, used by the dirty operation (§4.F) to know which USR/kind each
// erased Location belonged to.
func (idx *locIndex) DeleteFile(file location.FileID) []locEntry {
	lo, hi := idx.FileRange(file)
	if lo == hi {
		return nil
	}
	removed := make([]locEntry, hi-lo)
	copy(removed, idx.entries[lo:hi])
	idx.entries = append(idx.entries[:lo], idx.entries[hi:]...)
	return removed
}

// nameIndex is the ordered names: String -> Set<USR> map from spec §3,
// supporting prefix scans for listSymbols (§4.G).
type nameIndex struct {
	keys   []string
	values []map[uint32]struct{}
}

func newNameIndex() *nameIndex {
	return &nameIndex{}
}

func (idx *nameIndex) search(name string) int {
	return sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i] >= name })
}

// Union adds ids to the set stored under name, creating it if absent.
func (idx *nameIndex) Union(name string, ids map[uint32]struct{}) {
	i := idx.search(name)
	if i < len(idx.keys) && idx.keys[i] == name {
		for id := range ids {
			idx.values[i][id] = struct{}{}
		}
		return
	}
	idx.keys = append(idx.keys, "")
	idx.values = append(idx.values, nil)
	copy(idx.keys[i+1:], idx.keys[i:])
	copy(idx.values[i+1:], idx.values[i:])
	cp := make(map[uint32]struct{}, len(ids))
	for id := range ids {
		cp[id] = struct{}{}
	}
	idx.keys[i] = name
	idx.values[i] = cp
}

// Add inserts a single id under name.
func (idx *nameIndex) Add(name string, id uint32) {
	idx.Union(name, map[uint32]struct{}{id: {}})
}

// Get returns the set of ids stored for an exact name.
func (idx *nameIndex) Get(name string) (map[uint32]struct{}, bool) {
	i := idx.search(name)
	if i < len(idx.keys) && idx.keys[i] == name {
		return idx.values[i], true
	}
	return nil, false
}

// RangePrefix calls fn for every (name, ids) pair whose name has the given
// prefix, in ascending order, stopping early if fn returns false.
func (idx *nameIndex) RangePrefix(prefix string, fn func(name string, ids map[uint32]struct{}) bool) {
	i := idx.search(prefix)
	for ; i < len(idx.keys); i++ {
		if !strings.HasPrefix(idx.keys[i], prefix) {
			return
		}
		if !fn(idx.keys[i], idx.values[i]) {
			return
		}
	}
}
