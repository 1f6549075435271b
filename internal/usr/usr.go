// Package usr interns clang Unified Symbol Resolution strings into small
// process-wide integer ids.
package usr

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ID is an interned USR id. The zero value is invalid.
type ID uint32

// Invalid is the zero ID.
const Invalid ID = 0

// Interner is a thread-safe, monotonic USR string <-> ID map. Ids are never
// recycled, so a previously returned ID stays valid and Interner.String
// always maps it to the same string.
type Interner struct {
	mu     sync.RWMutex
	byHash map[uint64][]entry
	byID   []string
}

type entry struct {
	usr string
	id  ID
}

// New creates an empty interner.
func New() *Interner {
	return &Interner{
		byHash: make(map[uint64][]entry),
		byID:   []string{""},
	}
}

// Insert returns the existing id for usr if present, otherwise assigns and
// returns a new one.
func (in *Interner) Insert(s string) ID {
	h := xxhash.Sum64String(s)

	in.mu.RLock()
	if id, ok := in.lookupLocked(h, s); ok {
		in.mu.RUnlock()
		return id
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.lookupLocked(h, s); ok {
		return id
	}
	id := ID(len(in.byID))
	in.byID = append(in.byID, s)
	in.byHash[h] = append(in.byHash[h], entry{usr: s, id: id})
	return id
}

func (in *Interner) lookupLocked(h uint64, s string) (ID, bool) {
	for _, e := range in.byHash[h] {
		if e.usr == s {
			return e.id, true
		}
	}
	return Invalid, false
}

// Lookup returns the id for s without inserting it.
func (in *Interner) Lookup(s string) (ID, bool) {
	h := xxhash.Sum64String(s)
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.lookupLocked(h, s)
}

// String returns the USR string for id, or "" if unknown.
func (in *Interner) String(id ID) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(id) <= 0 || int(id) >= len(in.byID) {
		return ""
	}
	return in.byID[id]
}

// Len returns the number of distinct USRs interned so far.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.byID) - 1
}

// Strings returns every interned USR string in ascending ID order (index i
// holds the string for ID i+1), for internal/persist to save and later
// re-intern in the same order on restore.
func (in *Interner) Strings() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]string, len(in.byID)-1)
	copy(out, in.byID[1:])
	return out
}
