// Package symboldb implements the project database: the location->cursor,
// USR->location-set, name->USR-set, virtual-override, include/dependency,
// and fix-it maps of spec §3, plus the merge and dirty algorithms of §4.C
// and §4.F. Callers (internal/unit, internal/project) are responsible for
// holding the project mutex around every call; Database itself performs no
// locking, matching the design note that a single external mutex suffices.
package symboldb

import (
	"github.com/rtagsd/rtagsd/internal/location"
	"github.com/rtagsd/rtagsd/internal/sourceinfo"
	"github.com/rtagsd/rtagsd/internal/usr"
)

// Database is the authoritative per-project state from spec §3.
type Database struct {
	usrs  *locIndex
	names *nameIndex

	decls map[usr.ID]LocSet
	defs  map[usr.ID]LocSet
	refs  map[usr.ID]LocSet

	virtuals map[usr.ID]USRSet

	incs           map[location.Location]location.FileID
	depends        map[location.FileID]FileSet
	reverseDepends map[location.FileID]FileSet

	fixIts map[string][]FixIt

	sources       map[location.FileID]sourceinfo.Information
	visitedFiles  FileSet
}

// New creates an empty Database.
func New() *Database {
	return &Database{
		usrs:           newLocIndex(),
		names:          newNameIndex(),
		decls:          make(map[usr.ID]LocSet),
		defs:           make(map[usr.ID]LocSet),
		refs:           make(map[usr.ID]LocSet),
		virtuals:       make(map[usr.ID]USRSet),
		incs:           make(map[location.Location]location.FileID),
		depends:        make(map[location.FileID]FileSet),
		reverseDepends: make(map[location.FileID]FileSet),
		fixIts:         make(map[string][]FixIt),
		sources:        make(map[location.FileID]sourceinfo.Information),
		visitedFiles:   make(FileSet),
	}
}

// Cursor returns the CursorInfo stored exactly at loc.
func (db *Database) Cursor(loc location.Location) (CursorInfo, bool) {
	return db.usrs.Get(loc)
}

// LowerBound returns the index of the first usrs entry with key >= loc, and
// the total number of entries, for callers implementing the cursor() lookup
// algorithm in §4.G.
func (db *Database) LowerBound(loc location.Location) (idx, n int) {
	return db.usrs.LowerBound(loc), db.usrs.Len()
}

// EntryAt returns the usrs entry at slice index i (0 <= i < n from
// LowerBound).
func (db *Database) EntryAt(i int) (location.Location, CursorInfo) {
	return db.usrs.At(i)
}

// Decls returns the decl locations for u.
func (db *Database) Decls(u usr.ID) LocSet { return db.decls[u] }

// Defs returns the definition locations for u.
func (db *Database) Defs(u usr.ID) LocSet { return db.defs[u] }

// Refs returns the reference locations for u.
func (db *Database) Refs(u usr.ID) LocSet { return db.refs[u] }

// Virtuals returns the override set for u (symmetric, §3 invariant 3).
func (db *Database) Virtuals(u usr.ID) USRSet { return db.virtuals[u] }

// NamesWithPrefix streams every (name, usr-set) pair whose name starts with
// prefix, in ascending order, implementing listSymbols (§4.G).
func (db *Database) NamesWithPrefix(prefix string, fn func(name string, ids USRSet) bool) {
	db.names.RangePrefix(prefix, func(name string, ids map[uint32]struct{}) bool {
		out := make(USRSet, len(ids))
		for id := range ids {
			out[usr.ID(id)] = struct{}{}
		}
		return fn(name, out)
	})
}

// USRsForName returns the USR set stored for an exact name, implementing
// findCursors (§4.G).
func (db *Database) USRsForName(name string) USRSet {
	ids, ok := db.names.Get(name)
	if !ok {
		return nil
	}
	out := make(USRSet, len(ids))
	for id := range ids {
		out[usr.ID(id)] = struct{}{}
	}
	return out
}

// Depends returns the forward dependency set of t (headers t includes).
func (db *Database) Depends(t location.FileID) FileSet { return db.depends[t] }

// Dependencies returns a snapshot of the whole forward dependency map, for
// internal/persist to save; reverseDepends is rebuilt from it on restore.
func (db *Database) Dependencies() map[location.FileID]FileSet {
	out := make(map[location.FileID]FileSet, len(db.depends))
	for t, hs := range db.depends {
		cp := FileSet{}
		cp.union(hs)
		out[t] = cp
	}
	return out
}

// Symbols streams every stored (Location, CursorInfo) pair in ascending
// order, for internal/persist to save. decls/defs/refs are rederived from
// each CursorInfo's Kind on restore rather than saved as their own section;
// virtuals and fixIts are not saved at all (spec §6's persistent layout
// never names them, matching the original's mSymbols/mSymbolNames/mUsr/
// mDependencies/mSources/mVisitedFiles field list).
func (db *Database) Symbols(fn func(location.Location, CursorInfo) bool) {
	n := db.usrs.Len()
	for i := 0; i < n; i++ {
		loc, ci := db.usrs.At(i)
		if !fn(loc, ci) {
			return
		}
	}
}

// RestoreSymbol inserts one saved (Location, CursorInfo) pair directly into
// usrs and the decls/defs/refs set its Kind belongs to, used by
// internal/persist.Restore once the USR interner and file registry have
// already been replayed in their saved order.
func (db *Database) RestoreSymbol(loc location.Location, ci CursorInfo) {
	db.usrs.Set(loc, ci)
	switch {
	case ci.Kind == KindReference:
		if db.refs[ci.USR] == nil {
			db.refs[ci.USR] = LocSet{}
		}
		db.refs[ci.USR].add(loc)
	case ci.Kind.IsDefKind():
		if db.defs[ci.USR] == nil {
			db.defs[ci.USR] = LocSet{}
		}
		db.defs[ci.USR].add(loc)
	case ci.Kind != KindInvalid:
		if db.decls[ci.USR] == nil {
			db.decls[ci.USR] = LocSet{}
		}
		db.decls[ci.USR].add(loc)
	}
}

// RestoreName unions ids into names[name] directly, used by
// internal/persist.Restore.
func (db *Database) RestoreName(name string, ids USRSet) {
	raw := make(map[uint32]struct{}, len(ids))
	for id := range ids {
		raw[uint32(id)] = struct{}{}
	}
	db.names.Union(name, raw)
}

// RestoreDependencies installs a forward dependency map directly and
// rebuilds reverseDepends from it, used by internal/persist.Restore.
func (db *Database) RestoreDependencies(depends map[location.FileID]FileSet) {
	db.depends = make(map[location.FileID]FileSet, len(depends))
	db.reverseDepends = make(map[location.FileID]FileSet)
	for t, hs := range depends {
		cp := FileSet{}
		cp.union(hs)
		db.depends[t] = cp
		for h := range hs {
			if db.reverseDepends[h] == nil {
				db.reverseDepends[h] = FileSet{}
			}
			db.reverseDepends[h].add(t)
		}
	}
}

// ReverseDepends returns the reverse dependency set of h (TUs that include h).
func (db *Database) ReverseDepends(h location.FileID) FileSet { return db.reverseDepends[h] }

// FixIts returns the stored fix-its for path, oldest first.
func (db *Database) FixIts(path string) []FixIt { return db.fixIts[path] }

// SetSource records the SourceInformation driving fileID.
func (db *Database) SetSource(fileID location.FileID, info sourceinfo.Information) {
	db.sources[fileID] = info
}

// Source returns the SourceInformation for fileID, if any.
func (db *Database) Source(fileID location.FileID) (sourceinfo.Information, bool) {
	info, ok := db.sources[fileID]
	return info, ok
}

// RemoveSource deletes the source entry for fileID, per remove() (§6).
func (db *Database) RemoveSource(fileID location.FileID) {
	delete(db.sources, fileID)
}

// Sources returns a snapshot of every tracked source entry.
func (db *Database) Sources() map[location.FileID]sourceinfo.Information {
	out := make(map[location.FileID]sourceinfo.Information, len(db.sources))
	for k, v := range db.sources {
		out[k] = v
	}
	return out
}

// IsVisited reports whether fileID is in visitedFiles.
func (db *Database) IsVisited(fileID location.FileID) bool {
	_, ok := db.visitedFiles[fileID]
	return ok
}

// MarkVisited adds fileID to visitedFiles.
func (db *Database) MarkVisited(fileID location.FileID) {
	db.visitedFiles.add(fileID)
}

// UnmarkVisited removes fileID from visitedFiles, used by the dirty engine
// before a reparse (§4.H).
func (db *Database) UnmarkVisited(fileID location.FileID) {
	delete(db.visitedFiles, fileID)
}

// VisitedFiles returns a snapshot of the visited set.
func (db *Database) VisitedFiles() FileSet {
	out := make(FileSet, len(db.visitedFiles))
	for f := range db.visitedFiles {
		out.add(f)
	}
	return out
}

// ReplaceVisitedFiles overwrites the visited set wholesale, used by restore
// (§6 Persistent state layout).
func (db *Database) ReplaceVisitedFiles(files FileSet) {
	db.visitedFiles = make(FileSet, len(files))
	db.visitedFiles.union(files)
}
