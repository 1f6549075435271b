package symboldb

import (
	"github.com/rtagsd/rtagsd/internal/location"
	"github.com/rtagsd/rtagsd/internal/usr"
)

// MergeMode is the merge mode bitset from spec §4.F/§4.E: Dirty runs the
// dirty operation before unioning (first build of a unit), Add augments
// without dirtying (subsequent builds of the same unit), and
// DontDirtyDeps preserves previously known include edges when a reparse
// produced no include graph at all.
type MergeMode int

const (
	MergeAdd           MergeMode = 0
	MergeDirty         MergeMode = 1 << 0
	MergeDontDirtyDeps MergeMode = 1 << 1
)

// Has reports whether flag is set in m.
func (m MergeMode) Has(flag MergeMode) bool { return m&flag != 0 }

// Union merges a job's Staging buffer into the database, per §4.F step 3.
// Callers must already hold the project mutex and must call Dirty
// separately (if mode.Has(MergeDirty)) before calling Union, matching the
// merge(staging, mode) algorithm order in spec §4.F.
func (db *Database) Union(s *Staging) {
	for loc, ci := range s.Usrs {
		if existing, ok := db.usrs.Get(loc); ok {
			ci, _ = unite(existing, ci)
		}
		db.usrs.Set(loc, ci)
	}

	for path, fixits := range s.FixIts {
		db.fixIts[path] = append(db.fixIts[path], fixits...)
	}

	for name, ids := range s.Names {
		raw := make(map[uint32]struct{}, len(ids))
		for id := range ids {
			raw[uint32(id)] = struct{}{}
		}
		db.names.Union(name, raw)
	}

	unionLocSet(db.decls, s.Decls)
	unionLocSet(db.defs, s.Defs)
	unionLocSet(db.refs, s.Refs)

	for t, hs := range s.Depends {
		if db.depends[t] == nil {
			db.depends[t] = FileSet{}
		}
		db.depends[t].union(hs)
	}
	for h, ts := range s.ReverseDepends {
		if db.reverseDepends[h] == nil {
			db.reverseDepends[h] = FileSet{}
		}
		db.reverseDepends[h].union(ts)
	}
	for hashLoc, included := range s.Incs {
		db.incs[hashLoc] = included
	}

	for base, derived := range s.Virtuals {
		if db.virtuals[base] == nil {
			db.virtuals[base] = USRSet{}
		}
		db.virtuals[base].union(derived)
	}

	db.visitedFiles.union(s.Visited)
}

func unionLocSet(dst map[usr.ID]LocSet, src map[usr.ID]LocSet) {
	for id, locs := range src {
		if dst[id] == nil {
			dst[id] = LocSet{}
		}
		dst[id].union(locs)
	}
}

// Dirty removes every symbol, reference, and (unless mode carries
// DontDirtyDeps) dependency edge originating from fileID, per spec §4.F
// "dirty(fileId, mode)". Callers must hold the project mutex.
func (db *Database) Dirty(fileID location.FileID, mode MergeMode) {
	removed := db.usrs.DeleteFile(fileID)
	for _, e := range removed {
		db.dirtyUsr(db.decls, e.ci.USR, fileID)
		db.dirtyUsr(db.defs, e.ci.USR, fileID)
		db.dirtyUsr(db.refs, e.ci.USR, fileID)
	}

	if mode.Has(MergeDontDirtyDeps) {
		return
	}

	for loc := range db.incs {
		if loc.File == fileID {
			delete(db.incs, loc)
		}
	}
	delete(db.depends, fileID)
	for h, ts := range db.reverseDepends {
		delete(ts, fileID)
		if len(ts) == 0 {
			delete(db.reverseDepends, h)
		}
	}
}

func (db *Database) dirtyUsr(m map[usr.ID]LocSet, u usr.ID, fileID location.FileID) {
	set, ok := m[u]
	if !ok {
		return
	}
	for loc := range set {
		if loc.File == fileID {
			delete(set, loc)
		}
	}
	if len(set) == 0 {
		delete(m, u)
	}
}

// FileRange exposes the ordered usrs range for fileID, for callers that
// want to inspect (rather than delete) a file's entries.
func (db *Database) FileRange(fileID location.FileID) []struct {
	Loc location.Location
	CI  CursorInfo
} {
	lo, hi := db.usrs.FileRange(fileID)
	out := make([]struct {
		Loc location.Location
		CI  CursorInfo
	}, 0, hi-lo)
	for i := lo; i < hi; i++ {
		loc, ci := db.usrs.At(i)
		out = append(out, struct {
			Loc location.Location
			CI  CursorInfo
		}{loc, ci})
	}
	return out
}
