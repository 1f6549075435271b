package project

import (
	"sort"
	"strings"

	"github.com/rtagsd/rtagsd/internal/location"
	"github.com/rtagsd/rtagsd/internal/symboldb"
)

// ReferenceFlags controls which location sets references() additionally
// emits alongside the target USR's own reference set (spec §4.G).
type ReferenceFlags int

const (
	FindVirtuals  ReferenceFlags = 1 << 0
	AllReferences ReferenceFlags = 1 << 1
)

// DependencyMode selects the traversal direction for Dependencies (spec §6
// "DependsOnArg | ArgDependsOn").
type DependencyMode int

const (
	// DependsOnArg walks forward: what the queried file depends on.
	DependsOnArg DependencyMode = iota
	// ArgDependsOn walks in reverse: what depends on the queried file.
	ArgDependsOn
)

// Cursor is the query result shape of spec §6: cursor(), findCursors().
type Cursor struct {
	SymbolName string
	Location   location.Location
	Target     location.Location
	Kind       symboldb.Kind
	Start      uint32
	End        uint32
}

// Cursor implements spec §4.G's cursor(loc): lower_bound, step back one on
// overshoot, and require the hit covers loc (same file and line, column
// within [start, start+length), so the column one past the end misses).
func (p *Project) Cursor(loc location.Location) (Cursor, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hitLoc, ci, ok := p.lookupLocked(loc)
	if !ok {
		return Cursor{}, false
	}
	return Cursor{
		Location: hitLoc,
		Target:   p.targetLocked(ci),
		Kind:     ci.Kind,
		Start:    ci.StartByteOffset,
		End:      ci.EndByteOffset,
	}, true
}

func (p *Project) lookupLocked(loc location.Location) (location.Location, symboldb.CursorInfo, bool) {
	if ci, ok := p.db.Cursor(loc); ok {
		return loc, ci, true
	}
	idx, n := p.db.LowerBound(loc)
	if idx == 0 || idx > n {
		return location.Location{}, symboldb.CursorInfo{}, false
	}
	hitLoc, ci := p.db.EntryAt(idx - 1)
	if hitLoc.File != loc.File || hitLoc.Line != loc.Line {
		return location.Location{}, symboldb.CursorInfo{}, false
	}
	if loc.Column >= hitLoc.Column+ci.Length() {
		return location.Location{}, symboldb.CursorInfo{}, false
	}
	return hitLoc, ci, true
}

// targetLocked picks the cross-reference target per spec §4.G's cursor()
// table: a Reference points at the first definition (falling back to the
// first declaration); a definition points at the first declaration; any
// other (declaration) points at the first definition.
func (p *Project) targetLocked(ci symboldb.CursorInfo) location.Location {
	switch {
	case ci.Kind == symboldb.KindReference:
		if l, ok := firstLoc(p.db.Defs(ci.USR)); ok {
			return l
		}
		l, _ := firstLoc(p.db.Decls(ci.USR))
		return l
	case ci.Kind.IsDefKind():
		l, _ := firstLoc(p.db.Decls(ci.USR))
		return l
	default:
		l, _ := firstLoc(p.db.Defs(ci.USR))
		return l
	}
}

func firstLoc(set symboldb.LocSet) (location.Location, bool) {
	var best location.Location
	found := false
	for l := range set {
		if !found || l.Less(best) {
			best, found = l, true
		}
	}
	return best, found
}

func locSlice(set symboldb.LocSet) []location.Location {
	out := make([]location.Location, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	location.SortLocations(out)
	return out
}

// References implements spec §4.G's references(loc, flags, pathFilter): it
// resolves loc to the same CursorInfo cursor() would, then emits that
// entity's reference set, optionally joined with its own decls/defs
// (AllReferences) and its virtual siblings' decls/defs (FindVirtuals).
func (p *Project) References(loc location.Location, flags ReferenceFlags, pathFilter string) []location.Location {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ci, ok := p.lookupLocked(loc)
	if !ok {
		return nil
	}

	var out []location.Location
	out = append(out, locSlice(p.db.Refs(ci.USR))...)
	if flags&AllReferences != 0 {
		out = append(out, locSlice(p.db.Decls(ci.USR))...)
		out = append(out, locSlice(p.db.Defs(ci.USR))...)
	}
	if flags&FindVirtuals != 0 {
		for sib := range p.db.Virtuals(ci.USR) {
			out = append(out, locSlice(p.db.Decls(sib))...)
			out = append(out, locSlice(p.db.Defs(sib))...)
		}
	}
	return p.filterLocsLocked(out, pathFilter)
}

func (p *Project) filterLocsLocked(locs []location.Location, pathFilter string) []location.Location {
	if pathFilter == "" {
		return locs
	}
	out := locs[:0]
	for _, l := range locs {
		if strings.Contains(p.files.Path(l.File), pathFilter) {
			out = append(out, l)
		}
	}
	return out
}

// ListSymbols implements spec §4.G's listSymbols(prefix): every name key
// with the given prefix, optionally restricted to names with at least one
// decl or def under pathFilter.
func (p *Project) ListSymbols(prefix, pathFilter string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []string
	p.db.NamesWithPrefix(prefix, func(name string, ids symboldb.USRSet) bool {
		if pathFilter == "" || p.anyUnderPathLocked(ids, pathFilter) {
			out = append(out, name)
		}
		return true
	})
	return out
}

func (p *Project) anyUnderPathLocked(ids symboldb.USRSet, pathFilter string) bool {
	for id := range ids {
		for l := range p.db.Decls(id) {
			if strings.Contains(p.files.Path(l.File), pathFilter) {
				return true
			}
		}
		for l := range p.db.Defs(id) {
			if strings.Contains(p.files.Path(l.File), pathFilter) {
				return true
			}
		}
	}
	return false
}

// FindCursors implements spec §4.G's findCursors(name): for every USR bound
// to the exact name, one Cursor per decl and def location, each pointing at
// the first location of the complementary set.
func (p *Project) FindCursors(name, pathFilter string) []Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Cursor
	for id := range p.db.USRsForName(name) {
		defTarget, _ := firstLoc(p.db.Defs(id))
		for _, l := range locSlice(p.db.Decls(id)) {
			if pathFilter != "" && !strings.Contains(p.files.Path(l.File), pathFilter) {
				continue
			}
			ci, _ := p.db.Cursor(l)
			out = append(out, Cursor{SymbolName: name, Location: l, Target: defTarget, Kind: ci.Kind, Start: ci.StartByteOffset, End: ci.EndByteOffset})
		}
		declTarget, _ := firstLoc(p.db.Decls(id))
		for _, l := range locSlice(p.db.Defs(id)) {
			if pathFilter != "" && !strings.Contains(p.files.Path(l.File), pathFilter) {
				continue
			}
			ci, _ := p.db.Cursor(l)
			out = append(out, Cursor{SymbolName: name, Location: l, Target: declTarget, Kind: ci.Kind, Start: ci.StartByteOffset, End: ci.EndByteOffset})
		}
	}
	return out
}

// Dependencies implements spec §4.G's dependencies(path, mode): the
// transitive closure over depends (DependsOnArg) or reverseDepends
// (ArgDependsOn), including path itself.
func (p *Project) Dependencies(path string, mode DependencyMode) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	fileID, ok := p.files.Lookup(path)
	if !ok {
		return nil
	}

	visited := map[location.FileID]bool{fileID: true}
	stack := []location.FileID{fileID}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		next := p.db.Depends(f)
		if mode == ArgDependsOn {
			next = p.db.ReverseDepends(f)
		}
		for d := range next {
			if visited[d] {
				continue
			}
			visited[d] = true
			stack = append(stack, d)
		}
	}

	out := make([]string, 0, len(visited))
	for f := range visited {
		out = append(out, p.files.Path(f))
	}
	sort.Strings(out)
	return out
}

// FixIts implements spec §6's fixits(Path): "start-end text" lines, newest
// first.
func (p *Project) FixIts(path string) string {
	p.mu.Lock()
	fixits := p.db.FixIts(path)
	p.mu.Unlock()

	var b strings.Builder
	for i := len(fixits) - 1; i >= 0; i-- {
		b.WriteString(fixits[i].String())
		b.WriteByte('\n')
	}
	return b.String()
}
