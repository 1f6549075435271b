package symboldb

import (
	"github.com/rtagsd/rtagsd/internal/location"
	"github.com/rtagsd/rtagsd/internal/usr"
)

// LocSet is a set of Locations, used throughout the staging buffer and the
// Database's decls/defs/refs maps.
type LocSet map[location.Location]struct{}

func (s LocSet) add(l location.Location)      { s[l] = struct{}{} }
func (s LocSet) union(o LocSet)                { for l := range o { s[l] = struct{}{} } }
func (s LocSet) remove(l location.Location)    { delete(s, l) }

// FileSet is a set of FileIDs.
type FileSet map[location.FileID]struct{}

func (s FileSet) add(f location.FileID)   { s[f] = struct{}{} }
func (s FileSet) union(o FileSet)         { for f := range o { s[f] = struct{}{} } }

// USRSet is a set of USR ids.
type USRSet map[usr.ID]struct{}

func (s USRSet) add(u usr.ID)  { s[u] = struct{}{} }
func (s USRSet) union(o USRSet) { for u := range o { s[u] = struct{}{} } }

// Staging is the per-job private copy of the database shape (spec §3/§4.E).
// A Parse job fills one of these without ever touching the project lock;
// Unit.Merge hands it to Database.Union under the project mutex.
type Staging struct {
	Incs            map[location.Location]location.FileID
	Depends         map[location.FileID]FileSet
	ReverseDepends  map[location.FileID]FileSet
	Names           map[string]USRSet
	Usrs            map[location.Location]CursorInfo
	Decls           map[usr.ID]LocSet
	Defs            map[usr.ID]LocSet
	Refs            map[usr.ID]LocSet
	Virtuals        map[usr.ID]USRSet
	FixIts          map[string][]FixIt
	HasDiags        bool
	Stopped         bool
	LocalSeen       map[location.FileID]bool
	Visited         FileSet
	MainFile        location.FileID
}

// NewStaging allocates an empty Staging buffer.
func NewStaging() *Staging {
	return &Staging{
		Incs:           make(map[location.Location]location.FileID),
		Depends:        make(map[location.FileID]FileSet),
		ReverseDepends: make(map[location.FileID]FileSet),
		Names:          make(map[string]USRSet),
		Usrs:           make(map[location.Location]CursorInfo),
		Decls:          make(map[usr.ID]LocSet),
		Defs:           make(map[usr.ID]LocSet),
		Refs:           make(map[usr.ID]LocSet),
		Virtuals:       make(map[usr.ID]USRSet),
		FixIts:         make(map[string][]FixIt),
		LocalSeen:      make(map[location.FileID]bool),
		Visited:        FileSet{},
	}
}

// AddInclude records that the #include at hashLoc (in the file owning that
// location) pulled in included, wiring both depends/reverseDepends and the
// incs map per the includedFile callback (§4.E).
func (s *Staging) AddInclude(hashLoc location.Location, included location.FileID) {
	owner := hashLoc.File
	s.Incs[hashLoc] = included
	if s.Depends[owner] == nil {
		s.Depends[owner] = FileSet{}
	}
	s.Depends[owner].add(included)
	if s.ReverseDepends[included] == nil {
		s.ReverseDepends[included] = FileSet{}
	}
	s.ReverseDepends[included].add(owner)
}

// AddDecl records a declaration or definition at loc per indexDeclaration
// (§4.E): insert into usrs, add to defs or decls depending on isDef, and
// union the qualified-name permutations into names.
func (s *Staging) AddDecl(loc location.Location, ci CursorInfo, isDef bool, names []string) {
	s.Usrs[loc] = ci
	dest := s.Decls
	if isDef {
		dest = s.Defs
	}
	if dest[ci.USR] == nil {
		dest[ci.USR] = LocSet{}
	}
	dest[ci.USR].add(loc)
	for _, n := range names {
		if s.Names[n] == nil {
			s.Names[n] = USRSet{}
		}
		s.Names[n].add(ci.USR)
	}
}

// AddReference records a reference location per indexEntityReference (§4.E).
func (s *Staging) AddReference(loc location.Location, u usr.ID) {
	s.Usrs[loc] = CursorInfo{USR: u, Kind: KindReference}
	if s.Refs[u] == nil {
		s.Refs[u] = LocSet{}
	}
	s.Refs[u].add(loc)
}

// AddVirtualOverride records a symmetric override edge between base and
// derived, per the virtual-method handling in indexDeclaration (§4.E).
func (s *Staging) AddVirtualOverride(base, derived usr.ID) {
	if s.Virtuals[base] == nil {
		s.Virtuals[base] = USRSet{}
	}
	if s.Virtuals[derived] == nil {
		s.Virtuals[derived] = USRSet{}
	}
	s.Virtuals[base].add(derived)
	s.Virtuals[derived].add(base)
}
