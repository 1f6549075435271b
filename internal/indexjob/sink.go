package indexjob

import (
	"strings"

	"github.com/rtagsd/rtagsd/internal/location"
	"github.com/rtagsd/rtagsd/internal/parseapi"
	"github.com/rtagsd/rtagsd/internal/seen"
	"github.com/rtagsd/rtagsd/internal/symboldb"
	"github.com/rtagsd/rtagsd/internal/usr"
)

// callbackSink implements parseapi.Sink over a job's private Staging
// buffer. It never touches the project lock (spec §9): every method here
// only mutates staging and the process-wide interners/seen set, which carry
// their own independent locks (spec §5 "seen stands alone").
type callbackSink struct {
	files   *location.Registry
	usrs    *usr.Interner
	seen    *seen.Set
	staging *symboldb.Staging
	abort   func() bool
}

func (s *callbackSink) EnteredMainFile(path string) {
	fileID := s.files.Intern(path)
	s.staging.MainFile = fileID
	s.staging.Visited[fileID] = struct{}{}
}

func (s *callbackSink) IncludedFile(hashLoc parseapi.SourceLocation, includedPath string) {
	owner := s.files.Intern(hashLoc.Path)
	included := s.files.Intern(includedPath)
	loc := location.Location{File: owner, Line: hashLoc.Line, Column: hashLoc.Column}
	s.staging.AddInclude(loc, included)
	s.staging.Visited[owner] = struct{}{}
	s.staging.Visited[included] = struct{}{}
}

// claimed reports whether fileID's declarations may be indexed by this job,
// per the globally-seen gate in spec §4.E: the first job to encounter a
// fileID claims it and indexes; every later job (even of the same file, a
// different job instance) sees it already claimed and skips. The decision
// is cached in staging.LocalSeen so a job that touches the same file many
// times only calls Seen.Claim once.
func (s *callbackSink) claimed(fileID location.FileID) bool {
	s.staging.Visited[fileID] = struct{}{}
	if ok, cached := s.staging.LocalSeen[fileID]; cached {
		return ok
	}
	ok := s.seen.Claim(fileID)
	s.staging.LocalSeen[fileID] = ok
	return ok
}

func (s *callbackSink) IndexDeclaration(d parseapi.Decl) {
	fileID := s.files.Intern(d.Location.Path)
	if !s.claimed(fileID) && !d.IsTypedef {
		return
	}
	loc := location.Location{File: fileID, Line: d.Location.Line, Column: d.Location.Column}
	id := s.usrs.Insert(d.USR)
	ci := symboldb.CursorInfo{
		USR:             id,
		Kind:            d.Kind,
		StartByteOffset: d.Location.ByteOffset,
		EndByteOffset:   d.EndByteOffset,
	}
	s.staging.AddDecl(loc, ci, d.IsDefinition, namePermutations(d.Qualified))

	for _, baseUSR := range d.Overrides {
		baseID := s.usrs.Insert(baseUSR)
		s.staging.AddVirtualOverride(baseID, id)
	}
}

func (s *callbackSink) IndexEntityReference(r parseapi.Ref) {
	fileID := s.files.Intern(r.Location.Path)
	if !s.claimed(fileID) {
		return
	}
	loc := location.Location{File: fileID, Line: r.Location.Line, Column: r.Location.Column}
	id := s.usrs.Insert(r.USR)
	s.staging.AddReference(loc, id)
}

func (s *callbackSink) AbortRequested() bool {
	return s.abort()
}

// namePermutations builds the "C", "B::C", "A::B::C" suffix permutations
// spec §3 requires the names map to hold for a qualified declaration.
func namePermutations(qualified []string) []string {
	var out []string
	for i := len(qualified) - 1; i >= 0; i-- {
		out = append(out, strings.Join(qualified[i:], "::"))
	}
	return out
}
