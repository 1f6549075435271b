// Package seen implements the process-wide globally-seen FileID set from
// spec §3 ("Globally seen set") / §5 ("Seen mutex"). It deduplicates
// symbols reported from headers shared by many translation units: the
// first job to encounter a fileId claims it and may index its
// declarations; every later job sees it already claimed and skips them.
package seen

import (
	"sync"

	"github.com/rtagsd/rtagsd/internal/location"
)

// Set is the process-wide claimed-FileID set, guarded by its own mutex
// (spec §5 lock ordering: "seen stands alone").
type Set struct {
	mu      sync.Mutex
	claimed map[location.FileID]bool
}

// New creates an empty Set.
func New() *Set {
	return &Set{claimed: make(map[location.FileID]bool)}
}

// Claim reports whether the caller's job is the first to encounter fileID.
// On the first call for a given fileID it records the claim and returns
// true; every later call (from any job) returns false until the entry is
// released via Unclaim.
func (s *Set) Claim(fileID location.FileID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed[fileID] {
		return false
	}
	s.claimed[fileID] = true
	return true
}

// Unclaim releases fileID so the next job to encounter it claims it afresh,
// used by Unit.Reindex (spec §4.F step 1) before a re-parse, and again by
// Unit.Reindex when it releases the files a superseded job had claimed.
func (s *Set) Unclaim(fileID location.FileID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, fileID)
}

// IsClaimed reports whether fileID is currently claimed by some job.
func (s *Set) IsClaimed(fileID location.FileID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimed[fileID]
}
