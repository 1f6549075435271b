// Package unit implements the per-file job holder of spec §4.F: one Unit
// per source FileID owns that file's current SourceInformation, the
// in-flight indexjob.Job (if any), and the locked dirty-then-merge
// operation that applies a finished job's staging buffer into the shared
// database. Unit holds only a non-owning reference to the project's
// database and lock (spec §9 "cyclic ownership"): it never imports
// internal/project, so the project-level bookkeeping that belongs on top
// of a finished job (pendingJobs, save/sync timers, progress logging) is
// reported back through the Finished callback a Deps value supplies.
package unit

import (
	"context"
	"sync"
	"time"

	"github.com/rtagsd/rtagsd/internal/indexjob"
	"github.com/rtagsd/rtagsd/internal/location"
	"github.com/rtagsd/rtagsd/internal/seen"
	"github.com/rtagsd/rtagsd/internal/sourceinfo"
	"github.com/rtagsd/rtagsd/internal/symboldb"
	"github.com/rtagsd/rtagsd/internal/workpool"
)

// Deps bundles the collaborators a Unit needs, all owned by the project
// coordinator and shared across every Unit it holds.
type Deps struct {
	DB      *symboldb.Database
	Lock    sync.Locker // the single project mutex (spec §5 "Project mutex")
	Seen    *seen.Set
	Pool    *workpool.Pool
	JobDeps indexjob.Deps
	XML     indexjob.XMLSink

	// Finished is called once per completed job, outside the project lock,
	// after every build has been merged. dirtyJob reports whether the
	// completed job's first build ran with MergeDirty (a fresh index or
	// reindex, as opposed to an aborted one). The coordinator's sync-timer
	// debounce (spec §4.G, "0 if the finishing job was a Dirty job") is
	// picked from the JobType it recorded for the file, not from this flag.
	Finished func(fileID location.FileID, dirtyJob bool)
}

// Unit is one source file's job holder (spec §4.F).
type Unit struct {
	deps   Deps
	fileID location.FileID

	mu          sync.Mutex // Unit mutex (spec §5): guards everything below
	sourceInfo  sourceinfo.Information
	indexed     time.Time
	job         *indexjob.Job
	reindexing  bool
	pendingNext *sourceinfo.Information
}

// New creates a Unit for fileID with no source information yet.
func New(deps Deps, fileID location.FileID) *Unit {
	return &Unit{deps: deps, fileID: fileID}
}

// FileID returns the FileID this Unit owns.
func (u *Unit) FileID() location.FileID { return u.fileID }

// SourceInfo returns the currently recorded build configuration.
func (u *Unit) SourceInfo() sourceinfo.Information {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sourceInfo
}

// Indexed returns the timestamp of the last completed job.
func (u *Unit) Indexed() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.indexed
}

// Busy reports whether a job is currently in flight for this file.
func (u *Unit) Busy() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.job != nil
}

// Reindex implements spec §4.F "reindex(newSourceInfo)": it unclaims this
// file and every transitive dependency from the globally-seen set, cancels
// any in-flight job (stop then wait), and submits a fresh one. A Reindex
// call that arrives while a previous call is still unwinding the old job is
// coalesced into that in-flight call rather than interleaving two
// cancel/restart sequences — this hosts spec §4.G's "mark for abort-on-start
// and queue as pending for that fileId" at the Unit level, since Unit
// already owns the one piece of state (the current job) that decision needs.
func (u *Unit) Reindex(newSource sourceinfo.Information) {
	u.mu.Lock()
	if u.reindexing {
		u.pendingNext = &newSource
		u.mu.Unlock()
		return
	}
	u.reindexing = true
	u.mu.Unlock()

	for {
		u.unclaimTransitive()

		u.mu.Lock()
		oldJob := u.job
		reparse := newSource.Equal(u.sourceInfo)
		u.sourceInfo = newSource
		if oldJob != nil {
			// Claim the supersession here, synchronously, rather than
			// leaving onJobDone to discover it later: oldJob's own
			// completion goroutine races this call once its Run returns, so
			// u.job must already have stopped pointing at oldJob before we
			// even ask it to stop, not as a side effect of waiting for it.
			u.job = nil
		}
		u.mu.Unlock()

		if oldJob != nil {
			oldJob.Stop()
			<-oldJob.Finished()
			// oldJob's own Staging.LocalSeen claims never reached Union if it
			// was cut off mid-build, but they already landed in the
			// globally-seen set the moment the sink made them. Release
			// exactly those (not this file's whole dependency closure, which
			// unclaimTransitive already handles) so the replacement job may
			// legitimately re-claim and re-index them (spec §7.2).
			for _, f := range oldJob.ClaimedFiles() {
				u.deps.Seen.Unclaim(f)
			}
		}

		job := indexjob.New(u.deps.JobDeps, newSource, u.merge, u.deps.XML)
		u.mu.Lock()
		u.job = job
		u.mu.Unlock()

		u.deps.Pool.Submit(func(ctx context.Context) {
			job.Run(reparse)
			u.onJobDone(job)
		})

		u.mu.Lock()
		if u.pendingNext == nil {
			u.reindexing = false
			u.mu.Unlock()
			return
		}
		newSource = *u.pendingNext
		u.pendingNext = nil
		u.mu.Unlock()
	}
}

// merge applies one build's staging buffer under the project lock, per
// spec §4.F steps 2-3 (dirty-then-union). The pendingJobs decrement and
// save trigger (steps 1 and 4) happen once per job, not once per build, in
// onJobDone via Deps.Finished — see DESIGN.md for this Open Question
// resolution.
func (u *Unit) merge(staging *symboldb.Staging, mode symboldb.MergeMode) {
	u.deps.Lock.Lock()
	defer u.deps.Lock.Unlock()
	if mode.Has(symboldb.MergeDirty) {
		u.deps.DB.Dirty(u.fileID, mode)
	}
	u.deps.DB.Union(staging)
}

func (u *Unit) onJobDone(job *indexjob.Job) {
	u.mu.Lock()
	current := u.job == job
	if current {
		u.indexed = time.Now()
		u.job = nil
	}
	u.mu.Unlock()

	// A superseded job (one Reindex already decided to replace, by clearing
	// u.job to nil before asking it to stop) must not report its own
	// completion: its replacement already owns the fileID's one pendingJobs
	// slot, and the replacement's own onJobDone will report completion when
	// it finishes. Reporting here too would double-decrement the
	// coordinator's pendingJobs for a single net completion (spec §8
	// Scenario 6).
	if current && u.deps.Finished != nil {
		// Every job's first build merges with MergeDirty (indexjob always
		// dirties on a fresh parse's first build and on any reparse), so
		// this is unconditionally true; kept as an explicit parameter so a
		// future job shape that can skip dirtying entirely doesn't need a
		// signature change here.
		u.deps.Finished(u.fileID, true)
	}
}

// Cancel stops any in-flight job for this unit without scheduling a
// replacement, used when the coordinator drops this Unit's source entry
// entirely (spec §6 "remove(Match) ... aborts any in-flight job for each").
// It does not wait: the job's eventual Finished callback still fires and
// still decrements the coordinator's pendingJobs.
func (u *Unit) Cancel() {
	u.mu.Lock()
	job := u.job
	u.mu.Unlock()
	if job != nil {
		job.Stop()
	}
}

// unclaimTransitive releases this file and every file it (transitively)
// depends on from the globally-seen set, so the upcoming reparse may
// legitimately re-emit their declarations (spec §4.F step 1).
func (u *Unit) unclaimTransitive() {
	u.deps.Seen.Unclaim(u.fileID)
	for _, dep := range u.transitiveDepends() {
		u.deps.Seen.Unclaim(dep)
	}
}

func (u *Unit) transitiveDepends() []location.FileID {
	u.deps.Lock.Lock()
	defer u.deps.Lock.Unlock()

	visited := map[location.FileID]bool{u.fileID: true}
	stack := []location.FileID{u.fileID}
	var out []location.FileID
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for d := range u.deps.DB.Depends(f) {
			if visited[d] {
				continue
			}
			visited[d] = true
			out = append(out, d)
			stack = append(stack, d)
		}
	}
	return out
}
