package project

import (
	"time"

	"github.com/rtagsd/rtagsd/internal/location"
	"github.com/rtagsd/rtagsd/internal/sourceinfo"
	"github.com/rtagsd/rtagsd/internal/symboldb"
)

// ModifiedKind classifies a file-watcher event for FileModified (spec §4.H
// "created/modified/removed").
type ModifiedKind int

const (
	ModifiedCreated ModifiedKind = iota
	ModifiedChanged
	ModifiedRemoved
)

// FileModified implements spec §4.H step 1-2: a file-watcher event arrives;
// unknown paths and paths already pending are dropped; the first modified
// file of a burst that is itself a tracked source triggers startDirtyJobs
// immediately, everything else arms the ModifiedFilesTimeout debounce.
func (p *Project) FileModified(path string, kind ModifiedKind) {
	fileID, ok := p.files.Lookup(path)
	if !ok {
		return
	}

	p.mu.Lock()
	_, isSource := p.db.Source(fileID)
	p.mu.Unlock()

	p.modMu.Lock()
	if p.modifiedFiles[fileID] {
		p.modMu.Unlock()
		return
	}
	p.modifiedFiles[fileID] = true
	first := len(p.modifiedFiles) == 1
	p.modMu.Unlock()

	if first && isSource {
		p.startDirtyJobs()
		return
	}
	p.armModifiedTimer()
}

func (p *Project) armModifiedTimer() {
	p.modMu.Lock()
	defer p.modMu.Unlock()
	if p.modTimer != nil {
		p.modTimer.Stop()
	}
	p.modTimer = time.AfterFunc(p.cfg.Timers.ModifiedFilesTimeout, p.startDirtyJobs)
}

// startDirtyJobs implements spec §4.H step 3: swap out the pending set,
// union in the transitive reverse-dependency closure, drop every file in
// that union from visitedFiles, reindex every one that has a recorded
// source, and if none did, fall back to a pure symbol-dirty pass.
func (p *Project) startDirtyJobs() {
	p.modMu.Lock()
	modified := p.modifiedFiles
	p.modifiedFiles = make(map[location.FileID]bool)
	if p.modTimer != nil {
		p.modTimer.Stop()
		p.modTimer = nil
	}
	p.modMu.Unlock()

	if len(modified) == 0 {
		return
	}

	p.mu.Lock()
	closure := make(map[location.FileID]bool, len(modified))
	stack := make([]location.FileID, 0, len(modified))
	for f := range modified {
		closure[f] = true
		stack = append(stack, f)
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for d := range p.db.ReverseDepends(f) {
			if closure[d] {
				continue
			}
			closure[d] = true
			stack = append(stack, d)
		}
	}
	for f := range closure {
		p.db.UnmarkVisited(f)
	}
	sources := p.db.Sources()
	p.mu.Unlock()

	var toReindex []sourceinfo.Information
	pure := make([]location.FileID, 0, len(closure))
	for f := range closure {
		if info, ok := sources[f]; ok {
			toReindex = append(toReindex, info)
		} else {
			pure = append(pure, f)
		}
	}

	for _, info := range toReindex {
		p.Index(info, JobTypeDirty)
	}
	if len(toReindex) == 0 {
		p.dirtyPure(pure)
	}
}

// dirtyPure runs dirty(fileId) directly on files with no source entry of
// their own (pure headers): no job will ever reparse them on our behalf, so
// the only way to keep the invariant "dirty(f) removes every trace of f"
// is to run the database operation inline (spec §4.H step 3, final clause).
func (p *Project) dirtyPure(fileIDs []location.FileID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range fileIDs {
		p.db.Dirty(f, symboldb.MergeAdd)
	}
}
