package project

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rtagsd/rtagsd/internal/location"
	"github.com/rtagsd/rtagsd/internal/logx"
	"github.com/rtagsd/rtagsd/internal/sourceinfo"
	"github.com/rtagsd/rtagsd/internal/symboldb"
	"github.com/rtagsd/rtagsd/internal/usr"
)

func TestNewFromRestoreReplaysModifiedSetImmediately(t *testing.T) {
	defer goleak.VerifyNone(t)

	parser := &stubParser{}

	files := location.NewRegistry()
	fileID := files.Intern("/tmp/a.cpp")
	usrs := usr.New()
	db := symboldb.New()
	db.SetSource(fileID, sourceinfo.Information{
		SourceFile: "/tmp/a.cpp",
		Builds:     []sourceinfo.Build{{Compiler: "g++"}},
	})

	p := NewFromRestore(t.Context(), testConfig(), parser, logx.New(nil, logx.LevelError), files, usrs, db, map[location.FileID]bool{fileID: true})

	waitIdle(t, p)
	assert.Equal(t, 1, parser.calledTimes(), "a restore-time modified file must be reindexed without waiting for a debounce")
}

func TestNewFromRestoreWithNoModifiedFilesDoesNothing(t *testing.T) {
	defer goleak.VerifyNone(t)

	parser := &stubParser{}
	files := location.NewRegistry()
	usrs := usr.New()
	db := symboldb.New()

	p := NewFromRestore(t.Context(), testConfig(), parser, logx.New(nil, logx.LevelError), files, usrs, db, nil)

	waitIdle(t, p)
	assert.Equal(t, 0, parser.calledTimes())
	assert.False(t, p.IsIndexing())
}

func TestIsIndexingReflectsPendingJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	parser := &stubParser{}
	p := New(t.Context(), testConfig(), parser, logx.New(nil, logx.LevelError))

	assert.False(t, p.IsIndexing())
	ok := p.IndexPath("/tmp/a.cpp", "g++", nil, nil, nil, nil)
	require.True(t, ok)
	waitIdle(t, p)
	assert.False(t, p.IsIndexing())
}

// TestPendingJobsNetsToZeroAcrossReindexWhileBusy reproduces spec §8
// Scenario 6 by hand: a Makefile request starts a job for a file, a second
// (Dirty) request for the same file arrives while the first is still in
// flight and is coalesced into it, the superseded job is stopped and
// aborts, and its replacement runs to completion. pendingJobs must land
// back at exactly 0, not -1: the superseded job's own completion must not
// decrement the counter a second time.
func TestPendingJobsNetsToZeroAcrossReindexWhileBusy(t *testing.T) {
	defer goleak.VerifyNone(t)

	parser := newBlockingParser()
	p := New(t.Context(), testConfig(), parser, logx.New(nil, logx.LevelError))

	ok := p.IndexPath("/tmp/a.cpp", "g++", nil, nil, nil, nil)
	require.True(t, ok)

	select {
	case <-parser.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the first job to start")
	}
	assert.True(t, p.IsIndexing())
	assert.Equal(t, 1, p.pendingJobsSnapshot())

	info, ok := p.db.Source(p.files.Intern("/tmp/a.cpp"))
	require.True(t, ok)
	p.Index(info, JobTypeDirty)

	// pendingJobs must stay at 1: the second request was coalesced into the
	// same file slot, not counted as a new job.
	assert.Equal(t, 1, p.pendingJobsSnapshot())

	close(parser.release)
	waitIdle(t, p)

	assert.Equal(t, 0, p.pendingJobsSnapshot(), "pendingJobs must net to zero, not go negative, once both the superseded and the replacement job have finished")
	assert.False(t, p.IsIndexing())
}

func TestSetOnSaveAndOnSyncAreInvoked(t *testing.T) {
	defer goleak.VerifyNone(t)

	parser := &stubParser{}
	cfg := testConfig()
	cfg.Timers.SyncTimeout = 5 * time.Millisecond
	cfg.Timers.SaveTimeout = 5 * time.Millisecond
	p := New(t.Context(), cfg, parser, logx.New(nil, logx.LevelError))

	saveCh := make(chan struct{}, 1)
	p.SetOnSave(func() { saveCh <- struct{}{} })
	syncCh := make(chan struct{}, 1)
	p.SetOnSync(func() { syncCh <- struct{}{} })

	indexAndWait(t, p, "/tmp/a.cpp")

	select {
	case <-syncCh:
	case <-time.After(2 * time.Second):
		t.Fatal("expected sync timer to have fired after scheduleSync was armed by a Makefile job")
	}
	select {
	case <-saveCh:
	case <-time.After(2 * time.Second):
		t.Fatal("expected save timer to have fired")
	}
}
