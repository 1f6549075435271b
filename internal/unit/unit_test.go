package unit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rtagsd/rtagsd/internal/diag"
	"github.com/rtagsd/rtagsd/internal/indexjob"
	"github.com/rtagsd/rtagsd/internal/location"
	"github.com/rtagsd/rtagsd/internal/logx"
	"github.com/rtagsd/rtagsd/internal/parseapi"
	"github.com/rtagsd/rtagsd/internal/seen"
	"github.com/rtagsd/rtagsd/internal/sourceinfo"
	"github.com/rtagsd/rtagsd/internal/symboldb"
	"github.com/rtagsd/rtagsd/internal/tucache"
	"github.com/rtagsd/rtagsd/internal/usr"
	"github.com/rtagsd/rtagsd/internal/workpool"
)

type stubTU struct{}

func (stubTU) Dispose() {}

// stubParser reports exactly one definition for N::S::f, deterministically,
// so tests can assert on the resulting database shape without a real
// tree-sitter dependency.
type stubParser struct {
	mu    sync.Mutex
	calls int
}

func (p *stubParser) IndexSourceFile(path string, argv []string, opts parseapi.Options, sink parseapi.Sink) parseapi.Result {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	sink.EnteredMainFile(path)
	sink.IndexDeclaration(parseapi.Decl{
		USR:          "usr:N::S::f#fn",
		Kind:         symboldb.KindMemberFunctionDef,
		Qualified:    []string{"N", "S", "f"},
		Location:     parseapi.SourceLocation{Path: path, Line: 1, Column: 1},
		IsDefinition: true,
	})
	return parseapi.Result{TU: stubTU{}}
}

func (p *stubParser) Reparse(tu parseapi.TranslationUnit, path string, argv []string, opts parseapi.Options, sink parseapi.Sink) parseapi.Result {
	return p.IndexSourceFile(path, argv, opts, sink)
}

func newTestUnit(t *testing.T, parser parseapi.Parser, finished func(location.FileID, bool)) (*Unit, *symboldb.Database, *sync.Mutex, location.FileID) {
	t.Helper()
	db := symboldb.New()
	var lock sync.Mutex
	files := location.NewRegistry()
	fileID := files.Intern("/tmp/a.cpp")
	sharedSeen := seen.New()

	deps := Deps{
		DB:   db,
		Lock: &lock,
		Seen: sharedSeen,
		Pool: workpool.New(t.Context(), 2),
		JobDeps: indexjob.Deps{
			Parser: parser,
			Cache:  tucache.New(tucache.DefaultBound),
			Files:  files,
			USRs:   usr.New(),
			Seen:   sharedSeen,
			Diag:   diag.New(logx.New(nil, logx.LevelError), nil),
		},
		Finished: finished,
	}
	u := New(deps, fileID)
	return u, db, &lock, fileID
}

func TestUnitReindexMergesDeclaration(t *testing.T) {
	defer goleak.VerifyNone(t)

	done := make(chan struct{})
	parser := &stubParser{}
	u, db, lock, _ := newTestUnit(t, parser, func(fileID location.FileID, dirty bool) {
		close(done)
	})

	u.Reindex(sourceinfo.Information{
		SourceFile: "/tmp/a.cpp",
		Builds:     []sourceinfo.Build{{Compiler: "g++"}},
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job to finish")
	}

	lock.Lock()
	usrs := db.USRsForName("N::S::f")
	lock.Unlock()
	assert.Len(t, usrs, 1)
	assert.False(t, u.Indexed().IsZero())
	assert.False(t, u.Busy())
}

// blockingParser spins polling sink.AbortRequested() until told to unblock
// or aborted, so tests can deterministically catch a job mid-flight.
type blockingParser struct {
	entered  chan struct{}
	release  chan struct{}
}

func newBlockingParser() *blockingParser {
	return &blockingParser{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (p *blockingParser) IndexSourceFile(path string, argv []string, opts parseapi.Options, sink parseapi.Sink) parseapi.Result {
	sink.EnteredMainFile(path)
	sink.IndexDeclaration(parseapi.Decl{
		USR:          "usr:h.h#struct",
		Kind:         symboldb.KindStruct,
		Qualified:    []string{"T"},
		Location:     parseapi.SourceLocation{Path: "/tmp/h.h", Line: 1, Column: 1},
		IsDefinition: true,
	})
	select {
	case p.entered <- struct{}{}:
	default:
	}
	for {
		select {
		case <-p.release:
			return parseapi.Result{TU: stubTU{}}
		default:
		}
		if sink.AbortRequested() {
			return parseapi.Result{Err: assertAborted}
		}
		time.Sleep(time.Millisecond)
	}
}

func (p *blockingParser) Reparse(tu parseapi.TranslationUnit, path string, argv []string, opts parseapi.Options, sink parseapi.Sink) parseapi.Result {
	return p.IndexSourceFile(path, argv, opts, sink)
}

var assertAborted = &abortedErr{}

type abortedErr struct{}

func (*abortedErr) Error() string { return "aborted" }

func TestUnitReindexCancelsInFlightJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	var finishedCount int
	var mu sync.Mutex
	finishedCh := make(chan struct{}, 4)
	parser := newBlockingParser()
	u, _, _, _ := newTestUnit(t, parser, func(fileID location.FileID, dirty bool) {
		mu.Lock()
		finishedCount++
		mu.Unlock()
		finishedCh <- struct{}{}
	})

	source := sourceinfo.Information{SourceFile: "/tmp/a.cpp", Builds: []sourceinfo.Build{{Compiler: "g++"}}}
	u.Reindex(source)

	select {
	case <-parser.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first job to start")
	}
	assert.True(t, u.Busy())

	source2 := sourceinfo.Information{SourceFile: "/tmp/a.cpp", Builds: []sourceinfo.Build{{Compiler: "g++", Defines: []string{"X"}}}}
	// Reindex blocks stopping+waiting for job1 (which aborts almost
	// immediately once stopped) before submitting job2, which then blocks
	// on the same parser; release lets job2 run to completion.
	u.Reindex(source2)
	close(parser.release)

	// Only job2 (the survivor) reports completion: job1 was superseded
	// before it finished and its completion is absorbed silently, so the
	// net effect of this reindex-while-busy sequence is exactly one
	// Finished call, not two.
	select {
	case <-finishedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second job to finish")
	}

	select {
	case <-finishedCh:
		t.Fatal("superseded job must not report its own completion")
	case <-time.After(100 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, finishedCount)
}

// TestUnitReindexReleasesSupersededJobsClaimedFiles reproduces spec §7.2: a
// superseded job's own claims in the globally-seen set (made before it was
// cut off, never reaching Union) must be released so the replacement job can
// legitimately re-claim and re-index the same header, rather than finding it
// permanently claimed by a job whose staging was thrown away.
func TestUnitReindexReleasesSupersededJobsClaimedFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	finishedCh := make(chan struct{}, 4)
	parser := newBlockingParser()
	u, db, lock, _ := newTestUnit(t, parser, func(fileID location.FileID, dirty bool) {
		finishedCh <- struct{}{}
	})

	source := sourceinfo.Information{SourceFile: "/tmp/a.cpp", Builds: []sourceinfo.Build{{Compiler: "g++"}}}
	u.Reindex(source)

	select {
	case <-parser.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first job to start")
	}

	source2 := sourceinfo.Information{SourceFile: "/tmp/a.cpp", Builds: []sourceinfo.Build{{Compiler: "g++", Defines: []string{"X"}}}}
	u.Reindex(source2)
	close(parser.release)

	select {
	case <-finishedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the replacement job to finish")
	}

	lock.Lock()
	usrs := db.USRsForName("T")
	lock.Unlock()
	assert.Len(t, usrs, 1, "the replacement job must be able to re-claim and re-index the header its superseded predecessor had already claimed")
}
