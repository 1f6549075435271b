package project

import (
	"sync"
	"time"

	"github.com/rtagsd/rtagsd/internal/parseapi"
	"github.com/rtagsd/rtagsd/internal/symboldb"
)

type stubTU struct{}

func (stubTU) Dispose() {}

// stubParser reports one definition for a deterministic USR derived from
// the source path, plus any includes set on it, so project
// tests can exercise dependency and dirty propagation without tree-sitter.
type stubParser struct {
	mu       sync.Mutex
	calls    int
	includes map[string][]string // source path -> header paths to report as included
}

func (p *stubParser) IndexSourceFile(path string, argv []string, opts parseapi.Options, sink parseapi.Sink) parseapi.Result {
	p.mu.Lock()
	p.calls++
	includes := p.includes[path]
	p.mu.Unlock()

	sink.EnteredMainFile(path)
	for _, h := range includes {
		sink.IncludedFile(parseapi.SourceLocation{Path: path, Line: 1, Column: 1}, h)
	}
	sink.IndexDeclaration(parseapi.Decl{
		USR:          "usr:" + path + "#fn",
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

func (p *stubParser) calledTimes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// blockingParser holds IndexSourceFile open until released or aborted, so a
// test can deterministically catch a job mid-flight and submit a second
// request for the same file before the first one finishes.
type blockingParser struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingParser() *blockingParser {
	return &blockingParser{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (p *blockingParser) IndexSourceFile(path string, argv []string, opts parseapi.Options, sink parseapi.Sink) parseapi.Result {
	sink.EnteredMainFile(path)
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
			return parseapi.Result{Err: errAborted}
		}
		time.Sleep(time.Millisecond)
	}
}

func (p *blockingParser) Reparse(tu parseapi.TranslationUnit, path string, argv []string, opts parseapi.Options, sink parseapi.Sink) parseapi.Result {
	return p.IndexSourceFile(path, argv, opts, sink)
}

// pendingJobsSnapshot reads p.pendingJobs under the project lock, for tests
// that need to observe the counter directly rather than through IsIndexing.
func (p *Project) pendingJobsSnapshot() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingJobs
}

var errAborted = &abortedErr{}

type abortedErr struct{}

func (*abortedErr) Error() string { return "aborted" }
