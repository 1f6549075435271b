// Package indexjob drives one parse (fresh or reparse) of one source file
// with one build configuration (spec §4.E "Parse job"). A Job receives
// libclang-equivalent indexer callbacks into a private staging buffer and,
// once finished, hands that buffer to a caller-supplied merge function; it
// never imports internal/unit or internal/project, so the merge and
// completion hooks are passed in as plain closures (spec §9 "cyclic
// ownership": the job captures what it needs and never walks back to its
// owner except through the documented entry point).
package indexjob

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/rtagsd/rtagsd/internal/diag"
	"github.com/rtagsd/rtagsd/internal/location"
	"github.com/rtagsd/rtagsd/internal/parseapi"
	"github.com/rtagsd/rtagsd/internal/seen"
	"github.com/rtagsd/rtagsd/internal/sourceinfo"
	"github.com/rtagsd/rtagsd/internal/symboldb"
	"github.com/rtagsd/rtagsd/internal/tucache"
	"github.com/rtagsd/rtagsd/internal/usr"
)

// Deps bundles the process-wide and project-wide collaborators a Job needs.
// Every field stands alone under its own lock (spec §5); the Job itself
// never acquires the project mutex.
type Deps struct {
	Parser parseapi.Parser
	Cache  *tucache.Cache
	Files  *location.Registry
	USRs   *usr.Interner
	Seen   *seen.Set
	Diag   *diag.Emitter
}

// MergeFunc applies one build's staging buffer into the project database
// under the project mutex, implementing Unit.merge (spec §4.F). The caller
// (internal/unit) is responsible for the dirty-then-union ordering and the
// pendingJobs bookkeeping; Job only decides which MergeMode to request.
type MergeFunc func(staging *symboldb.Staging, mode symboldb.MergeMode)

// XMLSink receives the checkstyle envelope produced after a job finishes
// (spec §4.I), typically the project's CompilationErrorXml channel writer.
type XMLSink func(data []byte)

// Job drives one Unit's (re)index request across every build in its
// SourceInformation.
type Job struct {
	deps   Deps
	source sourceinfo.Information
	merge  MergeFunc
	xml    XMLSink

	mu       sync.Mutex // guards stopped/hasDiags/claimed, per spec §5 "Job mutex"
	stopped  bool
	hasDiags bool
	claimed  map[location.FileID]bool

	finished chan struct{}
}

// New creates a Job for source. reparse is determined by the caller
// (Unit.reindex, spec §4.F step 3: reparse = newSourceInfo == sourceInformation)
// and is carried on Run via the reparse parameter rather than stored, since
// a Job is single-use.
func New(deps Deps, source sourceinfo.Information, merge MergeFunc, xml XMLSink) *Job {
	return &Job{
		deps:     deps,
		source:   source,
		merge:    merge,
		xml:      xml,
		finished: make(chan struct{}),
	}
}

// Stop requests cancellation (spec §4.E "Abort protocol"). The next
// AbortRequested poll inside a running parse observes it and the parse
// unwinds; Stop is safe to call before Run as well, in which case Run
// returns immediately without parsing.
func (j *Job) Stop() {
	j.mu.Lock()
	j.stopped = true
	j.mu.Unlock()
}

func (j *Job) stoppedNow() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stopped
}

// HasDiags reports whether any build produced a diagnostic, guarded by the
// job mutex alongside stopped (spec §5).
func (j *Job) HasDiags() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.hasDiags
}

func (j *Job) setHasDiags() {
	j.mu.Lock()
	j.hasDiags = true
	j.mu.Unlock()
}

// recordClaimed folds one build's successful claims into the job's running
// total, so a caller that aborts this job mid-run can still find out which
// fileIDs it personally claimed in the globally-seen set.
func (j *Job) recordClaimed(staging *symboldb.Staging) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for fileID, ok := range staging.LocalSeen {
		if !ok {
			continue
		}
		if j.claimed == nil {
			j.claimed = make(map[location.FileID]bool)
		}
		j.claimed[fileID] = true
	}
}

// ClaimedFiles returns every fileID this job successfully claimed in the
// globally-seen set across every build it ran, win or lose. The original's
// mVisitedFiles -= job->visitedFiles() releases exactly this set when a job
// is superseded before its staging ever reaches Union; a fileID this job
// merely found already claimed by someone else is never included, since
// releasing it would give away a claim this job never owned.
func (j *Job) ClaimedFiles() []location.FileID {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]location.FileID, 0, len(j.claimed))
	for fileID := range j.claimed {
		out = append(out, fileID)
	}
	return out
}

// Finished is closed when Run returns, letting a caller implement wait()
// (spec §4.E step 5 / §5 "Unit mutex guards... the done/wait pair") without
// Job itself taking the Unit mutex.
func (j *Job) Finished() <-chan struct{} {
	return j.finished
}

// Run executes the job's algorithm (spec §4.E): on reparse, try the cache
// first and fall back to a fresh parse of every build on a miss or parser
// failure; after each build, merge its staging with Dirty (first build) or
// Add (later builds); once every build has run, emit the diagnostic XML
// envelope (an empty "all clean" stanza if nothing was recorded).
func (j *Job) Run(reparse bool) {
	defer close(j.finished)

	if j.stoppedNow() {
		return
	}

	path := j.source.SourceFile
	var depPaths []string
	var report map[string][]diag.Entry

	if reparse && len(j.source.Builds) > 0 {
		if j.runReparse(path, j.source.Builds[0], &depPaths, &report) {
			j.emitXML(path, depPaths, report)
			return
		}
	}

	firstBuild := true
	for _, build := range j.source.Builds {
		if j.stoppedNow() {
			break
		}
		j.runFreshBuild(path, build, firstBuild, &depPaths, &report)
		firstBuild = false
	}

	j.emitXML(path, depPaths, report)
}

func (j *Job) runReparse(path string, build sourceinfo.Build, depPaths *[]string, report *map[string][]diag.Entry) bool {
	key := cacheKey(path, build)
	tu, ok := j.deps.Cache.Get(key)
	if !ok {
		return false
	}

	staging := symboldb.NewStaging()
	sink := &callbackSink{files: j.deps.Files, usrs: j.deps.USRs, seen: j.deps.Seen, staging: staging, abort: j.stoppedNow}

	res := j.deps.Parser.Reparse(tu, path, assembleArgv(build), parseapi.Options{
		IndexFunctionLocalSymbols:           true,
		IndexImplicitTemplateInstantiations: true,
	}, sink)
	if res.Err != nil {
		// §7.1: staging discarded, fall back to fresh parse. Any claims the
		// sink already made in the globally-seen set before the error (e.g.
		// an abort mid-parse) are real regardless, so they still count.
		j.recordClaimed(staging)
		return false
	}
	if res.TU != nil {
		j.deps.Cache.Put(key, res.TU)
	}

	j.collectDiagnostics(staging, res.Diagnostics, report)
	*depPaths = append(*depPaths, j.dependencyPaths(staging)...)
	j.recordClaimed(staging)

	mode := symboldb.MergeDirty
	if len(staging.Incs) == 0 {
		// Policy (§4.F): a reparse that produced no include graph at all
		// preserves the previously known include edges.
		mode |= symboldb.MergeDontDirtyDeps
	}
	j.merge(staging, mode)
	return true
}

func (j *Job) runFreshBuild(path string, build sourceinfo.Build, firstBuild bool, depPaths *[]string, report *map[string][]diag.Entry) {
	staging := symboldb.NewStaging()
	sink := &callbackSink{files: j.deps.Files, usrs: j.deps.USRs, seen: j.deps.Seen, staging: staging, abort: j.stoppedNow}

	argv := assembleArgv(build)
	res := j.deps.Parser.IndexSourceFile(path, argv, parseapi.Options{
		IndexFunctionLocalSymbols:           true,
		IndexImplicitTemplateInstantiations: true,
	}, sink)

	if res.Err != nil {
		// §7.1: records no results for this build, still counted as done. The
		// sink may have already claimed files in the globally-seen set before
		// the error cut it off, and those claims still need to be recorded.
		j.recordClaimed(staging)
		return
	}
	if res.TU != nil {
		j.deps.Cache.Put(cacheKey(path, build), res.TU)
	}

	j.collectDiagnostics(staging, res.Diagnostics, report)
	*depPaths = append(*depPaths, j.dependencyPaths(staging)...)
	j.recordClaimed(staging)

	mode := symboldb.MergeAdd
	if firstBuild {
		mode = symboldb.MergeDirty
	}
	j.merge(staging, mode)
}

func (j *Job) collectDiagnostics(staging *symboldb.Staging, diags []parseapi.Diagnostic, report *map[string][]diag.Entry) {
	r := j.deps.Diag.Process(staging, diags)
	if staging.HasDiags {
		j.setHasDiags()
	}
	if len(r) == 0 {
		return
	}
	if *report == nil {
		*report = make(map[string][]diag.Entry)
	}
	for path, entries := range r {
		(*report)[path] = append((*report)[path], entries...)
	}
}

// dependencyPaths translates one build's staging Depends set (for the job's
// main file) back into paths, for the transitive-dependency list the XML
// envelope must cover (spec §4.I "covering this file and all its
// transitive dependencies").
func (j *Job) dependencyPaths(staging *symboldb.Staging) []string {
	var out []string
	seenPath := map[string]bool{}
	deps := staging.Depends[staging.MainFile]
	for fileID := range deps {
		p := j.deps.Files.Path(fileID)
		if p == "" || seenPath[p] {
			continue
		}
		seenPath[p] = true
		out = append(out, p)
	}
	return out
}

func (j *Job) emitXML(path string, depPaths []string, report map[string][]diag.Entry) {
	if j.xml == nil {
		return
	}
	var buf bytes.Buffer
	diag.EmitXML(&buf, path, depPaths, report)
	j.xml(buf.Bytes())
}

// cacheKey derives the tucache.Key for one (path, build) pair, joining args
// the same way the teacher hashes its cache keys (order-sensitive).
func cacheKey(path string, build sourceinfo.Build) tucache.Key {
	return tucache.Key{Path: path, Args: strings.Join(assembleArgv(build), "\x00")}
}

// assembleArgv builds the compiler argument vector for one build per spec
// §4.E step 3: the build's own args, then -D for defines, -I for include
// dirs, -include for forced includes. No bundled include path is added.
func assembleArgv(build sourceinfo.Build) []string {
	argv := make([]string, 0, len(build.Args)+len(build.Defines)+len(build.IncludePaths)+len(build.Includes)*2)
	argv = append(argv, build.Args...)
	for _, d := range build.Defines {
		argv = append(argv, fmt.Sprintf("-D%s", d))
	}
	for _, p := range build.IncludePaths {
		argv = append(argv, "-I"+p)
	}
	for _, inc := range build.Includes {
		argv = append(argv, "-include", inc)
	}
	return argv
}
