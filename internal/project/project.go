// Package project implements the coordinator of spec §4.G: it owns the
// symbol database, the thread pool, one Unit per tracked source file, the
// pending-job counter, and the save/sync/modified-file debounce timers. It
// is the only component that imports both internal/unit and
// internal/indexjob, wiring their Deps with closures rather than letting
// either import this package back (spec §9 "cyclic ownership").
package project

import (
	"bytes"
	"context"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rtagsd/rtagsd/internal/config"
	"github.com/rtagsd/rtagsd/internal/diag"
	"github.com/rtagsd/rtagsd/internal/indexjob"
	"github.com/rtagsd/rtagsd/internal/location"
	"github.com/rtagsd/rtagsd/internal/logx"
	"github.com/rtagsd/rtagsd/internal/match"
	"github.com/rtagsd/rtagsd/internal/parseapi"
	"github.com/rtagsd/rtagsd/internal/seen"
	"github.com/rtagsd/rtagsd/internal/sourceinfo"
	"github.com/rtagsd/rtagsd/internal/symboldb"
	"github.com/rtagsd/rtagsd/internal/tucache"
	"github.com/rtagsd/rtagsd/internal/unit"
	"github.com/rtagsd/rtagsd/internal/usr"
	"github.com/rtagsd/rtagsd/internal/workpool"
)

// JobType distinguishes a request that came from a build description
// (Makefile) from one raised by the dirty engine, which onJobFinished uses
// to pick the sync timer's debounce (spec §4.G: "0 if the finishing job was
// a Dirty job"). This is a request-shape concept tracked by Project, not to
// be confused with symboldb.MergeDirty, which indexjob sets on every unit's
// first build regardless of JobType.
type JobType int

const (
	JobTypeMakefile JobType = iota
	JobTypeDirty
)

// Project is one indexed source tree: the database, its thread pool, and
// the Units driving individual files (spec §4.G).
type Project struct {
	cfg    *config.Config
	files  *location.Registry
	usrs   *usr.Interner
	seen   *seen.Set
	cache  *tucache.Cache
	pool   *workpool.Pool
	logger *logx.Logger
	diag   *diag.Emitter
	parser parseapi.Parser

	mu          sync.Mutex // the project mutex (spec §5)
	db          *symboldb.Database
	units       map[location.FileID]*unit.Unit
	jobTypes    map[location.FileID]JobType
	pendingJobs int
	doneJobs    int
	totalJobs   int
	saveTimer   *time.Timer
	syncTimer   *time.Timer
	onSave      func()
	onSync      func()

	modMu         sync.Mutex
	modifiedFiles map[location.FileID]bool
	modTimer      *time.Timer
}

// New creates an empty Project. ctx bounds the lifetime of its worker pool.
func New(ctx context.Context, cfg *config.Config, parser parseapi.Parser, logger *logx.Logger) *Project {
	return newWithState(ctx, cfg, parser, logger, location.NewRegistry(), usr.New(), symboldb.New())
}

// NewFromRestore builds a Project around a database, file registry, and USR
// interner already loaded by internal/persist.Restore, then immediately
// replays the modified set that restore's mtime walk produced through the
// same dirty-closure path a live file-watcher burst uses (spec §6, "on
// restore, reindex every file the mtime walk marked stale"; §7.5).
func NewFromRestore(ctx context.Context, cfg *config.Config, parser parseapi.Parser, logger *logx.Logger, files *location.Registry, usrs *usr.Interner, db *symboldb.Database, modified map[location.FileID]bool) *Project {
	p := newWithState(ctx, cfg, parser, logger, files, usrs, db)
	if len(modified) == 0 {
		return p
	}
	p.modMu.Lock()
	for f := range modified {
		p.modifiedFiles[f] = true
	}
	p.modMu.Unlock()
	p.startDirtyJobs()
	return p
}

func newWithState(ctx context.Context, cfg *config.Config, parser parseapi.Parser, logger *logx.Logger, files *location.Registry, usrs *usr.Interner, db *symboldb.Database) *Project {
	if logger == nil {
		logger = logx.Default()
	}
	return &Project{
		cfg:           cfg,
		files:         files,
		usrs:          usrs,
		seen:          seen.New(),
		cache:         tucache.New(cfg.Index.CompletionCacheSize),
		pool:          workpool.New(ctx, cfg.Index.ThreadPoolSize),
		logger:        logger,
		diag:          diag.New(logger, printfIgnoreRegex(cfg)),
		parser:        parser,
		db:            db,
		units:         make(map[location.FileID]*unit.Unit),
		jobTypes:      make(map[location.FileID]JobType),
		modifiedFiles: make(map[location.FileID]bool),
	}
}

// printfFixitIgnorePattern matches clang's "use specifier '%s' ..." family
// of printf-format fix-its, the ones IgnorePrintfFixits exists to suppress.
var printfFixitIgnorePattern = regexp.MustCompile(`%[-+ #0]*[0-9]*(\.[0-9]+)?[hlLqjzt]*[diouxXeEfFgGaAcspn%]`)

func printfIgnoreRegex(cfg *config.Config) *regexp.Regexp {
	if !cfg.Index.IgnorePrintfFixits {
		return nil
	}
	return printfFixitIgnorePattern
}

// Database exposes the underlying symbol database for query helpers that
// live alongside Project (queries.go) and for internal/persist to save.
func (p *Project) Database() *symboldb.Database { return p.db }

// Files returns the FileID registry backing this project.
func (p *Project) Files() *location.Registry { return p.files }

// USRs returns the USR interner backing this project.
func (p *Project) USRs() *usr.Interner { return p.usrs }

// SetOnSave registers the callback invoked when the save debounce timer
// fires (spec §4.G "stamp elapsed time and trigger save()"). Persistence
// itself lives outside this package (internal/persist) to avoid a cycle.
func (p *Project) SetOnSave(fn func()) {
	p.mu.Lock()
	p.onSave = fn
	p.mu.Unlock()
}

// SetOnSync registers the callback invoked when the sync debounce timer
// fires (spec §4.G).
func (p *Project) SetOnSync(fn func()) {
	p.mu.Lock()
	p.onSync = fn
	p.mu.Unlock()
}

// IsIndexing reports whether any job is currently in flight (spec §4.G
// "isIndexing() == (pendingJobs > 0)").
func (p *Project) IsIndexing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingJobs > 0
}

// filterAllows applies the RTAGS_FILE_FILTER gate (spec §6 Environment):
// when set and the project is configured to respect it, requests for a
// path not containing the filter substring are rejected.
func (p *Project) filterAllows(path string) bool {
	if !p.cfg.Index.RespectFileFilterEnv {
		return true
	}
	filter := os.Getenv("RTAGS_FILE_FILTER")
	if filter == "" {
		return true
	}
	return strings.Contains(path, filter)
}

// Index implements spec §4.G's index(sourceInfo, type): dedup by fileId. If
// that file's Unit already has a job in flight, the call is coalesced into
// it (Unit.Reindex's own pendingNext queuing implements the "mark for
// abort-on-start and queue as pending" behavior); otherwise a new job is
// counted and submitted.
func (p *Project) Index(info sourceinfo.Information, jobType JobType) {
	if !p.filterAllows(info.SourceFile) {
		return
	}
	fileID := p.files.Intern(info.SourceFile)

	p.mu.Lock()
	u, ok := p.units[fileID]
	if !ok {
		u = p.newUnitLocked(fileID)
		p.units[fileID] = u
	}
	p.jobTypes[fileID] = jobType
	p.db.SetSource(fileID, info)
	p.mu.Unlock()

	wasBusy := u.Busy()

	p.mu.Lock()
	p.totalJobs++
	if !wasBusy {
		p.pendingJobs++
	}
	p.mu.Unlock()

	u.Reindex(info)
}

// IndexPath implements spec §4.G's index(path, compiler, args): it resolves
// compiler through the wrapper-bypass search (compiler.go), and if an
// existing source entry already has the same build recorded, reports "not
// dirty" and submits nothing. Otherwise it appends or replaces the build
// per AllowMultipleBuilds and submits a Makefile-type index request.
func (p *Project) IndexPath(path, compiler string, args, defines, includePaths, includes []string) bool {
	if !p.filterAllows(path) {
		return false
	}
	build := sourceinfo.Build{
		Compiler:     resolveCompiler(compiler),
		Args:         args,
		Defines:      defines,
		IncludePaths: includePaths,
		Includes:     includes,
	}

	fileID := p.files.Intern(path)
	p.mu.Lock()
	info, ok := p.db.Source(fileID)
	if ok {
		for _, b := range info.Builds {
			if b.Equal(build) {
				p.mu.Unlock()
				return false
			}
		}
		if p.cfg.Index.AllowMultipleBuilds {
			info.Builds = append(info.Builds, build)
		} else {
			info.Builds = []sourceinfo.Build{build}
		}
	} else {
		info = sourceinfo.Information{SourceFile: path, Builds: []sourceinfo.Build{build}}
	}
	p.mu.Unlock()

	p.Index(info, JobTypeMakefile)
	return true
}

func (p *Project) newUnitLocked(fileID location.FileID) *unit.Unit {
	deps := unit.Deps{
		DB:   p.db,
		Lock: &p.mu,
		Seen: p.seen,
		Pool: p.pool,
		JobDeps: indexjob.Deps{
			Parser: p.parser,
			Cache:  p.cache,
			Files:  p.files,
			USRs:   p.usrs,
			Seen:   p.seen,
			Diag:   p.diag,
		},
		XML:      p.emitXML,
		Finished: p.onJobFinished,
	}
	return unit.New(deps, fileID)
}

// emitXML routes a finished job's checkstyle envelope to the
// CompilationErrorXml channel, if enabled.
func (p *Project) emitXML(data []byte) {
	p.logger.Channelf(logx.ChannelCompilationErrorXml, "%s", data)
}

// onJobFinished implements the non-aborted half of spec §4.G's
// onJobFinished(job): decrement pendingJobs, log progress, and once the job
// set empties, arm the sync timer (0 delay for a Dirty-type request) and
// the save timer.
func (p *Project) onJobFinished(fileID location.FileID, dirtyJob bool) {
	p.mu.Lock()
	p.pendingJobs--
	pending := p.pendingJobs
	p.doneJobs++
	done, total := p.doneJobs, p.totalJobs
	jobType := p.jobTypes[fileID]
	if pending == 0 {
		p.doneJobs, p.totalJobs = 0, 0
	}
	p.mu.Unlock()

	var buf bytes.Buffer
	diag.EmitProgress(&buf, done, total)
	p.logger.Channelf(logx.ChannelCompilationErrorXml, "%s", buf.Bytes())
	p.logger.Debugf("indexed %s (%d/%d)", p.files.Path(fileID), done, total)

	if pending > 0 {
		return
	}

	syncDelay := p.cfg.Timers.SyncTimeout
	if jobType == JobTypeDirty {
		syncDelay = 0
	}
	p.scheduleSync(syncDelay)
	p.scheduleSave(p.cfg.Timers.SaveTimeout)
}

func (p *Project) scheduleSync(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.syncTimer != nil {
		p.syncTimer.Stop()
	}
	p.syncTimer = time.AfterFunc(delay, p.runSync)
}

func (p *Project) runSync() {
	p.mu.Lock()
	fn := p.onSync
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *Project) scheduleSave(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveTimer != nil {
		p.saveTimer.Stop()
	}
	p.saveTimer = time.AfterFunc(delay, p.runSave)
}

func (p *Project) runSave() {
	p.mu.Lock()
	fn := p.onSave
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Reindex implements spec §6's reindex(Match): every tracked source file
// whose path matches m is resubmitted with its recorded SourceInformation,
// and the count of files marked dirty is returned.
func (p *Project) Reindex(m match.Match) int {
	p.mu.Lock()
	var jobs []sourceinfo.Information
	for fileID, info := range p.db.Sources() {
		if !m.Match(info.SourceFile) {
			continue
		}
		jobs = append(jobs, info)
	}
	p.mu.Unlock()

	for _, info := range jobs {
		p.Index(info, JobTypeDirty)
	}
	return len(jobs)
}

// Remove implements spec §6's remove(Match): drops every tracked source
// entry whose path matches m, cancels any in-flight job for it, and
// returns the count removed.
func (p *Project) Remove(m match.Match) int {
	p.mu.Lock()
	var fileIDs []location.FileID
	var units []*unit.Unit
	for fileID, info := range p.db.Sources() {
		if !m.Match(info.SourceFile) {
			continue
		}
		fileIDs = append(fileIDs, fileID)
		if u, ok := p.units[fileID]; ok {
			units = append(units, u)
			delete(p.units, fileID)
		}
	}
	for _, fileID := range fileIDs {
		p.db.RemoveSource(fileID)
	}
	p.mu.Unlock()

	for _, u := range units {
		u.Cancel()
	}
	return len(fileIDs)
}
