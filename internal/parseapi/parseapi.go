// Package parseapi is the opaque parser interface standing in for libclang
// (spec §1 Out-of-scope, §9 design note "callback reentrancy into caller
// state"). A Parser walks one translation unit and reports declarations,
// references, includes, and diagnostics through a Sink the caller owns; the
// parser itself never touches project state and never blocks on a lock.
package parseapi

import "github.com/rtagsd/rtagsd/internal/symboldb"

// SourceLocation is a raw (path, line, column, byte offset) position as
// reported by the parser, before FileID interning, which the caller (the
// indexer callbacks of spec §4.E) performs.
type SourceLocation struct {
	Path       string
	Line       uint32
	Column     uint32
	ByteOffset uint32
}

// Decl is one declDeclaration/definition event, matching the fields the
// indexDeclaration callback needs (spec §4.E).
type Decl struct {
	USR           string
	Kind          symboldb.Kind
	Qualified     []string // e.g. ["N", "S", "f"] for N::S::f
	Location      SourceLocation
	EndByteOffset uint32
	IsDefinition  bool
	IsTypedef     bool     // always indexed, §4.E typedef workaround
	Overrides     []string // USRs of any virtual methods this overrides
}

// Ref is one entity-reference event (indexEntityReference, spec §4.E).
type Ref struct {
	USR           string
	Location      SourceLocation
	EndByteOffset uint32
}

// Severity maps libclang diagnostic severities (spec §4.I).
type Severity int

const (
	SeverityIgnored Severity = iota
	SeverityNote
	SeverityWarning
	SeverityError
	SeverityFatal
)

// FixIt is one replacement suggestion attached to a Diagnostic.
type FixIt struct {
	StartOffset int
	EndOffset   int
	Text        string
}

// Diagnostic is one parser diagnostic, with optional fix-its (spec §4.I).
type Diagnostic struct {
	Severity    Severity
	Message     string
	Path        string
	Line        int
	Column      int
	StartOffset int
	EndOffset   int
	FixIts      []FixIt
}

// Options mirrors the libclang index-source-file option flags named in
// spec §4.E step 3.
type Options struct {
	IndexFunctionLocalSymbols           bool
	IndexImplicitTemplateInstantiations bool
}

// Sink is the callback surface a Parser invokes while indexing one
// translation unit. Implementations mutate only caller-owned staging state
// (internal/indexjob.callbackSink wraps a symboldb.Staging) and must not
// acquire the project lock, per the design note in spec §9.
type Sink interface {
	// EnteredMainFile records the TU's main source file.
	EnteredMainFile(path string)
	// IncludedFile records that the #include at hashLoc pulled in
	// includedPath.
	IncludedFile(hashLoc SourceLocation, includedPath string)
	// IndexDeclaration reports one declaration or definition.
	IndexDeclaration(d Decl)
	// IndexEntityReference reports one reference to a previously declared
	// entity.
	IndexEntityReference(r Ref)
	// AbortRequested is polled by the parser between chunks of work so a
	// stop() request unwinds the parse cleanly (spec §5 "Suspension
	// points").
	AbortRequested() bool
}

// TranslationUnit is an opaque parsed-unit handle. Exactly one holder owns
// it at a time: a job, the cache, or a completion consumer (spec §3/§9).
// Dispose releases any resources the parser holds for it.
type TranslationUnit interface {
	Dispose()
}

// Result is returned by IndexSourceFile/Reparse.
type Result struct {
	TU          TranslationUnit
	Diagnostics []Diagnostic
	Err         error
}

// Parser is the opaque parser surface (libclang's index-source-file,
// index-translation-unit, and reparse entry points, spec §1/§5).
type Parser interface {
	// IndexSourceFile performs a fresh parse of path with argv, invoking
	// sink for every declaration/reference/include discovered.
	IndexSourceFile(path string, argv []string, opts Options, sink Sink) Result
	// Reparse re-indexes an existing TranslationUnit, reusing its cached
	// parse state where the underlying parser supports incremental reparse.
	Reparse(tu TranslationUnit, path string, argv []string, opts Options, sink Sink) Result
}
