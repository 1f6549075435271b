// Package errx provides the typed error taxonomy used across the indexer
// (§7 ERROR HANDLING DESIGN): parse failures, aborted jobs, corrupt
// persistent state, unknown-path query misses, filesystem removal during
// restore, and fix-it rejection. Each type carries the underlying error and
// unwraps for errors.Is/As, mirroring the teacher's internal/errors package.
package errx

import (
	"fmt"
	"time"
)

// Kind classifies an error per the taxonomy in spec §7.
type Kind string

const (
	KindParseFailure    Kind = "parse_failure"
	KindJobAborted      Kind = "job_aborted"
	KindCorruptState    Kind = "corrupt_state"
	KindUnknownPath     Kind = "unknown_path"
	KindFileRemoved     Kind = "file_removed"
	KindFixItRejected   Kind = "fixit_rejected"
	KindConfig          Kind = "config"
)

// IndexError is the common error shape for the indexing pipeline: a kind,
// an optional source path, an operation name, and the wrapped cause.
type IndexError struct {
	Kind       Kind
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// New creates an IndexError of the given kind.
func New(kind Kind, op string, err error) *IndexError {
	return &IndexError{Kind: kind, Operation: op, Underlying: err, Timestamp: time.Now()}
}

// WithPath attaches the file path the error pertains to.
func (e *IndexError) WithPath(path string) *IndexError {
	e.Path = path
	return e
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s failed for %s: %v", e.Kind, e.Operation, e.Path, e.Underlying)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Kind, e.Operation, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *IndexError) Unwrap() error {
	return e.Underlying
}

// ParseFailure wraps a parser (tree-sitter/libclang-equivalent) failure.
// Per §7.1, staging is discarded on this error and the job falls back from
// reparse to fresh parse before giving up.
func ParseFailure(path string, err error) *IndexError {
	return New(KindParseFailure, "parse", err).WithPath(path)
}

// JobAborted indicates the job's stopped flag was observed; §7.2.
func JobAborted(path string) *IndexError {
	return New(KindJobAborted, "index", nil).WithPath(path)
}

// CorruptState indicates a version or size mismatch in the save file; §7.3.
func CorruptState(path string, err error) *IndexError {
	return New(KindCorruptState, "restore", err).WithPath(path)
}

// FileRemoved indicates a source entry's file vanished during restore; §7.5.
func FileRemoved(path string) *IndexError {
	return New(KindFileRemoved, "restore", nil).WithPath(path)
}

// FixItRejected indicates a fix-it's replacement text matched the configured
// ignore regex; §7.6.
func FixItRejected(path, text string) *IndexError {
	e := New(KindFixItRejected, "fixit", fmt.Errorf("matched ignore pattern: %q", text))
	return e.WithPath(path)
}

// ConfigErr wraps a configuration validation failure.
type ConfigErr struct {
	Field      string
	Value      string
	Underlying error
}

func NewConfigErr(field, value string, err error) *ConfigErr {
	return &ConfigErr{Field: field, Value: value, Underlying: err}
}

func (e *ConfigErr) Error() string {
	return fmt.Sprintf("config error for field %s (value %q): %v", e.Field, e.Value, e.Underlying)
}

func (e *ConfigErr) Unwrap() error {
	return e.Underlying
}
