// Package watch is the file-watcher event source spec §1 names as an
// external collaborator of the core ("a stream of (path, event) pairs"),
// built on fsnotify/fsnotify rather than the core's opaque interface, for
// feeding internal/project's dirty engine (spec §4.H).
package watch

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// EventKind classifies a raw filesystem event into the three kinds the
// dirty engine distinguishes (spec §4.H).
type EventKind int

const (
	Created EventKind = iota
	Modified
	Removed
)

func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Removed:
		return "removed"
	default:
		return "modified"
	}
}

// Event is one (path, event) pair.
type Event struct {
	Path string
	Kind EventKind
}

// Watcher wraps fsnotify.Watcher, translating its Op bitset into Event
// values and draining errors onto a separate channel so callers never block
// fsnotify's internal event loop.
type Watcher struct {
	fs     *fsnotify.Watcher
	events chan Event
	errs   chan error
}

// New starts a Watcher with no paths added yet.
func New() (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fs: fs, events: make(chan Event, 64), errs: make(chan error, 8)}
	go w.pump()
	return w, nil
}

func (w *Watcher) pump() {
	defer close(w.events)
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			kind, ok := translate(ev.Op)
			if !ok {
				continue
			}
			w.events <- Event{Path: ev.Name, Kind: kind}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

func translate(op fsnotify.Op) (EventKind, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return Created, true
	case op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return Removed, true
	case op&fsnotify.Write != 0:
		return Modified, true
	default:
		return 0, false
	}
}

// Add watches path (a file or directory) for changes.
func (w *Watcher) Add(path string) error { return w.fs.Add(path) }

// Remove stops watching path.
func (w *Watcher) Remove(path string) error { return w.fs.Remove(path) }

// Events returns the translated event stream.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the fsnotify error stream.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error { return w.fs.Close() }

// Run delivers events to fn until ctx is cancelled or the event channel
// closes, for a daemon's main loop to feed into Project.FileModified.
func (w *Watcher) Run(ctx context.Context, fn func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.events:
			if !ok {
				return
			}
			fn(ev)
		}
	}
}
