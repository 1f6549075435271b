package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForEvent(t *testing.T, w *Watcher, kind EventKind, path string) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			require.True(t, ok, "event channel closed before %s arrived", kind)
			if ev.Kind == kind && filepath.Clean(ev.Path) == filepath.Clean(path) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s on %s", kind, path)
		}
	}
}

func TestWatcherReportsCreatedFile(t *testing.T) {
	dir := t.TempDir()
	w, err := New()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Add(dir))

	path := filepath.Join(dir, "a.cpp")
	require.NoError(t, os.WriteFile(path, []byte("int f();\n"), 0644))

	waitForEvent(t, w, Created, path)
}

func TestWatcherReportsModifiedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.cpp")
	require.NoError(t, os.WriteFile(path, []byte("int f();\n"), 0644))

	w, err := New()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(dir))

	require.NoError(t, os.WriteFile(path, []byte("int f() { return 1; }\n"), 0644))

	waitForEvent(t, w, Modified, path)
}

func TestWatcherReportsRemovedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.cpp")
	require.NoError(t, os.WriteFile(path, []byte("int f();\n"), 0644))

	w, err := New()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(dir))

	require.NoError(t, os.Remove(path))

	waitForEvent(t, w, Removed, path)
}

func TestRunDeliversEventsUntilContextCancelled(t *testing.T) {
	dir := t.TempDir()
	w, err := New()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(dir))

	ctx, cancel := context.WithCancel(t.Context())
	var got []Event
	done := make(chan struct{})
	go func() {
		w.Run(ctx, func(ev Event) { got = append(got, ev) })
		close(done)
	}()

	path := filepath.Join(dir, "b.cpp")
	require.NoError(t, os.WriteFile(path, []byte("int g();\n"), 0644))

	deadline := time.After(5 * time.Second)
	for len(got) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for Run to deliver an event")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	assert.Equal(t, path, got[0].Path)
}

func TestTranslateIgnoresUnmappedOps(t *testing.T) {
	_, ok := translate(0)
	assert.False(t, ok)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "modified", Modified.String())
	assert.Equal(t, "removed", Removed.String())
}
