package tucache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTU struct {
	disposed bool
}

func (f *fakeTU) Dispose() { f.disposed = true }

func TestGetRemovesEntryOnHit(t *testing.T) {
	c := New(5)
	key := Key{Path: "/tmp/a.cpp", Args: "g++"}
	tu := &fakeTU{}
	c.Put(key, tu)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Same(t, tu, got)
	assert.Equal(t, 0, c.Len())

	_, ok = c.Get(key)
	assert.False(t, ok, "Get must remove the entry, not just peek at it")
}

func TestPutEvictsOldestPastBound(t *testing.T) {
	c := New(2)
	first := &fakeTU{}
	second := &fakeTU{}
	third := &fakeTU{}

	c.Put(Key{Path: "/tmp/a.cpp"}, first)
	c.Put(Key{Path: "/tmp/b.cpp"}, second)
	c.Put(Key{Path: "/tmp/c.cpp"}, third)

	assert.Equal(t, 2, c.Len())
	assert.True(t, first.disposed, "the oldest entry must be disposed once the bound is exceeded")
	assert.False(t, second.disposed)
	assert.False(t, third.disposed)

	_, ok := c.Get(Key{Path: "/tmp/a.cpp"})
	assert.False(t, ok)
}

func TestNewClampsNonPositiveBoundToDefault(t *testing.T) {
	c := New(0)
	for i := 0; i < DefaultBound+1; i++ {
		c.Put(Key{Path: string(rune('a' + i))}, &fakeTU{})
	}
	assert.Equal(t, DefaultBound, c.Len())
}

func TestInvalidateRemovesAndDisposes(t *testing.T) {
	c := New(5)
	key := Key{Path: "/tmp/a.cpp"}
	tu := &fakeTU{}
	c.Put(key, tu)

	c.Invalidate(key)
	assert.True(t, tu.disposed)
	assert.Equal(t, 0, c.Len())

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestInvalidateOnMissingKeyIsANoop(t *testing.T) {
	c := New(5)
	c.Invalidate(Key{Path: "/tmp/missing.cpp"})
	assert.Equal(t, 0, c.Len())
}

func TestKeyEqualityIsArgsSensitive(t *testing.T) {
	c := New(5)
	tuA := &fakeTU{}
	tuB := &fakeTU{}
	c.Put(Key{Path: "/tmp/a.cpp", Args: "g++ -DX"}, tuA)
	c.Put(Key{Path: "/tmp/a.cpp", Args: "g++ -DY"}, tuB)

	require.Equal(t, 2, c.Len())
	got, ok := c.Get(Key{Path: "/tmp/a.cpp", Args: "g++ -DY"})
	require.True(t, ok)
	assert.Same(t, tuB, got)
}
