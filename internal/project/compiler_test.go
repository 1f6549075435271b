package project

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCompilerPassesThroughOrdinaryCompiler(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix PATH semantics")
	}
	// A regular (non-symlink, non-wrapper) executable; a system path such as
	// /usr/bin/g++ is often a symlink, which resolveCompiler would follow.
	compiler := filepath.Join(t.TempDir(), "g++")
	require.NoError(t, os.WriteFile(compiler, []byte("#!/bin/sh\n"), 0755))
	got := resolveCompiler(compiler)
	assert.Equal(t, compiler, got)
}

func TestResolveCompilerFallsBackToWrapperWhenNoRealCompilerOnPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix PATH semantics")
	}
	dir := t.TempDir()
	wrapper := filepath.Join(dir, "gcc-rtags-wrapper.sh")
	require.NoError(t, os.WriteFile(wrapper, []byte("#!/bin/sh\n"), 0755))

	realCompiler := filepath.Join(dir, "realgcc")
	require.NoError(t, os.WriteFile(realCompiler, []byte("#!/bin/sh\n"), 0755))

	// PATH holds only dir, where the only executable named
	// "gcc-rtags-wrapper.sh" is the wrapper itself; realCompiler has a
	// different basename, so the search never considers it.
	t.Setenv("PATH", dir)

	got := resolveCompiler(wrapper)
	// No non-wrapper executable named gcc-rtags-wrapper.sh exists on PATH,
	// so resolveCompiler falls back to the resolved wrapper path itself.
	assert.Equal(t, wrapper, got)
}

func TestResolveCompilerFollowsSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix symlink semantics")
	}
	dir := t.TempDir()
	real := filepath.Join(dir, "clang-18")
	require.NoError(t, os.WriteFile(real, []byte("#!/bin/sh\n"), 0755))

	link := filepath.Join(dir, "clang")
	require.NoError(t, os.Symlink(real, link))

	got := resolveCompiler(link)
	assert.Equal(t, real, got)
}
