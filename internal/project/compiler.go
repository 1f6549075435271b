package project

import (
	"os"
	"path/filepath"
)

// wrapperNames are the compiler-wrapper basenames resolveCompiler walks
// PATH to bypass (original_source/src/Project.cpp's resolveCompiler).
var wrapperNames = map[string]bool{
	"gcc-rtags-wrapper.sh": true,
	"icecc":                true,
}

// resolveCompiler resolves a compiler path the way Project::index does
// before recording a build: if compiler is (or resolves to, via symlink) one
// of the known wrapper names, it is replaced with the first PATH entry that
// names an executable with the same basename and is not itself another
// wrapper. Any other compiler path is returned resolved (symlinks
// followed) unchanged.
func resolveCompiler(compiler string) string {
	resolved, err := filepath.EvalSymlinks(compiler)
	if err != nil {
		resolved = compiler
	}
	base := filepath.Base(resolved)
	if !wrapperNames[base] && !wrapperNames[filepath.Base(compiler)] {
		return resolved
	}

	fn := filepath.Base(compiler)
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, fn)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() || info.Mode()&0111 == 0 {
			continue
		}
		if candidate == compiler {
			continue // same wrapper we started from
		}
		candResolved, err := filepath.EvalSymlinks(candidate)
		if err != nil {
			candResolved = candidate
		}
		if wrapperNames[filepath.Base(candResolved)] {
			continue // another wrapper further down PATH
		}
		return candResolved
	}
	return resolved
}
