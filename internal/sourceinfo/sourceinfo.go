// Package sourceinfo defines the build-configuration input spec §6 names
// SourceInformation: the set of compiler invocations that produce one
// translation unit from one source file.
package sourceinfo

import "time"

// Build is one compiler invocation driving a parse of SourceFile.
type Build struct {
	Compiler     string
	Args         []string
	Defines      []string
	IncludePaths []string
	Includes     []string
}

// Equal reports whether b and o specify the same compiler invocation: same
// Compiler and the same Args in the same order. Defines, IncludePaths and
// Includes are not compared (only compiler+args decide "not dirty", §4.G).
func (b Build) Equal(o Build) bool {
	if b.Compiler != o.Compiler || len(b.Args) != len(o.Args) {
		return false
	}
	for i := range b.Args {
		if b.Args[i] != o.Args[i] {
			return false
		}
	}
	return true
}

// Information is the SourceInformation input from spec §6.
type Information struct {
	SourceFile string
	Parsed     time.Time
	Builds     []Build
}

// IsNull reports whether i is the zero value (no source file recorded),
// matching the teacher's SourceInformation::isNull usage in Project.cpp.
func (i Information) IsNull() bool {
	return i.SourceFile == ""
}

// Equal reports whether i and o describe the same source file with the
// same build list, used by Unit.reindex to decide reparse vs fresh parse
// (§4.F).
func (i Information) Equal(o Information) bool {
	if i.SourceFile != o.SourceFile || len(i.Builds) != len(o.Builds) {
		return false
	}
	for idx := range i.Builds {
		if !i.Builds[idx].Equal(o.Builds[idx]) {
			return false
		}
	}
	return true
}
