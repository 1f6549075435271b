package symboldb

import "fmt"

// FixIt is one clang fix-it suggestion attached to a path, spec §3/§4.I.
type FixIt struct {
	Start int
	End   int
	Text  string
}

// String renders a FixIt the way Project::fixIts formats each line
// (original_source/src/Project.cpp): "start-end text".
func (f FixIt) String() string {
	return fmt.Sprintf("%d-%d %s", f.Start, f.End, f.Text)
}
