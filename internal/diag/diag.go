// Package diag is the diagnostic emitter of spec §4.I: it converts parser
// diagnostics into a plain text log stream and a structured XML
// (checkstyle-shaped) stream, including empty-file stanzas for every
// transitively included file that produced no diagnostic.
package diag

import (
	"fmt"
	"io"
	"regexp"
	"sort"

	"github.com/rtagsd/rtagsd/internal/logx"
	"github.com/rtagsd/rtagsd/internal/parseapi"
	"github.com/rtagsd/rtagsd/internal/symboldb"
)

// Entry is one recorded diagnostic, keyed by its byte offset in the
// structured map spec §4.I describes.
type Entry struct {
	Type        string
	Message     string
	Line        int
	Column      int
	StartOffset int
	EndOffset   int
}

// Emitter converts parser diagnostics into the text log, the
// CompilationError channel, and the CompilationErrorXml checkstyle stream.
type Emitter struct {
	logger       *logx.Logger
	ignoreRegex  *regexp.Regexp
}

// New creates an Emitter. ignoreRegex may be nil (spec §6 IgnorePrintfFixits
// off); when set, fix-its whose replacement text matches it are dropped
// (spec §4.I / §7.6).
func New(logger *logx.Logger, ignoreRegex *regexp.Regexp) *Emitter {
	return &Emitter{logger: logger, ignoreRegex: ignoreRegex}
}

func severityLevel(s parseapi.Severity) (logx.Level, bool) {
	switch s {
	case parseapi.SeverityFatal, parseapi.SeverityError:
		return logx.LevelError, true
	case parseapi.SeverityWarning:
		return logx.LevelWarning, true
	case parseapi.SeverityNote:
		return logx.LevelDebug, true
	default: // SeverityIgnored
		return logx.LevelDebug, false
	}
}

// Process handles every diagnostic for one job: logs it at the mapped
// severity, emits it on the CompilationError channel, records it (unless
// dropped) in a per-file byte-offset map for the XML stream, and appends
// surviving fix-its into staging.FixIts, per spec §4.I.
func (e *Emitter) Process(staging *symboldb.Staging, diags []parseapi.Diagnostic) map[string][]Entry {
	report := make(map[string][]Entry)
	for _, d := range diags {
		level, keep := severityLevel(d.Severity)
		if !keep {
			continue
		}
		e.logger.Channelf(logx.ChannelCompilationError, "%s:%d:%d: %s\n", d.Path, d.Line, d.Column, d.Message)
		switch level {
		case logx.LevelError:
			e.logger.Errorf("%s:%d:%d: %s", d.Path, d.Line, d.Column, d.Message)
		case logx.LevelWarning:
			e.logger.Warnf("%s:%d:%d: %s", d.Path, d.Line, d.Column, d.Message)
		default:
			e.logger.Debugf("%s:%d:%d: %s", d.Path, d.Line, d.Column, d.Message)
		}

		staging.HasDiags = true
		entry := Entry{Type: level.String(), Message: d.Message, Line: d.Line, Column: d.Column, StartOffset: d.StartOffset, EndOffset: d.EndOffset}
		report[d.Path] = append(report[d.Path], entry)

		for _, fi := range d.FixIts {
			e.processFixit(staging, report, d.Path, fi)
		}
	}
	return report
}

// processFixit appends the fix-it's raw replacement text to staging.FixIts
// (consumed verbatim by the fixits() query) and, separately, folds it into
// report keyed by its starting byte offset: an XML entry already recorded
// for that offset (a diagnostic message) is upgraded to type Fixit in place
// and keeps its own message, while an offset with no entry yet gets a fresh
// one with a synthesized "did you mean" message.
func (e *Emitter) processFixit(staging *symboldb.Staging, report map[string][]Entry, path string, fi parseapi.FixIt) {
	if e.ignoreRegex != nil && e.ignoreRegex.MatchString(fi.Text) {
		e.logger.Debugf("fixit rejected for %s: matched ignore pattern %q", path, fi.Text)
		return
	}
	staging.FixIts[path] = append(staging.FixIts[path], symboldb.FixIt{
		Start: fi.StartOffset,
		End:   fi.EndOffset,
		Text:  fi.Text,
	})

	entries := report[path]
	for i := range entries {
		if entries[i].StartOffset != fi.StartOffset {
			continue
		}
		entries[i].Type = "Fixit"
		if entries[i].Message == "" {
			entries[i].Message = fmt.Sprintf("did you mean '%s'?", fi.Text)
		}
		entries[i].EndOffset = fi.EndOffset
		return
	}
	report[path] = append(entries, Entry{
		Type:        "Fixit",
		Message:     fmt.Sprintf("did you mean '%s'?", fi.Text),
		StartOffset: fi.StartOffset,
		EndOffset:   fi.EndOffset,
	})
}

// EmitXML writes the <?xml ...?><checkstyle> envelope covering source and
// every file in deps: one <file name="..."> block per path with recorded
// entries, and an empty <file name="..."/> for every dependency that
// produced none, per spec §4.I.
func EmitXML(w io.Writer, source string, deps []string, report map[string][]Entry) {
	fmt.Fprint(w, `<?xml version="1.0" encoding="utf-8"?><checkstyle>`)

	all := map[string]bool{source: true}
	for _, d := range deps {
		all[d] = true
	}
	for p := range report {
		all[p] = true
	}
	paths := make([]string, 0, len(all))
	for p := range all {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		entries := report[p]
		if len(entries) == 0 {
			fmt.Fprintf(w, `<file name="%s"/>`, xmlEscape(p))
			continue
		}
		fmt.Fprintf(w, `<file name="%s">`, xmlEscape(p))
		for _, en := range entries {
			fmt.Fprintf(w, `<error severity="%s" message="%s" line="%d" column="%d"/>`,
				xmlEscape(en.Type), xmlEscape(en.Message), en.Line, en.Column)
		}
		fmt.Fprint(w, `</file>`)
	}
	fmt.Fprint(w, `</checkstyle>`)
}

// EmitEmptyStanza writes the "all files clean" envelope covering source and
// its transitive dependencies, used when a job produced no diagnostics at
// all (spec §4.E step 4, §4.I final paragraph).
func EmitEmptyStanza(w io.Writer, source string, deps []string) {
	EmitXML(w, source, deps, nil)
}

// EmitProgress writes a <progress> stanza on the CompilationErrorXml
// channel, mirroring the teacher's onJobFinished progress logging
// (original_source/src/Project.cpp's "[%3d%%] idx/total" line).
func EmitProgress(w io.Writer, done, total int) {
	pct := 0
	if total > 0 {
		pct = done * 100 / total
	}
	fmt.Fprintf(w, `<progress index="%d" total="%d" percentage="%d"/>`, done, total, pct)
}

func xmlEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '&':
			out = append(out, "&amp;"...)
		case '<':
			out = append(out, "&lt;"...)
		case '>':
			out = append(out, "&gt;"...)
		case '"':
			out = append(out, "&quot;"...)
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
