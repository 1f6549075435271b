// Package persist implements save/restore of the per-project database to a
// single file on disk (spec §6 "Persistent state layout"), grounded on
// original_source/src/Project.cpp's save()/restore() for the field order and
// the restore-time dirty-detection walk, and on the teacher's
// internal/testing binary snapshot idiom (encoding/binary over a
// bytes.Buffer, sorted iteration for determinism) for the wire format.
//
// Unlike the original, which keeps the FileID<->path table in a separate
// per-server file written once for every project to share, this daemon has
// no multi-project server concept, so the path table is folded into the
// same per-project envelope (documented as a deliberate deviation).
package persist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/rtagsd/rtagsd/internal/errx"
	"github.com/rtagsd/rtagsd/internal/location"
	"github.com/rtagsd/rtagsd/internal/sourceinfo"
	"github.com/rtagsd/rtagsd/internal/symboldb"
	"github.com/rtagsd/rtagsd/internal/usr"
)

// Version is the on-disk format version, bumped whenever the section layout
// changes; a mismatch on restore is a corrupt_state error (spec §7.3).
const Version = 1

// magic identifies the file as ours before the version is even checked.
var magic = [4]byte{'r', 't', 'g', 'd'}

// Save writes the full database state to path, compressed with zstd. The
// section order is magic, version, paths, usrs, symbols, symbolNames,
// dependencies, sources, visitedFiles (no totalFileSize field is written),
// following the original's
// field list (mSymbols, mSymbolNames, mUsr, mDependencies, mSources,
// mVisitedFiles) with the path table folded in.
func Save(path string, files *location.Registry, usrs *usr.Interner, db *symboldb.Database) error {
	var body bytes.Buffer
	if err := writeBody(&body, files, usrs, db); err != nil {
		return errx.New(errx.KindCorruptState, "save", err).WithPath(path)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errx.New(errx.KindCorruptState, "save", err).WithPath(path)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return errx.New(errx.KindCorruptState, "save", err).WithPath(path)
	}
	if _, err := enc.Write(body.Bytes()); err != nil {
		enc.Close()
		return errx.New(errx.KindCorruptState, "save", err).WithPath(path)
	}
	if err := enc.Close(); err != nil {
		return errx.New(errx.KindCorruptState, "save", err).WithPath(path)
	}
	if err := f.Close(); err != nil {
		return errx.New(errx.KindCorruptState, "save", err).WithPath(path)
	}
	return os.Rename(tmp, path)
}

func writeBody(buf *bytes.Buffer, files *location.Registry, usrs *usr.Interner, db *symboldb.Database) error {
	if err := binary.Write(buf, binary.LittleEndian, magic); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(Version)); err != nil {
		return err
	}

	paths := files.Paths()
	if err := writeUint32(buf, uint32(len(paths))); err != nil {
		return err
	}
	for _, p := range paths {
		if err := writeString(buf, p); err != nil {
			return err
		}
	}

	usrStrings := usrs.Strings()
	if err := writeUint32(buf, uint32(len(usrStrings))); err != nil {
		return err
	}
	for _, s := range usrStrings {
		if err := writeString(buf, s); err != nil {
			return err
		}
	}

	var symCount uint32
	db.Symbols(func(location.Location, symboldb.CursorInfo) bool { symCount++; return true })
	if err := writeUint32(buf, symCount); err != nil {
		return err
	}
	var werr error
	db.Symbols(func(loc location.Location, ci symboldb.CursorInfo) bool {
		werr = writeSymbol(buf, loc, ci)
		return werr == nil
	})
	if werr != nil {
		return werr
	}

	var names []string
	nameIDs := make(map[string]symboldb.USRSet)
	db.NamesWithPrefix("", func(name string, ids symboldb.USRSet) bool {
		names = append(names, name)
		nameIDs[name] = ids
		return true
	})
	sort.Strings(names)
	if err := writeUint32(buf, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		if err := writeString(buf, name); err != nil {
			return err
		}
		ids := sortedUSRs(nameIDs[name])
		if err := writeUint32(buf, uint32(len(ids))); err != nil {
			return err
		}
		for _, id := range ids {
			if err := writeUint32(buf, uint32(id)); err != nil {
				return err
			}
		}
	}

	deps := db.Dependencies()
	depKeys := sortedFileIDs(deps)
	if err := writeUint32(buf, uint32(len(depKeys))); err != nil {
		return err
	}
	for _, t := range depKeys {
		if err := writeUint32(buf, uint32(t)); err != nil {
			return err
		}
		heads := sortedFileIDSet(deps[t])
		if err := writeUint32(buf, uint32(len(heads))); err != nil {
			return err
		}
		for _, h := range heads {
			if err := writeUint32(buf, uint32(h)); err != nil {
				return err
			}
		}
	}

	sources := db.Sources()
	srcKeys := sortedFileIDs(sources)
	if err := writeUint32(buf, uint32(len(srcKeys))); err != nil {
		return err
	}
	for _, fileID := range srcKeys {
		if err := writeUint32(buf, uint32(fileID)); err != nil {
			return err
		}
		if err := writeSource(buf, sources[fileID]); err != nil {
			return err
		}
	}

	visited := sortedFileIDSet(db.VisitedFiles())
	if err := writeUint32(buf, uint32(len(visited))); err != nil {
		return err
	}
	for _, f := range visited {
		if err := writeUint32(buf, uint32(f)); err != nil {
			return err
		}
	}

	return nil
}

// Result is what Restore hands back: the rebuilt database plus the set of
// files the mtime walk found stale, for callers to feed into a reindex pass
// (spec §6/§7.5, original Project::restore()).
type Result struct {
	Files    *location.Registry
	USRs     *usr.Interner
	DB       *symboldb.Database
	Modified map[location.FileID]bool
}

// Restore reads a file written by Save and replays it into fresh Registry,
// Interner, and Database instances, then runs the original's stale-detection
// walk: for every source file still present, compare the mtime of every
// header it depends on against the source's recorded Parsed time, marking
// stale (or missing) headers as modified; a source whose own file vanished
// is dropped and its FileID is marked modified (§7.5 FileRemoved).
func Restore(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errx.New(errx.KindCorruptState, "restore", err).WithPath(path)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, errx.New(errx.KindCorruptState, "restore", err).WithPath(path)
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, errx.New(errx.KindCorruptState, "restore", err).WithPath(path)
	}

	res, err := readBody(bytes.NewReader(raw))
	if err != nil {
		return nil, errx.New(errx.KindCorruptState, "restore", err).WithPath(path)
	}
	detectStale(res)
	return res, nil
}

func readBody(r *bytes.Reader) (*Result, error) {
	var got [4]byte
	if err := binary.Read(r, binary.LittleEndian, &got); err != nil {
		return nil, err
	}
	if got != magic {
		return nil, fmt.Errorf("not a persisted database: bad magic %v", got)
	}
	version, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, fmt.Errorf("unsupported version %d", version)
	}

	files := location.NewRegistry()
	pathCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < pathCount; i++ {
		p, err := readString(r)
		if err != nil {
			return nil, err
		}
		files.Intern(p)
	}

	usrs := usr.New()
	usrCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < usrCount; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		usrs.Insert(s)
	}

	db := symboldb.New()
	symCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < symCount; i++ {
		loc, ci, err := readSymbol(r)
		if err != nil {
			return nil, err
		}
		db.RestoreSymbol(loc, ci)
	}

	nameCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nameCount; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		idCount, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		ids := make(symboldb.USRSet, idCount)
		for j := uint32(0); j < idCount; j++ {
			raw, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			ids[usr.ID(raw)] = struct{}{}
		}
		db.RestoreName(name, ids)
	}

	depCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	depends := make(map[location.FileID]symboldb.FileSet, depCount)
	for i := uint32(0); i < depCount; i++ {
		t, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		headCount, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		heads := make(symboldb.FileSet, headCount)
		for j := uint32(0); j < headCount; j++ {
			h, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			heads[location.FileID(h)] = struct{}{}
		}
		depends[location.FileID(t)] = heads
	}
	db.RestoreDependencies(depends)

	srcCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < srcCount; i++ {
		fileID, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		info, err := readSource(r)
		if err != nil {
			return nil, err
		}
		db.SetSource(location.FileID(fileID), info)
	}

	visitedCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	visited := make(symboldb.FileSet, visitedCount)
	for i := uint32(0); i < visitedCount; i++ {
		f, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		visited[location.FileID(f)] = struct{}{}
	}
	db.ReplaceVisitedFiles(visited)

	return &Result{Files: files, USRs: usrs, DB: db, Modified: make(map[location.FileID]bool)}, nil
}

// detectStale runs the original's restore-time dirty walk (Project::restore):
// a source file that vanished is dropped and marked modified; otherwise
// every header it depends on (forward, via Depends) is compared against its
// Parsed timestamp, and a header found newer is marked modified itself
// rather than the source, so the ordinary startDirtyJobs closure (run by
// the caller, e.g. project.NewFromRestore) propagates from the header back
// out to every source that includes it, exactly as a live file-watcher
// event on that header would.
func detectStale(res *Result) {
	sources := res.DB.Sources()
	for fileID, info := range sources {
		_, err := os.Stat(info.SourceFile)
		if err != nil {
			res.DB.RemoveSource(fileID)
			res.Modified[fileID] = true
			continue
		}
		checkHeaders(res, fileID, info.Parsed)
	}
}

func checkHeaders(res *Result, source location.FileID, parsed time.Time) {
	for header := range res.DB.Depends(source) {
		if res.Modified[header] {
			continue
		}
		path := res.Files.Path(header)
		stat, err := os.Stat(path)
		if err != nil {
			res.Modified[header] = true
			continue
		}
		if stat.ModTime().After(parsed) {
			res.Modified[header] = true
		}
	}
}

func sortedFileIDs[V any](m map[location.FileID]V) []location.FileID {
	out := make([]location.FileID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedFileIDSet(s symboldb.FileSet) []location.FileID {
	out := make([]location.FileID, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedUSRs(s symboldb.USRSet) []usr.ID {
	out := make([]usr.ID, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func writeUint32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeSymbol(w io.Writer, loc location.Location, ci symboldb.CursorInfo) error {
	for _, v := range []uint32{uint32(loc.File), loc.Line, loc.Column, uint32(ci.USR), uint32(ci.Kind), ci.StartByteOffset, ci.EndByteOffset} {
		if err := writeUint32(w, v); err != nil {
			return err
		}
	}
	return nil
}

func readSymbol(r io.Reader) (location.Location, symboldb.CursorInfo, error) {
	vals := make([]uint32, 7)
	for i := range vals {
		v, err := readUint32(r)
		if err != nil {
			return location.Location{}, symboldb.CursorInfo{}, err
		}
		vals[i] = v
	}
	loc := location.Location{File: location.FileID(vals[0]), Line: vals[1], Column: vals[2]}
	ci := symboldb.CursorInfo{
		USR:             usr.ID(vals[3]),
		Kind:            symboldb.Kind(vals[4]),
		StartByteOffset: vals[5],
		EndByteOffset:   vals[6],
	}
	return loc, ci, nil
}

func writeSource(w io.Writer, info sourceinfo.Information) error {
	if err := writeString(w, info.SourceFile); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, info.Parsed.UnixNano()); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(info.Builds))); err != nil {
		return err
	}
	for _, b := range info.Builds {
		if err := writeBuild(w, b); err != nil {
			return err
		}
	}
	return nil
}

func readSource(r io.Reader) (sourceinfo.Information, error) {
	var info sourceinfo.Information
	path, err := readString(r)
	if err != nil {
		return info, err
	}
	var nanos int64
	if err := binary.Read(r, binary.LittleEndian, &nanos); err != nil {
		return info, err
	}
	count, err := readUint32(r)
	if err != nil {
		return info, err
	}
	builds := make([]sourceinfo.Build, count)
	for i := range builds {
		b, err := readBuild(r)
		if err != nil {
			return info, err
		}
		builds[i] = b
	}
	info.SourceFile = path
	info.Parsed = time.Unix(0, nanos)
	info.Builds = builds
	return info, nil
}

func writeBuild(w io.Writer, b sourceinfo.Build) error {
	if err := writeString(w, b.Compiler); err != nil {
		return err
	}
	for _, list := range [][]string{b.Args, b.Defines, b.IncludePaths, b.Includes} {
		if err := writeStringSlice(w, list); err != nil {
			return err
		}
	}
	return nil
}

func readBuild(r io.Reader) (sourceinfo.Build, error) {
	var b sourceinfo.Build
	var err error
	if b.Compiler, err = readString(r); err != nil {
		return b, err
	}
	if b.Args, err = readStringSlice(r); err != nil {
		return b, err
	}
	if b.Defines, err = readStringSlice(r); err != nil {
		return b, err
	}
	if b.IncludePaths, err = readStringSlice(r); err != nil {
		return b, err
	}
	if b.Includes, err = readStringSlice(r); err != nil {
		return b, err
	}
	return b, nil
}

func writeStringSlice(w io.Writer, list []string) error {
	if err := writeUint32(w, uint32(len(list))); err != nil {
		return err
	}
	for _, s := range list {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readStringSlice(r io.Reader) ([]string, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]string, n)
	for i := range out {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
