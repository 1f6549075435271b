package persist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtagsd/rtagsd/internal/location"
	"github.com/rtagsd/rtagsd/internal/sourceinfo"
	"github.com/rtagsd/rtagsd/internal/symboldb"
	"github.com/rtagsd/rtagsd/internal/usr"
)

func buildFixture(t *testing.T, sourcePath string) (*location.Registry, *usr.Interner, *symboldb.Database) {
	t.Helper()
	files := location.NewRegistry()
	usrs := usr.New()
	db := symboldb.New()

	fileID := files.Intern(sourcePath)
	headerID := files.Intern(sourcePath + ".h")
	id := usrs.Insert("usr:N::S::f#fn")

	loc := location.Location{File: fileID, Line: 3, Column: 5}
	db.RestoreSymbol(loc, symboldb.CursorInfo{USR: id, Kind: symboldb.KindMemberFunctionDef, StartByteOffset: 10, EndByteOffset: 14})
	db.RestoreName("N::S::f", symboldb.USRSet{id: struct{}{}})
	db.RestoreDependencies(map[location.FileID]symboldb.FileSet{
		fileID: {headerID: struct{}{}},
	})
	db.SetSource(fileID, sourceinfo.Information{
		SourceFile: sourcePath,
		Parsed:     time.Now().Add(-time.Hour),
		Builds:     []sourceinfo.Build{{Compiler: "g++", Args: []string{"-std=c++17"}, Defines: []string{"FOO"}}},
	})
	db.MarkVisited(fileID)

	return files, usrs, db
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "a.cpp")
	require.NoError(t, os.WriteFile(sourcePath, []byte("int f() { return 0; }\n"), 0644))

	files, usrs, db := buildFixture(t, sourcePath)
	dbPath := filepath.Join(dir, "state.db")
	require.NoError(t, Save(dbPath, files, usrs, db))

	res, err := Restore(dbPath)
	require.NoError(t, err)

	fileID, ok := res.Files.Lookup(sourcePath)
	require.True(t, ok)

	gotID, ok := res.USRs.Lookup("usr:N::S::f#fn")
	require.True(t, ok)

	ci, ok := res.DB.Cursor(location.Location{File: fileID, Line: 3, Column: 5})
	require.True(t, ok)
	assert.Equal(t, gotID, ci.USR)
	assert.Equal(t, symboldb.KindMemberFunctionDef, ci.Kind)
	assert.Equal(t, uint32(10), ci.StartByteOffset)

	names := res.DB.USRsForName("N::S::f")
	assert.Contains(t, names, gotID)

	info, ok := res.DB.Source(fileID)
	require.True(t, ok)
	require.Len(t, info.Builds, 1)
	assert.Equal(t, "g++", info.Builds[0].Compiler)
	assert.Equal(t, []string{"-std=c++17"}, info.Builds[0].Args)
	assert.Equal(t, []string{"FOO"}, info.Builds[0].Defines)

	assert.True(t, res.DB.IsVisited(fileID))
}

func TestRestoreDetectsStaleDependent(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "a.cpp")
	headerPath := filepath.Join(dir, "a.h")
	require.NoError(t, os.WriteFile(sourcePath, []byte("#include \"a.h\"\n"), 0644))
	require.NoError(t, os.WriteFile(headerPath, []byte("// header\n"), 0644))

	files := location.NewRegistry()
	usrs := usr.New()
	db := symboldb.New()
	fileID := files.Intern(sourcePath)
	headerID := files.Intern(headerPath)
	db.RestoreDependencies(map[location.FileID]symboldb.FileSet{
		fileID: {headerID: struct{}{}},
	})
	db.SetSource(fileID, sourceinfo.Information{
		SourceFile: sourcePath,
		Parsed:     time.Now().Add(-time.Hour),
		Builds:     []sourceinfo.Build{{Compiler: "g++"}},
	})

	dbPath := filepath.Join(dir, "state.db")
	require.NoError(t, Save(dbPath, files, usrs, db))

	// The header is newer than the recorded Parsed time, so restore must
	// mark the header itself as modified; the caller's dirty-job walk then
	// propagates that out to every source that depends on it, the same way
	// a live file-watcher event on the header would.
	require.NoError(t, os.Chtimes(headerPath, time.Now(), time.Now()))

	res, err := Restore(dbPath)
	require.NoError(t, err)
	assert.True(t, res.Modified[headerID])
	assert.False(t, res.Modified[fileID], "the source itself is untouched; only the stale header is seeded into the dirty set")
}

func TestRestoreDropsSourceWhoseFileVanished(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "gone.cpp")
	require.NoError(t, os.WriteFile(sourcePath, []byte("int f();\n"), 0644))

	files := location.NewRegistry()
	usrs := usr.New()
	db := symboldb.New()
	fileID := files.Intern(sourcePath)
	db.SetSource(fileID, sourceinfo.Information{
		SourceFile: sourcePath,
		Parsed:     time.Now(),
		Builds:     []sourceinfo.Build{{Compiler: "g++"}},
	})

	dbPath := filepath.Join(dir, "state.db")
	require.NoError(t, Save(dbPath, files, usrs, db))

	require.NoError(t, os.Remove(sourcePath))

	res, err := Restore(dbPath)
	require.NoError(t, err)

	_, ok := res.DB.Source(fileID)
	assert.False(t, ok, "a source whose file vanished must be dropped on restore")
	assert.True(t, res.Modified[fileID])
}

func TestRestoreRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bogus.db")
	require.NoError(t, os.WriteFile(path, []byte("not a real save file"), 0644))

	_, err := Restore(path)
	assert.Error(t, err)
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "a.cpp")
	require.NoError(t, os.WriteFile(sourcePath, []byte("int f();\n"), 0644))
	files, usrs, db := buildFixture(t, sourcePath)

	dbPath := filepath.Join(dir, "state.db")
	require.NoError(t, Save(dbPath, files, usrs, db))

	_, err := os.Stat(dbPath + ".tmp")
	assert.True(t, os.IsNotExist(err), "Save must rename the temp file away on success")
}
