package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsZeroThreadPool(t *testing.T) {
	cfg := Default()
	cfg.Index.ThreadPoolSize = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadKDLMissingReturnsNil(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadKDL(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadKDLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	contents := `
project {
    name "demo"
}
index {
    thread_pool_size 8
    completion_cache_size 10
    allow_multiple_builds true
    validate true
}
timers {
    sync_timeout_ms 500
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".rtagsd.kdl"), []byte(contents), 0644))

	cfg, err := LoadKDL(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "demo", cfg.Project.Name)
	assert.Equal(t, 8, cfg.Index.ThreadPoolSize)
	assert.Equal(t, 10, cfg.Index.CompletionCacheSize)
	assert.True(t, cfg.Index.AllowMultipleBuilds)
	assert.True(t, cfg.Index.Validate)
	assert.Equal(t, 500*time.Millisecond, cfg.Timers.SyncTimeout)
}
