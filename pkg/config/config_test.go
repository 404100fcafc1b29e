package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, int64(10*1024*1024), cfg.Import.MaxFileSizeBytes)
	assert.Equal(t, []string{MIMETypeXLSX, "text/csv"}, cfg.Import.AllowedMIMEs)
	assert.Equal(t, 15*time.Minute, cfg.Export.SignedURLTTL)
}

func TestLoadFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("IMPORT_MAX_FILE_SIZE", "2048")
	t.Setenv("IMPORT_ALLOWED_MIME_TYPES", " text/csv , ")
	t.Setenv("IMPORT_CACHE_TTL", "garbage")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(2048), cfg.Import.MaxFileSizeBytes)
	assert.Equal(t, []string{"text/csv"}, cfg.Import.AllowedMIMEs)
	assert.Equal(t, 5*time.Minute, cfg.Import.CacheTTL)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a ,, b"))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
