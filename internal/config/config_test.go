package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(home))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "file", c.StoreBackend)
	assert.Equal(t, "replace-batch", c.MergePolicy)
	assert.Equal(t, []string{"state", "district", "pincode", "date"}, c.DedupKeys)
	assert.Equal(t, 0.1, c.Contamination)
	assert.Equal(t, 100, c.NumTrees)
	assert.EqualValues(t, 42, c.RandomSeed)
	assert.Equal(t, 500, c.DataGovPageSize)
	assert.Equal(t, 2000, c.DataGovMaxRecords)
	assert.Equal(t, filepath.Join(home, ".satark", "data"), c.DataDir)
}

func TestLoadFileThenEnv(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num_trees: 50\nstore_backend: badger\n"), 0o644))
	t.Setenv("SATARK_STORE_BACKEND", "postgres")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, c.NumTrees)
	assert.Equal(t, "postgres", c.StoreBackend)
}

func TestLoadReadsDotEnvAPIKey(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, ".env"), []byte("DATA_GOV_API_KEY=from-dotenv\n"), 0o644))
	t.Setenv("DATA_GOV_API_KEY", "")
	require.NoError(t, os.Unsetenv("DATA_GOV_API_KEY"))

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", c.DataGovAPIKey)
}

func TestSaveRoundTrip(t *testing.T) {
	home := isolate(t)
	c, err := Load("")
	require.NoError(t, err)
	c.MergePolicy = "keep-last-row"
	c.DataGovAPIKey = "secret"
	require.NoError(t, Save(c, ""))

	_, err = os.Stat(filepath.Join(home, ".satark", "config.yaml"))
	require.NoError(t, err)

	back, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "keep-last-row", back.MergePolicy)
	assert.Equal(t, "secret", back.DataGovAPIKey)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num_trees: [unterminated\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
