package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ".swallow/findings.db", cfg.Database)
	assert.Equal(t, "corpus", cfg.CorpusDir)
	assert.Equal(t, 100, cfg.Fetch.Count)
	assert.Equal(t, 8, cfg.Fetch.Concurrency)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Scan.Serial)
	assert.False(t, cfg.Scan.SkipTests)
}

func TestLoad_OverridesAndDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "swallow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database: /data/findings.db
corpus_dir: /data/corpus
fetch:
  count: 250
  index_url: https://mirror.test/top.json
scan:
  workers: 4
  serial: true
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/findings.db", cfg.Database)
	assert.Equal(t, "/data/corpus", cfg.CorpusDir)
	assert.Equal(t, 250, cfg.Fetch.Count)
	assert.Equal(t, "https://mirror.test/top.json", cfg.Fetch.IndexURL)
	// Unset fields keep defaults.
	assert.Equal(t, 8, cfg.Fetch.Concurrency)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.True(t, cfg.Scan.Serial)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MalformedYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "swallow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
