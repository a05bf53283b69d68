package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 4, cfg.Crawler.MaxConcurrency)
	require.Equal(t, 3, cfg.Crawler.MaxRetries)
	require.Equal(t, 5, cfg.Queries.MaxQueries)
	require.Equal(t, "memory", cfg.Blob.Backend)
	require.Equal(t, time.Hour, cfg.Cache.TTL())
	require.Equal(t, 30*time.Second, cfg.Crawler.NavTimeout())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
crawler:
  max_depth: 5
  max_concurrency: 8
browser:
  pool_size: 2
blob:
  backend: local
  local_dir: /tmp/pages
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Crawler.MaxDepth)
	require.Equal(t, 8, cfg.Crawler.MaxConcurrency)
	require.Equal(t, 2, cfg.Browser.PoolSize)
	require.Equal(t, "local", cfg.Blob.Backend)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Crawler.MaxConcurrency = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Browser.PoolSize = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Blob.Backend = "s3"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Blob.Backend = "gcs"
	require.Error(t, cfg.Validate(), "gcs backend requires a bucket")

	cfg = base()
	cfg.PubSub.Enabled = true
	require.Error(t, cfg.Validate(), "pubsub requires project and topic")
}
