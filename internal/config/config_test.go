package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(10000), cfg.Query.MJDMatchStepsPerDay)
	assert.Equal(t, MatchPolicyMJD, cfg.Query.MatchPolicy)
	assert.InDelta(t, 31.4, cfg.Query.Zeropoint, 1e-12)
	assert.Equal(t, 5*time.Minute, cfg.Query.Timeout)
	assert.Equal(t, uint64(5), cfg.Ingest.MaxRetries)
}

func TestLoadConfigFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: "9999"
postgres:
  dsn: "postgres://fastdb@localhost/fastdb"
query:
  match_policy: visit
  timeout: 30s
ingest:
  object_match_radius_arcsec: 2.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("GO_FASTDB_LOG_LEVEL", "debug")

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "postgres://fastdb@localhost/fastdb", cfg.Postgres.DSN)
	assert.Equal(t, MatchPolicyVisit, cfg.Query.MatchPolicy)
	assert.Equal(t, 30*time.Second, cfg.Query.Timeout)
	assert.InDelta(t, 2.5, cfg.Ingest.ObjectMatchRadiusArcsec, 1e-12)
	assert.Equal(t, "debug", cfg.Log.Level)
	// 未覆盖的字段保留默认值
	assert.Equal(t, int64(10000), cfg.Query.MJDMatchStepsPerDay)
	assert.Same(t, cfg, AppConfig)
}
