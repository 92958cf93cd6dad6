package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Search, cfg.Search)
	assert.Equal(t, 12, cfg.Compose.RailSize)
	assert.Equal(t, 0.7, cfg.Compose.MMRLambda)
	assert.True(t, cfg.Breaker.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wayfinder.yaml")
	content := `
ontology_path: /etc/wayfinder/ontology.yaml
search:
  cache_ttl: 30s
  soft_radius_km: 2.5
compose:
  rail_size: 8
breaker:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/etc/wayfinder/ontology.yaml", cfg.OntologyPath)
	assert.Equal(t, 30*time.Second, cfg.Search.CacheTTL)
	assert.Equal(t, 2.5, cfg.Search.SoftRadiusKm)
	assert.Equal(t, 8, cfg.Compose.RailSize)
	assert.False(t, cfg.Breaker.Enabled)

	// Untouched keys keep their defaults.
	assert.Equal(t, 2048, cfg.Search.CacheSize)
	assert.Equal(t, 3*time.Second, cfg.Compose.RequestTimeout)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("WAYFINDER_SEARCH__CACHE_SIZE", "99")
	t.Setenv("WAYFINDER_COMPOSE__REQUEST_TIMEOUT", "750ms")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.Search.CacheSize)
	assert.Equal(t, 750*time.Millisecond, cfg.Compose.RequestTimeout)
}

func TestLoad_EnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compose:\n  cache_size: 7\n"), 0o644))
	t.Setenv(PathEnvVar, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Compose.CacheSize)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("out of range value", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("compose:\n  mmr_lambda: 1.5\n"), 0o644))
		_, err := Load(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), "MMRLambda")
	})
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "search.cache_ttl", envTransform("WAYFINDER_SEARCH__CACHE_TTL"))
	assert.Equal(t, "ontology_path", envTransform("WAYFINDER_ONTOLOGY_PATH"))
	assert.Equal(t, "", envTransform(PathEnvVar))
}
