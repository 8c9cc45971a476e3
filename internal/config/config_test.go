package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultsWhenFieldsAbsent(t *testing.T) {
	cfg := Empty()
	assert.Equal(t, DefaultListenAddr, cfg.GetListenAddr())
	assert.Equal(t, DefaultDataDir, cfg.GetDataDir())
	assert.Equal(t, DefaultDBPath, cfg.GetDBPath())
	assert.Equal(t, DefaultCacheTTL, cfg.GetCacheTTL())
}

func TestNilConfigUsesDefaults(t *testing.T) {
	var cfg *Config
	assert.Equal(t, DefaultListenAddr, cfg.GetListenAddr())
	assert.Equal(t, DefaultCacheTTL, cfg.GetCacheTTL())
}

func TestPartialConfigOverridesOnlyNamedFields(t *testing.T) {
	path := writeConfig(t, "geodesk.json", `{"listen_addr": ":9090", "cache_ttl": "90s"}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.GetListenAddr())
	assert.Equal(t, 90*time.Second, cfg.GetCacheTTL())
	assert.Equal(t, DefaultDataDir, cfg.GetDataDir())
	assert.Equal(t, DefaultDBPath, cfg.GetDBPath())
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	path := writeConfig(t, "geodesk.yaml", `listen_addr: ":9090"`)

	_, err := Load(path)
	assert.ErrorContains(t, err, ".json extension")
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeConfig(t, "geodesk.json", `{"listen_addr": `)

	_, err := Load(path)
	assert.ErrorContains(t, err, "parse")
}

func TestBadTTLFallsBack(t *testing.T) {
	path := writeConfig(t, "geodesk.json", `{"cache_ttl": "soon"}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultCacheTTL, cfg.GetCacheTTL())
}
