package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/domaincrawl/internal/config"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "conf.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validConfig = `{
  "cache_dir": "/var/cache/crawler",
  "data_dir": "/var/lib/crawler/data",
  "plugins_dir": "/opt/crawler/plugins",
  "script_dir": "/opt/crawler/scripts",
  "pem_dir": "/var/lib/crawler/pem",
  "user_agent_list": "/etc/crawler/agents.txt",
  "cache_age_limit_s": 3600,
  "rate_limit_ms": {"example.com": 250}
}`

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), validConfig)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/cache/crawler", cfg.CacheDir)
	assert.Equal(t, "/var/lib/crawler/data", cfg.DataDir)
	assert.Equal(t, "/opt/crawler/scripts", cfg.ScriptDir)
	assert.Equal(t, time.Hour, cfg.CacheAge())
}

func TestRateLimit(t *testing.T) {
	path := writeConfig(t, t.TempDir(), validConfig)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.RateLimit("example.com"))
	assert.Equal(t, 500*time.Millisecond, cfg.RateLimit("other.net"))
}

func TestCacheAgeDefault(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{
	  "cache_dir": "/c", "data_dir": "/d", "script_dir": "/s", "pem_dir": "/p"
	}`)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.CacheAge())
}

func TestLoadFileInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing cache_dir", `{"data_dir": "/d", "script_dir": "/s", "pem_dir": "/p"}`},
		{"missing data_dir", `{"cache_dir": "/c", "script_dir": "/s", "pem_dir": "/p"}`},
		{"negative cache age", `{"cache_dir": "/c", "data_dir": "/d", "script_dir": "/s", "pem_dir": "/p", "cache_age_limit_s": -1}`},
		{"zero rate limit", `{"cache_dir": "/c", "data_dir": "/d", "script_dir": "/s", "pem_dir": "/p", "rate_limit_ms": {"x.com": 0}}`},
		{"not json", `cache_dir = nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := config.LoadFile(path)
			require.Error(t, err)
		})
	}
}

func TestLoadSearchesHomeFirst(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	confDir := filepath.Join(home, ".cache", "crawler")
	require.NoError(t, os.MkdirAll(confDir, 0o755))
	writeConfig(t, confDir, validConfig)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/crawler", cfg.CacheDir)
}

func TestLoadAbsenceIsFatal(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	_, err := config.Load()
	require.ErrorIs(t, err, config.ErrNotFound)
}
