// Package config loads the crawler configuration from conf.json. The file
// is searched in $HOME/.cache/crawler, ./crawler, and /etc/crawler, first
// existing wins; absence is fatal at startup. Configuration is read once
// and passed down explicitly; nothing here mutates after Load.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Defaults applied when conf.json omits a key.
const (
	// DefaultCacheAgeLimit is the cache freshness window in seconds.
	DefaultCacheAgeLimit = 86400
	// DefaultRateLimit is the per-domain pacing for domains without an
	// explicit rate_limit_ms entry.
	DefaultRateLimit = 500 * time.Millisecond

	configName = "conf.json"
)

// ErrNotFound is returned when no conf.json exists in any search location.
var ErrNotFound = errors.New("config: conf.json not found")

// Config is the decoded conf.json.
type Config struct {
	CacheDir      string `mapstructure:"cache_dir"`
	DataDir       string `mapstructure:"data_dir"`
	PluginsDir    string `mapstructure:"plugins_dir"`
	ScriptDir     string `mapstructure:"script_dir"`
	PemDir        string `mapstructure:"pem_dir"`
	UserAgentList string `mapstructure:"user_agent_list"`
	CABundlePath  string `mapstructure:"ca_bundle_path"`

	CacheAgeLimitS int64            `mapstructure:"cache_age_limit_s"`
	RateLimitMS    map[string]int64 `mapstructure:"rate_limit_ms"`
}

// Load finds and reads the first conf.json on the search path.
func Load() (*Config, error) {
	path, err := findConfigFile()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads and validates a specific config file.
func LoadFile(path string) (*Config, error) {
	// rate_limit_ms is keyed by domain names that contain dots, so viper's
	// default "." key delimiter would split them into nested keys.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetDefault("cache_age_limit_s", DefaultCacheAgeLimit)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return &cfg, nil
}

// CacheAge returns the cache freshness limit as a duration.
func (c *Config) CacheAge() time.Duration {
	return time.Duration(c.CacheAgeLimitS) * time.Second
}

// RateLimit returns the pacing interval for a registrable domain, falling
// back to the 500 ms default.
func (c *Config) RateLimit(domain string) time.Duration {
	if ms, ok := c.RateLimitMS[domain]; ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return DefaultRateLimit
}

func (c *Config) validate() error {
	if c.CacheDir == "" {
		return errors.New("cache_dir is required")
	}
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.ScriptDir == "" {
		return errors.New("script_dir is required")
	}
	if c.PemDir == "" {
		return errors.New("pem_dir is required")
	}
	if c.CacheAgeLimitS < 0 {
		return errors.New("cache_age_limit_s must be >= 0")
	}
	for domain, ms := range c.RateLimitMS {
		if ms <= 0 {
			return fmt.Errorf("rate_limit_ms[%s] must be > 0", domain)
		}
	}
	return nil
}

// findConfigFile walks the search locations in order.
func findConfigFile() (string, error) {
	var dirs []string

	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".cache", "crawler"))
	}
	dirs = append(dirs, "crawler", filepath.Join("/etc", "crawler"))

	for _, dir := range dirs {
		path := filepath.Join(dir, configName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", ErrNotFound
}
