// Package config loads the geodesk server configuration from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults used when a field is absent from the config file.
const (
	DefaultListenAddr = ":8080"
	DefaultDataDir    = "data"
	DefaultDBPath     = "geodesk.db"
	DefaultCacheTTL   = 5 * time.Minute
)

// Config is the root server configuration. Fields are pointers so a
// partial JSON file only overrides what it names; the Get* methods
// supply defaults for the rest.
type Config struct {
	ListenAddr *string `json:"listen_addr,omitempty"`
	DataDir    *string `json:"data_dir,omitempty"`
	DBPath     *string `json:"db_path,omitempty"`

	// CacheTTL is a duration string like "5m".
	CacheTTL *string `json:"cache_ttl,omitempty"`
}

// Empty returns a Config with all fields unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. The file must have a .json
// extension and be under the max file size.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// GetListenAddr returns the listen address, or the default.
func (c *Config) GetListenAddr() string {
	if c == nil || c.ListenAddr == nil {
		return DefaultListenAddr
	}
	return *c.ListenAddr
}

// GetDataDir returns the GeoJSON data directory, or the default.
func (c *Config) GetDataDir() string {
	if c == nil || c.DataDir == nil {
		return DefaultDataDir
	}
	return *c.DataDir
}

// GetDBPath returns the sqlite database path, or the default.
func (c *Config) GetDBPath() string {
	if c == nil || c.DBPath == nil {
		return DefaultDBPath
	}
	return *c.DBPath
}

// GetCacheTTL returns the response cache TTL, or the default. An
// unparsable duration string falls back to the default as well.
func (c *Config) GetCacheTTL() time.Duration {
	if c == nil || c.CacheTTL == nil {
		return DefaultCacheTTL
	}
	d, err := time.ParseDuration(*c.CacheTTL)
	if err != nil || d <= 0 {
		return DefaultCacheTTL
	}
	return d
}
