// Package config handles loading and managing snapstore configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ledgerline/snapstore/internal/fileutil"
	"github.com/ledgerline/snapstore/internal/mailbox"
)

// Config represents the snapstore configuration.
type Config struct {
	Mail   mailbox.Config `toml:"mail"`
	Data   DataConfig     `toml:"data"`
	Sync   SyncConfig     `toml:"sync"`
	Server ServerConfig   `toml:"server"`
	Query  QueryConfig    `toml:"query"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// SyncConfig holds ingestion scheduling configuration.
type SyncConfig struct {
	IntervalMinutes int `toml:"interval_minutes"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	BindAddr        string   `toml:"bind_addr"` // default: 127.0.0.1
	APIPort         int      `toml:"api_port"`  // default: 8080
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	CORSCredentials bool     `toml:"cors_credentials"`
	CORSMaxAge      int      `toml:"cors_max_age"`
}

// QueryConfig holds ad-hoc query policy configuration.
type QueryConfig struct {
	MaxRows int `toml:"max_rows"` // default row cap for uncapped SELECTs
}

// DefaultHome returns the default snapstore home directory.
// Respects the SNAPSTORE_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("SNAPSTORE_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".snapstore"
	}
	return filepath.Join(home, ".snapstore")
}

// Load reads the configuration from the specified file. If path is empty,
// the default location ($SNAPSTORE_HOME/config.toml) is used. A missing
// config file is not an error; defaults apply.
func Load(path, homeDir string) (*Config, error) {
	if homeDir == "" {
		homeDir = DefaultHome()
	}
	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir: homeDir,
		Mail: mailbox.Config{
			TLS:     true,
			Subject: "snap_backup",
		},
		Data: DataConfig{
			DataDir: homeDir,
		},
		Sync: SyncConfig{
			IntervalMinutes: 60,
		},
		Server: ServerConfig{
			BindAddr: "127.0.0.1",
			APIPort:  8080,
		},
		Query: QueryConfig{
			MaxRows: 100,
		},
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	return cfg, nil
}

// EnsureHomeDir creates the data directory if it does not exist yet. The
// directory holds the config file with the mailbox password, so it is
// owner-only.
func (c *Config) EnsureHomeDir() error {
	return fileutil.SecureMkdirAll(c.Data.DataDir, 0700)
}

// ConfigFilePath returns the path of the config file in the home directory.
func (c *Config) ConfigFilePath() string {
	return filepath.Join(c.HomeDir, "config.toml")
}

// DatabasePath returns the path to the active SQLite store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.DataDir, "snapstore.db")
}

// DocumentPath returns the canonical export document location.
func (c *Config) DocumentPath() string {
	return filepath.Join(c.Data.DataDir, "export.json")
}

// CursorPath returns the path of the persisted sync cursor.
func (c *Config) CursorPath() string {
	return filepath.Join(c.Data.DataDir, "sync_cursor")
}

// SyncInterval returns the ingestion interval as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}

// ValidateSecure rejects a binding that exposes an unauthenticated API
// beyond loopback.
func (s *ServerConfig) ValidateSecure() error {
	addr := s.BindAddr
	if addr == "" || addr == "localhost" {
		return nil
	}
	if ip := net.ParseIP(addr); ip != nil && ip.IsLoopback() {
		return nil
	}
	if s.APIKey == "" {
		return fmt.Errorf("refusing to bind API to %s without an api_key; set [server] api_key in %s", addr, "config.toml")
	}
	return nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
