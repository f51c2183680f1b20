// Package config handles loading application configuration from a YAML file
// with environment variable overrides.
//
// Config file format (libshelf.yaml):
//
//	listen_addr: ":8080"
//	store_path: "./library.db"
//	window_size: 50
//	batch_size: 500
//	busy_timeout: "5s"
//	cache_size_kb: -2000
//
// Configuration sources, in increasing priority order:
//  1. Built-in defaults
//  2. YAML config file (located by FindConfigFile or explicit path)
//  3. Environment variables (LISTEN_ADDR, STORE_PATH, WINDOW_SIZE,
//     BATCH_SIZE, BUSY_TIMEOUT, CACHE_SIZE_KB)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shelfmgr/libshelf/internal/store"
)

// Config holds all application configuration.
type Config struct {
	// ListenAddr is the TCP address for the optional HTTP command surface
	// (internal/command/httpapi), e.g. ":8080". Empty disables it.
	ListenAddr string `yaml:"listen_addr"`

	// StorePath is the path to the SQLite database file backing the Store.
	StorePath string `yaml:"store_path"`

	// WindowSize is the default Paginator window size a new BookView's root
	// scope is created with (spec.md §4.6/§4.7).
	WindowSize int `yaml:"window_size"`

	// BatchSize is the number of rows per transaction the Store batches
	// bulk inserts and edits into (internal/store.Config.BatchSize).
	BatchSize int `yaml:"batch_size"`

	// BusyTimeoutStr is how long SQLite waits on a locked database before
	// giving up, as a duration string (e.g. "5s"). Parsed into BusyTimeout
	// by Load().
	BusyTimeoutStr string `yaml:"busy_timeout"`

	// BusyTimeout is the parsed form of BusyTimeoutStr. Not marshalled
	// to/from YAML directly.
	BusyTimeout time.Duration `yaml:"-"`

	// CacheSizeKB is SQLite's page cache size in KB; negative values select
	// SQLite's own "approximately |N| KB" sizing (internal/store.Config).
	CacheSizeKB int `yaml:"cache_size_kb"`

	// BackupDir is the directory nightly Store.Backup snapshots are written
	// to. Defaults to "" which is resolved to {dir(store_path)}/.backups at
	// runtime.
	BackupDir string `yaml:"backup_dir"`

	// BackupKeep is the number of backup files to retain. 0 or negative
	// means unlimited.
	BackupKeep int `yaml:"backup_keep"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		ListenAddr:     ":8080",
		StorePath:      "./library.db",
		WindowSize:     50,
		BatchSize:      500,
		BusyTimeoutStr: "5s",
		BusyTimeout:    5 * time.Second,
		CacheSizeKB:    -2000,
		BackupKeep:     7,
	}
}

// StoreConfig translates the loaded Config into the internal/store.Config
// the Store constructor expects.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		BusyTimeout: c.BusyTimeout,
		CacheSizeKB: c.CacheSizeKB,
		BatchSize:   c.BatchSize,
	}
}

// Load reads configuration from the YAML file at path (if non-empty), then
// applies environment variable overrides on top. Returns the merged Config.
// If path is empty, only defaults and environment variables are applied.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	// Environment variables always override file values so that Docker /
	// systemd overrides still work even when a config file is present.
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WindowSize = n
		}
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("BUSY_TIMEOUT"); v != "" {
		cfg.BusyTimeoutStr = v
	}
	if v := os.Getenv("CACHE_SIZE_KB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CacheSizeKB = n
		}
	}
	if v := os.Getenv("BACKUP_DIR"); v != "" {
		cfg.BackupDir = v
	}
	if v := os.Getenv("BACKUP_KEEP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BackupKeep = n
		}
	}

	// Parse the busy-timeout string into a Duration. An invalid string is
	// silently ignored and the default (or previously parsed value) kept.
	if cfg.BusyTimeoutStr != "" {
		if d, err := time.ParseDuration(cfg.BusyTimeoutStr); err == nil {
			cfg.BusyTimeout = d
		}
	}

	return cfg, nil
}

// FindConfigFile returns the path to the first config file found in the
// standard search order, or "" if none is found.
//
// Search order:
//  1. LIBSHELF_CONFIG environment variable (explicit override)
//  2. ./libshelf.yaml (current working directory)
//  3. ~/.config/libshelf/config.yaml (XDG user config)
func FindConfigFile() string {
	// 1. Explicit path via environment variable.
	if p := os.Getenv("LIBSHELF_CONFIG"); p != "" {
		return p
	}

	// 2. Config file in the current working directory.
	if _, err := os.Stat("libshelf.yaml"); err == nil {
		return "libshelf.yaml"
	}

	// 3. XDG user config directory.
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "libshelf", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
