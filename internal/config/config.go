// Package config loads settings for the server and the backup CLI.
//
// Layers, later ones win:
//
//  1. built-in defaults
//  2. a TOML file named by TODO_CONFIG, if set
//  3. environment variables (DATABASE_DIR, PORT, LOG_LEVEL, LOG_FILE, BACKUP_RETENTION)
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Environment variable names.
const (
	EnvConfigFile      = "TODO_CONFIG"
	EnvDatabaseDir     = "DATABASE_DIR"
	EnvPort            = "PORT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFile         = "LOG_FILE"
	EnvBackupRetention = "BACKUP_RETENTION"
)

const (
	DatabaseFileName = "database.db"
	BackupDirName    = "backups"
)

// Config holds every setting. The zero value is not useful; start from Defaults.
type Config struct {
	// DatabaseDir holds the live database file and the backups directory.
	DatabaseDir     string `toml:"database_dir"`
	Port            int    `toml:"port"`
	LogLevel        string `toml:"log_level"` // debug, info, warn or error
	LogFile         string `toml:"log_file,omitempty"`
	BackupRetention int    `toml:"backup_retention"`

	// level is LogLevel parsed by Validate.
	level slog.Level
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		DatabaseDir:     "./",
		Port:            8000,
		LogLevel:        "info",
		BackupRetention: 10,
	}
}

// DatabasePath is the live database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DatabaseDir, DatabaseFileName)
}

// BackupDir is where snapshots are written.
func (c *Config) BackupDir() string {
	return filepath.Join(c.DatabaseDir, BackupDirName)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// SlogLevel is LogLevel as a log/slog level. It is only meaningful after
// Validate (or Load) has accepted the config; before that it is slog.LevelInfo.
func (c *Config) SlogLevel() slog.Level {
	return c.level
}

// Validate reports the first setting that can't be used.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseDir) == "" {
		return fmt.Errorf("database_dir must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", c.Port)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("log_level %q: must be debug, info, warn or error", c.LogLevel)
	}
	if c.BackupRetention < 1 {
		return fmt.Errorf("backup_retention must be at least 1, got %d", c.BackupRetention)
	}
	c.level = level
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes TOML from r on top of base. Keys missing from r keep base's values.
func (m *Manager) Read(r io.Reader, base *Config) (*Config, error) {
	cfg := *base
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes cfg as TOML.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from path on top of base.
func ReadFromFile(path string, base *Config) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f, base)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load builds the effective configuration. getenv is usually os.Getenv;
// tests pass a map lookup instead of touching the process environment.
func Load(getenv func(string) string) (*Config, error) {
	cfg := Defaults()

	if path := getenv(EnvConfigFile); path != "" {
		var err error
		if cfg, err = ReadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if v := getenv(EnvDatabaseDir); v != "" {
		cfg.DatabaseDir = v
	}
	if v := getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s=%q: not a number", EnvPort, v)
		}
		cfg.Port = port
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getenv(EnvLogFile); v != "" {
		cfg.LogFile = v
	}
	if v := getenv(EnvBackupRetention); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s=%q: not a number", EnvBackupRetention, v)
		}
		cfg.BackupRetention = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
