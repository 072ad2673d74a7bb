package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"olmcore/internal/logging"
	"olmcore/internal/services/device"
	"olmcore/internal/services/group"
)

// Store backends.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// ConfigFile is the file name looked up in the home directory.
const ConfigFile = "config.toml"

// Config is the runtime configuration.
type Config struct {
	// Home is the state directory. It is set from the flag or environment, not the file.
	Home string `toml:"-"`

	Store  StoreConfig    `toml:"store"`
	Olm    OlmConfig      `toml:"olm"`
	Megolm MegolmConfig   `toml:"megolm"`
	Log    logging.Config `toml:"log"`
}

// StoreConfig selects and configures the crypto store backend.
type StoreConfig struct {
	Backend     string `toml:"backend"`
	Path        string `toml:"path"` // file directory or SQLite database; relative to Home
	DSN         string `toml:"dsn"`
	RedisAddr   string `toml:"redis_addr"`
	RedisPrefix string `toml:"redis_prefix"`
}

// OlmConfig tunes the device session manager.
type OlmConfig struct {
	WedgeThreshold int `toml:"wedge_threshold"`
}

// MegolmConfig tunes the group session manager.
type MegolmConfig struct {
	RotationPeriod   time.Duration `toml:"rotation_period"`
	RotationMessages uint32        `toml:"rotation_messages"`
	Parallelism      int           `toml:"parallelism"`
}

// DefaultHome returns ~/.olmcore.
func DefaultHome() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".olmcore"), nil
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig(home string) *Config {
	return &Config{
		Home: home,
		Store: StoreConfig{
			Backend: BackendFile,
			Path:    "store",
		},
		Olm: OlmConfig{WedgeThreshold: device.DefaultWedgeThreshold},
		Megolm: MegolmConfig{
			RotationPeriod:   group.DefaultRotationPeriod,
			RotationMessages: group.DefaultRotationMessages,
			Parallelism:      group.DefaultParallelism,
		},
		Log: logging.Config{Level: "info", Format: "text", Output: "stderr"},
	}
}

// Load reads path (or <home>/config.toml when path is empty), applies environment
// overrides and validates the result. A missing default file yields the defaults.
func Load(home, path string) (*Config, error) {
	if v := os.Getenv("OLMCORE_HOME"); v != "" && home == "" {
		home = v
	}
	if home == "" {
		var err error
		if home, err = DefaultHome(); err != nil {
			return nil, err
		}
	}
	cfg := DefaultConfig(home)

	explicit := path != ""
	if !explicit {
		path = filepath.Join(home, ConfigFile)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("OLMCORE_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("OLMCORE_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("OLMCORE_REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv("OLMCORE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("OLMCORE_WEDGE_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OLMCORE_WEDGE_THRESHOLD: %w", err)
		}
		cfg.Olm.WedgeThreshold = n
	}
	return nil
}

// Validate checks the configuration for values the wiring cannot use.
func (c *Config) Validate() error {
	if c.Home == "" {
		return errors.New("home directory is required")
	}
	switch c.Store.Backend {
	case BackendFile, BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
		}
	case BackendPostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres backend")
		}
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Olm.WedgeThreshold < 1 {
		return errors.New("olm.wedge_threshold must be at least 1")
	}
	if c.Megolm.RotationPeriod <= 0 {
		return errors.New("megolm.rotation_period must be positive")
	}
	if c.Megolm.RotationMessages == 0 {
		return errors.New("megolm.rotation_messages must be positive")
	}
	if c.Megolm.Parallelism < 1 {
		return errors.New("megolm.parallelism must be at least 1")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// StorePath resolves Store.Path against Home.
func (c *Config) StorePath() string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(c.Home, c.Store.Path)
}
