package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"olmcore/internal/domain"
	"olmcore/internal/logging"
	"olmcore/internal/metrics"
	"olmcore/internal/pickle"
	"olmcore/internal/services/device"
	"olmcore/internal/services/group"
	"olmcore/internal/services/identity"
	"olmcore/internal/store"
	"olmcore/internal/store/redisstore"
	"olmcore/internal/store/sqlstore"
)

// KeyFile holds the passphrase-wrapped pickle key inside Home.
const KeyFile = "pickle.key"

var (
	// ErrNotInitialised is returned when Home has no key file yet.
	ErrNotInitialised = errors.New("olmcore is not initialised here; run init first")
	// ErrAlreadyInitialised is returned by CreateKey when a key file exists.
	ErrAlreadyInitialised = errors.New("olmcore is already initialised here")
)

// App bundles the wired components. Close releases the store and log file.
type App struct {
	Config   *Config
	Log      *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    domain.CryptoStore
	Accounts *identity.Service
	Devices  *device.Manager
	Groups   *group.Manager

	closers []func() error
}

// CreateKey generates a pickle key and stores it wrapped by passphrase.
func CreateKey(cfg *Config, passphrase string) (pickle.Key, error) {
	if err := identity.CheckPassphrase(passphrase); err != nil {
		return pickle.Key{}, err
	}
	path := filepath.Join(cfg.Home, KeyFile)
	if _, err := os.Stat(path); err == nil {
		return pickle.Key{}, ErrAlreadyInitialised
	}
	key, err := pickle.NewKey()
	if err != nil {
		return pickle.Key{}, err
	}
	wrapped, err := pickle.WrapKey(passphrase, key, pickle.DefaultScrypt)
	if err != nil {
		return pickle.Key{}, err
	}
	if err := store.WriteFile(path, wrapped, 0o600); err != nil {
		return pickle.Key{}, fmt.Errorf("write key file: %w", err)
	}
	return key, nil
}

// LoadKey unwraps the pickle key with passphrase.
func LoadKey(cfg *Config, passphrase string) (pickle.Key, error) {
	data, err := store.ReadFile(filepath.Join(cfg.Home, KeyFile))
	if err != nil {
		return pickle.Key{}, fmt.Errorf("read key file: %w", err)
	}
	if data == nil {
		return pickle.Key{}, ErrNotInitialised
	}
	return pickle.UnwrapKey(passphrase, data)
}

// OpenStore builds the configured backend. The returned func closes it.
func OpenStore(ctx context.Context, cfg *Config) (domain.CryptoStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store.Backend {
	case BackendMemory:
		return store.NewMemory(), noop, nil
	case BackendFile:
		return store.NewFile(cfg.StorePath()), noop, nil
	case BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.StorePath()), 0o700); err != nil {
			return nil, nil, err
		}
		s, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, cfg.StorePath())
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case BackendPostgres:
		s, err := sqlstore.Open(ctx, sqlstore.DriverPostgres, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case BackendRedis:
		s, err := redisstore.Dial(ctx, cfg.Store.RedisAddr, cfg.Store.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// New wires every component from cfg around key.
func New(ctx context.Context, cfg *Config, key pickle.Key) (*App, error) {
	log, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	st, closeStore, err := OpenStore(ctx, cfg)
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	accounts := identity.New(st, key)
	devices := device.New(st, accounts, key, device.Config{
		WedgeThreshold: cfg.Olm.WedgeThreshold,
		Logger:         log,
		Metrics:        m,
	})
	groups := group.New(st, accounts, devices, key, group.Config{
		RotationPeriod:   cfg.Megolm.RotationPeriod,
		RotationMessages: cfg.Megolm.RotationMessages,
		Parallelism:      cfg.Megolm.Parallelism,
		Logger:           log,
		Metrics:          m,
	})

	log.Debug("wired olmcore", "home", cfg.Home, "store", cfg.Store.Backend)
	return &App{
		Config:   cfg,
		Log:      log,
		Registry: reg,
		Metrics:  m,
		Store:    st,
		Accounts: accounts,
		Devices:  devices,
		Groups:   groups,
		closers:  []func() error{closeStore, closeLog},
	}, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
