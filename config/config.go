// Package config loads the YAML configuration of an osal instance.
package config

import (
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/osal/errors"
)

// Backend names accepted in socket.backend.
const (
	BackendDefault = ""
	BackendBSD     = "bsd"
	BackendNoSock  = "nosock"
)

// Config is the top-level configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Socket   SocketConfig   `yaml:"socket"`
	Registry RegistryConfig `yaml:"registry"`
}

// RegistryConfig sizes the object id registry.
type RegistryConfig struct {
	MaxSockets       int           `yaml:"max_sockets"`
	MaxNameLen       int           `yaml:"max_name_len"`
	ExclusiveTimeout time.Duration `yaml:"exclusive_timeout"`
}

// SocketConfig selects and tunes the socket backend.
type SocketConfig struct {
	Backend     string `yaml:"backend"`
	Backlog     int    `yaml:"backlog"`
	NonBlocking bool   `yaml:"non_blocking"`
	ReuseAddr   bool   `yaml:"reuse_addr"`
}

// LogConfig configures the zap logger built by Logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Registry: RegistryConfig{
			MaxSockets:       64,
			MaxNameLen:       64,
			ExclusiveTimeout: 2 * time.Second,
		},
		Socket: SocketConfig{
			Backend:     BackendDefault,
			Backlog:     10,
			NonBlocking: true,
			ReuseAddr:   true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path on top of Default and validates the result. Keys
// missing from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindError, "read "+path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidArgument, "parse "+path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns Default when path is empty.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks value ranges.
func (c Config) Validate() error {
	invalid := func(detail string, args ...any) error {
		return errors.New(errors.PhaseConfig, errors.KindInvalidArgument).
			Op("validate").
			Detail(detail, args...).
			Build()
	}

	// Slot indexes are 12 bits wide.
	if c.Registry.MaxSockets <= 0 || c.Registry.MaxSockets > 4096 {
		return invalid("registry.max_sockets must be in 1..4096, got %d", c.Registry.MaxSockets)
	}
	if c.Registry.MaxNameLen <= 0 {
		return invalid("registry.max_name_len must be positive, got %d", c.Registry.MaxNameLen)
	}
	if c.Registry.ExclusiveTimeout < 0 {
		return invalid("registry.exclusive_timeout must not be negative")
	}
	if c.Socket.Backlog <= 0 {
		return invalid("socket.backlog must be positive, got %d", c.Socket.Backlog)
	}
	switch c.Socket.Backend {
	case BackendDefault, BackendBSD, BackendNoSock:
	default:
		return invalid("unknown socket.backend %q", c.Socket.Backend)
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}
	return nil
}

// Logger builds a zap logger from the log section.
func (c LogConfig) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidArgument, "log level", err)
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
