package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/san-kum/timederiv/internal/stepstore"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the engine configuration read from the working directory
// when --config is not given.
const DefaultFile = "timederiv.yaml"

const (
	DefaultLogLevel    = "info"
	DefaultLogEncoding = "console"
)

type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type EngineConfig struct {
	InMemory          bool   `yaml:"in_memory"`
	SyncWrites        bool   `yaml:"sync_writes"`
	NumVersionsToKeep int    `yaml:"num_versions_to_keep"`
	Compression       string `yaml:"compression"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// DefaultConfig returns the store engine defaults with info-level console
// logging.
func DefaultConfig() *Config {
	engine := stepstore.DefaultConfig()
	return &Config{
		Engine: EngineConfig{
			InMemory:          engine.InMemory,
			SyncWrites:        engine.SyncWrites,
			NumVersionsToKeep: engine.NumVersionsToKeep,
			Compression:       engine.Compression,
		},
		Log: LogConfig{
			Level:    DefaultLogLevel,
			Encoding: DefaultLogEncoding,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields DefaultConfig.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Engine.Compression) {
	case "", "none", "snappy", "zstd":
	default:
		return fmt.Errorf("unknown engine compression %q", c.Engine.Compression)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch c.Log.Encoding {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log encoding %q", c.Log.Encoding)
	}
	if c.Engine.NumVersionsToKeep < 0 {
		return fmt.Errorf("num_versions_to_keep must not be negative, got %d", c.Engine.NumVersionsToKeep)
	}
	return nil
}

// StoreConfig returns the engine settings for the store at path.
func (c *Config) StoreConfig(path string) stepstore.Config {
	return stepstore.Config{
		Path:              path,
		InMemory:          c.Engine.InMemory,
		SyncWrites:        c.Engine.SyncWrites,
		NumVersionsToKeep: c.Engine.NumVersionsToKeep,
		Compression:       c.Engine.Compression,
	}
}
