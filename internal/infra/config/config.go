// Package config provides configuration loading from YAML files.
package config

import (
	"net"
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvPort    = "LYRICSYNC_PORT"
	EnvAPIAddr = "LYRICSYNC_API_ADDR"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig          `yaml:"server"`
	Playback  PlaybackConfig        `yaml:"playback"`
	Reconnect ReconnectConfig       `yaml:"reconnect"`
	API       APIConfig             `yaml:"api"`
	Sinks     map[string]SinkConfig `yaml:"sinks" validate:"dive"`
}

// ServerConfig represents ingestion server configuration.
type ServerConfig struct {
	Port           int         `yaml:"port" default:"35010" validate:"gte=1,lte=65535"`
	CollectionPath string      `yaml:"collection_path" default:"/" validate:"startswith=/"`
	MaxBodyBytes   int64       `yaml:"max_body_bytes" default:"1048576" validate:"gte=1024"`
	Hooks          HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// PlaybackConfig represents local clock configuration.
type PlaybackConfig struct {
	Speed          float64 `yaml:"speed" default:"1.0" validate:"gte=0.1,lte=2"`
	TickIntervalMs int     `yaml:"tick_interval_ms" default:"16" validate:"gte=1,lte=1000"`
}

// ReconnectConfig represents reconnection supervisor configuration.
type ReconnectConfig struct {
	IntervalMs int `yaml:"interval_ms" default:"5000" validate:"gte=100"`
}

// APIConfig represents query API configuration.
type APIConfig struct {
	Enabled *bool  `yaml:"enabled" default:"true"`
	Addr    string `yaml:"addr" default:"127.0.0.1:35011" validate:"hostname_port"`
}

// SinkConfig represents a sink's configuration.
type SinkConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// LoadOrDefault is like Load but uses an empty document when path does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Parse(nil)
	}
	return cfg, err
}

// Parse parses a YAML document, applies environment overrides and defaults,
// and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", EnvPort)
		}
		c.Server.Port = port
	}
	if v := os.Getenv(EnvAPIAddr); v != "" {
		c.API.Addr = v
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := c.validatePorts(); err != nil {
		return err
	}

	return nil
}

// validatePorts checks that the API does not collide with the ingestion port.
func (c *Config) validatePorts() error {
	if !c.APIEnabled() {
		return nil
	}
	_, portStr, err := net.SplitHostPort(c.API.Addr)
	if err != nil {
		return errors.Wrap(err, "failed to parse api.addr")
	}
	if portStr == strconv.Itoa(c.Server.Port) {
		return errors.Newf("api.addr (%s) must not use the ingestion port %d", c.API.Addr, c.Server.Port)
	}
	return nil
}

// APIEnabled reports whether the query API should be served.
func (c *Config) APIEnabled() bool {
	return c.API.Enabled == nil || *c.API.Enabled
}

// TickInterval returns the host tick interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Playback.TickIntervalMs) * time.Millisecond
}

// ReconnectInterval returns the time between reconnect attempts.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.Reconnect.IntervalMs) * time.Millisecond
}

// IsSinkEnabled checks if a sink is enabled.
func (c *Config) IsSinkEnabled(name string) bool {
	if s, ok := c.Sinks[name]; ok {
		return s.Enabled
	}
	return false
}

// EnabledSinks returns the settings of every enabled sink by name.
func (c *Config) EnabledSinks() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for name, s := range c.Sinks {
		if s.Enabled {
			out[name] = s.Settings
		}
	}
	return out
}
