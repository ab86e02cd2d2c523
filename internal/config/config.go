// File: internal/config/config.go
// Package config
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// YAML configuration for the wsecho command.

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/momentics/wstransport/api"
)

// Config holds the wsecho configuration.
type Config struct {
	Listen  string        `yaml:"listen"`
	Path    string        `yaml:"path"`
	Log     LogConfig     `yaml:"log"`
	Channel ChannelConfig `yaml:"channel"`
}

// LogConfig selects the logger's level, encoding and outputs.
type LogConfig struct {
	Level       string         `yaml:"level"`
	Format      string         `yaml:"format"`
	Outputs     []string       `yaml:"outputs"`
	Development bool           `yaml:"development"`
	Rotation    RotationConfig `yaml:"rotation"`
}

// RotationConfig controls lumberjack rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `yaml:"enable"`
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ChannelConfig tunes every accepted connection.
type ChannelConfig struct {
	InboundQueue int           `yaml:"inbound_queue"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadLimit    int64         `yaml:"read_limit"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen: ":9001",
		Path:   "/ws",
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
		},
		Channel: ChannelConfig{
			InboundQueue: 64,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Load reads the configuration from the given YAML file path.
// An empty path or a missing file yields the defaults with no error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values no channel can run with.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Path, "/") {
		return invalid("path must start with /", "path", c.Path)
	}
	if c.Channel.InboundQueue <= 0 {
		return invalid("inbound_queue must be positive", "inbound_queue", c.Channel.InboundQueue)
	}
	if c.Channel.WriteTimeout < 0 {
		return invalid("write_timeout must not be negative", "write_timeout", c.Channel.WriteTimeout)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		return invalid("unknown log format", "format", c.Log.Format)
	}
	return nil
}

func invalid(msg, key string, value any) error {
	return api.NewError(api.ErrCodeInvalidArgument, msg).WithContext(key, value)
}
