package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the complete service configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	History HistoryConfig `toml:"history"`
	Auth    AuthConfig    `toml:"auth"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr         string   `toml:"addr"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
	Gzip         bool     `toml:"gzip"`
}

// HistoryConfig holds query journal settings.
type HistoryConfig struct {
	DataDir         string   `toml:"data_dir"`
	MaxEntries      int      `toml:"max_entries"`
	Retention       Duration `toml:"retention"`
	CompactInterval Duration `toml:"compact_interval"`
}

// AuthConfig holds API token settings.
type AuthConfig struct {
	Enabled    bool   `toml:"enabled"`
	TokensFile string `toml:"tokens_file"`
}

// Duration wraps time.Duration for TOML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Server: ServerConfig{Gzip: true}}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from a TOML file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	cfg := &Config{Server: ServerConfig{Gzip: true}}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from the LOGQL_CONFIG environment variable,
// then from the default locations. Without any file the defaults are used.
func LoadFromEnv() (*Config, error) {
	if path := os.Getenv("LOGQL_CONFIG"); path != "" {
		return Load(path)
	}

	defaultPaths := []string{
		"./configs/logql.toml",
		"./logql.toml",
		filepath.Join(os.Getenv("HOME"), ".config/logql/logql.toml"),
	}
	for _, p := range defaultPaths {
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}

	return Default(), nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8089"
	}
	if c.Server.ReadTimeout.Duration == 0 {
		c.Server.ReadTimeout.Duration = 10 * time.Second
	}
	if c.Server.WriteTimeout.Duration == 0 {
		c.Server.WriteTimeout.Duration = 10 * time.Second
	}

	if c.History.DataDir == "" {
		c.History.DataDir = "./data"
	}
	c.History.DataDir = os.ExpandEnv(c.History.DataDir)
	if c.History.MaxEntries <= 0 {
		c.History.MaxEntries = 1000
	}
	if c.History.Retention.Duration == 0 {
		c.History.Retention.Duration = 168 * time.Hour
	}
	if c.History.CompactInterval.Duration == 0 {
		c.History.CompactInterval.Duration = time.Hour
	}

	if c.Auth.TokensFile == "" {
		c.Auth.TokensFile = filepath.Join(c.History.DataDir, "tokens.json")
	}
	c.Auth.TokensFile = os.ExpandEnv(c.Auth.TokensFile)
}

// Validate rejects non-positive durations. Zero values are replaced by
// applyDefaults before Validate runs.
func (c *Config) Validate() error {
	durations := []struct {
		key string
		d   time.Duration
	}{
		{"server.read_timeout", c.Server.ReadTimeout.Duration},
		{"server.write_timeout", c.Server.WriteTimeout.Duration},
		{"history.retention", c.History.Retention.Duration},
		{"history.compact_interval", c.History.CompactInterval.Duration},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.key, d.d)
		}
	}
	return nil
}
