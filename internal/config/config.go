// Package config loads the CLI configuration from defaults, an optional YAML
// file and SRQ20_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. SRQ20_API_URL or SRQ20_STORAGE_DSN.
const EnvPrefix = "SRQ20"

// Config is the top-level configuration.
type Config struct {
	APIURL         string          `mapstructure:"api_url" yaml:"api_url"`
	RequestTimeout time.Duration   `mapstructure:"request_timeout" yaml:"request_timeout"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Storage        StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Log            LogConfig       `mapstructure:"log" yaml:"log"`
	Metrics        MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Password       PasswordConfig  `mapstructure:"password" yaml:"password"`
}

// RateLimitConfig throttles outbound requests. RPS <= 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" yaml:"rps"`
	Burst int     `mapstructure:"burst" yaml:"burst"`
}

// StorageConfig selects the client state backend.
type StorageConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// LogConfig holds settings for the logger.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// MetricsConfig points at a node-exporter textfile; empty disables the dump.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// PasswordConfig selects the registration password rule: "length" or "strong".
type PasswordConfig struct {
	Policy string `mapstructure:"policy" yaml:"policy"`
}

// Dir is the per-user configuration directory.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		base = "."
	}
	return filepath.Join(base, "srq20")
}

// DefaultPath is where Load looks for config.yaml when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		APIURL:         "http://localhost:8000/api",
		RequestTimeout: 15 * time.Second,
		RateLimit:      RateLimitConfig{RPS: 0, Burst: 1},
		Storage:        StorageConfig{DSN: "sqlite:" + filepath.Join(Dir(), "state.db")},
		Log:            LogConfig{Level: "warn", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 7},
		Password:       PasswordConfig{Policy: "length"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("api_url", d.APIURL)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("rate_limit.rps", d.RateLimit.RPS)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)
	v.SetDefault("storage.dsn", d.Storage.DSN)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
	v.SetDefault("password.policy", d.Password.Policy)
}

// Load reads path (or DefaultPath when empty). A missing default file is not
// an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), !explicit && errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return errors.New("config: api_url is required")
	}
	if strings.TrimSpace(c.Storage.DSN) == "" {
		return errors.New("config: storage.dsn is required")
	}
	if c.RequestTimeout < 0 {
		return errors.New("config: request_timeout must not be negative")
	}
	switch c.Password.Policy {
	case "", "length", "strong":
	default:
		return fmt.Errorf("config: unknown password.policy %q", c.Password.Policy)
	}
	return nil
}

// WriteFile writes cfg as YAML to path, creating parent directories. It
// refuses to overwrite an existing file unless force is set.
func WriteFile(path string, cfg Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config: %s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	raw, err := yaml.Marshal(toFile(cfg))
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return os.WriteFile(path, raw, 0o600)
}

// fileConfig is Config with durations rendered as strings viper can read back.
type fileConfig struct {
	APIURL         string          `yaml:"api_url"`
	RequestTimeout string          `yaml:"request_timeout"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Storage        StorageConfig   `yaml:"storage"`
	Log            LogConfig       `yaml:"log"`
	Metrics        MetricsConfig   `yaml:"metrics"`
	Password       PasswordConfig  `yaml:"password"`
}

func toFile(c Config) fileConfig {
	return fileConfig{
		APIURL:         c.APIURL,
		RequestTimeout: c.RequestTimeout.String(),
		RateLimit:      c.RateLimit,
		Storage:        c.Storage,
		Log:            c.Log,
		Metrics:        c.Metrics,
		Password:       c.Password,
	}
}
