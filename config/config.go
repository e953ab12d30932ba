// Package config loads pluginstall settings from defaults, an optional YAML file, a .env file and
// PLUGINSTALL_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/joncooperworks/pluginstall/artifact"
	"github.com/joncooperworks/pluginstall/credentials"
	"github.com/joncooperworks/pluginstall/launcher"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "PLUGINSTALL_"

// DefaultRuntimeConfig is the runtime descriptor looked up when none is configured.
const DefaultRuntimeConfig = "heliosphere-installer.runtimeconfig.json"

type Config struct {
	RuntimeConfig   string        `yaml:"runtime_config"`
	LauncherRoot    string        `yaml:"launcher_root,omitempty"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
	MaxArchiveBytes int64         `yaml:"max_archive_bytes"`
	LogLevel        string        `yaml:"log_level"`
	KeyringService  string        `yaml:"keyring_service"`
	MetricsFile     string        `yaml:"metrics_file,omitempty"`
	UserAgent       string        `yaml:"user_agent"`
	Concurrency     int           `yaml:"concurrency"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		RuntimeConfig:   DefaultRuntimeConfig,
		HTTPTimeout:     artifact.DefaultTimeout,
		MaxArchiveBytes: artifact.DefaultMaxBytes,
		LogLevel:        "info",
		KeyringService:  credentials.DefaultService,
		UserAgent:       artifact.DefaultUserAgent,
		Concurrency:     4,
	}
}

// Load builds the configuration. path names an optional YAML file; when it is empty no file is
// read. envFiles are loaded with godotenv without overriding variables already set; with none
// given, a .env in the working directory is loaded if present.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("RUNTIME_CONFIG", &c.RuntimeConfig)
	str("LAUNCHER_ROOT", &c.LauncherRoot)
	str("LOG_LEVEL", &c.LogLevel)
	str("KEYRING_SERVICE", &c.KeyringService)
	str("METRICS_FILE", &c.MetricsFile)
	str("USER_AGENT", &c.UserAgent)

	if v, ok := lookup("HTTP_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sHTTP_TIMEOUT: %w", EnvPrefix, err)
		}
		c.HTTPTimeout = d
	}
	if v, ok := lookup("MAX_ARCHIVE_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_ARCHIVE_BYTES: %w", EnvPrefix, err)
		}
		c.MaxArchiveBytes = n
	}
	if v, ok := lookup("CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sCONCURRENCY: %w", EnvPrefix, err)
		}
		c.Concurrency = n
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if c.RuntimeConfig == "" {
		return errors.New("runtime_config cannot be empty")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive, got %s", c.HTTPTimeout)
	}
	if c.MaxArchiveBytes <= 0 {
		return fmt.Errorf("max_archive_bytes must be positive, got %d", c.MaxArchiveBytes)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	return nil
}

// Layout returns the launcher layout, falling back to the platform default root.
func (c *Config) Layout() (launcher.Layout, error) {
	if c.LauncherRoot != "" {
		return launcher.Layout{Root: c.LauncherRoot}, nil
	}
	return launcher.DefaultLayout()
}

// Write stores the configuration as YAML at path.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
