// Package config loads the client configuration file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// AppName names the directory under the user config dir.
const AppName = "gophchat"

// Config is the client configuration. Zero durations fall back to defaults.
type Config struct {
	Server         string        `yaml:"server"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{Server: "http://localhost:5001", PollInterval: 2 * time.Second}
}

// Dir is $XDG_CONFIG_HOME/gophchat, falling back to ~/.config/gophchat.
func Dir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, AppName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", AppName)
}

// DefaultPath is Dir()/config.yaml.
func DefaultPath() string { return filepath.Join(Dir(), "config.yaml") }

// Load reads path over Default(). A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating the directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// Validate checks the server URL and the durations.
func (c Config) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server %q: want http(s)://host[:port]", c.Server)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll_interval %s is negative", c.PollInterval)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout %s is negative", c.RequestTimeout)
	}
	return nil
}
