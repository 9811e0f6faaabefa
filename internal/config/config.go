// Package config loads gateway settings from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/inkgate/inkgate/internal/logging"
)

// Defaults applied when neither the config file nor the environment
// provides a value.
const (
	DefaultAPIURL = "http://localhost:1234/v1"
	DefaultModel  = "local-model"
	DefaultListen = "127.0.0.1:8090"
)

// Config holds all gateway settings.
type Config struct {
	// APIURL is the base URL of the OpenAI-compatible provider.
	APIURL string `yaml:"api_url"`
	// APIKey authenticates against the provider; empty for local ones.
	APIKey string `yaml:"api_key"`
	// Model is the model identifier sent with each request.
	Model string `yaml:"model"`
	// Listen is the HTTP bind address for the gateway server.
	Listen string `yaml:"listen"`
	// Workspace is the root directory tools may touch. Defaults to the
	// current working directory.
	Workspace string `yaml:"workspace"`
	// DataDir holds the session database and permission rules file.
	DataDir string `yaml:"data_dir"`
	// SystemPrompt overrides the built-in system prompt when set.
	SystemPrompt string `yaml:"system_prompt"`
}

// ConfigError reports an unusable configuration file or value.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// DefaultPath returns the standard config file location,
// ~/.config/inkgate/inkgate.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "inkgate.yaml"
	}
	return filepath.Join(home, ".config", "inkgate", "inkgate.yaml")
}

// DefaultDataDir returns the standard data directory,
// ~/.local/share/inkgate.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".inkgate"
	}
	return filepath.Join(home, ".local", "share", "inkgate")
}

// Load reads the config file at path (the default location when path is
// empty), applies INKGATE_* environment overrides, and fills defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultPath()
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigError{Path: path, Err: err}
		}
		logging.Debug("config: loaded %s", path)
	case os.IsNotExist(err) && !explicit:
		logging.Debug("config: no file at %s, using defaults", path)
	default:
		return nil, &ConfigError{Path: path, Err: err}
	}

	// Environment beats file.
	if v := os.Getenv("INKGATE_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("INKGATE_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("INKGATE_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("INKGATE_LISTEN"); v != "" {
		cfg.Listen = v
	}

	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.Workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, &ConfigError{Path: path, Err: fmt.Errorf("resolve workspace: %w", err)}
		}
		cfg.Workspace = wd
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	return cfg, nil
}

// DatabasePath returns the session database location under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "sessions.db")
}

// RulesPath returns the permission rules file location under DataDir.
func (c *Config) RulesPath() string {
	return filepath.Join(c.DataDir, "rules.yaml")
}
