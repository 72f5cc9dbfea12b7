package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/atu-ide/bizbridge/internal/client"
	"github.com/atu-ide/bizbridge/internal/models"
)

const (
	DefaultConfigDir  = ".config/bizbridge"
	DefaultConfigFile = "config.yaml"
)

// DefaultConfig returns the configuration used when no file exists
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Kind:            client.KindUnix,
			Socket:          client.DefaultSocketPath,
			ConnectAttempts: 3,
			DialTimeout:     "5s",
		},
		Locale: LocaleConfig{
			Language: "en",
		},
	}
}

// LoadConfig loads configuration from the specified path or default location
// If path is empty, uses ~/.config/bizbridge/config.yaml
// Supports both .yaml and .json extensions
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		// Try YAML first, then JSON
		yamlPath := filepath.Join(home, DefaultConfigDir, "config.yaml")
		jsonPath := filepath.Join(home, DefaultConfigDir, "config.json")

		if _, err := os.Stat(yamlPath); err == nil {
			path = yamlPath
		} else if _, err := os.Stat(jsonPath); err == nil {
			path = jsonPath
		} else {
			return nil, fmt.Errorf("no config file found at %s or %s", yamlPath, jsonPath)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	cfg, err := LoadConfigFromBytes(data, ext)
	if err != nil {
		return nil, err
	}
	cfg.Locale.Bundles = expandHome(cfg.Locale.Bundles)
	return cfg, nil
}

// LoadConfigFromBytes loads configuration from raw bytes
// format should be "yaml" or "json"
func LoadConfigFromBytes(data []byte, format string) (*Config, error) {
	cfg := DefaultConfig()

	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the default config file path
func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile)
}

// ClientOptions converts the transport section for client.Dial
func (c *Config) ClientOptions() client.Options {
	timeout, _ := parseDuration(c.Transport.DialTimeout)
	return client.Options{
		Kind:       c.Transport.Kind,
		SocketPath: c.Transport.Socket,
		URL:        c.Transport.URL,
		Timeout:    timeout,
		Attempts:   c.Transport.ConnectAttempts,
	}
}

// RequestTimeout returns the per-request timeout, zero meaning none
func (c *Config) RequestTimeout() time.Duration {
	d, _ := parseDuration(c.Session.RequestTimeout)
	return d
}

// Body builds a request body carrying the session fields
func Body[T any](c *Config, data T) models.RequestBody[T] {
	return models.RequestBody[T]{
		SolutionID: c.Session.SolutionID,
		Username:   c.Session.Username,
		ProjectID:  c.Session.ProjectID,
		Data:       data,
	}
}

// Marshal renders the config in the given format for `config show`
func (c *Config) Marshal(format string) ([]byte, error) {
	switch format {
	case "json":
		return json.MarshalIndent(c, "", "  ")
	default:
		return yaml.Marshal(c)
	}
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
