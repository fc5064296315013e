// Package config loads application configuration from a YAML file with
// environment variable overrides. A missing config file is not an
// error: defaults plus environment cover the common deployment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all gramkeeper configuration.
type Config struct {
	// Directory for the database, session file, logs, and screenshots.
	DataDir string `yaml:"data_dir"`

	Server  ServerConfig  `yaml:"server"`
	Browser BrowserConfig `yaml:"browser"`
	AI      AIConfig      `yaml:"ai"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// BrowserConfig configures Chrome automation.
type BrowserConfig struct {
	Headless  bool   `yaml:"headless"`
	Bin       string `yaml:"bin"`
	UserAgent string `yaml:"user_agent"`
}

// AIConfig configures comment suggestion generation.
type AIConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxImages int    `yaml:"max_images"`
}

// LoggingConfig configures the category log files.
type LoggingConfig struct {
	DebugMode  bool     `yaml:"debug_mode"`
	Categories []string `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",
		Server: ServerConfig{
			Port: 8080,
		},
		Browser: BrowserConfig{
			Headless: true,
		},
		AI: AIConfig{
			Model:     "gemini-2.5-flash",
			MaxImages: 3,
		},
	}
}

// Load reads configuration from a YAML file, layering environment
// variables (including a .env file next to the config, if present) on
// top. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	// Best effort: a .env file is a convenience, not a requirement.
	_ = godotenv.Load()
	if path != "" {
		_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GRAMKEEPER_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("GRAMKEEPER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("GRAMKEEPER_AI_MODEL"); v != "" {
		c.AI.Model = v
	}
	if v := os.Getenv("GRAMKEEPER_BROWSER_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if v := os.Getenv("GRAMKEEPER_HEADLESS"); v != "" {
		c.Browser.Headless = v != "false" && v != "0"
	}
	if v := os.Getenv("GRAMKEEPER_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "true" || v == "1"
	}
}

// ScreenshotDir returns the directory for failure screenshots.
func (c *Config) ScreenshotDir() string {
	return filepath.Join(c.DataDir, "screenshots")
}

// Validate checks the configuration for operability. A missing AI key
// is allowed; curation then runs without comment suggestions.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.AI.MaxImages < 0 {
		return fmt.Errorf("ai.max_images must not be negative")
	}
	return nil
}
