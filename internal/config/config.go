// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the service configuration that can be loaded from a JSON
// file. All fields are optional; missing values use defaults, CLI flags, or
// environment variables.
type Config struct {
	Port         int    `json:"port,omitempty"`          // HTTP listen port
	DatabaseURL  string `json:"database_url,omitempty"`  // PostgreSQL connection URL
	SourceURL    string `json:"source_url,omitempty"`    // Pinned dataset archive URL
	DownloadPage string `json:"download_page,omitempty"` // Page to resolve the latest snapshot from
	BatchSize    int    `json:"batch_size,omitempty"`    // Rows per upsert batch
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv returns a Config populated from environment variables. Call after
// godotenv has loaded any .env file.
func FromEnv() Config {
	return Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		SourceURL:    os.Getenv("COMPANIES_SOURCE_URL"),
		DownloadPage: os.Getenv("COMPANIES_DOWNLOAD_PAGE"),
	}
}

// Validate checks that the configuration has valid values.
// Required fields are checked by the command after merging.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("config error: 'batch_size' must be non-negative")
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from
// defaults. Used to let flags win over the config file and the config file
// win over the environment.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.SourceURL == "" {
		result.SourceURL = defaults.SourceURL
	}
	if result.DownloadPage == "" {
		result.DownloadPage = defaults.DownloadPage
	}
	if result.BatchSize == 0 {
		result.BatchSize = defaults.BatchSize
	}

	return result
}
