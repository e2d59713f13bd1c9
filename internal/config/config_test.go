package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `{
		"port": 9090,
		"database_url": "postgres://localhost/companies",
		"source_url": "https://example.com/data.zip",
		"batch_size": 500
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres://localhost/companies", cfg.DatabaseURL)
	assert.Equal(t, "https://example.com/data.zip", cfg.SourceURL)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Empty(t, cfg.DownloadPage)
}

func TestLoadConfigEmptyPath(t *testing.T) {
	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := writeConfigFile(t, `{"port": `)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("COMPANIES_SOURCE_URL", "https://env.example.com/data.zip")
	t.Setenv("COMPANIES_DOWNLOAD_PAGE", "https://env.example.com/downloads")

	cfg := FromEnv()
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)
	assert.Equal(t, "https://env.example.com/data.zip", cfg.SourceURL)
	assert.Equal(t, "https://env.example.com/downloads", cfg.DownloadPage)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "zero value", cfg: Config{}, wantErr: false},
		{name: "valid", cfg: Config{Port: 8080, BatchSize: 1000}, wantErr: false},
		{name: "negative port", cfg: Config{Port: -1}, wantErr: true},
		{name: "port too large", cfg: Config{Port: 70000}, wantErr: true},
		{name: "negative batch size", cfg: Config{BatchSize: -5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMergeWithDefaults(t *testing.T) {
	defaults := Config{
		Port:         8080,
		DatabaseURL:  "postgres://default/db",
		DownloadPage: "https://default.example.com/downloads",
		BatchSize:    1000,
	}

	t.Run("empty config takes all defaults", func(t *testing.T) {
		cfg := Config{}
		merged := cfg.MergeWithDefaults(defaults)
		assert.Equal(t, defaults, merged)
	})

	t.Run("set fields win over defaults", func(t *testing.T) {
		cfg := Config{Port: 9090, DatabaseURL: "postgres://mine/db"}
		merged := cfg.MergeWithDefaults(defaults)

		assert.Equal(t, 9090, merged.Port)
		assert.Equal(t, "postgres://mine/db", merged.DatabaseURL)
		assert.Equal(t, "https://default.example.com/downloads", merged.DownloadPage)
		assert.Equal(t, 1000, merged.BatchSize)
	})
}
