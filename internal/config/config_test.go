package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() *Config {
	cfg := &Config{}
	_ = json.Unmarshal([]byte(`{}`), cfg)
	cfg.Database = DatabaseConfig{
		DSN: "postgres://localhost:5432/thallos?sslmode=disable", SchemaFile: "config/schema.yaml",
		MaxConns: 5, MinConns: 0, MaxConnLifetime: "1h", MaxConnIdleTime: "10s",
		HealthCheckPeriod: "1m", StatementTimeout: "10s", ConnectTimeout: "5s",
	}
	cfg.LLM = LLMConfig{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini", MaxTokens: 800, Timeout: "20s"}
	cfg.Guard = GuardConfig{DefaultLimit: 100, MaxLimit: 1000}
	cfg.Server = ServerConfig{Addr: ":8080", RequestDeadline: "120s", ReadTimeout: "10s", WriteTimeout: "125s"}
	cfg.Cache = CacheConfig{Directory: "~/.cache/nlsql-gateway", MaxSizeMB: 64, TTLMinutes: 10, CleanupFreq: "5m"}
	cfg.Logging = LoggingConfig{Level: "info", Format: "text", Output: "stdout", File: "~/.config/nlsql-gateway/logs/app.log"}

	return cfg
}

func TestLoadConfigFromFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")

	testConfig := map[string]interface{}{
		"database": map[string]interface{}{
			"dsn": "postgres://custom/db",
		},
		"logging": map[string]interface{}{
			"level":  "debug",
			"format": "json",
			"output": "file",
			"file":   "/custom/log/path.log",
		},
		"debug": map[string]interface{}{
			"enabled": true,
			"verbose": true,
		},
	}

	data, err := json.MarshalIndent(testConfig, "", "  ")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(configPath, data, 0o600))

	cfg := baseConfig()
	err = loadConfigFromFile(cfg, configPath)
	require.NoError(t, err)

	assert.Equal(t, "postgres://custom/db", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "file", cfg.Logging.Output)
	assert.Equal(t, "/custom/log/path.log", cfg.Logging.File)
	assert.True(t, cfg.Debug.Enabled)
	assert.True(t, cfg.Debug.Verbose)
}

func TestLoadConfigFromFileInvalidJSON(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")

	require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0o600))

	cfg := baseConfig()
	err := loadConfigFromFile(cfg, configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := baseConfig()

	overrides := map[string]interface{}{
		"db-dsn":    "postgres://flag/db",
		"log-level": "error",
		"addr":      ":9090",
		"verbose":   true,
		"debug":     true,
	}

	err := applyFlagOverrides(cfg, overrides)
	require.NoError(t, err)

	assert.Equal(t, "postgres://flag/db", cfg.Database.DSN)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.True(t, cfg.Debug.Verbose)
	assert.True(t, cfg.Debug.Enabled)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name          string
		modify        func(*Config)
		expectError   bool
		errorContains string
	}{
		{name: "valid config", modify: func(_ *Config) {}},
		{
			name:          "invalid log level",
			modify:        func(c *Config) { c.Logging.Level = "invalid" },
			expectError:   true,
			errorContains: "invalid log level",
		},
		{
			name:          "invalid log format",
			modify:        func(c *Config) { c.Logging.Format = "invalid" },
			expectError:   true,
			errorContains: "invalid log format",
		},
		{
			name:          "invalid log output",
			modify:        func(c *Config) { c.Logging.Output = "invalid" },
			expectError:   true,
			errorContains: "invalid log output",
		},
		{
			name:          "invalid statement timeout",
			modify:        func(c *Config) { c.Database.StatementTimeout = "invalid" },
			expectError:   true,
			errorContains: "invalid duration",
		},
		{
			name:          "invalid cache cleanup frequency",
			modify:        func(c *Config) { c.Cache.CleanupFreq = "invalid" },
			expectError:   true,
			errorContains: "invalid duration",
		},
		{
			name:          "invalid max conns",
			modify:        func(c *Config) { c.Database.MaxConns = -1 },
			expectError:   true,
			errorContains: "database max conns must be positive",
		},
		{
			name:          "guard max below default",
			modify:        func(c *Config) { c.Guard.MaxLimit = 10; c.Guard.DefaultLimit = 100 },
			expectError:   true,
			errorContains: "guard max limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.modify(cfg)

			err := validateConfig(cfg)
			if tt.expectError {
				assert.Error(t, err)
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home := os.Getenv("HOME")
	if home == "" {
		t.Skip("HOME environment variable not set")
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "absolute path", input: "/absolute/path", expected: "/absolute/path"},
		{name: "relative path", input: "relative/path", expected: "relative/path"},
		{name: "home directory only", input: "~", expected: home},
		{name: "home directory with path", input: "~/config/file.json", expected: filepath.Join(home, "config/file.json")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandPath(tt.input))
		})
	}
}

func TestConfigExpandAllPaths(t *testing.T) {
	home := os.Getenv("HOME")
	if home == "" {
		t.Skip("HOME environment variable not set")
	}

	cfg := &Config{
		Cache:   CacheConfig{Directory: "~/cache"},
		Logging: LoggingConfig{File: "~/logs/app.log"},
	}

	cfg.ExpandAllPaths()

	assert.Equal(t, filepath.Join(home, "cache"), cfg.Cache.Directory)
	assert.Equal(t, filepath.Join(home, "logs/app.log"), cfg.Logging.File)
}

func TestSaveConfig(t *testing.T) {
	tempConfigPath := filepath.Join(t.TempDir(), "test_config.json")
	t.Setenv(envPrefix+"CONFIG", tempConfigPath)

	cfg := baseConfig()
	cfg.Database.DSN = "postgres://custom/path"
	cfg.Logging.Level = "debug"

	require.NoError(t, SaveConfig(cfg))

	data, err := os.ReadFile(tempConfigPath)
	require.NoError(t, err)

	var loaded Config
	require.NoError(t, json.Unmarshal(data, &loaded))

	assert.Equal(t, cfg.Database.DSN, loaded.Database.DSN)
	assert.Equal(t, cfg.Logging.Level, loaded.Logging.Level)
}

func TestLoadConfigWithOverrides(t *testing.T) {
	tempConfigPath := filepath.Join(t.TempDir(), "test_config.json")
	t.Setenv(envPrefix+"CONFIG", tempConfigPath)

	cfg, err := LoadConfigWithOverrides(nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadConfigWithOverridesHonorsPublicEnvNames(t *testing.T) {
	tempConfigPath := filepath.Join(t.TempDir(), "test_config.json")
	t.Setenv(envPrefix+"CONFIG", tempConfigPath)
	t.Setenv("DATABASE_URL", "postgres://public/path")
	t.Setenv("OPENAI_API_KEY", "sk-public-key")
	t.Setenv("SERVICE_API_KEY", "public-service-key")
	t.Setenv("DB_QUERY_TIMEOUT_MS", "60000")
	t.Setenv("DEBUG_SQL", "1")

	cfg, err := LoadConfigWithOverrides(nil)
	require.NoError(t, err)

	assert.Equal(t, "postgres://public/path", cfg.Database.DSN)
	assert.Equal(t, "sk-public-key", cfg.LLM.APIKey)
	assert.Equal(t, "public-service-key", cfg.Server.APIKey)
	assert.Equal(t, "60000ms", cfg.Database.StatementTimeout)
	assert.True(t, cfg.Debug.SQL)
}

func TestLoadConfigWithOverridesPrefixedEnvStillWorksWithoutPublicNames(t *testing.T) {
	tempConfigPath := filepath.Join(t.TempDir(), "test_config.json")
	t.Setenv(envPrefix+"CONFIG", tempConfigPath)
	t.Setenv(envPrefix+"DB_DSN", "postgres://prefixed/path")

	cfg, err := LoadConfigWithOverrides(nil)
	require.NoError(t, err)

	assert.Equal(t, "postgres://prefixed/path", cfg.Database.DSN)
}

func TestMergeConfigs(t *testing.T) {
	target := baseConfig()
	source := &Config{
		Database: DatabaseConfig{DSN: "postgres://new/path", MaxConns: 25},
		Logging:  LoggingConfig{Level: "debug"},
	}

	mergeConfigs(target, source)

	assert.Equal(t, "postgres://new/path", target.Database.DSN)
	assert.Equal(t, int32(25), target.Database.MaxConns)
	assert.Equal(t, "debug", target.Logging.Level)
	assert.Equal(t, "text", target.Logging.Format)
}
