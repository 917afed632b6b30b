package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const envPrefix = "GH_SQL_"

// Config represents the gateway's full runtime configuration.
type Config struct {
	Database DatabaseConfig `json:"database"`
	LLM      LLMConfig      `json:"llm"`
	Guard    GuardConfig    `json:"guard"`
	Server   ServerConfig   `json:"server"`
	Cache    CacheConfig    `json:"cache"`
	Logging  LoggingConfig  `json:"logging"`
	Debug    DebugConfig    `json:"debug"`
}

// DatabaseConfig configures the pooled Postgres backend.
type DatabaseConfig struct {
	// DSN is read from GH_SQL_DB_DSN, or DATABASE_URL if that's set
	// instead (see applyPublicEnvAliases).
	DSN               string `json:"dsn"                 env:"DB_DSN"                    envDefault:"postgres://localhost:5432/thallos?sslmode=disable"`
	SchemaFile        string `json:"schema_file"         env:"DB_SCHEMA_FILE"            envDefault:"config/schema.yaml"`
	MaxConns          int32  `json:"max_conns"           env:"DB_MAX_CONNS"              envDefault:"5"`
	MinConns          int32  `json:"min_conns"           env:"DB_MIN_CONNS"              envDefault:"0"`
	MaxConnLifetime   string `json:"max_conn_lifetime"   env:"DB_MAX_CONN_LIFETIME"      envDefault:"1h"`
	MaxConnIdleTime   string `json:"max_conn_idle_time"  env:"DB_MAX_CONN_IDLE_TIME"     envDefault:"10s"`
	HealthCheckPeriod string `json:"health_check_period" env:"DB_HEALTH_CHECK_PERIOD"    envDefault:"1m"`
	StatementTimeout  string `json:"statement_timeout"   env:"DB_STATEMENT_TIMEOUT"      envDefault:"10s"`
	ConnectTimeout    string `json:"connect_timeout"     env:"DB_CONNECT_TIMEOUT"        envDefault:"5s"`
}

// LLMConfig configures the planner's OpenAI-compatible chat completion
// backend. BaseURL defaults to the OpenAI API but can be pointed at any
// compatible endpoint (Azure OpenAI, a local proxy, etc.).
type LLMConfig struct {
	// APIKey is read from GH_SQL_LLM_API_KEY, or OPENAI_API_KEY if
	// that's set instead (see applyPublicEnvAliases).
	APIKey      string `json:"-"            env:"LLM_API_KEY"`
	BaseURL     string `json:"base_url"     env:"LLM_BASE_URL"     envDefault:"https://api.openai.com/v1"`
	Model       string `json:"model"        env:"LLM_MODEL"        envDefault:"gpt-4o-mini"`
	Temperature float64 `json:"temperature" env:"LLM_TEMPERATURE"  envDefault:"0.0"`
	MaxTokens   int    `json:"max_tokens"   env:"LLM_MAX_TOKENS"   envDefault:"800"`
	Timeout     string `json:"timeout"      env:"LLM_TIMEOUT"      envDefault:"20s"`
}

// GuardConfig tunes the safety limits the Guard enforces.
type GuardConfig struct {
	DefaultLimit int `json:"default_limit" env:"GUARD_DEFAULT_LIMIT" envDefault:"100"`
	MaxLimit     int `json:"max_limit"     env:"GUARD_MAX_LIMIT"     envDefault:"1000"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string `json:"addr"             env:"SERVER_ADDR"             envDefault:":8080"`
	// APIKey is read from GH_SQL_SERVER_API_KEY, or SERVICE_API_KEY if
	// that's set instead (see applyPublicEnvAliases).
	APIKey          string `json:"-"                env:"SERVER_API_KEY"`
	RequestDeadline string `json:"request_deadline" env:"SERVER_REQUEST_DEADLINE" envDefault:"120s"`
	ReadTimeout     string `json:"read_timeout"     env:"SERVER_READ_TIMEOUT"     envDefault:"10s"`
	WriteTimeout    string `json:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    envDefault:"125s"`
}

// CacheConfig configures the plan cache (memoization of the Planner's
// reply, keyed by normalized question).
type CacheConfig struct {
	Directory   string `json:"directory"   env:"CACHE_DIR"          envDefault:"~/.cache/nlsql-gateway"`
	MaxSizeMB   int    `json:"max_size_mb" env:"CACHE_MAX_SIZE_MB"  envDefault:"64"`
	TTLMinutes  int    `json:"ttl_minutes" env:"CACHE_TTL_MINUTES"  envDefault:"10"`
	CleanupFreq string `json:"cleanup_frequency" env:"CACHE_CLEANUP_FREQ" envDefault:"5m"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"        env:"LOG_LEVEL"        envDefault:"info"`
	Format     string `json:"format"       env:"LOG_FORMAT"       envDefault:"text"`
	Output     string `json:"output"       env:"LOG_OUTPUT"       envDefault:"stdout"`
	File       string `json:"file"         env:"LOG_FILE"         envDefault:"~/.config/nlsql-gateway/logs/app.log"`
	MaxSizeMB  int    `json:"max_size_mb"  env:"LOG_MAX_SIZE_MB"  envDefault:"10"`
	MaxBackups int    `json:"max_backups"  env:"LOG_MAX_BACKUPS"  envDefault:"5"`
	MaxAgeDays int    `json:"max_age_days" env:"LOG_MAX_AGE_DAYS" envDefault:"30"`
	AddSource  bool   `json:"add_source"   env:"LOG_ADD_SOURCE"   envDefault:"false"`
}

// DebugConfig represents debug configuration.
type DebugConfig struct {
	Enabled     bool `json:"enabled"      env:"DEBUG"              envDefault:"false"`
	ProfilePort int  `json:"profile_port" env:"DEBUG_PROFILE_PORT" envDefault:"6060"`
	Verbose     bool `json:"verbose"      env:"VERBOSE"            envDefault:"false"`
	// SQL enables per-query SQL logging in the executor. Read from
	// GH_SQL_DEBUG_SQL, or DEBUG_SQL if that's set instead (see
	// applyPublicEnvAliases).
	SQL bool `json:"sql" env:"DEBUG_SQL" envDefault:"false"`
}

// LoadConfig loads configuration from an optional .env file, a config
// file if present, and environment variables (which always win).
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional flag overrides
// applied last, before validation.
func LoadConfigWithOverrides(flagOverrides map[string]interface{}) (*Config, error) {
	// Best-effort .env load; missing file is not an error, it just means
	// the process is expected to already have its environment set.
	_ = godotenv.Load()

	cfg := &Config{}

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	applyPublicEnvAliases(cfg)

	if flagOverrides != nil {
		if err := applyFlagOverrides(cfg, flagOverrides); err != nil {
			return nil, fmt.Errorf("failed to apply flag overrides: %w", err)
		}
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadConfigFromFile(cfg *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeConfigs(cfg, &fileConfig)

	return nil
}

// applyPublicEnvAliases lets an operator configure the gateway with the
// service's documented public environment contract (DATABASE_URL,
// OPENAI_API_KEY, SERVICE_API_KEY, DB_QUERY_TIMEOUT_MS, DEBUG_SQL)
// instead of the GH_SQL_-prefixed internal names env.ParseWithOptions
// reads. A public var wins over its GH_SQL_ equivalent when both are
// set.
func applyPublicEnvAliases(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}

	if v := os.Getenv("SERVICE_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}

	if v := os.Getenv("DB_QUERY_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Database.StatementTimeout = fmt.Sprintf("%dms", ms)
		}
	}

	if v := os.Getenv("DEBUG_SQL"); v != "" {
		cfg.Debug.SQL = v == "1" || strings.EqualFold(v, "true")
	}
}

func applyFlagOverrides(cfg *Config, overrides map[string]interface{}) error {
	for key, value := range overrides {
		switch key {
		case "db-dsn":
			if str, ok := value.(string); ok && str != "" {
				cfg.Database.DSN = str
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				cfg.Logging.Level = str
			}
		case "addr":
			if str, ok := value.(string); ok && str != "" {
				cfg.Server.Addr = str
			}
		case "verbose":
			if b, ok := value.(bool); ok {
				cfg.Debug.Verbose = b
			}
		case "debug":
			if b, ok := value.(bool); ok {
				cfg.Debug.Enabled = b
			}
		}
	}

	return nil
}

func mergeConfigs(target, source *Config) {
	var mergeValues func(t, s reflect.Value)
	mergeValues = func(t, s reflect.Value) {
		if t.Kind() != s.Kind() {
			return
		}

		if t.Kind() == reflect.Struct {
			for i := 0; i < s.NumField(); i++ {
				mergeValues(t.Field(i), s.Field(i))
			}
		} else if s.Kind() == reflect.Bool {
			t.Set(s)
		} else if !s.IsZero() {
			t.Set(s)
		}
	}

	mergeValues(reflect.ValueOf(target).Elem(), reflect.ValueOf(source).Elem())
}

func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Logging.Level)
	}

	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[strings.ToLower(cfg.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", cfg.Logging.Format)
	}

	validLogOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validLogOutputs[strings.ToLower(cfg.Logging.Output)] {
		return fmt.Errorf("invalid log output: %s (must be stdout, stderr, or file)", cfg.Logging.Output)
	}

	durations := map[string]string{
		"database.max_conn_lifetime":   cfg.Database.MaxConnLifetime,
		"database.max_conn_idle_time":  cfg.Database.MaxConnIdleTime,
		"database.health_check_period": cfg.Database.HealthCheckPeriod,
		"database.statement_timeout":   cfg.Database.StatementTimeout,
		"database.connect_timeout":     cfg.Database.ConnectTimeout,
		"llm.timeout":                  cfg.LLM.Timeout,
		"server.request_deadline":      cfg.Server.RequestDeadline,
		"server.read_timeout":          cfg.Server.ReadTimeout,
		"server.write_timeout":         cfg.Server.WriteTimeout,
		"cache.cleanup_frequency":      cfg.Cache.CleanupFreq,
	}
	for name, val := range durations {
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("invalid duration for %s: %s", name, val)
		}
	}

	if cfg.Database.MaxConns <= 0 {
		return fmt.Errorf("database max conns must be positive: %d", cfg.Database.MaxConns)
	}

	if cfg.Guard.MaxLimit < cfg.Guard.DefaultLimit {
		return fmt.Errorf(
			"guard max limit (%d) must be >= default limit (%d)",
			cfg.Guard.MaxLimit, cfg.Guard.DefaultLimit,
		)
	}

	return nil
}

// SaveConfig saves configuration to file.
func SaveConfig(cfg *Config) error {
	configPath := getConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func getConfigPath() string {
	if configPath := os.Getenv(envPrefix + "CONFIG"); configPath != "" {
		return expandPath(configPath)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}

	return filepath.Join(homeDir, ".config", "nlsql-gateway", "config.json")
}

func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all filesystem paths in the configuration.
func (c *Config) ExpandAllPaths() {
	c.Cache.Directory = expandPath(c.Cache.Directory)
	c.Logging.File = expandPath(c.Logging.File)
}

// EnsureDirectories creates the directories the configuration references.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Cache.Directory, filepath.Dir(c.Logging.File)}

	for _, dir := range dirs {
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}
