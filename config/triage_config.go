package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const DefaultConfigFile = "config.yaml"

type Config struct {
	Port        string
	Environment string
	LogLevel    string
	IsVercel    bool

	// Model
	LLMProvider   string
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	LLMModel      string
	LLMTimeoutSec int

	// Storage
	DatabaseURL  string
	SQLitePath   string
	HistoryTable string
	MongoDBURL   string
	MongoDBName  string
	RedisURL     string
	CacheTTLSec  int

	// HTTP
	HistoryLimit      int
	MaxUploadMB       int
	ClassifyRateLimit int
	AllowedOrigins    []string

	// Dashboard
	Timezone string
	Location *time.Location
}

// k holds the YAML base layer with environment variables on top. Keys are
// the lower-cased variable names.
var k = koanf.New(".")

// Load reads CONFIG_FILE (default config.yaml) if present, then the process
// environment, and builds the Config.
func Load() (*Config, error) {
	k = koanf.New(".")

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
	}

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	isVercel := getEnv("VERCEL", "") != ""
	sqlitePath := "history.db"
	if isVercel {
		sqlitePath = "/tmp/history.db"
	}

	cfg := &Config{
		Port:        getEnv("PORT", "5000"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		IsVercel:    isVercel,

		// Model
		LLMProvider:   strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		LLMModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeoutSec: getEnvInt("LLM_TIMEOUT_SEC", 60),

		// Storage
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SQLitePath:   getEnv("SQLITE_PATH", sqlitePath),
		HistoryTable: getEnv("HISTORY_TABLE", "classification_history"),
		MongoDBURL:   getEnv("MONGODB_URL", ""),
		MongoDBName:  getEnv("MONGODB_DATABASE", "triage"),
		RedisURL:     getEnv("REDIS_URL", ""),
		CacheTTLSec:  getEnvInt("CACHE_TTL_SEC", 60),

		// HTTP
		HistoryLimit:      getEnvInt("HISTORY_LIMIT", 20),
		MaxUploadMB:       getEnvInt("MAX_UPLOAD_MB", 16),
		ClassifyRateLimit: getEnvInt("CLASSIFY_RATE_LIMIT", 30),
		AllowedOrigins:    getEnvSlice("ALLOWED_ORIGINS", []string{"*"}),

		Timezone: getEnv("TIMEZONE", "UTC"),
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return cfg, nil
}

func lookup(key string) string {
	return strings.TrimSpace(k.String(strings.ToLower(key)))
}

func getEnv(key, defaultValue string) string {
	if value := lookup(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := lookup(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	// YAML lists arrive as slices, environment values as comma separated text
	if _, ok := k.Get(strings.ToLower(key)).([]interface{}); ok {
		return k.Strings(strings.ToLower(key))
	}
	if value := lookup(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// LLMTimeout returns the per-call model timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

// CacheTTL returns the history cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

// BodyLimit returns the request body limit in bytes.
func (c *Config) BodyLimit() int {
	return c.MaxUploadMB * 1024 * 1024
}
