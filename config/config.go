package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the document QA service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Guard     GuardConfig     `mapstructure:"guard"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Reindex   ReindexConfig   `mapstructure:"reindex"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	RequireAuth    bool          `mapstructure:"require_auth"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return fmt.Errorf("server.jwt_secret is required")
	}
	if s.SessionTimeout <= 0 {
		return fmt.Errorf("server.session_timeout must be > 0")
	}
	return nil
}

// GuardConfig controls input validation limits
type GuardConfig struct {
	MaxQueryLength int `mapstructure:"max_query_length"`
}

// RateLimitConfig controls per-client admission
type RateLimitConfig struct {
	PerWindow int           `mapstructure:"per_minute"`
	Window    time.Duration `mapstructure:"window"`
}

// EmbeddingConfig configures the sentence embedding provider
type EmbeddingConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func (e EmbeddingConfig) Validate() error {
	if strings.TrimSpace(e.APIKey) == "" {
		return fmt.Errorf("embedding.api_key is required")
	}
	return nil
}

// RetrievalConfig configures the vector index and search behaviour
type RetrievalConfig struct {
	TopK      int    `mapstructure:"top_k"`
	IndexPath string `mapstructure:"index_path"`
}

func (r RetrievalConfig) Validate() error {
	if strings.TrimSpace(r.IndexPath) == "" {
		return fmt.Errorf("retrieval.index_path is required")
	}
	return nil
}

// LLMConfig contains answer generation provider settings
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	TopP        float64       `mapstructure:"top_p"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model is required")
	}
	return nil
}

// ReindexConfig controls the scheduled index rebuild
type ReindexConfig struct {
	Cron string `mapstructure:"cron"` // empty disables scheduled rebuilds
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN resolves the connection string, preferring the explicit URL.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings. Redis is optional: when
// host is empty the rate limiter falls back to the in-memory store and the
// reindex scheduler runs without a distributed lock.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a Redis backend is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":10080")
	viper.SetDefault("server.session_timeout", time.Hour)
	viper.SetDefault("guard.max_query_length", 1000)
	viper.SetDefault("ratelimit.per_minute", 30)
	viper.SetDefault("ratelimit.window", time.Minute)
	viper.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.timeout", 30*time.Second)
	viper.SetDefault("retrieval.top_k", 5)
	viper.SetDefault("retrieval.index_path", "docqa.index")
	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.temperature", 0.05)
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("llm.top_p", 1.0)
	viper.SetDefault("llm.timeout", 60*time.Second)
	viper.SetDefault("llm.max_retries", 3)
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("DOCQA")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv() // read in environment variables that match (DOCQA_*)

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	// Missing required settings are fatal at startup, never at query time.
	if err := config.Server.Validate(); err != nil {
		panic(err)
	}
	if err := config.Embedding.Validate(); err != nil {
		panic(err)
	}
	if err := config.Retrieval.Validate(); err != nil {
		panic(err)
	}
	if err := config.LLM.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	return &config
}
