package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Cache     CacheConfig
	Numbering NumberingConfig
	Audit     AuditConfig
	Search    SearchConfig
	Export    ExportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig describes how bearer tokens issued by the identity provider are verified.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig toggles Redis backed caching of configuration and directory lookups.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// NumberingConfig bounds the retry loop around register counter increments.
type NumberingConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// AuditConfig sizes the asynchronous audit writer.
type AuditConfig struct {
	Workers    int
	BufferSize int
	Retries    int
}

// SearchConfig caps document search pagination.
type SearchConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

// ExportConfig caps the size of register journal exports.
type ExportConfig struct {
	MaxRows int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 5*time.Minute),
	}

	cfg.Numbering = NumberingConfig{
		MaxRetries:   positiveOr(v.GetInt("NUMBERING_MAX_RETRIES"), 3),
		RetryBackoff: parseDuration(v.GetString("NUMBERING_RETRY_BACKOFF"), 20*time.Millisecond),
	}

	cfg.Audit = AuditConfig{
		Workers:    positiveOr(v.GetInt("AUDIT_WORKERS"), 2),
		BufferSize: positiveOr(v.GetInt("AUDIT_BUFFER_SIZE"), 256),
		Retries:    positiveOr(v.GetInt("AUDIT_RETRIES"), 3),
	}

	cfg.Search = SearchConfig{
		DefaultPageSize: positiveOr(v.GetInt("SEARCH_DEFAULT_PAGE_SIZE"), 20),
		MaxPageSize:     positiveOr(v.GetInt("SEARCH_MAX_PAGE_SIZE"), 100),
	}

	cfg.Export = ExportConfig{
		MaxRows: positiveOr(v.GetInt("EXPORT_MAX_ROWS"), 5000),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "registry")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_TTL", "5m")

	v.SetDefault("NUMBERING_MAX_RETRIES", 3)
	v.SetDefault("NUMBERING_RETRY_BACKOFF", "20ms")

	v.SetDefault("AUDIT_WORKERS", 2)
	v.SetDefault("AUDIT_BUFFER_SIZE", 256)
	v.SetDefault("AUDIT_RETRIES", 3)

	v.SetDefault("SEARCH_DEFAULT_PAGE_SIZE", 20)
	v.SetDefault("SEARCH_MAX_PAGE_SIZE", 100)
	v.SetDefault("EXPORT_MAX_ROWS", 5000)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
