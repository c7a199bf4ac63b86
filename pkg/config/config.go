package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Authentication modes supported by the request pipeline.
const (
	AuthModeSession = "session"
	AuthModeIDP     = "idp"
)

// Rate limiter bucket stores.
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Auth      AuthConfig
	IDP       IDPConfig
	RateLimit RateLimitConfig
	Alumni    AlumniConfig
	Import    ImportConfig
	CORS      CORSConfig
	Log       LogConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// AuthConfig selects how request credentials are resolved.
type AuthConfig struct {
	Mode         string
	CookieName   string
	CookieSecure bool
}

// IDPConfig describes the delegated identity provider.
type IDPConfig struct {
	Issuer       string
	Audience     string
	JWTSecret    string
	PublicKeyPEM string
	APIBaseURL   string
	APIKey       string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
}

// RateLimitConfig tunes the token bucket admission gate.
type RateLimitConfig struct {
	Enabled    bool
	Capacity   float64
	RefillRate float64
	Store      string
	TrustProxy bool
	BucketTTL  time.Duration
}

// AlumniConfig controls profile normalization and directory caching.
type AlumniConfig struct {
	InstitutionVariants []string
	CacheTTL            time.Duration
	ReindexSchedule     string
	DefaultPageSize     int
}

// ImportConfig configures the asynchronous import workers.
type ImportConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
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
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 72*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.Auth = AuthConfig{
		Mode:         strings.ToLower(v.GetString("AUTH_MODE")),
		CookieName:   v.GetString("AUTH_COOKIE_NAME"),
		CookieSecure: v.GetBool("AUTH_COOKIE_SECURE"),
	}
	if cfg.Auth.Mode != AuthModeSession && cfg.Auth.Mode != AuthModeIDP {
		return nil, errors.New("AUTH_MODE must be either session or idp")
	}

	cfg.IDP = IDPConfig{
		Issuer:       v.GetString("IDP_ISSUER"),
		Audience:     v.GetString("IDP_AUDIENCE"),
		JWTSecret:    v.GetString("IDP_JWT_SECRET"),
		PublicKeyPEM: v.GetString("IDP_PUBLIC_KEY_PEM"),
		APIBaseURL:   v.GetString("IDP_API_BASE_URL"),
		APIKey:       v.GetString("IDP_API_KEY"),
		ClientID:     v.GetString("IDP_CLIENT_ID"),
		ClientSecret: v.GetString("IDP_CLIENT_SECRET"),
		TokenURL:     v.GetString("IDP_TOKEN_URL"),
		Timeout:      parseDuration(v.GetString("IDP_TIMEOUT"), 5*time.Second),
	}
	if cfg.Auth.Mode == AuthModeIDP && cfg.IDP.JWTSecret == "" && cfg.IDP.PublicKeyPEM == "" {
		return nil, errors.New("AUTH_MODE=idp requires IDP_JWT_SECRET or IDP_PUBLIC_KEY_PEM")
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:    v.GetBool("RATE_LIMIT_ENABLED"),
		Capacity:   v.GetFloat64("RATE_LIMIT_CAPACITY"),
		RefillRate: v.GetFloat64("RATE_LIMIT_REFILL_RATE"),
		Store:      strings.ToLower(v.GetString("RATE_LIMIT_STORE")),
		TrustProxy: v.GetBool("RATE_LIMIT_TRUST_PROXY"),
		BucketTTL:  parseDuration(v.GetString("RATE_LIMIT_BUCKET_TTL"), time.Hour),
	}

	cfg.Alumni = AlumniConfig{
		InstitutionVariants: splitAndTrim(v.GetString("ALUMNI_INSTITUTION_VARIANTS")),
		CacheTTL:            parseDuration(v.GetString("ALUMNI_CACHE_TTL"), time.Minute),
		ReindexSchedule:     v.GetString("ALUMNI_REINDEX_SCHEDULE"),
		DefaultPageSize:     v.GetInt("ALUMNI_DEFAULT_PAGE_SIZE"),
	}

	cfg.Import = ImportConfig{
		Workers:    v.GetInt("IMPORT_WORKERS"),
		BufferSize: v.GetInt("IMPORT_BUFFER_SIZE"),
		MaxRetries: v.GetInt("IMPORT_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("IMPORT_RETRY_DELAY"), 2*time.Second),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
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
	v.SetDefault("DB_NAME", "alumni_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "72h")
	v.SetDefault("JWT_ISSUER", "alumni-portal")

	v.SetDefault("AUTH_MODE", AuthModeSession)
	v.SetDefault("AUTH_COOKIE_NAME", "token")
	v.SetDefault("AUTH_COOKIE_SECURE", false)

	v.SetDefault("IDP_ISSUER", "")
	v.SetDefault("IDP_AUDIENCE", "")
	v.SetDefault("IDP_JWT_SECRET", "")
	v.SetDefault("IDP_PUBLIC_KEY_PEM", "")
	v.SetDefault("IDP_API_BASE_URL", "")
	v.SetDefault("IDP_API_KEY", "")
	v.SetDefault("IDP_CLIENT_ID", "")
	v.SetDefault("IDP_CLIENT_SECRET", "")
	v.SetDefault("IDP_TOKEN_URL", "")
	v.SetDefault("IDP_TIMEOUT", "5s")

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_CAPACITY", 5)
	v.SetDefault("RATE_LIMIT_REFILL_RATE", 5)
	v.SetDefault("RATE_LIMIT_STORE", RateLimitStoreMemory)
	v.SetDefault("RATE_LIMIT_TRUST_PROXY", true)
	v.SetDefault("RATE_LIMIT_BUCKET_TTL", "1h")

	v.SetDefault("ALUMNI_INSTITUTION_VARIANTS", "")
	v.SetDefault("ALUMNI_CACHE_TTL", "1m")
	v.SetDefault("ALUMNI_REINDEX_SCHEDULE", "@every 6h")
	v.SetDefault("ALUMNI_DEFAULT_PAGE_SIZE", 24)

	v.SetDefault("IMPORT_WORKERS", 2)
	v.SetDefault("IMPORT_BUFFER_SIZE", 16)
	v.SetDefault("IMPORT_MAX_RETRIES", 3)
	v.SetDefault("IMPORT_RETRY_DELAY", "2s")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
