package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// devEncryptionKey is only accepted when APP_ENV is development or test.
const devEncryptionKey = "bHVtbmljb2RlLWRldi1lbmNyeXB0aW9uLWtleS0zMmI="

// Config holds application configuration loaded from environment variables or config files.
type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"required"`
	// MetricsAddr is where the worker serves /metrics; empty disables it.
	MetricsAddr string `mapstructure:"METRICS_ADDR" validate:"omitempty,hostname_port"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"required,oneof=json console"`

	DatabaseURL string `mapstructure:"DATABASE_URL" validate:"required,url|uri"`

	RedisAddr     string `mapstructure:"REDIS_ADDR" validate:"required,hostname_port"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	AsynqConcurrency int `mapstructure:"ASYNQ_CONCURRENCY" validate:"gte=1,lte=1000"`

	GoMaxProcs int `mapstructure:"GOMAXPROCS" validate:"gte=0,lte=4096"`

	// Workspace mirror of project files.
	WorkingDir       string `mapstructure:"WORKING_DIR"`
	WorkspaceBackend string `mapstructure:"WORKSPACE_BACKEND" validate:"oneof=local s3 none"`
	S3Bucket         string `mapstructure:"S3_BUCKET" validate:"required_if=WorkspaceBackend s3"`
	S3Region         string `mapstructure:"S3_REGION"`
	S3Endpoint       string `mapstructure:"S3_ENDPOINT"`
	S3AccessKey      string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey      string `mapstructure:"S3_SECRET_KEY"`

	ClerkJWTPublicKey string `mapstructure:"CLERK_JWT_PUBLIC_KEY"`
	ClerkIssuer       string `mapstructure:"CLERK_ISSUER"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS" validate:"gt=0"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST" validate:"gte=1"`

	EncryptionKey   string `mapstructure:"ENCRYPTION_KEY" validate:"required,base64"`
	EncryptionKeyID string `mapstructure:"ENCRYPTION_KEY_ID" validate:"required"`

	ProviderTimeout    time.Duration `mapstructure:"PROVIDER_TIMEOUT"`
	ProviderMaxRetries int           `mapstructure:"PROVIDER_MAX_RETRIES" validate:"gte=0,lte=10"`

	KeyValidationSchedule  string        `mapstructure:"KEY_VALIDATION_SCHEDULE" validate:"required"`
	UsageResetSchedule     string        `mapstructure:"USAGE_RESET_SCHEDULE" validate:"required"`
	GenerationPollInterval time.Duration `mapstructure:"GENERATION_POLL_INTERVAL"`
}

var (
	cfg      *Config
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Load initializes configuration using Viper. It loads from .env if present,
// applies defaults, binds env vars, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", "0.0.0.0:8000")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("METRICS_ADDR", "0.0.0.0:9091")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ASYNQ_CONCURRENCY", 10)
	v.SetDefault("GOMAXPROCS", 0)
	v.SetDefault("WORKING_DIR", "./projects")
	v.SetDefault("WORKSPACE_BACKEND", "local")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("ENCRYPTION_KEY_ID", "k1")
	v.SetDefault("PROVIDER_TIMEOUT", "60s")
	v.SetDefault("PROVIDER_MAX_RETRIES", 2)
	v.SetDefault("KEY_VALIDATION_SCHEDULE", "0 */6 * * *")
	v.SetDefault("USAGE_RESET_SCHEDULE", "0 0 1 * *")
	v.SetDefault("GENERATION_POLL_INTERVAL", "1s")

	_ = v.ReadInConfig()

	keys := []string{
		"APP_ENV",
		"HTTP_ADDR",
		"SHUTDOWN_TIMEOUT",
		"METRICS_ADDR",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"DATABASE_URL",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"ASYNQ_CONCURRENCY",
		"GOMAXPROCS",
		"WORKING_DIR",
		"WORKSPACE_BACKEND",
		"S3_BUCKET",
		"S3_REGION",
		"S3_ENDPOINT",
		"S3_ACCESS_KEY",
		"S3_SECRET_KEY",
		"CLERK_JWT_PUBLIC_KEY",
		"CLERK_ISSUER",
		"CORS_ORIGINS",
		"RATE_LIMIT_RPS",
		"RATE_LIMIT_BURST",
		"ENCRYPTION_KEY",
		"ENCRYPTION_KEY_ID",
		"PROVIDER_TIMEOUT",
		"PROVIDER_MAX_RETRIES",
		"KEY_VALIDATION_SCHEDULE",
		"USAGE_RESET_SCHEDULE",
		"GENERATION_POLL_INTERVAL",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	// Durations and lists may arrive as plain strings from the environment.
	durations := map[string]*time.Duration{
		"SHUTDOWN_TIMEOUT":         &c.ShutdownTimeout,
		"PROVIDER_TIMEOUT":         &c.ProviderTimeout,
		"GENERATION_POLL_INTERVAL": &c.GenerationPollInterval,
	}
	for key, dst := range durations {
		if s := v.GetString(key); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}
	c.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	if c.EncryptionKey == "" && (c.AppEnv == "development" || c.AppEnv == "test") {
		c.EncryptionKey = devEncryptionKey
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.EncryptionKeyBytes(); err != nil {
		return nil, err
	}

	if c.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(c.GoMaxProcs)
	}

	cfg = &c
	return cfg, nil
}

// MustLoad loads configuration or exits the process on failure.
func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return c
}

// Get returns the loaded configuration. Panics if not loaded.
func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call config.Load or config.MustLoad first")
	}
	return cfg
}

// EncryptionKeyBytes decodes ENCRYPTION_KEY and checks it is a 32-byte AES key.
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid ENCRYPTION_KEY: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid ENCRYPTION_KEY: want 32 bytes, got %d", len(b))
	}
	return b, nil
}

// IsDevelopment reports whether relaxed local behaviour is allowed.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "test"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
