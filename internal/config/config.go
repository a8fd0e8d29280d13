// Package config loads the service configuration once per process.
//
// Values come from the environment, optionally seeded from a .env file.
// Everything is materialized into an explicit Config struct that is passed
// to constructors; nothing re-reads the environment per request.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers
const (
	StorageLocal  = "local"
	StorageBucket = "bucket"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds the complete server configuration
type Config struct {
	Port     string
	Env      string
	Database DatabaseConfig
	Auth     AuthConfig
	AI       AIConfig
	Storage  StorageConfig
	NATS     NATSConfig
	Live     LiveConfig
	Log      LogConfig
}

// DatabaseConfig describes the relational store
type DatabaseConfig struct {
	Driver  string
	URL     string
	Timeout time.Duration
	// SwitchRole issues SET LOCAL ROLE <claims.role> before scoped queries
	SwitchRole bool
	LogLevel   string
}

// AuthConfig holds the credentials the service may fall back to
type AuthConfig struct {
	AnonKey        string
	ServiceRoleKey string
	JWTSecret      string
	TokenTTL       time.Duration
}

// AIConfig configures the optional classification backend
type AIConfig struct {
	GatewayURL   string
	APIKey       string
	Model        string
	Timeout      time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Enabled reports whether a classification backend credential is configured
func (a AIConfig) Enabled() bool {
	return a.APIKey != ""
}

// StorageConfig configures where detection images go
type StorageConfig struct {
	Driver        string
	UploadDir     string
	PublicBaseURL string
	URL           string
	Bucket        string
	Key           string
	Timeout       time.Duration
}

// NATSConfig configures the detection event stream
type NATSConfig struct {
	// URL of an external NATS server; empty starts an embedded one
	URL  string
	Port int
}

// LiveConfig configures the live status projector
type LiveConfig struct {
	QuietPeriod time.Duration
}

// LogConfig configures zap
type LogConfig struct {
	Level  string
	Format string
}

// IsProduction reports whether ENV=production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads .env (if present) and the process environment
func Load() (*Config, error) {
	// Missing .env is fine, the environment may already be populated
	_ = godotenv.Load()

	v := newViper()

	cfg := &Config{
		Port: v.GetString("port"),
		Env:  v.GetString("env"),
		Database: DatabaseConfig{
			Driver:     strings.ToLower(v.GetString("database_driver")),
			URL:        v.GetString("database_url"),
			Timeout:    v.GetDuration("db_timeout"),
			SwitchRole: v.GetBool("db_switch_role"),
			LogLevel:   v.GetString("log_level"),
		},
		Auth: AuthConfig{
			AnonKey:        v.GetString("supabase_anon_key"),
			ServiceRoleKey: v.GetString("supabase_service_role_key"),
			JWTSecret:      v.GetString("jwt_secret"),
			TokenTTL:       v.GetDuration("jwt_ttl"),
		},
		AI: AIConfig{
			GatewayURL:   v.GetString("ai_gateway_url"),
			APIKey:       v.GetString("ai_gateway_key"),
			Model:        v.GetString("ai_model"),
			Timeout:      v.GetDuration("ai_timeout"),
			MaxAttempts:  v.GetInt("ai_max_attempts"),
			RetryBackoff: v.GetDuration("ai_retry_backoff"),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(v.GetString("storage_driver")),
			UploadDir:     v.GetString("upload_dir"),
			PublicBaseURL: v.GetString("public_base_url"),
			URL:           v.GetString("storage_url"),
			Bucket:        v.GetString("storage_bucket"),
			Key:           v.GetString("storage_key"),
			Timeout:       v.GetDuration("storage_timeout"),
		},
		NATS: NATSConfig{
			URL:  v.GetString("nats_url"),
			Port: v.GetInt("nats_port"),
		},
		Live: LiveConfig{
			QuietPeriod: v.GetDuration("live_quiet_period"),
		},
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
	}

	if cfg.Storage.Key == "" {
		cfg.Storage.Key = cfg.Auth.ServiceRoleKey
	}
	if cfg.Database.Driver == DriverSQLite && cfg.Database.URL == "" {
		cfg.Database.URL = "ppe.db"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combination of settings
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL environment variable is not set"))
		}
	case DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver))
	}

	switch c.Storage.Driver {
	case StorageLocal:
		if c.Storage.UploadDir == "" {
			errs = append(errs, errors.New("UPLOAD_DIR must be set for local storage"))
		}
	case StorageBucket:
		if c.Storage.URL == "" {
			errs = append(errs, errors.New("STORAGE_URL must be set for bucket storage"))
		}
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("STORAGE_BUCKET must be set for bucket storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver))
	}

	if c.AI.MaxAttempts < 1 {
		errs = append(errs, errors.New("AI_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Live.QuietPeriod <= 0 {
		errs = append(errs, errors.New("LIVE_QUIET_PERIOD must be positive"))
	}

	return errors.Join(errs...)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("port", "3001")
	v.SetDefault("env", "development")
	v.SetDefault("database_driver", DriverPostgres)
	v.SetDefault("db_timeout", 10*time.Second)
	v.SetDefault("db_switch_role", false)
	v.SetDefault("jwt_ttl", 24*time.Hour)
	v.SetDefault("ai_gateway_url", "https://ai.gateway.lovable.dev/v1/chat/completions")
	v.SetDefault("ai_model", "google/gemini-2.5-flash")
	v.SetDefault("ai_timeout", 30*time.Second)
	v.SetDefault("ai_max_attempts", 1)
	v.SetDefault("ai_retry_backoff", 500*time.Millisecond)
	v.SetDefault("storage_driver", StorageLocal)
	v.SetDefault("upload_dir", "./data/uploads")
	v.SetDefault("public_base_url", "http://localhost:3001")
	v.SetDefault("storage_bucket", "detection-images")
	v.SetDefault("storage_timeout", 15*time.Second)
	v.SetDefault("nats_port", 4233)
	v.SetDefault("live_quiet_period", 5*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	// The edge function era called the gateway key LOVABLE_API_KEY
	_ = v.BindEnv("ai_gateway_key", "AI_GATEWAY_KEY", "LOVABLE_API_KEY")

	return v
}

// ClientConfig is shared by the command line clients (push, watch)
type ClientConfig struct {
	ServerURL string
	APIKey    string
	NATSURL   string
	OutboxDir string
	Timeout   time.Duration
	Log       LogConfig
}

// LoadClient reads the client side settings
func LoadClient() *ClientConfig {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("server_url", "http://localhost:3001")
	v.SetDefault("nats_url", "nats://localhost:4233")
	v.SetDefault("outbox_dir", "./data/outbox")
	v.SetDefault("client_timeout", 15*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	_ = v.BindEnv("api_key", "API_KEY", "SUPABASE_ANON_KEY")

	return &ClientConfig{
		ServerURL: v.GetString("server_url"),
		APIKey:    v.GetString("api_key"),
		NATSURL:   v.GetString("nats_url"),
		OutboxDir: v.GetString("outbox_dir"),
		Timeout:   v.GetDuration("client_timeout"),
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
	}
}
