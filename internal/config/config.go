package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Docstore drivers.
const (
	DriverMemory    = "memory"
	DriverPostgres  = "postgres"
	DriverFirestore = "firestore"
)

var (
	ErrUnknownDriver   = errors.New("unknown docstore driver")
	ErrMissingDSN      = errors.New("DB_DSN is required for the postgres driver")
	ErrMissingProject  = errors.New("FIRESTORE_PROJECT_ID is required for the firestore driver")
	ErrMissingJWTKey   = errors.New("JWT_SECRET is required")
	ErrInvalidSampling = errors.New("OTEL_SAMPLING_RATIO must be within [0,1]")
)

// Config holds all service configuration.
type Config struct {
	App       AppConfig
	Log       LogConfig
	Docstore  DocstoreConfig
	Redis     RedisConfig
	AMQP      AMQPConfig
	JWT       JWTConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	Env         string
	Port        string
	DebugRoutes bool
}

type LogConfig struct {
	Level  string
	Format string
}

type DocstoreConfig struct {
	Driver          string
	DSN             string
	ProjectID       string
	CredentialsFile string
}

// RedisConfig configures the profile cache; an empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// AMQPConfig configures event publishing; an empty URL selects the noop publisher.
type AMQPConfig struct {
	URL      string
	Exchange string
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type TelemetryConfig struct {
	Enabled       bool
	Endpoint      string
	SamplingRatio float64
}

// Load reads an optional .env file, then defaults overridden by environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app_env", "development")
	v.SetDefault("port", "8083")
	v.SetDefault("debug_routes", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "")
	v.SetDefault("docstore_driver", DriverMemory)
	v.SetDefault("db_dsn", "")
	v.SetDefault("firestore_project_id", "")
	v.SetDefault("firestore_credentials_file", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("profile_cache_ttl", 5*time.Minute)
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "chat.events")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("otel_sampling_ratio", 1.0)
	return v
}

// FromViper builds and validates a Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Env:         v.GetString("app_env"),
			Port:        v.GetString("port"),
			DebugRoutes: v.GetBool("debug_routes"),
		},
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
		Docstore: DocstoreConfig{
			Driver:          strings.ToLower(v.GetString("docstore_driver")),
			DSN:             v.GetString("db_dsn"),
			ProjectID:       v.GetString("firestore_project_id"),
			CredentialsFile: v.GetString("firestore_credentials_file"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
			TTL:      v.GetDuration("profile_cache_ttl"),
		},
		AMQP: AMQPConfig{
			URL:      v.GetString("amqp_url"),
			Exchange: v.GetString("amqp_exchange"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt_secret"),
			Issuer: v.GetString("jwt_issuer"),
		},
		Telemetry: TelemetryConfig{
			Enabled:       v.GetBool("otel_enabled"),
			Endpoint:      v.GetString("otel_endpoint"),
			SamplingRatio: v.GetFloat64("otel_sampling_ratio"),
		},
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
		if cfg.IsProduction() {
			cfg.Log.Format = "json"
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected driver has what it needs.
func (c *Config) Validate() error {
	switch c.Docstore.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Docstore.DSN == "" {
			return ErrMissingDSN
		}
	case DriverFirestore:
		if c.Docstore.ProjectID == "" {
			return ErrMissingProject
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Docstore.Driver)
	}
	if c.JWT.Secret == "" {
		return ErrMissingJWTKey
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return ErrInvalidSampling
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
