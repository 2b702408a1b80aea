package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for assetlink-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8089"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (optional; advisory locks degrade to in-process
	// mutexes when unset)
	Redis RedisConfig `yaml:"redis"`

	// Correlation thresholds. Defaults mirror the historical values the
	// business has run with; treat changes as policy decisions.
	Thresholds ThresholdConfig `yaml:"thresholds"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"false"`

	// JWKSURL is the auth server's JSON Web Key Set endpoint.
	JWKSURL string `yaml:"jwks_url" env:"AUTH_JWKS_URL" env-default:""`

	// Issuer is the only token issuer accepted when verification is enabled.
	Issuer string `yaml:"issuer" env:"AUTH_ISSUER" env-default:""`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"assetlink"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"assetlink_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// RedisConfig holds Redis connection configuration for advisory locking.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// ThresholdConfig exposes the correlation engine's business thresholds.
type ThresholdConfig struct {
	// NameSimilarityHigh: below this ratio a name mismatch is HIGH severity.
	NameSimilarityHigh float64 `yaml:"name_similarity_high" env:"THRESHOLD_NAME_SIMILARITY_HIGH" env-default:"0.5"`
	// NameSimilarityFloor: at or above this ratio no name conflict is raised.
	NameSimilarityFloor float64 `yaml:"name_similarity_floor" env:"THRESHOLD_NAME_SIMILARITY_FLOOR" env-default:"0.7"`
	// NameDuplicate: above this ratio two names are probably the same item.
	NameDuplicate float64 `yaml:"name_duplicate" env:"THRESHOLD_NAME_DUPLICATE" env-default:"0.85"`
	// QuantityTolerance: absolute unit difference tolerated between sources.
	QuantityTolerance int `yaml:"quantity_tolerance" env:"THRESHOLD_QUANTITY_TOLERANCE" env-default:"5"`
	// QuantityHigh: unit difference beyond which the mismatch is HIGH severity.
	QuantityHigh int `yaml:"quantity_high" env:"THRESHOLD_QUANTITY_HIGH" env-default:"20"`
	// VerificationStaleDays / VerificationVeryStaleDays drive the confidence
	// recency penalties.
	VerificationStaleDays     int `yaml:"verification_stale_days" env:"THRESHOLD_VERIFICATION_STALE_DAYS" env-default:"30"`
	VerificationVeryStaleDays int `yaml:"verification_very_stale_days" env:"THRESHOLD_VERIFICATION_VERY_STALE_DAYS" env-default:"90"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config. When config.yaml is absent, environment variables and
// defaults alone apply.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Thresholds.validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}

	if cfg.Auth.EnableVerification && cfg.Auth.JWKSURL == "" {
		return nil, fmt.Errorf("auth verification enabled but AUTH_JWKS_URL is not set")
	}

	return cfg, nil
}

func (t *ThresholdConfig) validate() error {
	for name, v := range map[string]float64{
		"name_similarity_high":  t.NameSimilarityHigh,
		"name_similarity_floor": t.NameSimilarityFloor,
		"name_duplicate":        t.NameDuplicate,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
	}
	if t.NameSimilarityHigh > t.NameSimilarityFloor {
		return fmt.Errorf("name_similarity_high (%v) must not exceed name_similarity_floor (%v)",
			t.NameSimilarityHigh, t.NameSimilarityFloor)
	}
	if t.QuantityTolerance < 0 || t.QuantityHigh < t.QuantityTolerance {
		return fmt.Errorf("quantity thresholds out of order: tolerance=%d high=%d",
			t.QuantityTolerance, t.QuantityHigh)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns the host:port address for the Redis client.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled reports whether Redis is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}
