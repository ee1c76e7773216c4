// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret                     string `mapstructure:"JWT_SECRET"`
	DigitalIDSecret               string `mapstructure:"DIGITAL_ID_SECRET"`
	Port                          string `mapstructure:"PORT"`
	DBHost                        string `mapstructure:"DB_HOST"`
	DBPort                        string `mapstructure:"DB_PORT"`
	DBUser                        string `mapstructure:"DB_USER"`
	DBPassword                    string `mapstructure:"DB_PASSWORD"`
	DBName                        string `mapstructure:"DB_NAME"`
	DBSSLMode                     string `mapstructure:"DB_SSLMODE"`
	DBSchemaMode                  string `mapstructure:"DB_SCHEMA_MODE"`
	DBAutoMigrateAllowDestructive bool   `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`
	DBMaxOpenConns                int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns                int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes      int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`
	RedisURL                      string `mapstructure:"REDIS_URL"`
	AllowedOrigins                string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags                  string `mapstructure:"FEATURE_FLAGS"`
	Env                           string `mapstructure:"APP_ENV"`
	PresenceTimeout               int    `mapstructure:"PRESENCE_TIMEOUT_SECONDS"`
	PresenceSweep                 int    `mapstructure:"PRESENCE_SWEEP_SECONDS"`
	BlockedWords                  string `mapstructure:"BLOCKED_WORDS"`
	OTLPEndpoint                  string `mapstructure:"OTLP_ENDPOINT"`
	TraceStdout                   bool   `mapstructure:"TRACE_STDOUT"`
	MessagePageSize               int    `mapstructure:"MESSAGE_PAGE_SIZE"`
	SuggestionCount               int    `mapstructure:"SUGGESTION_COUNT"`
	SuggestionCacheS              int    `mapstructure:"SUGGESTION_CACHE_SECONDS"`
	DigitalIDTTLSecs              int    `mapstructure:"DIGITAL_ID_TTL_SECONDS"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// Initial read to get APP_ENV if set in base config
	// We intentionally ignore this error as the config file may not exist yet
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	// Set default values for development
	viper.SetDefault("PORT", "8460")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "alumnet")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE", false)
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("DIGITAL_ID_SECRET", "")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	viper.SetDefault("FEATURE_FLAGS", "moderation=on")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("PRESENCE_TIMEOUT_SECONDS", 90)
	viper.SetDefault("PRESENCE_SWEEP_SECONDS", 60)
	viper.SetDefault("BLOCKED_WORDS", "")
	viper.SetDefault("OTLP_ENDPOINT", "")
	viper.SetDefault("TRACE_STDOUT", false)
	viper.SetDefault("MESSAGE_PAGE_SIZE", 50)
	viper.SetDefault("SUGGESTION_COUNT", 20)
	viper.SetDefault("SUGGESTION_CACHE_SECONDS", 300)
	viper.SetDefault("DIGITAL_ID_TTL_SECONDS", 300)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.PresenceTimeout <= 0 {
		return errors.New("PRESENCE_TIMEOUT_SECONDS must be positive")
	}
	if c.PresenceSweep <= 0 {
		return errors.New("PRESENCE_SWEEP_SECONDS must be positive")
	}

	isProduction := c.Env == "production" || c.Env == "prod"

	// Strict checks for production
	if isProduction {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else {
		// Development/Test warnings
		if len(c.JWTSecret) < 32 {
			log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
		}
	}

	return nil
}

// PresenceTimeoutDuration is the heartbeat expiry window.
func (c *Config) PresenceTimeoutDuration() time.Duration {
	return time.Duration(c.PresenceTimeout) * time.Second
}

// PresenceSweepDuration is the interval between stale-presence sweeps.
func (c *Config) PresenceSweepDuration() time.Duration {
	return time.Duration(c.PresenceSweep) * time.Second
}

// DigitalIDTTL is the lifetime of an issued digital ID token.
func (c *Config) DigitalIDTTL() time.Duration {
	return time.Duration(c.DigitalIDTTLSecs) * time.Second
}

// DigitalIDKey returns the signing secret for digital ID tokens. When no
// dedicated secret is configured it is derived from the JWT secret, matching
// the issuer the mobile clients already verify against.
func (c *Config) DigitalIDKey() string {
	if c.DigitalIDSecret != "" {
		return c.DigitalIDSecret
	}
	return c.JWTSecret + "_qr"
}
