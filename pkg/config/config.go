// Package config loads runtime configuration from a YAML file and the
// environment, and initializes the global logger.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// PostgresConfig locates the external station store.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN renders the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// AnalyticsConfig carries the tunable view thresholds.
type AnalyticsConfig struct {
	DensityScale             float64 `yaml:"density_scale"`
	HighCompetitionOperators int     `yaml:"high_competition_operators"`
	HighCompetitionSpread    float64 `yaml:"high_competition_spread"`
	CacheSize                int     `yaml:"cache_size"`
}

// Config is the full runtime configuration.
type Config struct {
	Environment  string          `yaml:"environment"`
	LogLevel     string          `yaml:"log_level"`
	SnapshotFile string          `yaml:"snapshot_file"`
	Postgres     PostgresConfig  `yaml:"postgres"`
	Analytics    AnalyticsConfig `yaml:"analytics"`
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithEnvironment sets the runtime environment name.
func WithEnvironment(env string) Option {
	return func(c *Config) { c.Environment = env }
}

// WithLogLevel sets the log level by name.
func WithLogLevel(level string) Option {
	return func(c *Config) { c.LogLevel = level }
}

// WithSnapshotFile sets the catalog snapshot path.
func WithSnapshotFile(path string) Option {
	return func(c *Config) { c.SnapshotFile = path }
}

// New returns a configuration with defaults applied, then options.
func New(opts ...Option) *Config {
	cfg := &Config{
		Environment:  "production",
		LogLevel:     "info",
		SnapshotFile: "data/catalog.gob",
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "ev_stations",
			SSLMode:  "disable",
		},
		Analytics: AnalyticsConfig{
			DensityScale:             1000,
			HighCompetitionOperators: 3,
			HighCompetitionSpread:    50,
			CacheSize:                128,
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// FromFile loads a YAML configuration file over the defaults.
func FromFile(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv builds a configuration from environment variables, reading a
// .env file first when one exists.
func LoadFromEnv() *Config {
	_ = godotenv.Load()

	cfg := New(
		WithEnvironment(getEnvOrDefault("ENV", "production")),
		WithLogLevel(getEnvOrDefault("LOG_LEVEL", "info")),
		WithSnapshotFile(getEnvOrDefault("SNAPSHOT_FILE", "data/catalog.gob")),
	)
	cfg.Postgres.Host = getEnvOrDefault("DB_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = getIntEnvOrDefault("DB_PORT", cfg.Postgres.Port)
	cfg.Postgres.User = getEnvOrDefault("DB_USER", cfg.Postgres.User)
	cfg.Postgres.Password = getEnvOrDefault("DB_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.Database = getEnvOrDefault("DB_NAME", cfg.Postgres.Database)
	cfg.Postgres.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.Postgres.SSLMode)
	return cfg
}

// InitializeLogging sets up the global zerolog logger based on the
// configuration.
func (c *Config) InitializeLogging() {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(level)

	if c.Environment == "local" || c.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnvOrDefault(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
