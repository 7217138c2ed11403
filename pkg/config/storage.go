package config

import (
	"fmt"
	"time"
)

// StorageConfig configures the Postgres connection pool backing pkg/storage.
type StorageConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadStorageConfigFromEnv reads DB_* environment variables.
func LoadStorageConfigFromEnv() (*StorageConfig, error) {
	port, err := getEnvIntOrDefault("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	maxOpen, err := getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, err
	}
	maxIdle, err := getEnvIntOrDefault("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, err
	}
	lifetime, err := getEnvDurationOrDefault("DB_CONN_MAX_LIFETIME", time.Hour)
	if err != nil {
		return nil, err
	}
	idleTime, err := getEnvDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &StorageConfig{
		Host:            getEnvOrDefault("DB_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("DB_USER", "nexusmem"),
		Password:        getEnvOrDefault("DB_PASSWORD", ""),
		Database:        getEnvOrDefault("DB_NAME", "nexusmem"),
		SSLMode:         getEnvOrDefault("DB_SSLMODE", "disable"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: lifetime,
		ConnMaxIdleTime: idleTime,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants on the storage configuration.
func (c *StorageConfig) Validate() error {
	if c.Password == "" {
		return &ValidationError{Field: "DB_PASSWORD", Err: ErrMissingRequiredField}
	}
	if c.MaxOpenConns < 1 {
		return &ValidationError{Field: "DB_MAX_OPEN_CONNS", Err: fmt.Errorf("must be >= 1")}
	}
	if c.MaxIdleConns < 0 {
		return &ValidationError{Field: "DB_MAX_IDLE_CONNS", Err: fmt.Errorf("must be >= 0")}
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return &ValidationError{Field: "DB_MAX_IDLE_CONNS", Err: fmt.Errorf("must be <= DB_MAX_OPEN_CONNS")}
	}
	return nil
}

// DSN builds a libpq-style connection string for pgx.
func (c *StorageConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrateURL builds a pgx5:// URL suitable for golang-migrate's pgx/v5
// database driver, which (unlike pgxpool) needs a URL rather than a
// keyword/value DSN.
func (c *StorageConfig) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}
