package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"postline"`
	Password string `env:"PASSWORD"                envDefault:"postline"`
	Name     string `env:"NAME"                    envDefault:"postline"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	// Enabled controls whether Redis is connected at all. The list cache is
	// skipped entirely when disabled.
	Enabled bool `env:"ENABLED" envDefault:"false"`
}

// CacheConfig contains cache configuration (Redis-based).
type CacheConfig struct {
	// ListTTL is the TTL for the cached schedule listing.
	ListTTL time.Duration `env:"CACHE_LIST_TTL" envDefault:"5s"`
}
