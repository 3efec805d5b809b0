package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	ActivityPostgres = "postgres"
	ActivityMongo    = "mongo"
	ActivityMemory   = "memory"
)

// DBConfig holds the Postgres connection parameters. The env names match the
// Supabase connection panel (user, password, host, port, dbname).
type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
}

// DSN builds a lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type Config struct {
	HTTPAddr        string
	LogLevel        string
	StorageType     string
	ActivityBackend string
	JWTSecret       string
	AllowedOrigins  []string

	DB DBConfig

	MongoURI string
	MongoDB  string

	LockDuration       time.Duration
	PresenceStaleAfter time.Duration
}

// Load reads a .env file when present and then builds the Config from the
// process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		StorageType:     envOrDefault("STORAGE_TYPE", StoragePostgres),
		ActivityBackend: envOrDefault("ACTIVITY_BACKEND", ActivityPostgres),
		JWTSecret:       strings.TrimSpace(os.Getenv("SUPABASE_JWT_SECRET")),
		AllowedOrigins:  splitList(envOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		DB: DBConfig{
			User:     strings.TrimSpace(os.Getenv("user")),
			Password: strings.TrimSpace(os.Getenv("password")),
			Host:     strings.TrimSpace(os.Getenv("host")),
			Port:     envOrDefault("port", "5432"),
			Name:     strings.TrimSpace(os.Getenv("dbname")),
			SSLMode:  envOrDefault("sslmode", "require"),
		},
		MongoURI: envOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:  envOrDefault("MONGO_DB", "collabdeck"),
	}

	var err error
	if cfg.LockDuration, err = durationOrDefault("LOCK_DURATION", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.PresenceStaleAfter, err = durationOrDefault("PRESENCE_STALE_AFTER", 60*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: SUPABASE_JWT_SECRET must be set")
	}
	switch c.StorageType {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("config: unknown STORAGE_TYPE %q", c.StorageType)
	}
	switch c.ActivityBackend {
	case ActivityPostgres, ActivityMongo, ActivityMemory:
	default:
		return fmt.Errorf("config: unknown ACTIVITY_BACKEND %q", c.ActivityBackend)
	}
	if c.StorageType == StorageMemory && c.ActivityBackend == ActivityPostgres {
		return errors.New("config: ACTIVITY_BACKEND=postgres needs STORAGE_TYPE=postgres")
	}
	if c.LockDuration <= 0 {
		return errors.New("config: LOCK_DURATION must be positive")
	}
	return nil
}

// NeedsPostgres reports whether any configured backend talks to Postgres.
func (c *Config) NeedsPostgres() bool {
	return c.StorageType == StoragePostgres || c.ActivityBackend == ActivityPostgres
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationOrDefault(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
