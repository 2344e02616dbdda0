// Package config loads service configuration from an optional YAML file,
// with environment variables taking precedence and sensible
// local-development defaults below both.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/confcentral/backend/internal/store/pgstore"
)

// Config holds all service settings.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Store struct {
		// Backend selects the entity store: "memory" or "postgres".
		Backend string `yaml:"backend"`
	} `yaml:"store"`

	Database pgstore.Config `yaml:"database"`

	Notifier struct {
		PollInterval     time.Duration `yaml:"pollInterval"`
		AnnounceInterval time.Duration `yaml:"announceInterval"`
		MailPerSecond    float64       `yaml:"mailPerSecond"`
	} `yaml:"notifier"`
}

// Load builds the configuration. The file named by CONFIG_FILE (default
// config.yaml) is read when present; environment variables override it.
func Load() (Config, error) {
	cfg := defaults()

	path := getEnv("CONFIG_FILE", "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func defaults() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Store.Backend = "memory"
	cfg.Database = pgstore.Config{
		Host:     "localhost",
		Port:     "5432",
		User:     "postgres",
		Password: "postgres",
		DBName:   "confcentral",
		SSLMode:  "disable",
	}
	cfg.Notifier.PollInterval = time.Second
	cfg.Notifier.AnnounceInterval = time.Minute
	cfg.Notifier.MailPerSecond = 10
	return cfg
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
