package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Admin struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"admin"`
	Storage struct {
		// Driver is one of memory, sqlite or postgres.
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Competitions struct {
		Dir     string `yaml:"dir"`
		Default string `yaml:"default"`
	} `yaml:"competitions"`
	Leaderboard struct {
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"leaderboard"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Storage.Driver = DriverSQLite
	cfg.SQLite.Path = "competition.db"
	cfg.Kafka.Topic = "competition-events"
	cfg.Competitions.Dir = "competitions"
	cfg.Leaderboard.CacheTTL = "5s"
	cfg.Log.Level = "info"
	return cfg
}

// Load reads YAML config from path on top of the defaults, then applies environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Admin.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.URL = v
		cfg.Storage.Driver = DriverPostgres
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("COMPETITIONS_DIR"); v != "" {
		cfg.Competitions.Dir = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
