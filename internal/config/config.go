package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	HTTPAddr     string        `yaml:"http_addr"`
	GRPCAddr     string        `yaml:"grpc_addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	Interval      time.Duration `yaml:"interval"`
	PauseDuration time.Duration `yaml:"pause_duration"`
	BatchSize     int           `yaml:"batch_size"`
	MaxAttempts   int           `yaml:"max_attempts"`

	StoreBackend string        `yaml:"store_backend"`
	EntryTTL     time.Duration `yaml:"entry_ttl"`
	KeyPrefix    string        `yaml:"key_prefix"`
	RedisAddr    string        `yaml:"redis_addr"`
	PostgresDSN  string        `yaml:"postgres_dsn"`

	RemoteBaseURL string        `yaml:"remote_base_url"`
	RemoteTimeout time.Duration `yaml:"remote_timeout"`

	SharedThrottle   bool   `yaml:"shared_throttle"`
	ThrottleResource string `yaml:"throttle_resource"`
	LeasePrefix      string `yaml:"lease_prefix"`
}

func Default() Config {
	return Config{
		HTTPAddr:         ":8080",
		GRPCAddr:         ":9090",
		ReadTimeout:      15 * time.Second,
		WriteTimeout:     15 * time.Second,
		IdleTimeout:      60 * time.Second,
		Interval:         time.Second,
		PauseDuration:    60 * time.Second,
		BatchSize:        30,
		MaxAttempts:      0,
		StoreBackend:     BackendMemory,
		EntryTTL:         7 * 24 * time.Hour,
		KeyPrefix:        "inat_total_",
		RedisAddr:        "localhost:6379",
		PostgresDSN:      "",
		RemoteBaseURL:    "https://api.inaturalist.org",
		RemoteTimeout:    10 * time.Second,
		SharedThrottle:   false,
		ThrottleResource: "inaturalist",
		LeasePrefix:      "taxatotals:lease",
	}
}

// Load layers defaults, then the YAML file at path (if any), then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	cfg = applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg Config) Config {
	cfg.HTTPAddr = envOrDefault("TOTALS_HTTP_ADDR", cfg.HTTPAddr)
	cfg.GRPCAddr = envOrDefault("TOTALS_GRPC_ADDR", cfg.GRPCAddr)
	cfg.ReadTimeout = durationOrDefault("TOTALS_READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = durationOrDefault("TOTALS_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.IdleTimeout = durationOrDefault("TOTALS_IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.Interval = durationOrDefault("TOTALS_INTERVAL", cfg.Interval)
	cfg.PauseDuration = durationOrDefault("TOTALS_PAUSE_DURATION", cfg.PauseDuration)
	cfg.BatchSize = intOrDefault("TOTALS_BATCH_SIZE", cfg.BatchSize)
	cfg.MaxAttempts = intOrDefault("TOTALS_MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.StoreBackend = strings.ToLower(envOrDefault("TOTALS_STORE_BACKEND", cfg.StoreBackend))
	cfg.EntryTTL = durationOrDefault("TOTALS_ENTRY_TTL", cfg.EntryTTL)
	cfg.KeyPrefix = envOrDefault("TOTALS_KEY_PREFIX", cfg.KeyPrefix)
	cfg.RedisAddr = envOrDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.PostgresDSN = envOrDefault("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.RemoteBaseURL = envOrDefault("TOTALS_REMOTE_BASE_URL", cfg.RemoteBaseURL)
	cfg.RemoteTimeout = durationOrDefault("TOTALS_REMOTE_TIMEOUT", cfg.RemoteTimeout)
	cfg.SharedThrottle = boolOrDefault("TOTALS_SHARED_THROTTLE", cfg.SharedThrottle)
	cfg.ThrottleResource = envOrDefault("TOTALS_THROTTLE_RESOURCE", cfg.ThrottleResource)
	cfg.LeasePrefix = envOrDefault("TOTALS_LEASE_PREFIX", cfg.LeasePrefix)
	return cfg
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("postgres store backend requires a dsn")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.SharedThrottle && strings.TrimSpace(c.RedisAddr) == "" {
		return errors.New("shared throttle requires a redis address")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if c.BatchSize <= 0 || c.BatchSize > 30 {
		return fmt.Errorf("batch size must be within 1..30, got %d", c.BatchSize)
	}
	if c.EntryTTL <= 0 {
		return errors.New("entry ttl must be positive")
	}
	if c.MaxAttempts < 0 {
		return errors.New("max attempts cannot be negative")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func intOrDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func boolOrDefault(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return fallback
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
