package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration loaded from YAML.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Reference ReferenceConfig `yaml:"reference"`
	Rules     RulesConfig     `yaml:"rules"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// ReferenceConfig selects and locates the reference table source.
type ReferenceConfig struct {
	// Source is "csv" or "postgres".
	Source string `yaml:"source"`
	// Path is the CSV export location when Source is "csv".
	Path string `yaml:"path"`
	// DSN is the connection string when Source is "postgres".
	DSN string `yaml:"dsn"`
	// QueryTimeout bounds individual reference queries.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// RulesConfig locates the scoring rule table. An empty path means the
// built-in default table.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig holds the optional Redis result cache settings.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	TTL     time.Duration `yaml:"ttl"`
}

// RateLimitConfig bounds request throughput per client.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Reference: ReferenceConfig{
			Source:       "csv",
			Path:         "data/parasites.csv",
			QueryTimeout: 5 * time.Second,
		},
		Cache: CacheConfig{
			Addr: "localhost:6379",
			TTL:  5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RPS:   20,
			Burst: 40,
		},
	}
}

// Load reads a YAML config file over the defaults and validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	switch c.Reference.Source {
	case "csv":
		if c.Reference.Path == "" {
			return fmt.Errorf("csv reference source requires a path")
		}
	case "postgres":
		if c.Reference.DSN == "" {
			return fmt.Errorf("postgres reference source requires a dsn")
		}
	default:
		return fmt.Errorf("unknown reference source %q (want csv or postgres)", c.Reference.Source)
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache enabled without an address")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit values must be non-negative")
	}

	return nil
}
