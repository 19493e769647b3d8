// Package config loads service settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string          `yaml:"env" env:"APP_ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Pinning   PinningConfig   `yaml:"pinning"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"LISTEN_ADDR" env-default:":8080" validate:"required"`
	PublicOrigin    string        `yaml:"public_origin" env:"PUBLIC_ORIGIN" env-default:"http://localhost:3000" validate:"required,url"`
	MaxWatchers     int           `yaml:"max_watchers" env:"MAX_WATCHERS" env-default:"1000" validate:"gte=0"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"5s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text" validate:"oneof=text json"`
}

// RedisConfig selects the Redis session store when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" validate:"gte=0"`
}

type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl" env:"SESSION_TTL" env-default:"0s" validate:"gte=0s"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SESSION_SWEEP_INTERVAL" env-default:"1m"`
}

// RateLimitConfig bounds POST requests per client IP. Requests of 0
// disables limiting.
type RateLimitConfig struct {
	Requests int           `yaml:"requests" env:"RATE_LIMIT_REQUESTS" env-default:"60" validate:"gte=0"`
	Window   time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW" env-default:"1m"`
	// TrustProxy keys requests on X-Forwarded-For. Only set it behind a
	// proxy that overwrites the header.
	TrustProxy bool `yaml:"trust_proxy" env:"RATE_LIMIT_TRUST_PROXY" env-default:"false"`
}

type PinningConfig struct {
	Endpoint  string `yaml:"endpoint" env:"PINATA_ENDPOINT" env-default:"https://api.pinata.cloud" validate:"url"`
	JWT       string `yaml:"jwt" env:"PINATA_JWT"`
	APIKey    string `yaml:"api_key" env:"PINATA_API_KEY"`
	APISecret string `yaml:"api_secret" env:"PINATA_API_SECRET"`
	MaxUpload int64  `yaml:"max_upload" env:"PINATA_MAX_UPLOAD" env-default:"33554432" validate:"gt=0"`
}

// Enabled reports whether any pinning credential is configured.
func (p PinningConfig) Enabled() bool {
	return p.JWT != "" || p.APIKey != ""
}

var validate = validator.New()

// Load reads the YAML file at path when path is non-empty, applies env
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

// MustLoad is Load that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
