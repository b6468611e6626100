package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// External manufacturing API
	ManufacturerBaseURL    string `env:"MANUFACTURER_BASE_URL,required"`
	ManufacturerAccount    string `env:"MANUFACTURER_ACCOUNT,required"`
	ManufacturerPassword   string `env:"MANUFACTURER_PASSWORD,required"`
	ManufacturerSignSecret string `env:"MANUFACTURER_SIGN_SECRET,required"`
	ManufacturerSystemName string `env:"MANUFACTURER_SYSTEM_NAME" envDefault:"caseprint"`
	ManufacturerReqSource  string `env:"MANUFACTURER_REQ_SOURCE" envDefault:"kiosk-server"`
	RemoteTimeoutSeconds   int    `env:"REMOTE_TIMEOUT_SECONDS" envDefault:"30"`

	// Session defaults
	QRBaseURL             string `env:"QR_BASE_URL" envDefault:""`
	SessionTTLSeconds     int    `env:"SESSION_TTL_SECONDS" envDefault:"1800"`
	CreateRateLimitPerMin int    `env:"CREATE_RATE_LIMIT_PER_MIN" envDefault:"30"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c *Config) Validate(isProduction bool) error {
	if c.SessionTTLSeconds <= 0 {
		return fmt.Errorf("SESSION_TTL_SECONDS must be positive")
	}
	if c.RemoteTimeoutSeconds <= 0 {
		return fmt.Errorf("REMOTE_TIMEOUT_SECONDS must be positive")
	}
	if !strings.HasPrefix(c.ManufacturerBaseURL, "http://") && !strings.HasPrefix(c.ManufacturerBaseURL, "https://") {
		return fmt.Errorf("MANUFACTURER_BASE_URL must be an http(s) URL")
	}

	if isProduction {
		if strings.HasPrefix(c.ManufacturerBaseURL, "http://") {
			log.Warn().Msg("MANUFACTURER_BASE_URL uses http:// in production: consider using https://")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.QRBaseURL == "" {
			log.Warn().Msg("QR_BASE_URL is empty in production: QR urls will be relative")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
