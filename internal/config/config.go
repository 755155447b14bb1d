package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	AuthSecret            string `envconfig:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `envconfig:"ACCESS_TOKEN_TTL_MINUTES" default:"480"`

	// SequenceTimezone decides which calendar day a transaction number belongs to.
	SequenceTimezone string `envconfig:"SEQUENCE_TIMEZONE" default:"UTC"`

	LogMode string `envconfig:"LOG_MODE" default:"development"`
	LogFile string `envconfig:"LOG_FILE"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"sarisari-pos"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "load config")
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.SequenceTimezone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid SEQUENCE_TIMEZONE %q", c.SequenceTimezone)
	}
	return loc, nil
}
