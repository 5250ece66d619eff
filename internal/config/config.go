// Package config loads server configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration of the server.
type Config struct {
	Port   int    `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"data/libshelf.db"`

	CoverDir       string `env:"COVER_DIR" envDefault:"data/images"`
	CoverMaxBytes  int64  `env:"COVER_MAX_BYTES" envDefault:"10485760"`
	CoverMaxWidth  int    `env:"COVER_MAX_WIDTH" envDefault:"800"`
	CoverMaxHeight int    `env:"COVER_MAX_HEIGHT" envDefault:"1200"`
	CoverQuality   int    `env:"COVER_QUALITY" envDefault:"85"`
	// Source width*height, checked before the upload is decoded.
	CoverMaxPixels int64 `env:"COVER_MAX_PIXELS" envDefault:"40000000"`

	JWTKey      string        `env:"JWT_KEY,required"`
	JWTIssuer   string        `env:"JWT_ISSUER" envDefault:"libshelf"`
	JWTAudience string        `env:"JWT_AUDIENCE" envDefault:"libshelf"`
	JWTTTL      time.Duration `env:"JWT_TTL" envDefault:"0s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Per client IP, applied to register and login only.
	AuthRateLimit float64 `env:"AUTH_RATE_LIMIT" envDefault:"1"`
	AuthRateBurst int     `env:"AUTH_RATE_BURST" envDefault:"10"`
}

// Load parses the process environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every configuration value that cannot work.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("DB_PATH must not be empty"))
	}
	if strings.TrimSpace(c.CoverDir) == "" {
		errs = append(errs, errors.New("COVER_DIR must not be empty"))
	}
	if c.CoverMaxBytes <= 0 {
		errs = append(errs, errors.New("COVER_MAX_BYTES must be positive"))
	}
	if c.CoverMaxWidth <= 0 || c.CoverMaxHeight <= 0 {
		errs = append(errs, errors.New("COVER_MAX_WIDTH and COVER_MAX_HEIGHT must be positive"))
	}
	if c.CoverMaxPixels <= 0 {
		errs = append(errs, errors.New("COVER_MAX_PIXELS must be positive"))
	}
	if c.CoverQuality < 1 || c.CoverQuality > 100 {
		errs = append(errs, fmt.Errorf("COVER_QUALITY %d must be between 1 and 100", c.CoverQuality))
	}
	if len(c.JWTKey) < 16 {
		errs = append(errs, errors.New("JWT_KEY must be at least 16 characters"))
	}
	if c.JWTTTL < 0 {
		errs = append(errs, errors.New("JWT_TTL must not be negative"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be text or json", c.LogFormat))
	}
	for _, origin := range c.CORSAllowedOrigins {
		if origin == "*" {
			continue
		}
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("CORS_ALLOWED_ORIGINS entry %q is not an origin", origin))
		}
	}
	if c.AuthRateLimit <= 0 || c.AuthRateBurst <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT and AUTH_RATE_BURST must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Addr is the listen address derived from Port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
