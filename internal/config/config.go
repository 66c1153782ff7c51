// Package config reads invsync settings from INVSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/invsync/internal/engine"
	"github.com/roach88/invsync/internal/inventory"
	"github.com/roach88/invsync/internal/rules"
)

// Prefix is prepended to every variable name.
const Prefix = "INVSYNC_"

// Config holds process settings. CLI flags default to these values.
type Config struct {
	ServerURL      string        `env:"SERVER_URL" envDefault:"http://127.0.0.1:8080"`
	User           string        `env:"USER" envDefault:"local"`
	DB             string        `env:"DB" envDefault:"invsync.db"`
	Listen         string        `env:"LISTEN" envDefault:"127.0.0.1:8080"`
	Rules          string        `env:"RULES"`
	SendTimeout    time.Duration `env:"SEND_TIMEOUT" envDefault:"15s"`
	ResyncTimeout  time.Duration `env:"RESYNC_TIMEOUT" envDefault:"15s"`
	ResyncAttempts int           `env:"RESYNC_ATTEMPTS" envDefault:"3"`
}

// ParseEnv loads target from environment variables under Prefix.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: Prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges that env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.SendTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%sSEND_TIMEOUT must be positive", Prefix))
	}
	if c.ResyncTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%sRESYNC_TIMEOUT must be positive", Prefix))
	}
	if c.ResyncAttempts < 1 {
		errs = append(errs, fmt.Errorf("%sRESYNC_ATTEMPTS must be at least 1", Prefix))
	}
	if c.User == "" {
		errs = append(errs, fmt.Errorf("%sUSER must not be empty", Prefix))
	}
	return errors.Join(errs...)
}

// LoadRules returns the economy rules named by Rules, or the defaults.
func (c Config) LoadRules() (inventory.Rules, error) {
	if c.Rules == "" {
		return inventory.DefaultRules(), nil
	}
	return rules.Load(c.Rules)
}

// EngineOptions translates the sync tuning into engine options.
func (c Config) EngineOptions() []engine.EngineOption {
	return []engine.EngineOption{
		engine.WithSendTimeout(c.SendTimeout),
		engine.WithResyncTimeout(c.ResyncTimeout),
		engine.WithResyncAttempts(c.ResyncAttempts),
	}
}
