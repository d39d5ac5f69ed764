package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "PODIUM_"
	twilioPrefix  = "TWILIO_"
	defaultDotEnv = ".env"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if PODIUM_CONFIG is set
//  3. TWILIO_* env, as used by the hosted deployment
//  4. env (prefix PODIUM_)
//
// A .env file (PODIUM_ENV_FILE, default ".env") is read into the process
// environment first; variables already set win and a missing file is ignored.
func Load(ctx context.Context) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	base := New(ctx)
	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// TWILIO_ACCOUNT_SID -> twilio_account_sid; the older leaderboard
	// template name maps onto the dethrone template.
	twilioProvider := env.Provider(twilioPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		if s == "twilio_template_sid_leaderboard" {
			return "twilio_template_sid_dethrone"
		}
		return s
	})
	if err := k.Load(twilioProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// PODIUM_QUEUE_SIZE -> queue_size (flat keys, underscores preserved).
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "podium_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg.ScoreUpdatePolicy = strings.ToLower(strings.TrimSpace(cfg.ScoreUpdatePolicy))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv() error {
	path := os.Getenv(envPrefix + "ENV_FILE")
	if path == "" {
		path = defaultDotEnv
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
	}
	return nil
}
