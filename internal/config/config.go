// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a .env file, an optional YAML file and environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"strings"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Log sink backends.
const (
	LogSinkMemory = "memory"
	LogSinkSQLite = "sqlite"
	LogSinkMongo  = "mongo"
)

// WhatsApp delivery modes.
const (
	WhatsAppTwilio   = "twilio"
	WhatsAppSimulate = "simulate"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// EventID scopes the roster and logs to one race event.
	EventID string `koanf:"event_id"`

	// TopN is the size of the podium zone that triggers dethrone notifications.
	TopN int `koanf:"top_n"`

	// ScoreUpdatePolicy is one of none, boundary, always.
	ScoreUpdatePolicy string `koanf:"score_update_policy"`

	// PhonePrefix, when set, is required on every participant phone (e.g. "+27").
	PhonePrefix string `koanf:"phone_prefix"`

	// ObservationQueueSize bounds the in-memory observation queue.
	ObservationQueueSize int `koanf:"queue_size"`

	// DedupeSize sets the size of the in-process delivery dedupe cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// FeedAllowedOrigins is a comma-separated list of browser origins allowed
	// on the live feed; "*" allows any. Empty means same origin only.
	FeedAllowedOrigins string `koanf:"feed_allowed_origins"`

	// FeedSendBuffer is the number of frames buffered per feed client.
	FeedSendBuffer int `koanf:"feed_send_buffer"`

	// Store selects the roster backend: memory or postgres.
	Store       string `koanf:"store"`
	PostgresDSN string `koanf:"postgres_dsn"`

	// LogSink selects the delivery log backend: memory, sqlite or mongo.
	LogSink       string `koanf:"log_sink"`
	SQLitePath    string `koanf:"sqlite_path"`
	MongoURI      string `koanf:"mongo_uri"`
	MongoDatabase string `koanf:"mongo_database"`

	// WhatsAppMode selects twilio or simulate.
	WhatsAppMode string `koanf:"whatsapp_mode"`

	TwilioAccountSID     string  `koanf:"twilio_account_sid"`
	TwilioAuthToken      string  `koanf:"twilio_auth_token"`
	TwilioWhatsAppNumber string  `koanf:"twilio_whatsapp_number"`
	TemplateEntrySuccess string  `koanf:"twilio_template_sid_entry_success"`
	TemplateEntryFailure string  `koanf:"twilio_template_sid_entry_failure"`
	TemplateDethrone     string  `koanf:"twilio_template_sid_dethrone"`
	// Comma-separated variable names bound to the numbered placeholders of
	// each content template, e.g. "name,rank_label,score". Empty sends the
	// variables under their names.
	TemplateVarsEntrySuccess string `koanf:"twilio_template_vars_entry_success"`
	TemplateVarsEntryFailure string `koanf:"twilio_template_vars_entry_failure"`
	TemplateVarsDethrone     string `koanf:"twilio_template_vars_dethrone"`

	TwilioRatePerSecond  float64 `koanf:"twilio_rate_per_second"`
	TwilioRateBurst      int     `koanf:"twilio_rate_burst"`
	TwilioTimeoutMS      int     `koanf:"twilio_timeout_ms"`
}

// New creates a Config with defaults. Context is accepted first to follow the
// project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		EventID:              "default",
		TopN:                 3,
		ScoreUpdatePolicy:    "none",
		ObservationQueueSize: 1_024,
		DedupeSize:           50_000,
		MaxLeaderboardLimit:  100,
		FeedSendBuffer:       16,
		Store:                StoreMemory,
		LogSink:              LogSinkMemory,
		SQLitePath:           "podium.db",
		MongoDatabase:        "podium",
		WhatsAppMode:         WhatsAppSimulate,
		TwilioRatePerSecond:  1,
		TwilioRateBurst:      5,
		TwilioTimeoutMS:      10_000,
	}
}

// AllowedOrigins splits FeedAllowedOrigins, dropping blanks.
func (c *Config) AllowedOrigins() []string {
	return SplitList(c.FeedAllowedOrigins)
}

// SplitList splits a comma-separated value, trimming items and dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.EventID) == "" {
		return fmt.Errorf("%w: event_id must not be empty", ErrInvalidConfig)
	}
	if c.TopN < 1 {
		return fmt.Errorf("%w: top_n must be positive, got %d", ErrInvalidConfig, c.TopN)
	}
	if c.ObservationQueueSize < 1 {
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	}
	if c.MaxLeaderboardLimit < 1 {
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	}
	if c.FeedSendBuffer < 1 {
		return fmt.Errorf("%w: feed_send_buffer must be positive", ErrInvalidConfig)
	}
	switch c.ScoreUpdatePolicy {
	case "none", "boundary", "always":
	default:
		return fmt.Errorf("%w: unknown score_update_policy %q", ErrInvalidConfig, c.ScoreUpdatePolicy)
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn is required for the postgres store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}
	switch c.LogSink {
	case LogSinkMemory:
	case LogSinkSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite log sink", ErrInvalidConfig)
		}
	case LogSinkMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("%w: mongo_uri and mongo_database are required for the mongo log sink", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown log_sink %q", ErrInvalidConfig, c.LogSink)
	}
	switch c.WhatsAppMode {
	case WhatsAppTwilio, WhatsAppSimulate:
	default:
		return fmt.Errorf("%w: unknown whatsapp_mode %q", ErrInvalidConfig, c.WhatsAppMode)
	}
	if c.TwilioRatePerSecond <= 0 || c.TwilioRateBurst < 1 {
		return fmt.Errorf("%w: twilio rate limit must be positive", ErrInvalidConfig)
	}
	if c.TwilioTimeoutMS < 1 {
		return fmt.Errorf("%w: twilio_timeout_ms must be positive", ErrInvalidConfig)
	}
	return nil
}
