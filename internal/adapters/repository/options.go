package repository

import (
	"time"

	"github.com/okian/podium/pkg/logger"
)

type settings struct {
	now     func() time.Time
	newID   func() string
	log     logger.Logger
	channel string
}

// Option applies a configuration option to a store.
type Option func(*settings)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the id assigned to participants added without one.
func WithIDGenerator(gen func() string) Option {
	return func(s *settings) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// WithNotifyChannel sets the Postgres NOTIFY channel name.
func WithNotifyChannel(channel string) Option {
	return func(s *settings) {
		if channel != "" {
			s.channel = channel
		}
	}
}
