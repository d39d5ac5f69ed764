package dedupe

import "github.com/okian/podium/pkg/logger"

type settings struct {
	maxSize            int
	bloomCapacity      uint
	bloomFalsePositive float64
	log                logger.Logger
}

func defaultSettings() settings {
	return settings{
		maxSize:            50_000,
		bloomCapacity:      100_000,
		bloomFalsePositive: 0.001,
	}
}

// Option applies a configuration option to a deduper.
type Option func(*settings)

// WithMaxSize sets the maximum number of keys to keep in memory.
// If maxSize > 0: bounded mode evicting the oldest key.
// If maxSize <= 0: unbounded mode.
func WithMaxSize(maxSize int) Option {
	return func(s *settings) {
		s.maxSize = maxSize
	}
}

// WithBloomEstimates sizes the durable deduper's bloom filter.
func WithBloomEstimates(capacity uint, falsePositiveRate float64) Option {
	return func(s *settings) {
		if capacity > 0 && falsePositiveRate > 0 && falsePositiveRate < 1 {
			s.bloomCapacity = capacity
			s.bloomFalsePositive = falsePositiveRate
		}
	}
}

// WithLogger sets the logger for store lookup failures.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		s.log = l
	}
}
