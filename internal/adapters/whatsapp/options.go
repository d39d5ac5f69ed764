// Package whatsapp implements dispatch.Sender for Twilio WhatsApp templates
// and a simulated sender for demos and tests.
package whatsapp

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/podium/pkg/logger"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRate    = 1
	defaultBurst   = 5
)

// Option applies a configuration option to a sender.
type Option func(*options)

type options struct {
	log     logger.Logger
	limiter *rate.Limiter
	timeout time.Duration
	creator messageCreator
	newID   func() string
}

// WithLogger sets the sender logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithRateLimit caps provider calls to perSecond with the given burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond > 0 && burst > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithTimeout bounds a single provider call.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func withCreator(c messageCreator) Option {
	return func(o *options) { o.creator = c }
}

func withIDGenerator(gen func() string) Option {
	return func(o *options) { o.newID = gen }
}

func buildOptions(name string, opts []Option) options {
	o := options{
		limiter: rate.NewLimiter(defaultRate, defaultBurst),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Get().Named(name)
	}
	return o
}
