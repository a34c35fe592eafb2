package recognition

import (
	"time"

	"github.com/okian/facecheck/internal/domain/dedupe"
	"github.com/okian/facecheck/internal/domain/matching"
	"github.com/okian/facecheck/pkg/logger"
)

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithName labels the controller, e.g. by camera.
func WithName(name string) Option {
	return func(c *Controller) {
		if name != "" {
			c.name = name
		}
	}
}

// WithPollInterval sets the tick interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithStartTimeout bounds how long Start waits for the frame source.
func WithStartTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.startTimeout = d
		}
	}
}

// WithMatcher sets the matcher.
func WithMatcher(m *matching.Matcher) Option {
	return func(c *Controller) {
		if m != nil {
			c.matcher = m
		}
	}
}

// WithPolicy sets the attendance dedupe policy.
func WithPolicy(p *dedupe.Policy) Option {
	return func(c *Controller) {
		if p != nil {
			c.policy = p
		}
	}
}

// WithPublisher sets where published events are fanned out.
func WithPublisher(p Publisher) Option {
	return func(c *Controller) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithDelivery sets the best-effort remote delivery for new records.
func WithDelivery(d Delivery) Option {
	return func(c *Controller) {
		if d != nil {
			c.delivery = d
		}
	}
}

// WithClock overrides the time source used for records and dedupe.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTicks drives the loop from ticks instead of an internal ticker.
func WithTicks(ticks <-chan time.Time) Option {
	return func(c *Controller) {
		c.ticks = ticks
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}
