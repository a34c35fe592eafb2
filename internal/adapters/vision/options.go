package vision

import (
	"net/http"
	"time"

	"github.com/okian/facecheck/pkg/logger"
)

const (
	defaultTimeout      = 3 * time.Second
	defaultReadyBackoff = 200 * time.Millisecond
	maxBodyBytes        = 16 << 20
)

type options struct {
	client       *http.Client
	timeout      time.Duration
	maxEdge      int
	readyBackoff time.Duration
	logger       logger.Logger
}

func defaultOptions() options {
	return options{
		timeout:      defaultTimeout,
		maxEdge:      DefaultMaxEdge,
		readyBackoff: defaultReadyBackoff,
		logger:       logger.Get().Named("vision"),
	}
}

func (o *options) httpClient() *http.Client {
	if o.client != nil {
		return o.client
	}
	return &http.Client{Timeout: o.timeout}
}

// Option applies a configuration option to a vision adapter.
type Option func(*options)

// WithHTTPClient sets the HTTP client; it overrides WithTimeout.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxEdge sets the downscale bound used by Normalize. Zero disables it.
func WithMaxEdge(px int) Option {
	return func(o *options) {
		if px >= 0 {
			o.maxEdge = px
		}
	}
}

// WithReadyBackoff sets the wait between readiness probes.
func WithReadyBackoff(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readyBackoff = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
