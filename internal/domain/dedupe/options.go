// Package dedupe decides whether recognitions become attendance records and
// tracks already-seen record ids.
package dedupe

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Option applies a configuration option to the in-memory Seen set.
type Option func(*inMemorySeen)

// WithTTL sets how long an id is remembered. Zero or less keeps ids forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *inMemorySeen) {
		if ttl <= 0 {
			ttl = cache.NoExpiration
		}
		s.ttl = ttl
	}
}

// PolicyOption applies a configuration option to the Policy.
type PolicyOption func(*Policy)

// WithCooldown sets the per-identity re-trigger window. Zero disables it.
func WithCooldown(d time.Duration) PolicyOption {
	return func(p *Policy) {
		if d >= 0 {
			p.cooldown = d
		}
	}
}

// WithLocation sets the time zone calendar days are computed in.
func WithLocation(loc *time.Location) PolicyOption {
	return func(p *Policy) {
		if loc != nil {
			p.loc = loc
		}
	}
}
