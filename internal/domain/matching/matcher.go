// Package matching finds the registered identity nearest to a probe
// descriptor.
package matching

import (
	"math"

	"github.com/okian/facecheck/internal/domain/model"
)

// DefaultThreshold is the confidence a match must strictly exceed.
const DefaultThreshold = 0.6

// Matcher performs a linear nearest-neighbour scan. It holds no state beyond
// its threshold and is safe for concurrent use.
type Matcher struct {
	threshold float64
}

// Option applies a configuration option to the Matcher.
type Option func(*Matcher)

// WithThreshold sets the confidence threshold. Values outside [0, 1] are ignored.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold >= 0 && threshold <= 1 {
			m.threshold = threshold
		}
	}
}

// New creates a Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the configured threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match returns the outcome for probe against identities, which must be in
// registration order. A nil probe or an empty set yields NoMatch(0).
func (m *Matcher) Match(probe *model.Descriptor, identities []*model.Identity) model.Outcome {
	if probe == nil || len(identities) == 0 {
		return model.NoMatch(0)
	}

	var best *model.Identity
	minDist := math.Inf(1)
	for _, id := range identities {
		d := Distance(probe, &id.Descriptor)
		// strict: first registered wins a tie
		if d < minDist {
			minDist = d
			best = id
		}
	}

	confidence := Confidence(minDist)
	if confidence > m.threshold {
		return model.Match(best, confidence)
	}
	return model.NoMatch(confidence)
}

// Confidence maps a distance onto [0, 1].
func Confidence(distance float64) float64 {
	return math.Max(0, 1-distance)
}

// Distance is the Euclidean distance between a and b.
func Distance(a, b *model.Descriptor) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
