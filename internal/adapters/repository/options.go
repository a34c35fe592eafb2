package repository

import "time"

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	loc *time.Location
}

func defaultOptions() options {
	return options{loc: time.Local}
}

// WithLocation sets the time zone calendar days are computed in.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}
