package dedupe

import "errors"

// Sentinel kinds for dedupe errors.
var (
	// ErrLookupFailed means today's records could not be read; the decision
	// failed closed.
	ErrLookupFailed = errors.New("attendance lookup failed")
)
