package recognition

import "errors"

// Sentinel kinds for controller errors.
var (
	ErrNoRegistry     = errors.New("no identities registered")
	ErrSourceNotReady = errors.New("frame source not ready")
	ErrStartAborted   = errors.New("stopped while starting")
)
