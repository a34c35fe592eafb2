package registry

import "errors"

// Sentinel kinds for registry errors.
var (
	ErrInvalidRegistration = errors.New("invalid registration")
	ErrDuplicateID         = errors.New("external id already registered")
	ErrNoFaceDetected      = errors.New("no face detected within capture window")
	ErrNotFound            = errors.New("identity not found")
)
