package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyCheckedIn  = errors.New("identity already checked in for the day")
	ErrDuplicateRecord   = errors.New("record id already exists")
	ErrDuplicateIdentity = errors.New("identity already exists")
	ErrClosed            = errors.New("store closed")
)
