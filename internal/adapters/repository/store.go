// Package repository persists identities and attendance records.
package repository

import (
	"context"
	"time"

	"github.com/okian/facecheck/internal/domain/model"
)

// AttendanceStore is the append-only attendance log.
type AttendanceStore interface {
	// Append stores rec. For check-in records the same-day check and the
	// insert are atomic: ErrAlreadyCheckedIn is returned when the identity
	// already has a check-in on rec's calendar day.
	Append(ctx context.Context, rec model.AttendanceRecord) error

	// RecordsForDay returns the records whose timestamp falls on day's
	// calendar date, in insertion order.
	RecordsForDay(ctx context.Context, day time.Time) ([]model.AttendanceRecord, error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int, error)
}

// IdentityStore persists registered identities.
type IdentityStore interface {
	// SaveIdentity stores id. ErrDuplicateIdentity is returned when the ID or
	// ExternalID is already taken.
	SaveIdentity(ctx context.Context, id *model.Identity) error

	// Identities returns all identities in registration order.
	Identities(ctx context.Context) ([]*model.Identity, error)
}

// Store provides both logs.
type Store interface {
	AttendanceStore
	IdentityStore
	Close() error
}
