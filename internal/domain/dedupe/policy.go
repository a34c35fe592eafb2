package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/facecheck/internal/domain/model"
)

// DefaultCooldown suppresses re-triggers of the same identity.
const DefaultCooldown = 5 * time.Second

// Reason explains a decision.
type Reason int

const (
	ReasonRecord Reason = iota
	ReasonCooldown
	ReasonAlreadyRecorded
	ReasonLookupFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonCooldown:
		return "cooldown"
	case ReasonAlreadyRecorded:
		return "already_recorded"
	case ReasonLookupFailed:
		return "lookup_failed"
	default:
		return "record"
	}
}

// Trigger is the last (identity, time) pair a loop acted on. The zero value
// means nothing has triggered yet.
type Trigger struct {
	IdentityID string
	At         time.Time
}

// Decision is the outcome of a dedupe check.
type Decision struct {
	Record bool
	Reason Reason
	// Next is the trigger the caller should keep for its next check.
	Next Trigger
}

// RecordLookup returns the attendance records of the calendar day containing day.
type RecordLookup interface {
	RecordsForDay(ctx context.Context, day time.Time) ([]model.AttendanceRecord, error)
}

// Policy enforces one check-in per identity per calendar day, plus a short
// cooldown that skips the day lookup for repeated triggers. The cooldown is
// an optimization; the day check alone keeps records unique.
type Policy struct {
	cooldown time.Duration
	loc      *time.Location
}

// NewPolicy creates a Policy.
func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{
		cooldown: DefaultCooldown,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Location returns the time zone used for calendar days.
func (p *Policy) Location() *time.Location {
	return p.loc
}

// InCooldown reports whether identityID re-triggered within the cooldown.
func (p *Policy) InCooldown(identityID string, now time.Time, last Trigger) bool {
	if p.cooldown <= 0 || last.IdentityID == "" || last.IdentityID != identityID {
		return false
	}
	return now.Sub(last.At) <= p.cooldown
}

// ShouldRecord decides from todays, the records of now's calendar day.
func (p *Policy) ShouldRecord(identityID string, now time.Time, todays []model.AttendanceRecord, last Trigger) Decision {
	if p.InCooldown(identityID, now, last) {
		return Decision{Reason: ReasonCooldown, Next: last}
	}
	next := Trigger{IdentityID: identityID, At: now}
	if p.CheckedIn(identityID, now, todays) {
		return Decision{Reason: ReasonAlreadyRecorded, Next: next}
	}
	return Decision{Record: true, Reason: ReasonRecord, Next: next}
}

// CheckedIn reports whether records holds a check-in for identityID on now's day.
func (p *Policy) CheckedIn(identityID string, now time.Time, records []model.AttendanceRecord) bool {
	for i := range records {
		r := &records[i]
		if r.IdentityID == identityID && r.SessionType == model.SessionCheckIn && model.SameDay(r.Timestamp, now, p.loc) {
			return true
		}
	}
	return false
}

// Evaluate runs ShouldRecord against the records lookup returns for now's day.
// A failed lookup fails closed: nothing is recorded, last is kept so the next
// attempt retries, and an error wrapping ErrLookupFailed is returned.
func (p *Policy) Evaluate(ctx context.Context, lookup RecordLookup, identityID string, now time.Time, last Trigger) (Decision, error) {
	if p.InCooldown(identityID, now, last) {
		return Decision{Reason: ReasonCooldown, Next: last}, nil
	}
	todays, err := lookup.RecordsForDay(ctx, now.In(p.loc))
	if err != nil {
		return Decision{Reason: ReasonLookupFailed, Next: last}, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	return p.ShouldRecord(identityID, now, todays, last), nil
}
