package model

import (
	"fmt"
	"time"
)

// SessionType tags what an attendance record stands for.
type SessionType string

// Known session types. Only check-in is produced by the recognition loop.
const (
	SessionCheckIn  SessionType = "check-in"
	SessionSession  SessionType = "session"
	SessionBreak    SessionType = "break"
	SessionCheckOut SessionType = "check-out"
)

// ParseSessionType validates s against the known session types.
func ParseSessionType(s string) (SessionType, error) {
	switch st := SessionType(s); st {
	case SessionCheckIn, SessionSession, SessionBreak, SessionCheckOut:
		return st, nil
	default:
		return "", fmt.Errorf("unknown session type %q", s)
	}
}

// AttendanceRecord is an append-only attendance event.
type AttendanceRecord struct {
	ID           string      `json:"id"`
	IdentityID   string      `json:"identityId"`
	IdentityName string      `json:"identityName"` // snapshot at record time
	Timestamp    time.Time   `json:"timestamp"`
	Confidence   float64     `json:"confidence"`
	SessionType  SessionType `json:"sessionType"`
}

// SameDay reports whether a and b fall on the same calendar date in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// DayKey formats t as YYYY-MM-DD in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(time.DateOnly)
}
