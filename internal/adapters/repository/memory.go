package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/facecheck/internal/domain/model"
	"github.com/okian/facecheck/pkg/metrics"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu sync.RWMutex
	options

	records    []model.AttendanceRecord
	byDay      map[string][]int           // day key -> indexes into records
	checkedIn  map[string]map[string]bool // day key -> identity id
	recordIDs  map[string]bool
	identities []*model.Identity
	byExternal map[string]bool
	byID       map[string]bool
	closed     bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		options:    defaultOptions(),
		byDay:      make(map[string][]int),
		checkedIn:  make(map[string]map[string]bool),
		recordIDs:  make(map[string]bool),
		byExternal: make(map[string]bool),
		byID:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(&s.options)
	}
	return s
}

// Append implements AttendanceStore.
func (s *MemoryStore) Append(_ context.Context, rec model.AttendanceRecord) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.recordIDs[rec.ID] {
		return fmt.Errorf("%s: %w", rec.ID, ErrDuplicateRecord)
	}
	day := model.DayKey(rec.Timestamp, s.loc)
	if rec.SessionType == model.SessionCheckIn {
		if s.checkedIn[day][rec.IdentityID] {
			return fmt.Errorf("%s on %s: %w", rec.IdentityID, day, ErrAlreadyCheckedIn)
		}
		if s.checkedIn[day] == nil {
			s.checkedIn[day] = make(map[string]bool)
		}
		s.checkedIn[day][rec.IdentityID] = true
	}
	s.recordIDs[rec.ID] = true
	s.byDay[day] = append(s.byDay[day], len(s.records))
	s.records = append(s.records, rec)
	metrics.UpdateRepositoryRecordsTotal(len(s.records))
	return nil
}

// RecordsForDay implements AttendanceStore.
func (s *MemoryStore) RecordsForDay(_ context.Context, day time.Time) ([]model.AttendanceRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	idx := s.byDay[model.DayKey(day, s.loc)]
	out := make([]model.AttendanceRecord, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Count implements AttendanceStore.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// SaveIdentity implements IdentityStore.
func (s *MemoryStore) SaveIdentity(_ context.Context, id *model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.byID[id.ID] || s.byExternal[id.ExternalID] {
		return fmt.Errorf("%s: %w", id.ExternalID, ErrDuplicateIdentity)
	}
	cp := *id
	s.identities = append(s.identities, &cp)
	s.byID[id.ID] = true
	s.byExternal[id.ExternalID] = true
	return nil
}

// Identities implements IdentityStore.
func (s *MemoryStore) Identities(_ context.Context) ([]*model.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Identity, len(s.identities))
	for i, id := range s.identities {
		cp := *id
		out[i] = &cp
	}
	return out, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
