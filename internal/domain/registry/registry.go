// Package registry owns the set of registered identities. Readers take an
// immutable Snapshot; registration publishes a new one atomically.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/facecheck/internal/domain/model"
	"github.com/okian/facecheck/pkg/logger"
	"github.com/okian/facecheck/pkg/metrics"
	"github.com/okian/facecheck/pkg/validator"
)

// Default capture configuration.
const (
	DefaultCaptureWindow = 3 * time.Second
	defaultPollInterval  = 100 * time.Millisecond
)

// Store persists identities.
type Store interface {
	SaveIdentity(ctx context.Context, id *model.Identity) error
	Identities(ctx context.Context) ([]*model.Identity, error)
}

// Sampler makes one attempt at detecting a face. A nil detection with a nil
// error means no face was visible.
type Sampler interface {
	Sample(ctx context.Context) (*model.Detection, error)
}

// Registration is the user supplied part of an identity.
type Registration struct {
	DisplayName  string `json:"displayName" conform:"trim" validate:"required,max=200"`
	ExternalID   string `json:"externalId" conform:"trim" validate:"required,max=100"`
	Email        string `json:"email" conform:"trim,lower" validate:"omitempty,email"`
	Phone        string `json:"phone" conform:"trim" validate:"omitempty,max=50"`
	Organization string `json:"organization" conform:"trim" validate:"omitempty,max=200"`
	JobTitle     string `json:"jobTitle" conform:"trim" validate:"omitempty,max=200"`
}

// Snapshot is an immutable view of the registry.
type Snapshot struct {
	identities []*model.Identity
	byID       map[string]*model.Identity
	byExternal map[string]*model.Identity
}

func newSnapshot(ids []*model.Identity) *Snapshot {
	s := &Snapshot{
		identities: ids,
		byID:       make(map[string]*model.Identity, len(ids)),
		byExternal: make(map[string]*model.Identity, len(ids)),
	}
	for _, id := range ids {
		s.byID[id.ID] = id
		s.byExternal[id.ExternalID] = id
	}
	return s
}

// Identities returns identities in registration order. Callers must not modify it.
func (s *Snapshot) Identities() []*model.Identity { return s.identities }

// Len returns the number of identities.
func (s *Snapshot) Len() int { return len(s.identities) }

// Get returns the identity with the given id.
func (s *Snapshot) Get(id string) (*model.Identity, bool) {
	i, ok := s.byID[id]
	return i, ok
}

// Registry holds the current snapshot and performs registrations.
type Registry struct {
	store         Store
	snap          atomic.Pointer[Snapshot]
	mu            sync.Mutex // serializes writers
	captureWindow time.Duration
	pollInterval  time.Duration
	now           func() time.Time
	newID         func() string
	logger        logger.Logger
}

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithCaptureWindow bounds how long registration waits for a face.
func WithCaptureWindow(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.captureWindow = d
		}
	}
}

// WithPollInterval sets the pause between capture attempts.
func WithPollInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithClock overrides the registration timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates an empty Registry backed by store.
func New(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:         store,
		captureWindow: DefaultCaptureWindow,
		pollInterval:  defaultPollInterval,
		now:           time.Now,
		newID:         uuid.NewString,
		logger:        logger.Get().Named("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.snap.Store(newSnapshot(nil))
	return r
}

// Load replaces the snapshot with the identities held by the store.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := r.store.Identities(ctx)
	if err != nil {
		return fmt.Errorf("load identities: %w", err)
	}
	r.snap.Store(newSnapshot(ids))
	metrics.UpdateRegistrySize(len(ids))
	r.logger.Info(ctx, "registry loaded", logger.Int("identities", len(ids)))
	return nil
}

// Snapshot returns the current immutable view.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	return r.Snapshot().Len()
}

// Get returns a registered identity by id.
func (r *Registry) Get(id string) (*model.Identity, error) {
	if i, ok := r.Snapshot().Get(id); ok {
		return i, nil
	}
	return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
}

// List returns every identity in registration order.
func (r *Registry) List() []*model.Identity {
	return r.Snapshot().Identities()
}

// Register validates in, captures one face descriptor through sampler, and
// stores the new identity.
func (r *Registry) Register(ctx context.Context, in Registration, sampler Sampler) (*model.Identity, error) {
	if err := validator.Get().Validate(&in); err != nil {
		metrics.RecordRegistration("invalid")
		return nil, fmt.Errorf("%w: %w", ErrInvalidRegistration, err)
	}
	if _, taken := r.Snapshot().byExternal[in.ExternalID]; taken {
		metrics.RecordRegistration("duplicate")
		return nil, fmt.Errorf("%s: %w", in.ExternalID, ErrDuplicateID)
	}

	det, err := r.capture(ctx, sampler)
	if err != nil {
		if errors.Is(err, ErrNoFaceDetected) {
			metrics.RecordRegistration("no_face")
		} else {
			metrics.RecordRegistration("cancelled")
		}
		return nil, err
	}

	id := &model.Identity{
		ID:           r.newID(),
		ExternalID:   in.ExternalID,
		DisplayName:  in.DisplayName,
		Email:        in.Email,
		Phone:        in.Phone,
		Organization: in.Organization,
		JobTitle:     in.JobTitle,
		Descriptor:   det.Descriptor,
		RegisteredAt: r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.Snapshot()
	if _, taken := cur.byExternal[in.ExternalID]; taken {
		metrics.RecordRegistration("duplicate")
		return nil, fmt.Errorf("%s: %w", in.ExternalID, ErrDuplicateID)
	}
	if err := r.store.SaveIdentity(ctx, id); err != nil {
		metrics.RecordRegistration("error")
		return nil, fmt.Errorf("save identity: %w", err)
	}

	next := make([]*model.Identity, 0, cur.Len()+1)
	next = append(next, cur.identities...)
	next = append(next, id)
	r.snap.Store(newSnapshot(next))

	metrics.RecordRegistration("ok")
	metrics.UpdateRegistrySize(len(next))
	r.logger.Info(ctx, "identity registered",
		logger.String("id", id.ID),
		logger.String("externalId", id.ExternalID),
	)
	return id, nil
}

// capture polls sampler until it yields a face or the window closes. It
// returns the caller's context error when that ends first.
func (r *Registry) capture(parent context.Context, sampler Sampler) (*model.Detection, error) {
	ctx, cancel := context.WithTimeout(parent, r.captureWindow)
	defer cancel()

	for {
		det, err := sampler.Sample(ctx)
		switch {
		case err == nil && det != nil:
			return det, nil
		case err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled):
			r.logger.Debug(ctx, "capture attempt failed", logger.Error(err))
		}

		select {
		case <-ctx.Done():
			if err := parent.Err(); err != nil {
				return nil, err
			}
			return nil, ErrNoFaceDetected
		case <-time.After(r.pollInterval):
		}
	}
}
