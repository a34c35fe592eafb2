// Package recognition runs the polling loop that turns camera frames into
// recognition outcomes and attendance records.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/facecheck/internal/adapters/repository"
	"github.com/okian/facecheck/internal/domain/dedupe"
	"github.com/okian/facecheck/internal/domain/matching"
	"github.com/okian/facecheck/internal/domain/model"
	"github.com/okian/facecheck/internal/domain/registry"
	"github.com/okian/facecheck/pkg/logger"
	"github.com/okian/facecheck/pkg/metrics"
)

// Default loop configuration.
const (
	DefaultPollInterval = 1500 * time.Millisecond
	DefaultStartTimeout = 5 * time.Second
)

// State is the lifecycle state of a Controller.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	default:
		return "idle"
	}
}

// FrameSource yields camera frames.
type FrameSource interface {
	Frame(ctx context.Context) (model.Frame, error)
}

// ReadyChecker is implemented by sources that need to warm up before the
// first frame.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Extractor finds a face in a frame. A nil detection means no face.
type Extractor interface {
	Extract(ctx context.Context, frame model.Frame) (*model.Detection, error)
}

// Snapshotter exposes the current registry snapshot.
type Snapshotter interface {
	Snapshot() *registry.Snapshot
}

// Store is the attendance log the loop reads and appends to.
type Store interface {
	dedupe.RecordLookup
	Append(ctx context.Context, rec model.AttendanceRecord) error
}

// Delivery forwards new records to the remote sink. It must not block and
// reports whether the record was accepted.
type Delivery interface {
	Deliver(ctx context.Context, rec model.AttendanceRecord) bool
}

// Controller owns one recognition loop. Ticks are single-flight: a tick that
// fires while the previous one is still running is skipped. Every effect of a
// tick is committed under mu and only while the tick's generation is current,
// so nothing from a stopped run is observed after Stop returns.
type Controller struct {
	name         string
	registry     Snapshotter
	source       FrameSource
	extractor    Extractor
	store        Store
	matcher      *matching.Matcher
	policy       *dedupe.Policy
	publisher    Publisher
	delivery     Delivery
	pollInterval time.Duration
	startTimeout time.Duration
	ticks        <-chan time.Time
	now          func() time.Time
	logger       logger.Logger

	busy atomic.Bool

	mu      sync.Mutex
	state   State
	gen     uint64
	cancel  context.CancelFunc
	done    chan struct{}
	latest  *Event
	trigger dedupe.Trigger
}

// New creates an idle Controller.
func New(reg Snapshotter, source FrameSource, extractor Extractor, store Store, opts ...Option) *Controller {
	c := &Controller{
		name:         "default",
		registry:     reg,
		source:       source,
		extractor:    extractor,
		store:        store,
		matcher:      matching.New(),
		policy:       dedupe.NewPolicy(),
		pollInterval: DefaultPollInterval,
		startTimeout: DefaultStartTimeout,
		now:          time.Now,
		logger:       logger.Get().Named("recognition"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named(c.name)
	return c
}

// Name returns the controller label.
func (c *Controller) Name() string {
	return c.name
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Latest returns the last published event of the current run.
func (c *Controller) Latest() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return Event{}, false
	}
	return *c.latest, true
}

// Start begins polling. It fails with ErrNoRegistry, without changing state,
// when nobody is registered. Starting an already running controller is a
// no-op. The loop outlives ctx; only Stop ends it.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	if c.registry.Snapshot().Len() == 0 {
		c.mu.Unlock()
		return ErrNoRegistry
	}
	c.state = StateStarting
	c.gen++
	gen := c.gen
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.mu.Unlock()

	if rc, ok := c.source.(ReadyChecker); ok {
		readyCtx, readyCancel := context.WithTimeout(runCtx, c.startTimeout)
		err := rc.Ready(readyCtx)
		readyCancel()
		if err != nil {
			if !c.abortStart(gen) {
				return ErrStartAborted
			}
			return fmt.Errorf("%w: %w", ErrSourceNotReady, err)
		}
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrStartAborted
	}
	c.state = StateActive
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	metrics.UpdateLoopActive(true)
	c.logger.Info(ctx, "recognition loop started", logger.Duration("interval", c.pollInterval))
	go c.run(runCtx, gen, done)
	return nil
}

// abortStart returns a failed start to Idle. It reports false when Stop
// already ended this start.
func (c *Controller) abortStart(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.cancel()
	c.cancel = nil
	c.state = StateIdle
	return true
}

// Stop ends the loop and clears the last published event. It is safe to call
// in any state and more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.state = StateIdle
	c.latest = nil
	done := c.done
	c.done = nil
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	metrics.UpdateLoopActive(false)
	c.logger.Info(context.Background(), "recognition loop stopped")
}

func (c *Controller) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	ticks := c.ticks
	if ticks == nil {
		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticks:
			if !ok {
				return
			}
			c.tryTick(ctx, gen)
		}
	}
}

func (c *Controller) tryTick(ctx context.Context, gen uint64) {
	if !c.busy.CompareAndSwap(false, true) {
		metrics.RecordTickSkipped()
		return
	}
	go func() {
		defer c.busy.Store(false)
		c.tick(ctx, gen)
	}()
}

// tick runs one detection cycle. Failures degrade to a NoFace outcome.
func (c *Controller) tick(ctx context.Context, gen uint64) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordTickFailure("panic")
			c.logger.Error(ctx, "recognition tick panicked", logger.Any("panic", r))
			c.publish(gen, model.NoFace(), nil)
		}
		metrics.RecordTick(float64(time.Since(start).Milliseconds()))
	}()

	snap := c.registry.Snapshot()

	frame, err := c.source.Frame(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.degrade(ctx, gen, "frame", err)
		return
	}

	extractStart := time.Now()
	det, err := c.extractor.Extract(ctx, frame)
	metrics.RecordExtractLatency(float64(time.Since(extractStart).Milliseconds()))
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.degrade(ctx, gen, "extract", err)
		return
	}
	if det == nil {
		c.publish(gen, model.NoFace(), nil)
		return
	}

	out := c.matcher.Match(&det.Descriptor, snap.Identities()).WithDetection(det)
	if !c.publish(gen, out, nil) || !out.IsMatch() {
		return
	}
	c.attend(ctx, gen, out)
}

func (c *Controller) degrade(ctx context.Context, gen uint64, stage string, err error) {
	metrics.RecordTickFailure(stage)
	c.logger.Debug(ctx, "tick degraded to no detection", logger.String("stage", stage), logger.Error(err))
	c.publish(gen, model.NoFace(), nil)
}

// attend runs the dedupe policy for a match and commits a new record.
func (c *Controller) attend(ctx context.Context, gen uint64, out model.Outcome) {
	now := c.now()
	identity := out.Identity

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	last := c.trigger
	c.mu.Unlock()

	dec, err := c.policy.Evaluate(ctx, c.store, identity.ID, now, last)
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.trigger = dec.Next
	if err != nil {
		metrics.RecordAttendanceSuppressed(dec.Reason.String())
		c.logger.Warn(ctx, "attendance lookup failed; skipping", logger.String("identity", identity.ID), logger.Error(err))
		return
	}
	if !dec.Record {
		metrics.RecordAttendanceSuppressed(dec.Reason.String())
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		c.logger.Error(ctx, "record id generation failed", logger.Error(err))
		return
	}
	rec := model.AttendanceRecord{
		ID:           id.String(),
		IdentityID:   identity.ID,
		IdentityName: identity.DisplayName,
		Timestamp:    now,
		Confidence:   out.Confidence,
		SessionType:  model.SessionCheckIn,
	}
	if err := c.store.Append(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrAlreadyCheckedIn) {
			metrics.RecordAttendanceSuppressed(dedupe.ReasonAlreadyRecorded.String())
			return
		}
		metrics.RecordTickFailure("store")
		metrics.RecordErrorByComponent("recognition", "store_append")
		c.logger.Error(ctx, "attendance append failed", logger.String("identity", identity.ID), logger.Error(err))
		return
	}

	metrics.RecordAttendanceRecorded()
	c.logger.Info(ctx, "attendance recorded",
		logger.String("record", rec.ID),
		logger.String("identity", rec.IdentityID),
		logger.Float64("confidence", rec.Confidence),
	)
	if c.delivery != nil && !c.delivery.Deliver(context.WithoutCancel(ctx), rec) {
		c.logger.Warn(ctx, "remote delivery dropped", logger.String("record", rec.ID))
	}
	c.publishLocked(Event{Source: c.name, Outcome: out, At: now, Record: &rec})
}

// publish commits ev if gen is still the active run. It reports whether the
// tick may continue.
func (c *Controller) publish(gen uint64, out model.Outcome, rec *model.AttendanceRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state != StateActive {
		return false
	}
	metrics.RecordOutcome(out.Kind.String())
	c.publishLocked(Event{Source: c.name, Outcome: out, At: c.now(), Record: rec})
	return true
}

func (c *Controller) publishLocked(ev Event) {
	c.latest = &ev
	if c.publisher != nil {
		c.publisher.Publish(ev)
	}
}
