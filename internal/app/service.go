// Package service wires the recognition engine, storage and delivery into
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/facecheck/internal/adapters/mq/queue"
	workerpool "github.com/okian/facecheck/internal/adapters/mq/worker"
	"github.com/okian/facecheck/internal/adapters/repository"
	"github.com/okian/facecheck/internal/adapters/sink"
	"github.com/okian/facecheck/internal/adapters/vision"
	"github.com/okian/facecheck/internal/config"
	"github.com/okian/facecheck/internal/domain/dedupe"
	"github.com/okian/facecheck/internal/domain/matching"
	"github.com/okian/facecheck/internal/domain/model"
	"github.com/okian/facecheck/internal/domain/registry"
	"github.com/okian/facecheck/internal/domain/report"
	"github.com/okian/facecheck/internal/recognition"
	"github.com/okian/facecheck/pkg/logger"
	"github.com/okian/facecheck/pkg/metrics"
)

// Queue names used in metrics.
const (
	deliveryQueueName = "delivery"
	relayQueueName    = "relay"
)

// Service implements the API dependencies for the check-in system.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config
	loc *time.Location

	// Injected or built in Start.
	store     repository.Store
	source    recognition.FrameSource
	extractor recognition.Extractor
	sink      workerpool.Sink
	ticks     <-chan time.Time

	registry   *registry.Registry
	controller *recognition.Controller
	feed       *recognition.Broadcaster
	delivery   *workerpool.Pool
	pending    *queue.InMemoryQueue
	seen       dedupe.Seen
	scheduler  *cron.Cron

	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults come from config.New.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore uses store instead of opening the configured one. The service
// closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithFrameSource replaces the HTTP camera.
func WithFrameSource(src recognition.FrameSource) Option {
	return func(s *Service) {
		s.source = src
	}
}

// WithExtractor replaces the HTTP extractor.
func WithExtractor(e recognition.Extractor) Option {
	return func(s *Service) {
		s.extractor = e
	}
}

// WithSink replaces the remote sink.
func WithSink(snk workerpool.Sink) Option {
	return func(s *Service) {
		s.sink = snk
	}
}

// WithTicks drives the recognition loop from ticks instead of a timer.
func WithTicks(ticks <-chan time.Time) Option {
	return func(s *Service) {
		s.ticks = ticks
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Nothing is opened until Start.
func New(opts ...Option) *Service {
	s := &Service{cfg: config.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenStore opens the store selected by cfg.
func OpenStore(ctx context.Context, cfg *config.Config, loc *time.Location) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		return repository.NewSQLiteStore(ctx, cfg.SQLitePath, repository.WithLocation(loc))
	case config.StoreMemory, "":
		return repository.NewMemoryStore(repository.WithLocation(loc)), nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", config.ErrInvalidConfig, cfg.StoreDriver)
	}
}

// Start opens storage, restores the registry and starts the background
// workers. The recognition loop itself stays idle until StartRecognition.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	cfg := s.cfg

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("%w: timezone: %w", config.ErrInvalidConfig, err)
	}
	s.loc = loc

	if s.store == nil {
		if s.store, err = OpenStore(ctx, cfg, loc); err != nil {
			return fmt.Errorf("open store: %w", err)
		}
	}

	s.registry = registry.New(s.store, registry.WithCaptureWindow(config.Ms(cfg.CaptureWindowMS)))
	if err := s.registry.Load(ctx); err != nil {
		_ = s.store.Close()
		s.store = nil
		return err
	}

	if s.source == nil {
		s.source = vision.NewHTTPCamera(cfg.CameraURL,
			vision.WithTimeout(config.Ms(cfg.ExtractorTimeoutMS)),
			vision.WithMaxEdge(cfg.FrameMaxEdge),
		)
	}
	if s.extractor == nil {
		s.extractor = vision.NewHTTPExtractor(cfg.ExtractorURL,
			vision.WithTimeout(config.Ms(cfg.ExtractorTimeoutMS)),
		)
	}
	if s.sink == nil {
		if cfg.SinkURL == "" {
			s.sink = sink.Discard{}
		} else {
			s.sink = sink.New(cfg.SinkURL, sink.WithTimeout(config.Ms(cfg.SinkTimeoutMS)))
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	deliveryQueue := queue.NewInMemoryQueue(
		queue.WithName(deliveryQueueName),
		queue.WithCapacity(cfg.DeliveryQueueSize),
	)
	s.delivery = workerpool.NewPool(cfg.DeliveryWorkers, deliveryQueue, s.sink)
	s.delivery.Start(runCtx)

	s.pending = queue.NewInMemoryQueue(
		queue.WithName(relayQueueName),
		queue.WithCapacity(cfg.RelayQueueSize),
	)
	s.seen = dedupe.NewInMemorySeen(dedupe.WithTTL(config.Ms(cfg.RelaySeenTTLMS)))
	s.feed = recognition.NewBroadcaster(0)

	ctrlOpts := []recognition.Option{
		recognition.WithName("camera"),
		recognition.WithPollInterval(config.Ms(cfg.PollIntervalMS)),
		recognition.WithStartTimeout(config.Ms(cfg.StartTimeoutMS)),
		recognition.WithMatcher(matching.New(matching.WithThreshold(cfg.MatchThreshold))),
		recognition.WithPolicy(dedupe.NewPolicy(
			dedupe.WithCooldown(config.Ms(cfg.CooldownMS)),
			dedupe.WithLocation(loc),
		)),
		recognition.WithPublisher(s.feed),
		recognition.WithDelivery(s.delivery),
	}
	if s.ticks != nil {
		ctrlOpts = append(ctrlOpts, recognition.WithTicks(s.ticks))
	}
	s.controller = recognition.New(s.registry, s.source, s.extractor, s.store, ctrlOpts...)

	if cfg.ReportSchedule != "" {
		s.scheduler = cron.New(cron.WithLocation(loc))
		if _, err := s.scheduler.AddFunc(cfg.ReportSchedule, func() { s.reportDaily(runCtx) }); err != nil {
			cancel()
			_ = s.delivery.Shutdown(ctx)
			_ = s.store.Close()
			s.store = nil
			return fmt.Errorf("%w: report_schedule: %w", config.ErrInvalidConfig, err)
		}
		s.scheduler.Start()
	}

	s.started = true
	s.logger.Info(ctx, "check-in service started",
		logger.String("store", cfg.StoreDriver),
		logger.Int("identities", s.registry.Len()),
		logger.Int("deliveryWorkers", s.delivery.Size()),
		logger.Bool("sink", cfg.SinkURL != ""),
		logger.String("timezone", loc.String()),
	)
	return nil
}

// Stop halts recognition, ends feed subscriptions, drains delivery and
// closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping check-in service...")

	s.controller.Stop()
	s.feed.Close()
	if s.scheduler != nil {
		<-s.scheduler.Stop().Done()
	}
	if err := s.delivery.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "delivery shutdown incomplete", logger.Error(err))
	}
	_ = s.pending.Close()
	s.cancel()
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "store close failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "check-in service stopped")
}

// reportDaily logs today's summary and publishes it as gauges.
func (s *Service) reportDaily(ctx context.Context) {
	sum, err := s.DailySummary(ctx, time.Now().In(s.loc))
	if err != nil {
		metrics.RecordErrorByComponent("service", "daily_report")
		s.logger.Error(ctx, "daily report failed", logger.Error(err))
		return
	}
	metrics.UpdateDailySummary(sum.CheckIns, sum.AttendanceRate)
	s.logger.Info(ctx, "daily attendance",
		logger.String("date", sum.Date),
		logger.Int("checkIns", sum.CheckIns),
		logger.Int("registered", sum.Registered),
		logger.Float64("rate", sum.AttendanceRate),
	)
}

// RegisterIdentity registers an attendee from photo, or from the live camera
// when photo is empty.
func (s *Service) RegisterIdentity(ctx context.Context, in registry.Registration, photo []byte) (*model.Identity, error) {
	var sampler registry.Sampler = vision.Pipeline{Source: s.source, Extractor: s.extractor}
	if len(photo) > 0 {
		ps, err := vision.NewPhotoSampler(photo, s.extractor, vision.WithMaxEdge(s.cfg.FrameMaxEdge))
		if err != nil {
			metrics.RecordRegistration("invalid")
			return nil, err
		}
		sampler = ps
	}
	return s.registry.Register(ctx, in, sampler)
}

// Identities returns registered attendees in registration order.
func (s *Service) Identities() []*model.Identity {
	return s.registry.List()
}

// StartRecognition starts the camera loop.
func (s *Service) StartRecognition(ctx context.Context) error {
	return s.controller.Start(ctx)
}

// StopRecognition stops the camera loop.
func (s *Service) StopRecognition() {
	s.controller.Stop()
}

// LatestRecognition returns the last event of the running loop.
func (s *Service) LatestRecognition() (recognition.Event, bool) {
	return s.controller.Latest()
}

// RecognitionState returns the loop state.
func (s *Service) RecognitionState() recognition.State {
	return s.controller.State()
}

// Subscribe streams published recognition events.
func (s *Service) Subscribe() (<-chan recognition.Event, func()) {
	return s.feed.Subscribe()
}

// SeenAndRecord marks a relayed record id as seen. It reports true when the
// id was already seen.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	return s.seen.SeenAndRecord(ctx, id)
}

// Unrecord forgets a relayed record id so it can be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.seen.Unrecord(ctx, id)
}

// Size returns the number of remembered relay ids.
func (s *Service) Size() int64 {
	if s.seen == nil {
		return 0
	}
	return s.seen.Size()
}

// Location returns the timezone that defines calendar days.
func (s *Service) Location() *time.Location {
	return s.loc
}

// RecordsForDay returns the records of day in insertion order.
func (s *Service) RecordsForDay(ctx context.Context, day time.Time) ([]model.AttendanceRecord, error) {
	return s.store.RecordsForDay(ctx, day)
}

// AppendRecord stores a relayed record.
func (s *Service) AppendRecord(ctx context.Context, rec model.AttendanceRecord) error {
	if err := s.store.Append(ctx, rec); err != nil {
		return err
	}
	metrics.RecordAttendanceRecorded()
	return nil
}

// EnqueuePending queues rec for device consumers.
func (s *Service) EnqueuePending(ctx context.Context, rec model.AttendanceRecord) bool {
	err := s.pending.Offer(ctx, rec)
	metrics.UpdateRelayPending(s.pending.Len(ctx))
	if err != nil {
		s.logger.Debug(ctx, "relay record not queued", logger.String("record", rec.ID), logger.Error(err))
		return false
	}
	return true
}

// NextPending pops the oldest pending relayed record.
func (s *Service) NextPending(ctx context.Context) (model.AttendanceRecord, bool) {
	rec, ok := s.pending.TryDequeue(ctx)
	metrics.UpdateRelayPending(s.pending.Len(ctx))
	return rec, ok
}

// AckPending records that a device handled id.
func (s *Service) AckPending(ctx context.Context, id string) {
	s.logger.Info(ctx, "relayed record acknowledged", logger.String("record", id))
}

// DailySummary summarizes the attendance of day.
func (s *Service) DailySummary(ctx context.Context, day time.Time) (report.Summary, error) {
	recs, err := s.store.RecordsForDay(ctx, day)
	if err != nil {
		return report.Summary{}, fmt.Errorf("daily summary: %w", err)
	}
	return report.Summarize(day, recs, s.registry.List(), s.loc), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started": s.started,
		"store":   s.cfg.StoreDriver,
	}
	if !s.started {
		return stats
	}

	records, err := s.store.Count(ctx)
	if err != nil {
		s.logger.Warn(ctx, "record count failed", logger.Error(err))
	}
	stats["identities"] = s.registry.Len()
	stats["records"] = records
	stats["recognition"] = s.controller.State().String()
	stats["feedSubscribers"] = s.feed.Subscribers()
	stats["deliveryWorkers"] = s.delivery.Size()
	stats["deliveryPending"] = s.delivery.Pending(ctx)
	stats["relayPending"] = s.pending.Len(ctx)
	stats["relaySeen"] = s.seen.Size()

	metrics.UpdateRepositoryRecordsTotal(records)
	metrics.UpdateRegistrySize(s.registry.Len())
	return stats
}
