// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/facecheck/internal/domain/dedupe"
	"github.com/okian/facecheck/internal/domain/model"
	"github.com/okian/facecheck/internal/domain/registry"
	"github.com/okian/facecheck/internal/domain/report"
	"github.com/okian/facecheck/internal/recognition"
)

// IdentityDependencies serves registration and identity listing.
type IdentityDependencies interface {
	// RegisterIdentity samples the live camera, or photo when it is non-empty.
	RegisterIdentity(ctx context.Context, in registry.Registration, photo []byte) (*model.Identity, error)
	Identities() []*model.Identity
}

// RecognitionDependencies controls the recognition loop.
type RecognitionDependencies interface {
	StartRecognition(ctx context.Context) error
	StopRecognition()
	LatestRecognition() (recognition.Event, bool)
	RecognitionState() recognition.State
}

// AttendanceDependencies serves attendance queries and the relay.
type AttendanceDependencies interface {
	dedupe.Seen

	Location() *time.Location
	RecordsForDay(ctx context.Context, day time.Time) ([]model.AttendanceRecord, error)

	// AppendRecord persists a relayed record.
	AppendRecord(ctx context.Context, rec model.AttendanceRecord) error
	// EnqueuePending hands a record to device consumers. Returns false on backpressure.
	EnqueuePending(ctx context.Context, rec model.AttendanceRecord) bool
	NextPending(ctx context.Context) (model.AttendanceRecord, bool)
	AckPending(ctx context.Context, id string)
}

// ReportDependencies serves daily summaries.
type ReportDependencies interface {
	Location() *time.Location
	DailySummary(ctx context.Context, day time.Time) (report.Summary, error)
}

// FeedDependencies streams published recognition events.
type FeedDependencies interface {
	Subscribe() (<-chan recognition.Event, func())
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	IdentityDependencies
	RecognitionDependencies
	AttendanceDependencies
	ReportDependencies
	FeedDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	identitiesHandler  *IdentitiesHandler
	recognitionHandler *RecognitionHandler
	attendanceHandler  *AttendanceHandler
	reportsHandler     *ReportsHandler
	feedHandler        *FeedHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		identitiesHandler:  NewIdentitiesHandler(deps),
		recognitionHandler: NewRecognitionHandler(deps),
		attendanceHandler:  NewAttendanceHandler(deps),
		reportsHandler:     NewReportsHandler(deps),
		feedHandler:        NewFeedHandler(deps),
	}
}

// Register attaches all HTTP routes to mux. ctx bounds long-lived
// connections such as the recognition feed.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	s.feedHandler.baseCtx = ctx

	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/api/identities", MetricsMiddleware(s.identitiesHandler.HandleIdentities, "identities"))
	mux.HandleFunc("/api/recognition/start", MetricsMiddleware(s.recognitionHandler.HandleStart, "recognition_start"))
	mux.HandleFunc("/api/recognition/stop", MetricsMiddleware(s.recognitionHandler.HandleStop, "recognition_stop"))
	mux.HandleFunc("/api/recognition/latest", MetricsMiddleware(s.recognitionHandler.HandleLatest, "recognition_latest"))
	mux.HandleFunc("/api/attendance", MetricsMiddleware(s.attendanceHandler.HandleAttendance, "attendance"))
	mux.HandleFunc("/api/attendance/next", MetricsMiddleware(s.attendanceHandler.HandleNext, "attendance_next"))
	mux.HandleFunc("/api/attendance/ack", MetricsMiddleware(s.attendanceHandler.HandleAck, "attendance_ack"))
	mux.HandleFunc("/api/reports/today", MetricsMiddleware(s.reportsHandler.HandleToday, "reports_today"))
	mux.HandleFunc("/ws/recognitions", s.feedHandler.HandleFeed)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func methodNotAllowed(w http.ResponseWriter, op string, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
}

// parseDay reads ?date=YYYY-MM-DD in loc; a missing date means today.
func parseDay(r *http.Request, loc *time.Location) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return time.Now().In(loc), nil
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, err
	}
	return day, nil
}
