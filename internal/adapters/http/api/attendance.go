package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/facecheck/internal/adapters/repository"
	"github.com/okian/facecheck/internal/adapters/sink"
	"github.com/okian/facecheck/internal/domain/model"
	"github.com/okian/facecheck/pkg/logger"
	"github.com/okian/facecheck/pkg/metrics"
	"github.com/okian/facecheck/pkg/validator"
)

const maxRelayBytes = 64 << 10

// relayRequest mirrors the OpenAPI schema for POST /api/attendance. The
// field names are the ones remote recognizers already send.
type relayRequest struct {
	ID           string  `json:"id" conform:"trim" validate:"required,max=100"`
	AttendeeID   string  `json:"attendeeId" conform:"trim" validate:"required,max=100"`
	AttendeeName string  `json:"attendeeName" conform:"trim" validate:"required,max=200"`
	Timestamp    string  `json:"timestamp" conform:"trim" validate:"required,rfc3339"`
	Confidence   float64 `json:"confidence" validate:"gte=0,lte=1"`
	SessionType  string  `json:"sessionType" conform:"trim,lower" validate:"omitempty,oneof=check-in session break check-out"`
}

func (req *relayRequest) record() (model.AttendanceRecord, error) {
	ts, err := time.Parse(time.RFC3339Nano, req.Timestamp)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	session := model.SessionCheckIn
	if req.SessionType != "" {
		if session, err = model.ParseSessionType(req.SessionType); err != nil {
			return model.AttendanceRecord{}, err
		}
	}
	return model.AttendanceRecord{
		ID:           req.ID,
		IdentityID:   req.AttendeeID,
		IdentityName: req.AttendeeName,
		Timestamp:    ts,
		Confidence:   req.Confidence,
		SessionType:  session,
	}, nil
}

type ackRequest struct {
	ID string `json:"id" conform:"trim" validate:"required"`
}

type relayResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	Queued    bool   `json:"queued"`
}

type attendanceResponse struct {
	Date    string                   `json:"date"`
	Count   int                      `json:"count"`
	Records []model.AttendanceRecord `json:"records"`
}

// AttendanceHandler serves attendance queries and the device relay.
type AttendanceHandler struct {
	deps   AttendanceDependencies
	logger logger.Logger
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(deps AttendanceDependencies) *AttendanceHandler {
	return &AttendanceHandler{deps: deps, logger: logger.Get().Named("api")}
}

// HandleAttendance handles GET (records of a day) and POST (relay ingest)
// on /api/attendance.
func (h *AttendanceHandler) HandleAttendance(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.relay(w, r)
	default:
		methodNotAllowed(w, "api.attendance", http.MethodGet, http.MethodPost)
	}
}

func (h *AttendanceHandler) list(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_attendance"
	loc := h.deps.Location()
	day, err := parseDay(r, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	recs, err := h.deps.RecordsForDay(r.Context(), day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
		return
	}
	if recs == nil {
		recs = []model.AttendanceRecord{}
	}
	writeJSON(w, http.StatusOK, attendanceResponse{
		Date:    model.DayKey(day, loc),
		Count:   len(recs),
		Records: recs,
	})
}

// relay ingests a record produced elsewhere: idempotent by id, persisted,
// then queued for device consumers.
func (h *AttendanceHandler) relay(w http.ResponseWriter, r *http.Request) {
	const op = "api.relay_attendance"
	ctx := r.Context()

	var req relayRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRelayBytes)).Decode(&req); err != nil {
		metrics.RecordRelayIngest("bad_request")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := validator.Get().Validate(&req); err != nil {
		metrics.RecordRelayIngest("bad_request")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	rec, err := req.record()
	if err != nil {
		metrics.RecordRelayIngest("bad_request")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	// Idempotency check - mark as seen first
	if h.deps.SeenAndRecord(ctx, rec.ID) {
		metrics.RecordRelayIngest("duplicate")
		writeJSON(w, http.StatusOK, relayResponse{Success: true, Status: "duplicate", Duplicate: true})
		return
	}

	if err := h.deps.AppendRecord(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateRecord) {
			metrics.RecordRelayIngest("duplicate")
			writeJSON(w, http.StatusOK, relayResponse{Success: true, Status: "duplicate", Duplicate: true})
			return
		}
		if errors.Is(err, repository.ErrAlreadyCheckedIn) {
			metrics.RecordRelayIngest("already_recorded")
			writeJSON(w, http.StatusOK, relayResponse{Success: true, Status: "already_recorded", Duplicate: true})
			return
		}
		// Forget the id so the sender can retry.
		h.deps.Unrecord(ctx, rec.ID)
		metrics.RecordRelayIngest("error")
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
		return
	}

	queued := h.deps.EnqueuePending(ctx, rec)
	if !queued {
		h.logger.Warn(ctx, "relay pending queue full; record stored but not queued", logger.String("record", rec.ID))
	}
	metrics.RecordRelayIngest("accepted")
	writeJSON(w, http.StatusCreated, relayResponse{Success: true, Status: "accepted", Queued: queued})
}

// HandleNext handles GET /api/attendance/next: pop one pending record, or
// 204 when there is none.
func (h *AttendanceHandler) HandleNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "api.attendance_next", http.MethodGet)
		return
	}
	rec, ok := h.deps.NextPending(r.Context())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, sink.PayloadOf(rec))
}

// HandleAck handles POST /api/attendance/ack. Records leave the queue when
// fetched, so the ack is only logged.
func (h *AttendanceHandler) HandleAck(w http.ResponseWriter, r *http.Request) {
	const op = "api.attendance_ack"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, op, http.MethodPost)
		return
	}
	var req ackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRelayBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := validator.Get().Validate(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	h.deps.AckPending(r.Context(), req.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
