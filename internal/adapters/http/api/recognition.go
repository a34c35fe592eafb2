package api

import (
	"errors"
	"net/http"

	"github.com/okian/facecheck/internal/recognition"
)

type stateResponse struct {
	State string `json:"state"`
}

type latestResponse struct {
	State string             `json:"state"`
	Event *recognition.Event `json:"event"`
}

// RecognitionHandler starts, stops and inspects the recognition loop.
type RecognitionHandler struct {
	deps RecognitionDependencies
}

// NewRecognitionHandler creates a new recognition handler.
func NewRecognitionHandler(deps RecognitionDependencies) *RecognitionHandler {
	return &RecognitionHandler{deps: deps}
}

// HandleStart handles POST /api/recognition/start.
func (h *RecognitionHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.recognition_start"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, op, http.MethodPost)
		return
	}

	err := h.deps.StartRecognition(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, stateResponse{State: h.deps.RecognitionState().String()})
	case errors.Is(err, recognition.ErrNoRegistry):
		writeError(w, http.StatusConflict, "no_registry", Wrap(op, err))
	case errors.Is(err, recognition.ErrSourceNotReady):
		writeError(w, http.StatusServiceUnavailable, "camera_not_ready", Wrap(op, err))
	case errors.Is(err, recognition.ErrStartAborted):
		writeError(w, http.StatusConflict, "start_aborted", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
	}
}

// HandleStop handles POST /api/recognition/stop. Stopping an idle loop is fine.
func (h *RecognitionHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "api.recognition_stop", http.MethodPost)
		return
	}
	h.deps.StopRecognition()
	writeJSON(w, http.StatusOK, stateResponse{State: h.deps.RecognitionState().String()})
}

// HandleLatest handles GET /api/recognition/latest.
func (h *RecognitionHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "api.recognition_latest", http.MethodGet)
		return
	}
	out := latestResponse{State: h.deps.RecognitionState().String()}
	if ev, ok := h.deps.LatestRecognition(); ok {
		out.Event = &ev
	}
	writeJSON(w, http.StatusOK, out)
}
