package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/facecheck/internal/adapters/vision"
	"github.com/okian/facecheck/internal/domain/model"
	"github.com/okian/facecheck/internal/domain/registry"
)

const maxRegistrationBytes = 16 << 20

// registerRequest is the body of POST /api/identities. Photo is optional
// base64 image data; without it the live camera is sampled.
type registerRequest struct {
	registry.Registration
	Photo []byte `json:"photo,omitempty"`
}

type identitiesResponse struct {
	Count      int             `json:"count"`
	Identities []model.Profile `json:"identities"`
}

// IdentitiesHandler handles identity registration and listing.
type IdentitiesHandler struct {
	deps IdentityDependencies
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(deps IdentityDependencies) *IdentitiesHandler {
	return &IdentitiesHandler{deps: deps}
}

// HandleIdentities handles GET and POST /api/identities.
func (h *IdentitiesHandler) HandleIdentities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w)
	case http.MethodPost:
		h.register(w, r)
	default:
		methodNotAllowed(w, "api.identities", http.MethodGet, http.MethodPost)
	}
}

func (h *IdentitiesHandler) list(w http.ResponseWriter) {
	ids := h.deps.Identities()
	out := identitiesResponse{Count: len(ids), Identities: make([]model.Profile, 0, len(ids))}
	for _, id := range ids {
		out.Identities = append(out.Identities, id.Profile())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *IdentitiesHandler) register(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_identity"

	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRegistrationBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	id, err := h.deps.RegisterIdentity(r.Context(), req.Registration, req.Photo)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, id.Profile())
	case errors.Is(err, registry.ErrInvalidRegistration):
		writeError(w, http.StatusBadRequest, "invalid_registration", Wrap(op, err))
	case errors.Is(err, vision.ErrNotImage):
		writeError(w, http.StatusBadRequest, "invalid_photo", Wrap(op, err))
	case errors.Is(err, registry.ErrDuplicateID):
		writeError(w, http.StatusConflict, "duplicate_id", Wrap(op, err))
	case errors.Is(err, registry.ErrNoFaceDetected):
		writeError(w, http.StatusUnprocessableEntity, "no_face_detected", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
	}
}
