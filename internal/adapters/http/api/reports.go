package api

import (
	"net/http"
)

// ReportsHandler serves daily attendance summaries.
type ReportsHandler struct {
	deps ReportDependencies
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(deps ReportDependencies) *ReportsHandler {
	return &ReportsHandler{deps: deps}
}

// HandleToday handles GET /api/reports/today. An optional ?date= selects
// another day.
func (h *ReportsHandler) HandleToday(w http.ResponseWriter, r *http.Request) {
	const op = "api.report_today"
	if r.Method != http.MethodGet {
		methodNotAllowed(w, op, http.MethodGet)
		return
	}
	day, err := parseDay(r, h.deps.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	summary, err := h.deps.DailySummary(r.Context(), day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
