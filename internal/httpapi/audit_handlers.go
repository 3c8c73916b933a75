package httpapi

import (
	"net/http"
	"strconv"

	"civium.org/internal/audit"
)

type auditListResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Events  []audit.Event `json:"events"`
}

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if a.auditLog == nil {
		writeFailure(w, http.StatusNotImplemented, codeInternal, "audit store is not configured")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 1 || val > 1000 {
			writeFailure(w, http.StatusBadRequest, codeValidation, "limit must be between 1 and 1000")
			return
		}
		limit = val
	}

	events, err := a.auditLog.ListEvents(r.Context(), limit)
	if err != nil {
		a.internalError(w, r, "list audit events", err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, auditListResponse{
		Success: true,
		Message: "audit events",
		Events:  events,
	})
}
