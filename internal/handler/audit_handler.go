package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"ledger-core/internal/errors"
	"ledger-core/internal/service"
)

type AuditHandler struct {
	auditService *service.AuditService
}

func NewAuditHandler(auditService *service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) ListFingerprints(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, errors.ErrInvalidInput.WithDetails("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	entries, err := h.auditService.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *AuditHandler) GetFingerprint(w http.ResponseWriter, r *http.Request) {
	entry, err := h.auditService.Find(r.Context(), mux.Vars(r)["transaction_id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

func (h *AuditHandler) VerifyFingerprint(w http.ResponseWriter, r *http.Request) {
	result, err := h.auditService.Verify(r.Context(), mux.Vars(r)["transaction_id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
