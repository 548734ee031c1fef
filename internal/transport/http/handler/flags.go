package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-smart-notifications/internal/application/rollout"
	"github.com/go-smart-notifications/internal/domain"
	"github.com/go-smart-notifications/internal/pkg/validate"
)

// FlagHandler exposes the storage feature flags to operators.
type FlagHandler struct {
	svc rollout.Service
}

func NewFlagHandler(svc rollout.Service) *FlagHandler {
	return &FlagHandler{svc: svc}
}

func (h *FlagHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, FlagsEnvelope{Data: h.svc.ListFlags(r.Context())})
}

// Update replaces the enabled state and merges the given config keys.
func (h *FlagHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.FlagUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	f, err := h.svc.UpdateFlag(r.Context(), chi.URLParam(r, "name"), *req.Enabled, req.Config)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}
