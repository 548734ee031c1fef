package handler

import (
	"net/http"

	"github.com/go-smart-notifications/internal/application/notification"
	"github.com/go-smart-notifications/internal/domain"
	jwtinfra "github.com/go-smart-notifications/internal/infrastructure/jwt"
	"github.com/go-smart-notifications/internal/pkg/validate"
	"github.com/go-smart-notifications/internal/transport/http/middleware"
)

// TriggerHandler turns incoming events into notifications.
type TriggerHandler struct {
	svc           notification.GenerationService
	defaultWindow int
}

func NewTriggerHandler(svc notification.GenerationService, defaultWindowHours int) *TriggerHandler {
	return &TriggerHandler{svc: svc, defaultWindow: defaultWindowHours}
}

func (h *TriggerHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.TriggerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	userID, ok := h.target(w, claims, req.UserID)
	if !ok {
		return
	}

	res, err := h.svc.Evaluate(r.Context(), userID, domain.TriggerType(req.TriggerType), req.TriggerData, h.window(req.DedupWindowHours))
	if err != nil {
		httpError(w, err)
		return
	}
	switch {
	case res.Notification == nil:
		writeJSON(w, http.StatusOK, TriggerEnvelope{Message: "no notification for this trigger"})
	case res.Deduplicated:
		writeJSON(w, http.StatusOK, TriggerEnvelope{Notification: res.Notification, Message: "similar notification already exists"})
	default:
		writeJSON(w, http.StatusCreated, TriggerEnvelope{Notification: res.Notification, Created: true})
	}
}

func (h *TriggerHandler) Batch(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.BatchTriggerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	userID, ok := h.target(w, claims, req.UserID)
	if !ok {
		return
	}

	triggers := make([]notification.Trigger, len(req.Triggers))
	for i, t := range req.Triggers {
		triggers[i] = notification.Trigger{Type: domain.TriggerType(t.TriggerType), Data: t.TriggerData}
	}
	out, err := h.svc.ExecuteBatch(r.Context(), userID, triggers, h.window(req.DedupWindowHours))
	if err != nil {
		writeJSON(w, statusFor(err), BatchEnvelope{Data: out, Count: len(out), Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, BatchEnvelope{Data: out, Count: len(out)})
}

// target resolves whose inbox the trigger is for.
func (h *TriggerHandler) target(w http.ResponseWriter, claims *jwtinfra.Claims, requested string) (string, bool) {
	if requested == "" || requested == claims.UserID {
		return claims.UserID, true
	}
	if claims.Role == domain.RoleService || claims.Role == domain.RoleAdmin {
		return requested, true
	}
	writeError(w, http.StatusForbidden, "cannot raise triggers for another user")
	return "", false
}

func (h *TriggerHandler) window(requested int) int {
	if requested > 0 {
		return requested
	}
	return h.defaultWindow
}
