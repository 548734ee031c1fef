package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-smart-notifications/internal/application/notification"
	"github.com/go-smart-notifications/internal/domain"
	jwtinfra "github.com/go-smart-notifications/internal/infrastructure/jwt"
	"github.com/go-smart-notifications/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockInbox struct{ mock.Mock }

func (m *mockInbox) List(ctx context.Context, userID string, filter domain.ListFilter) ([]domain.Notification, error) {
	args := m.Called(ctx, userID, filter)
	list, _ := args.Get(0).([]domain.Notification)
	return list, args.Error(1)
}

func (m *mockInbox) Get(ctx context.Context, notificationID, userID string) (*domain.Notification, error) {
	args := m.Called(ctx, notificationID, userID)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInbox) MarkAsRead(ctx context.Context, notificationID, userID string) error {
	return m.Called(ctx, notificationID, userID).Error(0)
}

func (m *mockInbox) Dismiss(ctx context.Context, notificationID, userID string) error {
	return m.Called(ctx, notificationID, userID).Error(0)
}

func (m *mockInbox) MarkAllRead(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type mockGenerator struct{ mock.Mock }

func (m *mockGenerator) Execute(ctx context.Context, userID string, tt domain.TriggerType, data map[string]any, window int) (*domain.Notification, error) {
	args := m.Called(ctx, userID, tt, data, window)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGenerator) Evaluate(ctx context.Context, userID string, tt domain.TriggerType, data map[string]any, window int) (notification.Result, error) {
	args := m.Called(ctx, userID, tt, data, window)
	return args.Get(0).(notification.Result), args.Error(1)
}

func (m *mockGenerator) ExecuteBatch(ctx context.Context, userID string, triggers []notification.Trigger, window int) ([]domain.Notification, error) {
	args := m.Called(ctx, userID, triggers, window)
	list, _ := args.Get(0).([]domain.Notification)
	return list, args.Error(1)
}

type mockFlags struct{ mock.Mock }

func (m *mockFlags) ListFlags(ctx context.Context) []domain.FeatureFlag {
	return m.Called(ctx).Get(0).([]domain.FeatureFlag)
}

func (m *mockFlags) UpdateFlag(ctx context.Context, name string, enabled bool, cfg map[string]any) (*domain.FeatureFlag, error) {
	args := m.Called(ctx, name, enabled, cfg)
	if f, _ := args.Get(0).(*domain.FeatureFlag); f != nil {
		return f, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockFlags) Restore(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- helpers ---

func asUser(r *http.Request, userID, role string) *http.Request {
	return r.WithContext(middleware.WithClaims(r.Context(), &jwtinfra.Claims{UserID: userID, Role: role}))
}

// withChiParam injects a chi URL param into the request context.
func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

var created = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// --- status mapping ---

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("x: %w", domain.ErrNotFound):           http.StatusNotFound,
		fmt.Errorf("x: %w", domain.ErrForbidden):          http.StatusForbidden,
		fmt.Errorf("x: %w", domain.ErrBadRequest):         http.StatusBadRequest,
		fmt.Errorf("x: %w", domain.ErrConfiguration):      http.StatusUnprocessableEntity,
		fmt.Errorf("x: %w", domain.ErrBackendUnavailable): http.StatusServiceUnavailable,
		errors.New("boom"): http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

// --- notifications ---

func TestList_MissingClaims(t *testing.T) {
	h := NewNotificationHandler(&mockInbox{})
	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/v1/notifications", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestList_ParsesFilter(t *testing.T) {
	svc := &mockInbox{}
	svc.On("List", mock.Anything, "u1", mock.MatchedBy(func(f domain.ListFilter) bool {
		return f.Status != nil && *f.Status == domain.StatusSent && f.Limit == 10 && f.IncludeDismissed
	})).Return([]domain.Notification{{NotificationID: "n1"}}, nil)
	h := NewNotificationHandler(svc)

	r := asUser(httptest.NewRequest(http.MethodGet, "/v1/notifications?status=sent&limit=10&include_dismissed=true", nil), "u1", domain.RoleUser)
	rr := httptest.NewRecorder()
	h.List(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp NotificationListEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)
	svc.AssertExpectations(t)
}

func TestList_BadQuery(t *testing.T) {
	h := NewNotificationHandler(&mockInbox{})
	for _, q := range []string{"status=unknown", "limit=abc", "include_dismissed=maybe"} {
		r := asUser(httptest.NewRequest(http.MethodGet, "/v1/notifications?"+q, nil), "u1", domain.RoleUser)
		rr := httptest.NewRecorder()
		h.List(rr, r)
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestGet_Forbidden(t *testing.T) {
	svc := &mockInbox{}
	svc.On("Get", mock.Anything, "n1", "u1").Return(nil, fmt.Errorf("forbidden: %w", domain.ErrForbidden))
	h := NewNotificationHandler(svc)

	r := withChiParam(httptest.NewRequest(http.MethodGet, "/v1/notifications/n1", nil), "id", "n1")
	rr := httptest.NewRecorder()
	h.Get(rr, asUser(r, "u1", domain.RoleUser))

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMarkAsRead_DismissedIsNotFound(t *testing.T) {
	svc := &mockInbox{}
	svc.On("MarkAsRead", mock.Anything, "n1", "u1").Return(fmt.Errorf("dismissed: %w", domain.ErrNotFound))
	h := NewNotificationHandler(svc)

	r := withChiParam(httptest.NewRequest(http.MethodPut, "/v1/notifications/n1/read", nil), "id", "n1")
	rr := httptest.NewRecorder()
	h.MarkAsRead(rr, asUser(r, "u1", domain.RoleUser))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDismiss_OK(t *testing.T) {
	svc := &mockInbox{}
	svc.On("Dismiss", mock.Anything, "n1", "u1").Return(nil)
	h := NewNotificationHandler(svc)

	r := withChiParam(httptest.NewRequest(http.MethodPut, "/v1/notifications/n1/dismiss", nil), "id", "n1")
	rr := httptest.NewRecorder()
	h.Dismiss(rr, asUser(r, "u1", domain.RoleUser))

	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestMarkAllRead_ReturnsCount(t *testing.T) {
	svc := &mockInbox{}
	svc.On("MarkAllRead", mock.Anything, "u1").Return(3, nil)
	h := NewNotificationHandler(svc)

	rr := httptest.NewRecorder()
	h.MarkAllRead(rr, asUser(httptest.NewRequest(http.MethodPut, "/v1/notifications/read-all", nil), "u1", domain.RoleUser))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp MarkAllReadEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 3, resp.Updated)
}

// --- triggers ---

func TestCreateTrigger_InvalidBody(t *testing.T) {
	h := NewTriggerHandler(&mockGenerator{}, 24)
	r := asUser(httptest.NewRequest(http.MethodPost, "/v1/notifications/triggers", bytes.NewBufferString("not-json")), "u1", domain.RoleUser)
	rr := httptest.NewRecorder()
	h.Create(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateTrigger_UnknownType(t *testing.T) {
	h := NewTriggerHandler(&mockGenerator{}, 24)
	body := jsonBody(t, domain.TriggerRequest{TriggerType: "MARKET_CRASH"})
	r := asUser(httptest.NewRequest(http.MethodPost, "/v1/notifications/triggers", body), "u1", domain.RoleUser)
	rr := httptest.NewRecorder()
	h.Create(rr, r)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestCreateTrigger_Created(t *testing.T) {
	svc := &mockGenerator{}
	n := &domain.Notification{NotificationID: "n1", UserID: "u1", Title: "TSLA moved 8.5% today", CreatedAt: created}
	svc.On("Evaluate", mock.Anything, "u1", domain.TriggerPortfolioChange, mock.MatchedBy(func(d map[string]any) bool {
		return d["stock_symbol"] == "TSLA" && d["change_percent"] == json.Number("8.5")
	}), 24).Return(notification.Result{Notification: n}, nil)
	h := NewTriggerHandler(svc, 24)

	body := bytes.NewBufferString(`{"trigger_type":"PORTFOLIO_CHANGE","trigger_data":{"stock_symbol":"TSLA","change_percent":8.5,"min_abs_change_percent":8.5}}`)
	r := asUser(httptest.NewRequest(http.MethodPost, "/v1/notifications/triggers", body), "u1", domain.RoleUser)
	rr := httptest.NewRecorder()
	h.Create(rr, r)

	assert.Equal(t, http.StatusCreated, rr.Code)
	var resp TriggerEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.Created)
	assert.Equal(t, "n1", resp.Notification.NotificationID)
	svc.AssertExpectations(t)
}

func TestCreateTrigger_DeduplicatedAndCustomWindow(t *testing.T) {
	svc := &mockGenerator{}
	n := &domain.Notification{NotificationID: "n1", UserID: "u1"}
	svc.On("Evaluate", mock.Anything, "u1", domain.TriggerLearningStreak, mock.Anything, 48).
		Return(notification.Result{Notification: n, Deduplicated: true}, nil)
	h := NewTriggerHandler(svc, 24)

	body := jsonBody(t, domain.TriggerRequest{TriggerType: "LEARNING_STREAK", TriggerData: map[string]any{"streak_days": 7}, DedupWindowHours: 48})
	r := asUser(httptest.NewRequest(http.MethodPost, "/v1/notifications/triggers", body), "u1", domain.RoleUser)
	rr := httptest.NewRecorder()
	h.Create(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp TriggerEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.False(t, resp.Created)
	svc.AssertExpectations(t)
}

func TestCreateTrigger_NoTemplate(t *testing.T) {
	svc := &mockGenerator{}
	svc.On("Evaluate", mock.Anything, "u1", domain.TriggerLearningStreak, mock.Anything, 24).Return(notification.Result{}, nil)
	h := NewTriggerHandler(svc, 24)

	body := jsonBody(t, domain.TriggerRequest{TriggerType: "LEARNING_STREAK", TriggerData: map[string]any{"streak_days": 1}})
	r := asUser(httptest.NewRequest(http.MethodPost, "/v1/notifications/triggers", body), "u1", domain.RoleUser)
	rr := httptest.NewRecorder()
	h.Create(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp TriggerEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Nil(t, resp.Notification)
}

func TestCreateTrigger_ForAnotherUser(t *testing.T) {
	body := func() *bytes.Reader {
		return jsonBody(t, domain.TriggerRequest{UserID: "u2", TriggerType: "EDUCATIONAL_MOMENT", TriggerData: map[string]any{"topic": "bonds"}})
	}

	h := NewTriggerHandler(&mockGenerator{}, 24)
	rr := httptest.NewRecorder()
	h.Create(rr, asUser(httptest.NewRequest(http.MethodPost, "/", body()), "u1", domain.RoleUser))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	svc := &mockGenerator{}
	svc.On("Evaluate", mock.Anything, "u2", domain.TriggerEducationalMoment, mock.Anything, 24).
		Return(notification.Result{Notification: &domain.Notification{NotificationID: "n9", UserID: "u2"}}, nil)
	h = NewTriggerHandler(svc, 24)
	rr = httptest.NewRecorder()
	h.Create(rr, asUser(httptest.NewRequest(http.MethodPost, "/", body()), "notifier-svc", domain.RoleService))
	assert.Equal(t, http.StatusCreated, rr.Code)
	svc.AssertExpectations(t)
}

func TestBatch_PartialFailure(t *testing.T) {
	svc := &mockGenerator{}
	svc.On("ExecuteBatch", mock.Anything, "u1", mock.MatchedBy(func(ts []notification.Trigger) bool {
		return len(ts) == 2 && ts[0].Type == domain.TriggerRiskChange && ts[1].Type == domain.TriggerEducationalMoment
	}), 24).Return([]domain.Notification{{NotificationID: "n1"}}, fmt.Errorf("trigger 1: %w", domain.ErrBackendUnavailable))
	h := NewTriggerHandler(svc, 24)

	body := jsonBody(t, domain.BatchTriggerRequest{Triggers: []domain.BatchTriggerItem{
		{TriggerType: "RISK_CHANGE", TriggerData: map[string]any{"risk_increased": true}},
		{TriggerType: "EDUCATIONAL_MOMENT", TriggerData: map[string]any{"topic": "etf"}},
	}})
	rr := httptest.NewRecorder()
	h.Batch(rr, asUser(httptest.NewRequest(http.MethodPost, "/", body), "u1", domain.RoleUser))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var resp BatchEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)
	assert.NotEmpty(t, resp.Error)
}

func TestBatch_Empty(t *testing.T) {
	h := NewTriggerHandler(&mockGenerator{}, 24)
	rr := httptest.NewRecorder()
	h.Batch(rr, asUser(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"triggers":[]}`)), "u1", domain.RoleUser))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

// --- flags ---

func TestFlagsList(t *testing.T) {
	svc := &mockFlags{}
	svc.On("ListFlags", mock.Anything).Return([]domain.FeatureFlag{{Name: "dual_write"}})
	h := NewFlagHandler(svc)

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/v1/flags", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp FlagsEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "dual_write", resp.Data[0].Name)
}

func TestFlagsUpdate(t *testing.T) {
	svc := &mockFlags{}
	svc.On("UpdateFlag", mock.Anything, "backend_rollout", true, mock.MatchedBy(func(cfg map[string]any) bool {
		return cfg["rollout_percentage"] == json.Number("25")
	})).Return(&domain.FeatureFlag{Name: "backend_rollout", Enabled: true}, nil)
	h := NewFlagHandler(svc)

	r := withChiParam(httptest.NewRequest(http.MethodPut, "/v1/flags/backend_rollout",
		bytes.NewBufferString(`{"enabled":true,"config":{"rollout_percentage":25}}`)), "name", "backend_rollout")
	rr := httptest.NewRecorder()
	h.Update(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestFlagsUpdate_RejectedConfig(t *testing.T) {
	svc := &mockFlags{}
	svc.On("UpdateFlag", mock.Anything, "backend_rollout", true, mock.Anything).
		Return(nil, fmt.Errorf("rollout_percentage out of range: %w", domain.ErrConfiguration))
	h := NewFlagHandler(svc)

	r := withChiParam(httptest.NewRequest(http.MethodPut, "/v1/flags/backend_rollout",
		bytes.NewBufferString(`{"enabled":true,"config":{"rollout_percentage":250}}`)), "name", "backend_rollout")
	rr := httptest.NewRecorder()
	h.Update(rr, r)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestFlagsUpdate_MissingEnabled(t *testing.T) {
	h := NewFlagHandler(&mockFlags{})
	r := withChiParam(httptest.NewRequest(http.MethodPut, "/v1/flags/dual_write", bytes.NewBufferString(`{}`)), "name", "dual_write")
	rr := httptest.NewRecorder()
	h.Update(rr, r)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

// --- health ---

func TestHealth(t *testing.T) {
	h := NewHealthHandler(map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rr := httptest.NewRecorder()
	h.Ping(rr, withChiParam(httptest.NewRequest(http.MethodGet, "/v1/health-check/ping", nil), "action", "ping"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.Ping(rr, withChiParam(httptest.NewRequest(http.MethodGet, "/v1/health-check/ready", nil), "action", "ready"))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["postgres"])

	rr = httptest.NewRecorder()
	h.Ping(rr, withChiParam(httptest.NewRequest(http.MethodGet, "/v1/health-check/nope", nil), "action", "nope"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
