package domain

import (
	"context"
	"time"
)

// TriggerType is the event category that may warrant a notification.
type TriggerType string

const (
	TriggerPortfolioChange   TriggerType = "PORTFOLIO_CHANGE"
	TriggerRiskChange        TriggerType = "RISK_CHANGE"
	TriggerEducationalMoment TriggerType = "EDUCATIONAL_MOMENT"
	TriggerLearningStreak    TriggerType = "LEARNING_STREAK"
)

// Valid reports whether t is one of the known trigger types.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerPortfolioChange, TriggerRiskChange, TriggerEducationalMoment, TriggerLearningStreak:
		return true
	}
	return false
}

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Notification is a contextual message generated for one user from one trigger.
// Once Dismissed is set the read state can no longer change.
type Notification struct {
	NotificationID   string         `json:"id"`
	UserID           string         `json:"user_id"`
	TriggerType      TriggerType    `json:"trigger_type"`
	Title            string         `json:"title"`
	Message          string         `json:"message"`
	DeepLink         string         `json:"deep_link,omitempty"`
	TriggerData      map[string]any `json:"trigger_data,omitempty"`
	Status           Status         `json:"status"`
	IsRead           bool           `json:"is_read"`
	Dismissed        bool           `json:"dismissed"`
	Priority         Priority       `json:"priority"`
	NotificationType string         `json:"notification_type"`
	CreatedAt        time.Time      `json:"created"`
	UpdatedAt        time.Time      `json:"updated"`
	SentAt           *time.Time     `json:"sent_at,omitempty"`
}

// ListFilter narrows ListForUser results. A zero Limit means DefaultListLimit.
type ListFilter struct {
	Status           *Status
	Limit            int
	IncludeDismissed bool
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// EffectiveLimit clamps the filter limit to [1, MaxListLimit].
func (f ListFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	}
	return f.Limit
}

// Accepts reports whether n passes the status and dismissed filters.
func (f ListFilter) Accepts(n *Notification) bool {
	if n.Dismissed && !f.IncludeDismissed {
		return false
	}
	if f.Status != nil && n.Status != *f.Status {
		return false
	}
	return true
}

// SimilarQuery selects prior notifications that would make a new one a repeat.
type SimilarQuery struct {
	UserID      string
	TriggerType TriggerType
	TriggerData map[string]any
	Since       time.Time
}

// NotificationStore is the storage contract every backend implements and the
// router itself satisfies. Absence is reported as nil or false, never an error.
type NotificationStore interface {
	Save(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, notificationID string) (*Notification, error)
	ListForUser(ctx context.Context, userID string, filter ListFilter) ([]Notification, error)
	MarkRead(ctx context.Context, notificationID string) (bool, error)
	Dismiss(ctx context.Context, notificationID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
	FindSimilar(ctx context.Context, q SimilarQuery) (*Notification, error)
}
