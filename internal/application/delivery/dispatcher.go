package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-smart-notifications/internal/domain"
)

// Message is what a Publisher puts on the wire.
type Message struct {
	UserID   string
	Subject  string
	Body     []byte
	Priority domain.Priority
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// StatusWriter persists the delivery outcome.
type StatusWriter interface {
	Save(ctx context.Context, n *domain.Notification) error
}

type envelope struct {
	NotificationID   string          `json:"notification_id"`
	UserID           string          `json:"user_id"`
	TriggerType      string          `json:"trigger_type"`
	Title            string          `json:"title"`
	Message          string          `json:"message"`
	DeepLink         string          `json:"deep_link,omitempty"`
	Priority         domain.Priority `json:"priority"`
	NotificationType string          `json:"notification_type"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Dispatcher publishes pending notifications and records whether they went
// out.
type Dispatcher struct {
	publisher Publisher
	store     StatusWriter
	clock     func() time.Time
	logger    *slog.Logger
}

func NewDispatcher(publisher Publisher, store StatusWriter, clock func() time.Time, logger *slog.Logger) *Dispatcher {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{publisher: publisher, store: store, clock: clock, logger: logger}
}

// Notify publishes n and moves it to SENT or FAILED. Only PENDING
// notifications are published. The publish error, if any, is returned after
// the FAILED status has been stored.
func (d *Dispatcher) Notify(ctx context.Context, n *domain.Notification) error {
	if n.Status != domain.StatusPending {
		return nil
	}
	body, err := json.Marshal(envelope{
		NotificationID:   n.NotificationID,
		UserID:           n.UserID,
		TriggerType:      string(n.TriggerType),
		Title:            n.Title,
		Message:          n.Message,
		DeepLink:         n.DeepLink,
		Priority:         n.Priority,
		NotificationType: n.NotificationType,
		CreatedAt:        n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	pubErr := d.publisher.Publish(ctx, Message{
		UserID:   n.UserID,
		Subject:  n.Title,
		Body:     body,
		Priority: n.Priority,
	})
	now := d.clock().UTC()
	if pubErr != nil {
		n.Status = domain.StatusFailed
	} else {
		n.Status = domain.StatusSent
		n.SentAt = &now
	}
	n.UpdatedAt = now

	if err := d.store.Save(ctx, n); err != nil {
		d.logger.Error("store delivery status", "notification_id", n.NotificationID, "status", n.Status, "err", err)
		if pubErr == nil {
			return fmt.Errorf("store delivery status: %w", err)
		}
	}
	if pubErr != nil {
		return fmt.Errorf("publish notification: %w", pubErr)
	}
	d.logger.Debug("notification sent", "notification_id", n.NotificationID, "user_id", n.UserID)
	return nil
}
