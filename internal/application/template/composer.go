package template

import (
	"log/slog"
	"time"

	"github.com/go-smart-notifications/internal/domain"
	"github.com/go-smart-notifications/internal/pkg/id"
)

// Composer renders templates into new PENDING notifications.
type Composer struct {
	clock  func() time.Time
	newID  func() string
	logger *slog.Logger
}

// NewComposer builds a composer. Nil arguments fall back to time.Now, id.New
// and slog.Default.
func NewComposer(clock func() time.Time, newID func() string, logger *slog.Logger) *Composer {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.New
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{clock: clock, newID: newID, logger: logger}
}

// Compose never fails: a template string that cannot be rendered is used
// verbatim.
func (c *Composer) Compose(tpl Template, userID string, data map[string]any) *domain.Notification {
	now := c.clock().UTC()
	return &domain.Notification{
		NotificationID:   c.newID(),
		UserID:           userID,
		TriggerType:      tpl.TriggerType,
		Title:            c.renderOrRaw("title", tpl.Title, data),
		Message:          c.renderOrRaw("message", tpl.Message, data),
		DeepLink:         c.renderOrRaw("deep_link", tpl.DeepLink, data),
		TriggerData:      copyData(data),
		Status:           domain.StatusPending,
		Priority:         tpl.Priority,
		NotificationType: tpl.NotificationType,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (c *Composer) renderOrRaw(field, tpl string, data map[string]any) string {
	out, err := Render(tpl, data)
	if err != nil {
		c.logger.Debug("template fallback to raw text", "field", field, "err", err)
		return tpl
	}
	return out
}

func copyData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
