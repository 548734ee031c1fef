package dedup

import (
	"context"
	"time"

	"github.com/go-smart-notifications/internal/domain"
)

// SimilarFinder is the slice of the storage contract the matcher consults.
type SimilarFinder interface {
	FindSimilar(ctx context.Context, q domain.SimilarQuery) (*domain.Notification, error)
}

// Matcher answers "is this trigger a repeat of something the user was
// already told about?".
type Matcher struct {
	store SimilarFinder
	clock func() time.Time
}

func NewMatcher(store SimilarFinder, clock func() time.Time) *Matcher {
	if clock == nil {
		clock = time.Now
	}
	return &Matcher{store: store, clock: clock}
}

// FindSimilar returns the most recent non-dismissed notification for the same
// user and event created within the trailing withinHours, or nil.
func (m *Matcher) FindSimilar(ctx context.Context, userID string, triggerType domain.TriggerType, data map[string]any, withinHours int) (*domain.Notification, error) {
	return m.store.FindSimilar(ctx, domain.SimilarQuery{
		UserID:      userID,
		TriggerType: triggerType,
		TriggerData: data,
		Since:       Since(m.clock(), withinHours),
	})
}

// Since is the start of the dedup window ending at now, in UTC.
func Since(now time.Time, withinHours int) time.Time {
	return domain.NormalizeTime(now).Add(-time.Duration(withinHours) * time.Hour)
}
