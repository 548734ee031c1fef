package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-smart-notifications/internal/application/dedup"
	"github.com/go-smart-notifications/internal/application/template"
	"github.com/go-smart-notifications/internal/domain"
)

// DefaultDedupWindowHours is used when a caller passes a non-positive window.
const DefaultDedupWindowHours = 24

// Trigger is one event in a batch.
type Trigger struct {
	Type domain.TriggerType
	Data map[string]any
}

// Notifier hands a freshly stored notification to a delivery channel.
type Notifier interface {
	Notify(ctx context.Context, n *domain.Notification) error
}

// Result is the outcome of one trigger. Notification is nil when no template
// matched; Deduplicated is set when an existing notification was returned.
type Result struct {
	Notification *domain.Notification
	Deduplicated bool
}

type GenerationService interface {
	// Execute returns the notification for the trigger: an existing similar
	// one when present, otherwise a newly stored one. It returns nil when no
	// template matches.
	Execute(ctx context.Context, userID string, triggerType domain.TriggerType, data map[string]any, windowHours int) (*domain.Notification, error)
	// Evaluate is Execute that also reports whether the result was a repeat.
	Evaluate(ctx context.Context, userID string, triggerType domain.TriggerType, data map[string]any, windowHours int) (Result, error)
	ExecuteBatch(ctx context.Context, userID string, triggers []Trigger, windowHours int) ([]domain.Notification, error)
}

type generationService struct {
	catalog  *template.Catalog
	matcher  *dedup.Matcher
	composer *template.Composer
	store    domain.NotificationStore
	notifier Notifier
	logger   *slog.Logger
}

// NewGenerationService wires the pipeline. notifier may be nil.
func NewGenerationService(catalog *template.Catalog, matcher *dedup.Matcher, composer *template.Composer, store domain.NotificationStore, notifier Notifier, logger *slog.Logger) GenerationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &generationService{
		catalog:  catalog,
		matcher:  matcher,
		composer: composer,
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *generationService) Execute(ctx context.Context, userID string, triggerType domain.TriggerType, data map[string]any, windowHours int) (*domain.Notification, error) {
	res, err := s.Evaluate(ctx, userID, triggerType, data, windowHours)
	if err != nil {
		return nil, err
	}
	return res.Notification, nil
}

func (s *generationService) Evaluate(ctx context.Context, userID string, triggerType domain.TriggerType, data map[string]any, windowHours int) (Result, error) {
	if windowHours <= 0 {
		windowHours = DefaultDedupWindowHours
	}
	tpl, ok := s.catalog.FindMatching(triggerType, data)
	if !ok {
		s.logger.Debug("no template for trigger", "user_id", userID, "trigger_type", triggerType)
		return Result{}, nil
	}

	existing, err := s.matcher.FindSimilar(ctx, userID, triggerType, data, windowHours)
	if err != nil {
		return Result{}, fmt.Errorf("find similar: %w", err)
	}
	if existing != nil {
		s.logger.Info("notification deduplicated",
			"user_id", userID,
			"trigger_type", triggerType,
			"notification_id", existing.NotificationID,
		)
		return Result{Notification: existing, Deduplicated: true}, nil
	}

	n := s.composer.Compose(tpl, userID, data)
	if err := s.store.Save(ctx, n); err != nil {
		return Result{}, fmt.Errorf("save notification: %w", err)
	}
	s.logger.Info("notification created",
		"user_id", userID,
		"trigger_type", triggerType,
		"notification_id", n.NotificationID,
		"priority", n.Priority,
	)

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn("delivery failed", "notification_id", n.NotificationID, "err", err)
		}
	}
	return Result{Notification: n}, nil
}

// ExecuteBatch runs Execute for each trigger in order and collects every
// notification it returns, deduplicated ones included. The first error stops
// the batch; the notifications produced so far are returned with it.
func (s *generationService) ExecuteBatch(ctx context.Context, userID string, triggers []Trigger, windowHours int) ([]domain.Notification, error) {
	out := make([]domain.Notification, 0, len(triggers))
	for i, t := range triggers {
		n, err := s.Execute(ctx, userID, t.Type, t.Data, windowHours)
		if err != nil {
			return out, fmt.Errorf("trigger %d: %w", i, err)
		}
		if n != nil {
			out = append(out, *n)
		}
	}
	return out, nil
}
