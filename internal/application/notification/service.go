package notification

import (
	"context"
	"fmt"

	"github.com/go-smart-notifications/internal/domain"
)

// Service is the user's inbox: it reads and updates notifications on behalf
// of their owner.
type Service interface {
	List(ctx context.Context, userID string, filter domain.ListFilter) ([]domain.Notification, error)
	Get(ctx context.Context, notificationID, userID string) (*domain.Notification, error)
	MarkAsRead(ctx context.Context, notificationID, userID string) error
	Dismiss(ctx context.Context, notificationID, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

type service struct {
	store domain.NotificationStore
}

func NewService(store domain.NotificationStore) Service {
	return &service{store: store}
}

func (s *service) List(ctx context.Context, userID string, filter domain.ListFilter) ([]domain.Notification, error) {
	return s.store.ListForUser(ctx, userID, filter)
}

func (s *service) Get(ctx context.Context, notificationID, userID string) (*domain.Notification, error) {
	n, err := s.store.GetByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	if n.UserID != userID {
		return nil, fmt.Errorf("forbidden: %w", domain.ErrForbidden)
	}
	return n, nil
}

// MarkAsRead fails with ErrNotFound when the notification is gone or was
// dismissed.
func (s *service) MarkAsRead(ctx context.Context, notificationID, userID string) error {
	if _, err := s.Get(ctx, notificationID, userID); err != nil {
		return err
	}
	ok, err := s.store.MarkRead(ctx, notificationID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("notification %s is dismissed: %w", notificationID, domain.ErrNotFound)
	}
	return nil
}

func (s *service) Dismiss(ctx context.Context, notificationID, userID string) error {
	if _, err := s.Get(ctx, notificationID, userID); err != nil {
		return err
	}
	ok, err := s.store.Dismiss(ctx, notificationID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("notification %s is dismissed: %w", notificationID, domain.ErrNotFound)
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.store.MarkAllRead(ctx, userID)
}
