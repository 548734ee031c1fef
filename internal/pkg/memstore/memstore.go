// Package memstore is an in-process implementation of the notification
// storage contract. It keeps the same semantics as the real backends and is
// used to exercise the router and services without external databases.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-smart-notifications/internal/domain"
)

type Store struct {
	mu    sync.Mutex
	items map[string]domain.Notification
	calls map[string]int
	fail  error
	delay time.Duration
	clock func() time.Time
}

var _ domain.NotificationStore = (*Store)(nil)

func New(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		items: make(map[string]domain.Notification),
		calls: make(map[string]int),
		clock: clock,
	}
}

// SetFailure makes every subsequent call return err until reset with nil.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// SetDelay makes every subsequent call sleep for d before answering.
func (s *Store) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Calls reports how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Len reports how many notifications are stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) enter(ctx context.Context, op string) error {
	s.mu.Lock()
	s.calls[op]++
	fail, delay := s.fail, s.delay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fail
}

func (s *Store) Save(ctx context.Context, n *domain.Notification) error {
	if err := s.enter(ctx, "save"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[n.NotificationID] = copyOf(*n)
	return nil
}

func (s *Store) GetByID(ctx context.Context, notificationID string) (*domain.Notification, error) {
	if err := s.enter(ctx, "get_by_id"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[notificationID]
	if !ok {
		return nil, nil
	}
	out := copyOf(n)
	return &out, nil
}

func (s *Store) ListForUser(ctx context.Context, userID string, filter domain.ListFilter) ([]domain.Notification, error) {
	if err := s.enter(ctx, "list_for_user"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Notification{}
	for _, n := range s.byUser(userID) {
		if filter.Accepts(&n) {
			out = append(out, n)
		}
		if len(out) == filter.EffectiveLimit() {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, notificationID string) (bool, error) {
	if err := s.enter(ctx, "mark_read"); err != nil {
		return false, err
	}
	return s.update(notificationID, func(n *domain.Notification) { n.IsRead = true }), nil
}

func (s *Store) Dismiss(ctx context.Context, notificationID string) (bool, error) {
	if err := s.enter(ctx, "dismiss"); err != nil {
		return false, err
	}
	return s.update(notificationID, func(n *domain.Notification) { n.Dismissed = true }), nil
}

func (s *Store) MarkAllRead(ctx context.Context, userID string) (int, error) {
	if err := s.enter(ctx, "mark_all_read"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock().UTC()
	count := 0
	for id, n := range s.items {
		if n.UserID != userID || n.IsRead || n.Dismissed {
			continue
		}
		n.IsRead = true
		n.UpdatedAt = now
		s.items[id] = n
		count++
	}
	return count, nil
}

func (s *Store) FindSimilar(ctx context.Context, q domain.SimilarQuery) (*domain.Notification, error) {
	if err := s.enter(ctx, "find_similar"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.FirstSimilar(s.byUser(q.UserID), q), nil
}

// update applies fn to a non-dismissed record and reports whether it did.
func (s *Store) update(notificationID string, fn func(*domain.Notification)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[notificationID]
	if !ok || n.Dismissed {
		return false
	}
	fn(&n)
	n.UpdatedAt = s.clock().UTC()
	s.items[notificationID] = n
	return true
}

// byUser returns copies of userID's notifications, newest first.
func (s *Store) byUser(userID string) []domain.Notification {
	var out []domain.Notification
	for _, n := range s.items {
		if n.UserID == userID {
			out = append(out, copyOf(n))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].NotificationID > out[j].NotificationID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func copyOf(n domain.Notification) domain.Notification {
	if n.TriggerData != nil {
		data := make(map[string]any, len(n.TriggerData))
		for k, v := range n.TriggerData {
			data[k] = v
		}
		n.TriggerData = data
	}
	if n.SentAt != nil {
		t := *n.SentAt
		n.SentAt = &t
	}
	return n
}
