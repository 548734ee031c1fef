package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-smart-notifications/internal/application/rollout"
	"github.com/go-smart-notifications/internal/domain"
	"go.opentelemetry.io/otel/metric"
)

// Decider is the part of the rollout engine the router consults on every call.
type Decider interface {
	SelectBackend(userID string) domain.Backend
	DualWriteEnabled() bool
	AutoMigrationEnabled() bool
	Monitoring() rollout.Monitoring
}

type Options struct {
	QueueSize     int
	MirrorTimeout time.Duration
	Logger        *slog.Logger
	Meter         metric.Meter
	Clock         func() time.Time
}

// SmartRepository implements the notification storage contract on top of
// two backends, sending each user's traffic to the backend the rollout
// engine picks and mirroring writes to the other one when dual-write is on.
// There is no cross-backend transaction: mirrors are best effort.
type SmartRepository struct {
	stores  map[domain.Backend]domain.NotificationStore
	engine  Decider
	logger  *slog.Logger
	metrics *instruments
	mirror  *mirrorQueue
	now     func() time.Time
}

var _ domain.NotificationStore = (*SmartRepository)(nil)

// NewSmartRepository starts the mirror worker; call Close to drain it.
func NewSmartRepository(a, b domain.NotificationStore, engine Decider, opts Options) *SmartRepository {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.MirrorTimeout <= 0 {
		opts.MirrorTimeout = 3 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	r := &SmartRepository{
		stores: map[domain.Backend]domain.NotificationStore{
			domain.BackendA: a,
			domain.BackendB: b,
		},
		engine:  engine,
		logger:  opts.Logger.With("component", "notification_router"),
		metrics: newInstruments(opts.Meter),
		now:     opts.Clock,
	}
	r.mirror = newMirrorQueue(opts.QueueSize, opts.MirrorTimeout, r.logger, r.mirrorFailed)
	return r
}

// Close stops accepting secondary operations and waits for queued ones.
func (r *SmartRepository) Close(ctx context.Context) error {
	return r.mirror.close(ctx)
}

func (r *SmartRepository) Save(ctx context.Context, n *domain.Notification) error {
	primary := r.engine.SelectBackend(n.UserID)
	_, err := observe(r, ctx, "save", primary, func(ctx context.Context, s domain.NotificationStore) (struct{}, error) {
		return struct{}{}, s.Save(ctx, n)
	})
	if err != nil {
		return err
	}
	if r.engine.DualWriteEnabled() {
		copied := clone(n)
		r.secondary(ctx, "save", primary.Other(), func(ctx context.Context, s domain.NotificationStore) error {
			return s.Save(ctx, copied)
		})
	}
	return nil
}

// GetByID looks on backend A first and falls back to B. A record found on A
// whose owner is routed to B is re-read from B, so a migrated copy wins over
// the stale original. If both fail the error from A is returned; a failure on
// B alone is only logged.
func (r *SmartRepository) GetByID(ctx context.Context, notificationID string) (*domain.Notification, error) {
	loc, err := r.locate(ctx, notificationID)
	return loc.n, err
}

// location is where locate found a record. ownerMissing is set only when the
// owner's primary backend was read successfully and did not have it; stale
// when an older copy was also seen on the other backend.
type location struct {
	n            *domain.Notification
	home         domain.Backend
	ownerMissing bool
	stale        bool
}

func (r *SmartRepository) locate(ctx context.Context, notificationID string) (location, error) {
	get := func(ctx context.Context, s domain.NotificationStore) (*domain.Notification, error) {
		return s.GetByID(ctx, notificationID)
	}
	n, errA := observe(r, ctx, "get_by_id", domain.BackendA, get)
	if errA == nil && n != nil {
		if r.engine.SelectBackend(n.UserID) == domain.BackendA {
			return location{n: n, home: domain.BackendA}, nil
		}
		onB, err := observe(r, ctx, "get_by_id", domain.BackendB, get)
		if err != nil {
			r.logger.Warn("owner lookup failed", "backend", domain.BackendB, "notification_id", notificationID, "err", err)
			return location{n: n, home: domain.BackendA}, nil
		}
		if onB != nil {
			return location{n: onB, home: domain.BackendB, stale: true}, nil
		}
		return location{n: n, home: domain.BackendA, ownerMissing: true}, nil
	}
	if errA != nil {
		r.logger.Warn("lookup failed, falling back", "backend", domain.BackendA, "notification_id", notificationID, "err", errA)
	}
	n, errB := observe(r, ctx, "get_by_id", domain.BackendB, get)
	if errB == nil && n != nil {
		// A was already consulted; a clean miss there means the owner's copy,
		// if A is the owner's primary, does not exist.
		return location{n: n, home: domain.BackendB, ownerMissing: errA == nil}, nil
	}
	if errB != nil {
		r.logger.Warn("fallback lookup failed", "backend", domain.BackendB, "notification_id", notificationID, "err", errB)
		if errA != nil {
			return location{}, errA
		}
	}
	return location{}, nil
}

func (r *SmartRepository) ListForUser(ctx context.Context, userID string, filter domain.ListFilter) ([]domain.Notification, error) {
	primary := r.engine.SelectBackend(userID)
	list, err := observe(r, ctx, "list_for_user", primary, func(ctx context.Context, s domain.NotificationStore) ([]domain.Notification, error) {
		return s.ListForUser(ctx, userID, filter)
	})
	if err != nil {
		return nil, err
	}
	if mon := r.engine.Monitoring(); mon.Enabled && mon.CompareBackends {
		r.compare(ctx, userID, filter, primary, ids(list))
	}
	return list, nil
}

// compare re-reads the list from the secondary backend in the mirror worker
// and logs when the two backends disagree.
func (r *SmartRepository) compare(ctx context.Context, userID string, filter domain.ListFilter, primary domain.Backend, want []string) {
	r.secondary(ctx, "compare_list", primary.Other(), func(ctx context.Context, s domain.NotificationStore) error {
		other, err := s.ListForUser(ctx, userID, filter)
		if err != nil {
			return err
		}
		got := ids(other)
		if !equalIDs(want, got) {
			r.logger.Warn("backends diverge",
				"user_id", userID,
				"primary", primary,
				"primary_count", len(want),
				"secondary_count", len(got),
			)
		}
		return nil
	})
}

func (r *SmartRepository) FindSimilar(ctx context.Context, q domain.SimilarQuery) (*domain.Notification, error) {
	return observe(r, ctx, "find_similar", r.engine.SelectBackend(q.UserID), func(ctx context.Context, s domain.NotificationStore) (*domain.Notification, error) {
		return s.FindSimilar(ctx, q)
	})
}

func (r *SmartRepository) MarkRead(ctx context.Context, notificationID string) (bool, error) {
	return r.mutate(ctx, "mark_read", notificationID, func(ctx context.Context, s domain.NotificationStore) (bool, error) {
		return s.MarkRead(ctx, notificationID)
	})
}

func (r *SmartRepository) Dismiss(ctx context.Context, notificationID string) (bool, error) {
	return r.mutate(ctx, "dismiss", notificationID, func(ctx context.Context, s domain.NotificationStore) (bool, error) {
		return s.Dismiss(ctx, notificationID)
	})
}

// mutate applies an identifier-only write. The owner is unknown until the
// record is found, so it is located first and the write goes to the owner's
// primary backend. A record that only exists on the other backend is copied
// over when auto-migration is on; without it the write happens where the
// record lives. Whenever an older copy is known to exist on the other backend
// the write is repeated there too, so it never stays live.
func (r *SmartRepository) mutate(ctx context.Context, op, notificationID string, fn func(context.Context, domain.NotificationStore) (bool, error)) (bool, error) {
	loc, err := r.locate(ctx, notificationID)
	if err != nil {
		return false, err
	}
	if loc.n == nil {
		return false, nil
	}
	target := r.engine.SelectBackend(loc.n.UserID)
	migrated := false
	if loc.home != target {
		if r.engine.AutoMigrationEnabled() && loc.ownerMissing {
			if _, err := observe(r, ctx, "migrate", target, func(ctx context.Context, s domain.NotificationStore) (struct{}, error) {
				return struct{}{}, s.Save(ctx, loc.n)
			}); err != nil {
				return false, err
			}
			migrated = true
			r.logger.Info("migrated notification", "notification_id", notificationID, "from", loc.home, "to", target)
		} else {
			target = loc.home
		}
	}
	ok, err := observe(r, ctx, op, target, fn)
	if err != nil {
		return false, err
	}
	if ok && (migrated || loc.stale || r.engine.DualWriteEnabled()) {
		r.secondary(ctx, op, target.Other(), func(ctx context.Context, s domain.NotificationStore) error {
			_, err := fn(ctx, s)
			return err
		})
	}
	return ok, nil
}

func (r *SmartRepository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	primary := r.engine.SelectBackend(userID)
	count, err := observe(r, ctx, "mark_all_read", primary, func(ctx context.Context, s domain.NotificationStore) (int, error) {
		return s.MarkAllRead(ctx, userID)
	})
	if err != nil {
		return 0, err
	}
	if r.engine.DualWriteEnabled() {
		r.secondary(ctx, "mark_all_read", primary.Other(), func(ctx context.Context, s domain.NotificationStore) error {
			_, err := s.MarkAllRead(ctx, userID)
			return err
		})
	}
	return count, nil
}

func (r *SmartRepository) secondary(ctx context.Context, op string, b domain.Backend, fn func(context.Context, domain.NotificationStore) error) {
	r.mirror.enqueue(ctx, op, b, func(ctx context.Context) error {
		_, err := observe(r, ctx, op, b, func(ctx context.Context, s domain.NotificationStore) (struct{}, error) {
			return struct{}{}, fn(ctx, s)
		})
		return err
	})
}

func clone(n *domain.Notification) *domain.Notification {
	c := *n
	if n.TriggerData != nil {
		c.TriggerData = make(map[string]any, len(n.TriggerData))
		for k, v := range n.TriggerData {
			c.TriggerData[k] = v
		}
	}
	if n.SentAt != nil {
		t := *n.SentAt
		c.SentAt = &t
	}
	return &c
}

func ids(list []domain.Notification) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = list[i].NotificationID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
