package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-smart-notifications/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type notificationRow struct {
	NotificationID   string         `gorm:"column:notification_id;primaryKey;size:64"`
	UserID           string         `gorm:"column:user_id;size:64;not null;index:idx_notifications_user_created,priority:1"`
	TriggerType      string         `gorm:"column:trigger_type;size:32;not null"`
	Title            string         `gorm:"column:title;not null"`
	Message          string         `gorm:"column:message;type:text"`
	DeepLink         string         `gorm:"column:deep_link"`
	TriggerData      map[string]any `gorm:"column:trigger_data;type:jsonb;serializer:json"`
	Status           string         `gorm:"column:status;size:16;not null"`
	IsRead           bool           `gorm:"column:is_read;not null"`
	Dismissed        bool           `gorm:"column:dismissed;not null"`
	Priority         string         `gorm:"column:priority;size:16"`
	NotificationType string         `gorm:"column:notification_type;size:64"`
	CreatedAt        time.Time      `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_notifications_user_created,priority:2,sort:desc"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;not null;autoUpdateTime:false"`
	SentAt           *time.Time     `gorm:"column:sent_at"`
}

func (notificationRow) TableName() string { return "notifications" }

func toRow(n *domain.Notification) notificationRow {
	return notificationRow{
		NotificationID:   n.NotificationID,
		UserID:           n.UserID,
		TriggerType:      string(n.TriggerType),
		Title:            n.Title,
		Message:          n.Message,
		DeepLink:         n.DeepLink,
		TriggerData:      n.TriggerData,
		Status:           string(n.Status),
		IsRead:           n.IsRead,
		Dismissed:        n.Dismissed,
		Priority:         string(n.Priority),
		NotificationType: n.NotificationType,
		CreatedAt:        n.CreatedAt.UTC(),
		UpdatedAt:        n.UpdatedAt.UTC(),
		SentAt:           n.SentAt,
	}
}

func (r notificationRow) toDomain() domain.Notification {
	n := domain.Notification{
		NotificationID:   r.NotificationID,
		UserID:           r.UserID,
		TriggerType:      domain.TriggerType(r.TriggerType),
		Title:            r.Title,
		Message:          r.Message,
		DeepLink:         r.DeepLink,
		TriggerData:      r.TriggerData,
		Status:           domain.Status(r.Status),
		IsRead:           r.IsRead,
		Dismissed:        r.Dismissed,
		Priority:         domain.Priority(r.Priority),
		NotificationType: r.NotificationType,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
	if r.SentAt != nil {
		t := r.SentAt.UTC()
		n.SentAt = &t
	}
	return n
}

// NotificationRepo is backend A of the notification store.
type NotificationRepo struct {
	db    *gorm.DB
	clock func() time.Time
}

var _ domain.NotificationStore = (*NotificationRepo)(nil)

func NewNotificationRepo(db *gorm.DB) *NotificationRepo {
	return &NotificationRepo{db: db, clock: time.Now}
}

func (r *NotificationRepo) Save(ctx context.Context, n *domain.Notification) error {
	row := toRow(n)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return unavailable("save notification", err)
	}
	return nil
}

func (r *NotificationRepo) GetByID(ctx context.Context, notificationID string) (*domain.Notification, error) {
	var row notificationRow
	err := r.db.WithContext(ctx).
		Where("notification_id = ?", notificationID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get notification", err)
	}
	n := row.toDomain()
	return &n, nil
}

func (r *NotificationRepo) ListForUser(ctx context.Context, userID string, filter domain.ListFilter) ([]domain.Notification, error) {
	var rows []notificationRow
	if err := listQuery(r.db.WithContext(ctx), userID, filter).Find(&rows).Error; err != nil {
		return nil, unavailable("list notifications", err)
	}
	return toDomainList(rows), nil
}

func listQuery(db *gorm.DB, userID string, filter domain.ListFilter) *gorm.DB {
	q := db.Model(&notificationRow{}).Where("user_id = ?", userID)
	if !filter.IncludeDismissed {
		q = q.Where("dismissed = ?", false)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", string(*filter.Status))
	}
	return q.Order("created_at DESC").Order("notification_id DESC").Limit(filter.EffectiveLimit())
}

func (r *NotificationRepo) MarkRead(ctx context.Context, notificationID string) (bool, error) {
	return r.updateLive(ctx, "mark read", notificationID, "is_read")
}

func (r *NotificationRepo) Dismiss(ctx context.Context, notificationID string) (bool, error) {
	return r.updateLive(ctx, "dismiss", notificationID, "dismissed")
}

// updateLive sets column to true on a record that is not dismissed.
func (r *NotificationRepo) updateLive(ctx context.Context, op, notificationID, column string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&notificationRow{}).
		Where("notification_id = ? AND dismissed = ?", notificationID, false).
		Updates(map[string]any{column: true, "updated_at": r.clock().UTC()})
	if res.Error != nil {
		return false, unavailable(op, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&notificationRow{}).
		Where("user_id = ? AND is_read = ? AND dismissed = ?", userID, false, false).
		Updates(map[string]any{"is_read": true, "updated_at": r.clock().UTC()})
	if res.Error != nil {
		return 0, unavailable("mark all read", res.Error)
	}
	return int(res.RowsAffected), nil
}

// FindSimilar loads the user's live notifications of the same type inside
// the window and applies the per-type key rule to them, newest first.
func (r *NotificationRepo) FindSimilar(ctx context.Context, q domain.SimilarQuery) (*domain.Notification, error) {
	var rows []notificationRow
	if err := similarQuery(r.db.WithContext(ctx), q).Find(&rows).Error; err != nil {
		return nil, unavailable("find similar", err)
	}
	return domain.FirstSimilar(toDomainList(rows), q), nil
}

func similarQuery(db *gorm.DB, q domain.SimilarQuery) *gorm.DB {
	return db.Model(&notificationRow{}).
		Where("user_id = ? AND trigger_type = ? AND dismissed = ?", q.UserID, string(q.TriggerType), false).
		Where("created_at >= ?", domain.NormalizeTime(q.Since)).
		Order("created_at DESC")
}

func toDomainList(rows []notificationRow) []domain.Notification {
	out := make([]domain.Notification, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out
}

func unavailable(op string, err error) error {
	return fmt.Errorf("postgres %s: %w: %w", op, domain.ErrBackendUnavailable, err)
}
