package postgres

import (
	"testing"
	"time"

	"github.com/go-smart-notifications/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// dryRunDB renders SQL without a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=test dbname=test sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func TestRowMapping_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	at := time.Date(2026, 3, 1, 15, 0, 0, 0, loc)
	sent := at.Add(time.Minute)
	n := &domain.Notification{
		NotificationID: "n1",
		UserID:         "u1",
		TriggerType:    domain.TriggerRiskChange,
		TriggerData:    map[string]any{"new_risk_level": "high"},
		Status:         domain.StatusSent,
		Priority:       domain.PriorityHigh,
		CreatedAt:      at,
		UpdatedAt:      at,
		SentAt:         &sent,
	}

	got := toRow(n).toDomain()

	assert.Equal(t, time.UTC, got.CreatedAt.Location())
	assert.True(t, at.Equal(got.CreatedAt))
	require.NotNil(t, got.SentAt)
	assert.Equal(t, time.UTC, got.SentAt.Location())
	assert.Equal(t, domain.TriggerRiskChange, got.TriggerType)
	assert.Equal(t, "high", got.TriggerData["new_risk_level"])
}

func TestListQuery_DefaultsHideDismissed(t *testing.T) {
	db := dryRunDB(t)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []notificationRow
		return listQuery(tx, "u1", domain.ListFilter{}).Find(&rows)
	})

	assert.Contains(t, sql, `"notifications"`)
	assert.Contains(t, sql, "user_id = 'u1'")
	assert.Contains(t, sql, "dismissed = false")
	assert.Contains(t, sql, "ORDER BY created_at DESC")
	assert.Contains(t, sql, "LIMIT 50")
}

func TestListQuery_StatusAndIncludeDismissed(t *testing.T) {
	db := dryRunDB(t)
	failed := domain.StatusFailed

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []notificationRow
		return listQuery(tx, "u1", domain.ListFilter{Status: &failed, IncludeDismissed: true, Limit: 500}).Find(&rows)
	})

	assert.NotContains(t, sql, "dismissed")
	assert.Contains(t, sql, "status = 'FAILED'")
	assert.Contains(t, sql, "LIMIT 200")
}

func TestSimilarQuery_NarrowsByTypeAndWindow(t *testing.T) {
	db := dryRunDB(t)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []notificationRow
		return similarQuery(tx, domain.SimilarQuery{
			UserID:      "u1",
			TriggerType: domain.TriggerEducationalMoment,
			Since:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		}).Find(&rows)
	})

	assert.Contains(t, sql, "trigger_type = 'EDUCATIONAL_MOMENT'")
	assert.Contains(t, sql, "dismissed = false")
	assert.Contains(t, sql, "created_at >= '2026-03-01")
}
