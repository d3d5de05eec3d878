// internal/services/scheduler_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civilaviation/fop-backend/internal/config"
	"github.com/civilaviation/fop-backend/internal/database"
	"github.com/civilaviation/fop-backend/internal/models"
	"github.com/civilaviation/fop-backend/internal/permit"
)

func TestSchedulerRedeliversOutbox(t *testing.T) {
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	defer database.Close(db)

	cfg := testConfig(t.TempDir())
	notifications := NewNotificationService(db, cfg).WithMailer(func(string, string, string) error { return nil })
	storage, err := NewStorageService(cfg)
	require.NoError(t, err)
	apps := NewApplicationService(db, NewFeeService(db, cfg), storage, nil, notifications)

	appID := uuid.New()
	require.NoError(t, db.Create(&models.OutboxEvent{
		TenantID:    testTenant,
		AggregateID: appID,
		EventType:   string(permit.EventApplicationSubmitted),
		Payload:     models.JSONB{"application_number": "FOP-2026-000001", "submitted_by": "ops"},
		OccurredAt:  time.Now().UTC(),
	}).Error)

	scheduler := NewScheduler(apps, notifications, config.FeesConfig{OutboxPollSecond: 1, ExpirySweepMinute: 60})
	require.NoError(t, scheduler.Start(context.Background()))
	assert.Error(t, scheduler.Start(context.Background()))

	require.Eventually(t, func() bool {
		var pending int64
		db.Model(&models.OutboxEvent{}).Where("dispatched_at IS NULL").Count(&pending)
		return pending == 0
	}, 5*time.Second, 50*time.Millisecond)
	scheduler.Stop()
	scheduler.Stop()

	var notice models.AdminNotification
	require.NoError(t, db.Where("related_resource_id = ?", appID).First(&notice).Error)
	assert.Equal(t, "Application FOP-2026-000001 was submitted by ops and awaits review.", notice.Message)
}
