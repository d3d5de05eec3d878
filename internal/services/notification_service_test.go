// internal/services/notification_service_test.go
package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civilaviation/fop-backend/internal/database"
	"github.com/civilaviation/fop-backend/internal/models"
	"github.com/civilaviation/fop-backend/internal/permit"
)

type sentMail struct {
	to, subject, body string
}

func TestDispatchPendingCreatesNotices(t *testing.T) {
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	defer database.Close(db)

	var sent []sentMail
	failMail := true
	svc := NewNotificationService(db, testConfig(t.TempDir())).WithMailer(func(to, subject, body string) error {
		if failMail {
			return errors.New("smtp unavailable")
		}
		sent = append(sent, sentMail{to, subject, body})
		return nil
	})
	ctx := context.Background()

	appID := uuid.New()
	require.NoError(t, db.Create(&models.OutboxEvent{
		TenantID:    testTenant,
		AggregateID: appID,
		EventType:   string(permit.EventWaiverRequested),
		Payload: models.JSONB{
			"application_number": "FOP-2026-000042",
			"requested_by":       "ops@airline.example",
			"waiver_type":        "humanitarian",
		},
		OccurredAt: time.Now().UTC(),
	}).Error)

	_, err = svc.DispatchPending(ctx, 10)
	assert.Error(t, err)

	var undispatched int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("dispatched_at IS NULL").Count(&undispatched).Error)
	assert.Equal(t, int64(1), undispatched)

	failMail = false
	handled, err := svc.DispatchPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	require.Len(t, sent, 1)
	assert.Equal(t, "duty@caa.example", sent[0].to)
	assert.Equal(t, "Fee waiver requested", sent[0].subject)
	assert.Contains(t, sent[0].body, "https://permits.example/applications/"+appID.String())

	high := models.PriorityHigh
	notices, total, err := svc.ListNotifications(ctx, testTenant, NotificationFilter{Priority: &high})
	require.NoError(t, err)
	require.NotZero(t, total)
	assert.Equal(t, "ops@airline.example requested a humanitarian waiver for application FOP-2026-000042.", notices[0].Message)

	_, total, err = svc.ListNotifications(ctx, "other-tenant", NotificationFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)

	require.NoError(t, svc.MarkRead(ctx, testTenant, notices[0].ID))
	assert.ErrorIs(t, svc.MarkRead(ctx, "other-tenant", notices[0].ID), permit.ErrNotFound)

	read := models.NotificationStatusRead
	readNotices, _, err := svc.ListNotifications(ctx, testTenant, NotificationFilter{Status: &read})
	require.NoError(t, err)
	require.NotEmpty(t, readNotices)
	assert.NotNil(t, readNotices[0].ReadAt)
}
