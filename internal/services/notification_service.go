// internal/services/notification_service.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	texttemplate "text/template"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/civilaviation/fop-backend/internal/config"
	"github.com/civilaviation/fop-backend/internal/metrics"
	"github.com/civilaviation/fop-backend/internal/models"
	"github.com/civilaviation/fop-backend/internal/permit"
	"github.com/civilaviation/fop-backend/internal/utils"
)

// Mailer sends one HTML message.
type Mailer func(to, subject, body string) error

// NotificationService turns committed domain events into admin notifications
// and staff emails.
type NotificationService struct {
	db     *gorm.DB
	config *config.Config
	mail   Mailer
	now    func() time.Time
}

// notice describes how one event type is surfaced to staff.
type notice struct {
	Title    string
	Message  string
	Priority models.NotificationPriority
	Email    bool
}

var notices = map[permit.EventType]notice{
	permit.EventApplicationSubmitted: {
		Title: "Application submitted", Priority: models.PriorityMedium,
		Message: "Application {{.application_number}} was submitted by {{.submitted_by}} and awaits review.",
	},
	permit.EventDocumentExpiringSoon: {
		Title: "Document expiring soon", Priority: models.PriorityHigh, Email: true,
		Message: "The {{.document_type}} document of application {{.application_number}} expires in {{.days_remaining}} days.",
	},
	permit.EventDocumentExpired: {
		Title: "Document expired", Priority: models.PriorityHigh, Email: true,
		Message: "The {{.document_type}} document of application {{.application_number}} has expired.",
	},
	permit.EventDocumentVerificationFailedDueToExpiry: {
		Title: "Expired document presented", Priority: models.PriorityHigh,
		Message: "{{.attempted_by}} tried to verify the expired {{.document_type}} document of application {{.application_number}}.",
	},
	permit.EventPaymentCompleted: {
		Title: "Payment completed", Priority: models.PriorityMedium,
		Message: "Payment for application {{.application_number}} completed ({{.transaction_reference}}).",
	},
	permit.EventPaymentFailed: {
		Title: "Payment failed", Priority: models.PriorityMedium,
		Message: "Payment for application {{.application_number}} failed: {{.reason}}.",
	},
	permit.EventPaymentRefunded: {
		Title: "Payment refunded", Priority: models.PriorityHigh, Email: true,
		Message: "Payment for application {{.application_number}} was refunded: {{.reason}}.",
	},
	permit.EventWaiverRequested: {
		Title: "Fee waiver requested", Priority: models.PriorityHigh, Email: true,
		Message: "{{.requested_by}} requested a {{.waiver_type}} waiver for application {{.application_number}}.",
	},
	permit.EventFeeOverridden: {
		Title: "Fee overridden", Priority: models.PriorityHigh, Email: true,
		Message: "{{.overridden_by}} overrode the fee of application {{.application_number}}: {{.justification}}.",
	},
	permit.EventApplicationFlagged: {
		Title: "Application flagged", Priority: models.PriorityHigh, Email: true,
		Message: "{{.flagged_by}} flagged application {{.application_number}}: {{.reason}}.",
	},
	permit.EventApplicationApproved: {
		Title: "Permit approved", Priority: models.PriorityLow,
		Message: "Application {{.application_number}} was approved by {{.approved_by}}.",
	},
	permit.EventApplicationRejected: {
		Title: "Application rejected", Priority: models.PriorityLow,
		Message: "Application {{.application_number}} was rejected by {{.rejected_by}}: {{.reason}}.",
	},
}

const emailTemplate = `
<!DOCTYPE html>
<html>
<body>
	<h2>{{.Title}}</h2>
	<p>{{.Message}}</p>
	<a href="{{.URL}}">Open application</a>
	<p>{{.FromName}}</p>
</body>
</html>`

type NotificationFilter struct {
	utils.PaginationParams
	Status   *models.NotificationStatus
	Priority *models.NotificationPriority
}

func NewNotificationService(db *gorm.DB, config *config.Config) *NotificationService {
	s := &NotificationService{
		db:     db,
		config: config,
		now:    time.Now,
	}
	s.mail = s.sendEmail
	return s
}

// WithMailer replaces SMTP delivery.
func (s *NotificationService) WithMailer(m Mailer) *NotificationService {
	s.mail = m
	return s
}

// DispatchEvents handles the given outbox rows right after they were
// committed. Rows already claimed elsewhere are skipped.
func (s *NotificationService) DispatchEvents(ctx context.Context, ids []uuid.UUID) error {
	var errs []error
	for _, id := range ids {
		if err := s.dispatch(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DispatchPending retries undispatched rows, oldest first. It returns the
// number of rows handled successfully.
func (s *NotificationService) DispatchPending(ctx context.Context, limit int) (int, error) {
	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("dispatched_at IS NULL").
		Order("occurred_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to list pending events: %w", err)
	}

	handled := 0
	var errs []error
	for _, id := range ids {
		if err := s.dispatch(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		handled++
	}
	return handled, errors.Join(errs...)
}

func (s *NotificationService) dispatch(ctx context.Context, id uuid.UUID) error {
	db := s.db.WithContext(ctx)
	now := s.now()

	// Claim the row; a zero row count means another dispatcher has it.
	claim := db.Model(&models.OutboxEvent{}).
		Where("id = ? AND dispatched_at IS NULL", id).
		Updates(map[string]interface{}{"dispatched_at": now, "attempts": gorm.Expr("attempts + 1")})
	if claim.Error != nil {
		return fmt.Errorf("failed to claim event %s: %w", id, claim.Error)
	}
	if claim.RowsAffected == 0 {
		return nil
	}

	var row models.OutboxEvent
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to load event %s: %w", id, err)
	}

	if err := s.handle(ctx, &row); err != nil {
		metrics.RecordDispatch(false)
		logrus.WithError(err).WithFields(logrus.Fields{
			"event_id":   row.ID,
			"event_type": row.EventType,
			"attempts":   row.Attempts,
		}).Warn("Event dispatch failed")
		release := db.Model(&models.OutboxEvent{}).Where("id = ?", id).
			Updates(map[string]interface{}{"dispatched_at": nil, "last_error": err.Error()})
		if release.Error != nil {
			return fmt.Errorf("failed to release event %s: %w", id, release.Error)
		}
		return err
	}

	metrics.RecordDispatch(true)
	return nil
}

func (s *NotificationService) handle(ctx context.Context, row *models.OutboxEvent) error {
	n, ok := notices[permit.EventType(row.EventType)]
	if !ok {
		return nil
	}

	message, err := renderText(n.Message, map[string]interface{}(row.Payload))
	if err != nil {
		return fmt.Errorf("failed to render notification: %w", err)
	}

	aggregateID := row.AggregateID
	notification := &models.AdminNotification{
		TenantID:            row.TenantID,
		Type:                row.EventType,
		Title:               n.Title,
		Message:             message,
		Priority:            n.Priority,
		Status:              models.NotificationStatusUnread,
		RelatedResourceType: "application",
		RelatedResourceID:   &aggregateID,
	}
	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	if !n.Email || s.config.Email.AdminEmail == "" {
		return nil
	}
	body, err := s.renderTemplate(emailTemplate, map[string]interface{}{
		"Title":    n.Title,
		"Message":  message,
		"URL":      fmt.Sprintf("%s/applications/%s", s.config.Frontend.BaseURL, row.AggregateID),
		"FromName": s.config.Email.FromName,
	})
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	return s.mail(s.config.Email.AdminEmail, n.Title, body)
}

func (s *NotificationService) ListNotifications(ctx context.Context, tenantID string, filter NotificationFilter) ([]models.AdminNotification, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.AdminNotification{}).Where("tenant_id = ?", tenantID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Priority != nil {
		query = query.Where("priority = ?", *filter.Priority)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "priority"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var notifications []models.AdminNotification
	if err := query.Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	return notifications, total, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, tenantID string, id uuid.UUID) error {
	now := s.now()
	result := s.db.WithContext(ctx).Model(&models.AdminNotification{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Updates(map[string]interface{}{"status": models.NotificationStatusRead, "read_at": now})
	if result.Error != nil {
		return fmt.Errorf("failed to update notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &permit.NotFoundError{Kind: "notification", Key: id.String()}
	}
	return nil
}

// Helper methods
func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("Email not sent, SMTP not configured")
		return nil
	}

	// Setup authentication
	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	// Compose message
	msg := []byte(fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		s.config.Email.FromName, s.config.Email.FromEmail, to, subject, body))

	// Send email
	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// renderText fills a notification message from an event payload.
func renderText(text string, payload map[string]interface{}) (string, error) {
	tmpl, err := texttemplate.New("notice").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, payload); err != nil {
		return "", err
	}
	return buf.String(), nil
}
