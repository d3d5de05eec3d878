// internal/services/admin_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/civilaviation/fop-backend/internal/database"
	"github.com/civilaviation/fop-backend/internal/fees"
	"github.com/civilaviation/fop-backend/internal/models"
	"github.com/civilaviation/fop-backend/internal/permit"
	"github.com/civilaviation/fop-backend/internal/utils"
)

type AdminService struct {
	db                  *gorm.DB
	notificationService *NotificationService
	now                 func() time.Time
}

type AdminDashboardStats struct {
	TotalApplications    int64                   `json:"total_applications"`
	ByStatus             map[permit.Status]int64 `json:"by_status"`
	FlaggedApplications  int64                   `json:"flagged_applications"`
	NewThisMonth         int64                   `json:"new_this_month"`
	PendingPayments      int64                   `json:"pending_payments"`
	UnverifiedPayments   int64                   `json:"unverified_payments"`
	PendingWaivers       int64                   `json:"pending_waivers"`
	Revenue              []CurrencyTotal         `json:"revenue"`
	MonthlyRevenue       []CurrencyTotal         `json:"monthly_revenue"`
	UnreadNotifications  int64                   `json:"unread_notifications"`
	UndispatchedEvents   int64                   `json:"undispatched_events"`
	ApplicationGrowthPct float64                 `json:"application_growth_pct"`
}

type CurrencyTotal struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

type FeeRateFilter struct {
	utils.PaginationParams
	Category        *fees.Category `json:"category,omitempty"`
	IncludeShared   bool           `json:"include_shared"`
	IncludeInactive bool           `json:"include_inactive"`
}

// SupersedeRateRequest adds a rate that replaces the tenant's current entry
// with the same discriminators from EffectiveFrom on.
type SupersedeRateRequest struct {
	Category      string          `json:"category" validate:"required"`
	OperationType string          `json:"operation_type,omitempty"`
	Airport       string          `json:"airport,omitempty" validate:"omitempty,icao"`
	Tier          int             `json:"tier" validate:"min=0,max=4"`
	Band          string          `json:"band,omitempty" validate:"omitempty,oneof=late overnight"`
	Rate          decimal.Decimal `json:"rate"`
	PerUnit       bool            `json:"per_unit"`
	MinimumFee    decimal.Decimal `json:"minimum_fee"`
	Currency      string          `json:"currency" validate:"required,currency"`
	Description   string          `json:"description,omitempty"`
	EffectiveFrom time.Time       `json:"effective_from" validate:"required"`
}

type AuditLogFilter struct {
	utils.PaginationParams
	ActorID      string `json:"actor_id,omitempty"`
	Action       string `json:"action,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
}

func NewAdminService(db *gorm.DB, notificationService *NotificationService) *AdminService {
	return &AdminService{
		db:                  db,
		notificationService: notificationService,
		now:                 func() time.Time { return time.Now().UTC() },
	}
}

// Dashboard Statistics
func (s *AdminService) GetDashboardStats(ctx context.Context, tenantID string) (*AdminDashboardStats, error) {
	db := s.db.WithContext(ctx)
	stats := &AdminDashboardStats{ByStatus: make(map[permit.Status]int64)}
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonthStart := monthStart.AddDate(0, -1, 0)

	apps := func() *gorm.DB {
		return db.Model(&models.PermitApplication{}).Where("tenant_id = ?", tenantID)
	}

	// Application statistics
	var counts []struct {
		Status permit.Status
		Count  int64
	}
	if err := apps().Select("status, COUNT(*) AS count").Group("status").Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}
	for _, c := range counts {
		stats.ByStatus[c.Status] = c.Count
		stats.TotalApplications += c.Count
	}
	apps().Where("flagged = ?", true).Count(&stats.FlaggedApplications)
	apps().Where("created_at >= ?", monthStart).Count(&stats.NewThisMonth)

	var lastMonth int64
	apps().Where("created_at >= ? AND created_at < ?", lastMonthStart, monthStart).Count(&lastMonth)
	if lastMonth > 0 {
		stats.ApplicationGrowthPct = float64(stats.NewThisMonth-lastMonth) / float64(lastMonth) * 100
	}

	// Payment statistics
	payments := func() *gorm.DB {
		return db.Model(&models.PermitPayment{}).
			Joins("JOIN permit_applications ON permit_applications.id = permit_payments.application_id").
			Where("permit_applications.tenant_id = ?", tenantID)
	}
	payments().Where("permit_payments.status IN ?",
		[]permit.PaymentStatus{permit.PaymentStatusPending, permit.PaymentStatusProcessing}).
		Count(&stats.PendingPayments)
	payments().Where("permit_payments.status = ? AND permit_payments.verified = ?", permit.PaymentStatusCompleted, false).
		Count(&stats.UnverifiedPayments)

	var err error
	if stats.Revenue, err = s.revenue(payments()); err != nil {
		return nil, err
	}
	if stats.MonthlyRevenue, err = s.revenue(payments().Where("permit_payments.completed_at >= ?", monthStart)); err != nil {
		return nil, err
	}

	// Waivers and notifications
	db.Model(&models.FeeWaiver{}).
		Joins("JOIN permit_applications ON permit_applications.id = fee_waivers.application_id").
		Where("permit_applications.tenant_id = ? AND fee_waivers.status = ?", tenantID, permit.WaiverStatusPending).
		Count(&stats.PendingWaivers)
	db.Model(&models.AdminNotification{}).
		Where("tenant_id = ? AND status = ?", tenantID, models.NotificationStatusUnread).
		Count(&stats.UnreadNotifications)
	db.Model(&models.OutboxEvent{}).
		Where("tenant_id = ? AND dispatched_at IS NULL", tenantID).
		Count(&stats.UndispatchedEvents)

	return stats, nil
}

// revenue sums completed payments per currency. Zero-amount waived payments
// add nothing.
func (s *AdminService) revenue(query *gorm.DB) ([]CurrencyTotal, error) {
	var totals []CurrencyTotal
	err := query.
		Where("permit_payments.status = ?", permit.PaymentStatusCompleted).
		Select("permit_payments.currency AS currency, COALESCE(SUM(permit_payments.amount), 0) AS amount").
		Group("permit_payments.currency").
		Order("permit_payments.currency").
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return totals, nil
}

// Fee rate administration
func (s *AdminService) ListFeeRates(ctx context.Context, tenantID string, filter FeeRateFilter) ([]models.TariffRate, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.TariffRate{})
	if filter.IncludeShared {
		query = query.Where("tenant_id IN ?", []string{tenantID, sharedTenant})
	} else {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if filter.Category != nil {
		query = query.Where("category = ?", *filter.Category)
	}
	if !filter.IncludeInactive {
		query = query.Where("active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count fee rates: %w", err)
	}

	allowedSortFields := []string{"category", "effective_from", "created_at", "rate"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var rates []models.TariffRate
	if err := query.Find(&rates).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch fee rates: %w", err)
	}
	return rates, total, nil
}

// SupersedeRate stores a new tenant rate and closes the tenant's open entries
// with the same discriminators at its EffectiveFrom. Closed entries stay for
// historical quotes.
func (s *AdminService) SupersedeRate(ctx context.Context, tenantID, actor string, req *SupersedeRateRequest) (*models.TariffRate, error) {
	category := fees.Category(req.Category)
	if !category.Valid() {
		return nil, &permit.ArgumentError{Field: "category", Reason: fmt.Sprintf("unknown category %q", req.Category)}
	}
	opType := fees.OperationType(req.OperationType)
	if opType != "" && !opType.Valid() {
		return nil, &permit.ArgumentError{Field: "operation_type", Reason: fmt.Sprintf("unknown operation type %q", req.OperationType)}
	}
	if req.Rate.IsNegative() || req.MinimumFee.IsNegative() {
		return nil, &permit.ArgumentError{Field: "rate", Reason: "must not be negative"}
	}

	effectiveFrom := req.EffectiveFrom.UTC()
	rate := models.TariffRateFromDomain(tenantID, fees.FeeRate{
		ID:            uuid.New(),
		Category:      category,
		OperationType: opType,
		Airport:       strings.ToUpper(strings.TrimSpace(req.Airport)),
		Tier:          fees.WeightTier(req.Tier),
		Band:          req.Band,
		Rate:          req.Rate,
		PerUnit:       req.PerUnit,
		MinimumFee:    req.MinimumFee,
		Currency:      strings.ToUpper(req.Currency),
		Description:   req.Description,
		EffectiveFrom: effectiveFrom,
		Active:        true,
	}, actor)

	err := database.WithTransactionContext(ctx, s.db, func(tx *gorm.DB) error {
		closed := tx.Model(&models.TariffRate{}).
			Where("tenant_id = ? AND category = ? AND operation_type = ? AND airport = ? AND tier = ? AND band = ?",
				tenantID, rate.Category, rate.OperationType, rate.Airport, rate.Tier, rate.Band).
			Where("active = ? AND effective_to IS NULL AND effective_from < ?", true, effectiveFrom).
			Update("effective_to", effectiveFrom)
		if closed.Error != nil {
			return fmt.Errorf("failed to close superseded rates: %w", closed.Error)
		}
		if err := tx.Create(rate).Error; err != nil {
			return fmt.Errorf("failed to create fee rate: %w", err)
		}
		return s.createAuditLog(tx, tenantID, actor, "SUPERSEDE_FEE_RATE", "fee_rate", &rate.ID, map[string]interface{}{
			"category":       rate.Category,
			"rate":           rate.Rate.String(),
			"effective_from": rate.EffectiveFrom,
			"superseded":     closed.RowsAffected,
		})
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"category":  rate.Category,
		"rate_id":   rate.ID,
	}).Info("Fee rate superseded")
	return rate, nil
}

// DeactivateRate switches off one of the tenant's own rates. Shared rates
// cannot be changed from a tenant.
func (s *AdminService) DeactivateRate(ctx context.Context, tenantID, actor string, id uuid.UUID) error {
	return database.WithTransactionContext(ctx, s.db, func(tx *gorm.DB) error {
		var rate models.TariffRate
		if err := tx.Where("tenant_id = ?", tenantID).First(&rate, "id = ?", id).Error; err != nil {
			return notFound(err, "fee_rate", id.String())
		}
		if !rate.Active {
			return nil
		}
		if err := tx.Model(&rate).Update("active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate fee rate: %w", err)
		}
		return s.createAuditLog(tx, tenantID, actor, "DEACTIVATE_FEE_RATE", "fee_rate", &rate.ID, map[string]interface{}{
			"category": rate.Category,
		})
	})
}

// Tenant fee settings
func (s *AdminService) GetTenantSettings(ctx context.Context, tenantID string) (*models.TenantFeeSettings, error) {
	var settings models.TenantFeeSettings
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&settings).Error; err != nil {
		return nil, notFound(err, "tenant_settings", tenantID)
	}
	return &settings, nil
}

func (s *AdminService) UpdateTenantSettings(ctx context.Context, tenantID, actor string, settings *models.TenantFeeSettings) error {
	settings.TenantID = tenantID
	if err := database.SeedTenant(s.db.WithContext(ctx), settings); err != nil {
		return err
	}
	return s.createAuditLog(s.db.WithContext(ctx), tenantID, actor, "UPDATE_FEE_SETTINGS", "tenant_settings", nil, map[string]interface{}{
		"currency": settings.Currency,
		"base_fee": settings.BaseFee.String(),
	})
}

// Notifications
func (s *AdminService) GetNotifications(ctx context.Context, tenantID string, filter NotificationFilter) ([]models.AdminNotification, int64, error) {
	return s.notificationService.ListNotifications(ctx, tenantID, filter)
}

func (s *AdminService) MarkNotificationRead(ctx context.Context, tenantID string, id uuid.UUID) error {
	return s.notificationService.MarkRead(ctx, tenantID, id)
}

// Audit trail
func (s *AdminService) GetAuditLogs(ctx context.Context, tenantID string, filter AuditLogFilter) ([]models.AuditLog, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.AuditLog{}).Where("tenant_id = ?", tenantID)
	if filter.ActorID != "" {
		query = query.Where("actor_id = ?", filter.ActorID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.ResourceType != "" {
		query = query.Where("resource_type = ?", filter.ResourceType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "action"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var logs []models.AuditLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}
	return logs, total, nil
}

// Analytics and Reporting
func (s *AdminService) GetAnalytics(ctx context.Context, tenantID string, startDate, endDate time.Time, metrics []string) (map[string]interface{}, error) {
	if endDate.Before(startDate) {
		return nil, &permit.ArgumentError{Field: "end_date", Reason: "must not be before start_date"}
	}
	db := s.db.WithContext(ctx)
	analytics := make(map[string]interface{})

	for _, metric := range metrics {
		switch metric {
		case "applications_created":
			var count int64
			db.Model(&models.PermitApplication{}).
				Where("tenant_id = ? AND created_at BETWEEN ? AND ?", tenantID, startDate, endDate).
				Count(&count)
			analytics[metric] = count

		case "applications_approved":
			var count int64
			db.Model(&models.PermitApplication{}).
				Where("tenant_id = ? AND approved_at BETWEEN ? AND ?", tenantID, startDate, endDate).
				Count(&count)
			analytics[metric] = count

		case "applications_rejected":
			var count int64
			db.Model(&models.PermitApplication{}).
				Where("tenant_id = ? AND rejected_at BETWEEN ? AND ?", tenantID, startDate, endDate).
				Count(&count)
			analytics[metric] = count

		case "revenue":
			totals, err := s.revenue(db.Model(&models.PermitPayment{}).
				Joins("JOIN permit_applications ON permit_applications.id = permit_payments.application_id").
				Where("permit_applications.tenant_id = ?", tenantID).
				Where("permit_payments.completed_at BETWEEN ? AND ?", startDate, endDate))
			if err != nil {
				return nil, err
			}
			analytics[metric] = totals

		default:
			return nil, &permit.ArgumentError{Field: "metrics", Reason: fmt.Sprintf("unknown metric %q", metric)}
		}
	}

	return analytics, nil
}

// Helper methods
func (s *AdminService) createAuditLog(tx *gorm.DB, tenantID, actor, action, resourceType string, resourceID *uuid.UUID, newValues map[string]interface{}) error {
	values, err := models.ToJSONB(newValues)
	if err != nil {
		return fmt.Errorf("failed to encode audit values: %w", err)
	}
	auditLog := &models.AuditLog{
		TenantID:     tenantID,
		ActorID:      actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		NewValues:    values,
	}
	if err := tx.Create(auditLog).Error; err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
