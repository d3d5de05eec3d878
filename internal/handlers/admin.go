// internal/handlers/admin.go
package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/civilaviation/fop-backend/internal/fees"
	"github.com/civilaviation/fop-backend/internal/i18n"
	"github.com/civilaviation/fop-backend/internal/models"
	"github.com/civilaviation/fop-backend/internal/permit"
	"github.com/civilaviation/fop-backend/internal/services"
	"github.com/civilaviation/fop-backend/internal/utils"
)

type AdminHandler struct {
	adminService *services.AdminService
	feeService   *services.FeeService
}

func NewAdminHandler(adminService *services.AdminService, feeService *services.FeeService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		feeService:   feeService,
	}
}

type TenantSettingsRequest struct {
	Currency            string          `json:"currency" validate:"required,currency"`
	BaseFee             decimal.Decimal `json:"base_fee"`
	PerSeatFee          decimal.Decimal `json:"per_seat_fee"`
	PerKgFee            decimal.Decimal `json:"per_kg_fee"`
	OneTimeMultiplier   decimal.Decimal `json:"one_time_multiplier"`
	BlanketMultiplier   decimal.Decimal `json:"blanket_multiplier"`
	EmergencyMultiplier decimal.Decimal `json:"emergency_multiplier"`
	PrimaryAirports     []string        `json:"primary_airports" validate:"dive,icao"`
	ExpiryWarningDays   int             `json:"expiry_warning_days" validate:"min=1,max=365"`
}

// GET /admin/stats
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}

	stats, err := h.adminService.GetDashboardStats(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stats": stats,
	})
}

// GET /admin/fee-rates
func (h *AdminHandler) GetFeeRates(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	filter := services.FeeRateFilter{
		PaginationParams: params,
		IncludeShared:    c.Query("include_shared") == "true",
		IncludeInactive:  c.Query("include_inactive") == "true",
	}

	if category := c.Query("category"); category != "" {
		cat := fees.Category(category)
		filter.Category = &cat
	}

	rates, total, err := h.adminService.ListFeeRates(c.Request.Context(), tenantID, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(rates, total, params)
	utils.PaginatedResponse(c, result)
}

// POST /admin/fee-rates
func (h *AdminHandler) SupersedeFeeRate(c *gin.Context) {
	tenantID, actor, ok := identity(c)
	if !ok {
		return
	}

	var req services.SupersedeRateRequest
	if !bindJSON(c, &req) {
		return
	}

	rate, err := h.adminService.SupersedeRate(c.Request.Context(), tenantID, actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"rate": rate,
	})
}

// DELETE /admin/fee-rates/:id
func (h *AdminHandler) DeactivateFeeRate(c *gin.Context) {
	tenantID, actor, ok := identity(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.adminService.DeactivateRate(c.Request.Context(), tenantID, actor, id); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"id":     id,
		"active": false,
	})
}

// GET /admin/settings
func (h *AdminHandler) GetSettings(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}

	stored, err := h.adminService.GetTenantSettings(c.Request.Context(), tenantID)
	if err == nil {
		utils.SuccessResponse(c, gin.H{
			"settings": stored,
			"custom":   true,
		})
		return
	}
	if !errors.Is(err, permit.ErrNotFound) {
		respondError(c, err)
		return
	}

	defaults, err := h.feeService.Settings(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"settings": models.TenantFeeSettingsFromSchedule(tenantID, defaults.Schedule, defaults.PrimaryAirports, defaults.ExpiryWarningDays),
		"custom":   false,
	})
}

// PUT /admin/settings
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	tenantID, actor, ok := identity(c)
	if !ok {
		return
	}

	var req TenantSettingsRequest
	if !bindJSON(c, &req) {
		return
	}

	amounts := map[string]decimal.Decimal{
		"base_fee":             req.BaseFee,
		"per_seat_fee":         req.PerSeatFee,
		"per_kg_fee":           req.PerKgFee,
		"one_time_multiplier":  req.OneTimeMultiplier,
		"blanket_multiplier":   req.BlanketMultiplier,
		"emergency_multiplier": req.EmergencyMultiplier,
	}
	for field, amount := range amounts {
		if amount.IsNegative() {
			respondError(c, &permit.ArgumentError{Field: field, Reason: "must not be negative"})
			return
		}
	}

	airports := make([]string, len(req.PrimaryAirports))
	for i, a := range req.PrimaryAirports {
		airports[i] = strings.ToUpper(a)
	}
	schedule := fees.PermitFeeSchedule{
		BaseFee:    req.BaseFee,
		PerSeatFee: req.PerSeatFee,
		PerKgFee:   req.PerKgFee,
		Currency:   strings.ToUpper(req.Currency),
		Multipliers: map[permit.PermitType]decimal.Decimal{
			permit.PermitTypeOneTime:   req.OneTimeMultiplier,
			permit.PermitTypeBlanket:   req.BlanketMultiplier,
			permit.PermitTypeEmergency: req.EmergencyMultiplier,
		},
	}
	settings := models.TenantFeeSettingsFromSchedule(tenantID, schedule, airports, req.ExpiryWarningDays)

	if err := h.adminService.UpdateTenantSettings(c.Request.Context(), tenantID, actor, settings); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"settings": settings,
	})
}

// GET /admin/notifications
func (h *AdminHandler) GetNotifications(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	filter := services.NotificationFilter{
		PaginationParams: params,
	}

	if status := c.Query("status"); status != "" {
		s := models.NotificationStatus(status)
		filter.Status = &s
	}

	if priority := c.Query("priority"); priority != "" {
		p := models.NotificationPriority(priority)
		filter.Priority = &p
	}

	notifications, total, err := h.adminService.GetNotifications(c.Request.Context(), tenantID, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(notifications, total, params)
	utils.PaginatedResponse(c, result)
}

// PUT /admin/notifications/:id/read
func (h *AdminHandler) MarkNotificationRead(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.adminService.MarkNotificationRead(c.Request.Context(), tenantID, id); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"id":     id,
		"status": models.NotificationStatusRead,
	})
}

// GET /admin/audit-logs
func (h *AdminHandler) GetAuditLogs(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	filter := services.AuditLogFilter{
		PaginationParams: params,
		ActorID:          c.Query("actor_id"),
		Action:           c.Query("action"),
		ResourceType:     c.Query("resource_type"),
	}

	logs, total, err := h.adminService.GetAuditLogs(c.Request.Context(), tenantID, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(logs, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /admin/analytics
func (h *AdminHandler) GetAnalytics(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}

	// Default to last 30 days
	endDate := time.Now().UTC()
	startDate := endDate.AddDate(0, 0, -30)

	if start := c.Query("start_date"); start != "" {
		t, err := time.Parse("2006-01-02", start)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "start_date"), nil)
			return
		}
		startDate = t
	}

	if end := c.Query("end_date"); end != "" {
		t, err := time.Parse("2006-01-02", end)
		if err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "end_date"), nil)
			return
		}
		// Inclusive of the whole end day.
		endDate = t.AddDate(0, 0, 1)
	}

	metrics := []string{"applications_created", "applications_approved", "applications_rejected", "revenue"}
	if m := c.Query("metrics"); m != "" {
		metrics = strings.Split(m, ",")
	}

	analytics, err := h.adminService.GetAnalytics(c.Request.Context(), tenantID, startDate, endDate, metrics)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"analytics":  analytics,
		"start_date": startDate,
		"end_date":   endDate,
	})
}
