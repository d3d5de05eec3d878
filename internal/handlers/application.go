// internal/handlers/application.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/civilaviation/fop-backend/internal/permit"
	"github.com/civilaviation/fop-backend/internal/services"
	"github.com/civilaviation/fop-backend/internal/utils"
)

type ApplicationHandler struct {
	applicationService *services.ApplicationService
	maxUploadMB        int
}

func NewApplicationHandler(applicationService *services.ApplicationService, maxUploadMB int) *ApplicationHandler {
	return &ApplicationHandler{
		applicationService: applicationService,
		maxUploadMB:        maxUploadMB,
	}
}

type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type FeeOverrideRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"required,currency"`
	Justification string          `json:"justification" validate:"required,max=1000"`
}

type WaiverRequest struct {
	Type   string `json:"type" validate:"required,oneof=emergency humanitarian government diplomatic military other"`
	Reason string `json:"reason" validate:"required,max=1000"`
}

type ApproveWaiverRequest struct {
	Percentage decimal.Decimal `json:"percentage"`
	Notes      string          `json:"notes" validate:"max=1000"`
}

// POST /applications
func (h *ApplicationHandler) CreateApplication(c *gin.Context) {
	tenantID, actor, ok := identity(c)
	if !ok {
		return
	}

	var req services.CreateApplicationRequest
	if !bindJSON(c, &req) {
		return
	}

	app, err := h.applicationService.Create(c.Request.Context(), tenantID, actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"application": app,
	})
}

// GET /applications
func (h *ApplicationHandler) GetApplications(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	filter := services.ApplicationFilter{
		PaginationParams: params,
	}

	if status := c.Query("status"); status != "" {
		s := permit.Status(status)
		filter.Status = &s
	}

	if permitType := c.Query("permit_type"); permitType != "" {
		pt := permit.PermitType(permitType)
		filter.PermitType = &pt
	}

	if operatorID := c.Query("operator_id"); operatorID != "" {
		id, err := uuid.Parse(operatorID)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid operator_id", nil)
			return
		}
		filter.OperatorID = &id
	}

	if flagged := c.Query("flagged"); flagged != "" {
		f, err := strconv.ParseBool(flagged)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid flagged filter", nil)
			return
		}
		filter.Flagged = &f
	}

	applications, total, err := h.applicationService.List(c.Request.Context(), tenantID, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(applications, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /applications/:id
func (h *ApplicationHandler) GetApplication(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	app, err := h.applicationService.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"application": app,
	})
}

// applicationAction runs one aggregate operation addressed by :id and
// answers with the updated application.
func (h *ApplicationHandler) applicationAction(c *gin.Context, run func(tenantID, actor string, id uuid.UUID) (*permit.Application, error)) {
	tenantID, actor, ok := identity(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	app, err := run(tenantID, actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"application": app,
	})
}

// POST /applications/:id/submit
func (h *ApplicationHandler) SubmitApplication(c *gin.Context) {
	h.applicationAction(c, func(tenantID, actor string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.Submit(c.Request.Context(), tenantID, id, actor)
	})
}

// POST /applications/:id/review
func (h *ApplicationHandler) StartReview(c *gin.Context) {
	h.applicationAction(c, func(tenantID, actor string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.StartReview(c.Request.Context(), tenantID, id, actor)
	})
}

// POST /applications/:id/approve
func (h *ApplicationHandler) ApproveApplication(c *gin.Context) {
	h.applicationAction(c, func(tenantID, actor string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.Approve(c.Request.Context(), tenantID, id, actor)
	})
}

// POST /applications/:id/reject
func (h *ApplicationHandler) RejectApplication(c *gin.Context) {
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	h.applicationAction(c, func(tenantID, actor string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.Reject(c.Request.Context(), tenantID, id, actor, req.Reason)
	})
}

// POST /applications/:id/cancel
func (h *ApplicationHandler) CancelApplication(c *gin.Context) {
	var req CancelRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	h.applicationAction(c, func(tenantID, actor string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.Cancel(c.Request.Context(), tenantID, id, actor, req.Reason)
	})
}

// POST /applications/:id/fee-override
func (h *ApplicationHandler) OverrideFee(c *gin.Context) {
	var req FeeOverrideRequest
	if !bindJSON(c, &req) {
		return
	}
	fee, err := permit.NewMoney(req.Amount, req.Currency)
	if err != nil {
		respondError(c, err)
		return
	}
	h.applicationAction(c, func(tenantID, actor string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.OverrideFee(c.Request.Context(), tenantID, id, actor, fee, req.Justification)
	})
}

// POST /applications/:id/waivers
func (h *ApplicationHandler) RequestWaiver(c *gin.Context) {
	var req WaiverRequest
	if !bindJSON(c, &req) {
		return
	}
	h.applicationAction(c, func(tenantID, actor string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.RequestWaiver(c.Request.Context(), tenantID, id, actor, permit.WaiverType(req.Type), req.Reason)
	})
}

// POST /applications/:id/waivers/:waiverId/approve
func (h *ApplicationHandler) ApproveWaiver(c *gin.Context) {
	waiverID, ok := parseUUIDParam(c, "waiverId")
	if !ok {
		return
	}
	var req ApproveWaiverRequest
	if !bindJSON(c, &req) {
		return
	}
	h.applicationAction(c, func(tenantID, actor string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.ApproveWaiver(c.Request.Context(), tenantID, id, waiverID, actor, req.Percentage, req.Notes)
	})
}

// POST /applications/:id/waivers/:waiverId/reject
func (h *ApplicationHandler) RejectWaiver(c *gin.Context) {
	waiverID, ok := parseUUIDParam(c, "waiverId")
	if !ok {
		return
	}
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	h.applicationAction(c, func(tenantID, actor string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.RejectWaiver(c.Request.Context(), tenantID, id, waiverID, actor, req.Reason)
	})
}

// POST /applications/:id/flag
func (h *ApplicationHandler) FlagApplication(c *gin.Context) {
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	h.applicationAction(c, func(tenantID, actor string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.Flag(c.Request.Context(), tenantID, id, actor, req.Reason)
	})
}

// POST /applications/:id/unflag
func (h *ApplicationHandler) UnflagApplication(c *gin.Context) {
	h.applicationAction(c, func(tenantID, actor string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.Unflag(c.Request.Context(), tenantID, id, actor)
	})
}
