// internal/handlers/payment.go
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/civilaviation/fop-backend/internal/i18n"
	"github.com/civilaviation/fop-backend/internal/permit"
	"github.com/civilaviation/fop-backend/internal/services"
	"github.com/civilaviation/fop-backend/internal/utils"
)

// maxWebhookBytes bounds a gateway callback body.
const maxWebhookBytes = 64 << 10

type PaymentHandler struct {
	applicationService *services.ApplicationService
	paymentService     *services.PaymentService
}

func NewPaymentHandler(applicationService *services.ApplicationService, paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		applicationService: applicationService,
		paymentService:     paymentService,
	}
}

type PaymentMethodRequest struct {
	Method string `json:"method" validate:"required,oneof=card bank_transfer cash"`
}

type CompletePaymentRequest struct {
	TransactionReference string `json:"transaction_reference" validate:"required,max=255"`
	ReceiptNumber        string `json:"receipt_number" validate:"max=100"`
	ReceiptURL           string `json:"receipt_url" validate:"omitempty,url"`
}

func (h *PaymentHandler) paymentResult(c *gin.Context, run func(tenantID string, id uuid.UUID) (*services.PaymentResult, error)) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	result, err := run(tenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, result)
}

func (h *PaymentHandler) paymentAction(c *gin.Context, run func(tenantID, actor string, id uuid.UUID) (*permit.Application, error)) {
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

// POST /applications/:id/payment
func (h *PaymentHandler) RequestPayment(c *gin.Context) {
	var req PaymentMethodRequest
	if !bindJSON(c, &req) {
		return
	}
	h.paymentResult(c, func(tenantID string, id uuid.UUID) (*services.PaymentResult, error) {
		return h.applicationService.RequestPayment(c.Request.Context(), tenantID, id, permit.PaymentMethod(req.Method))
	})
}

// POST /applications/:id/payment/retry
func (h *PaymentHandler) RetryPayment(c *gin.Context) {
	var req PaymentMethodRequest
	if !bindJSON(c, &req) {
		return
	}
	h.paymentResult(c, func(tenantID string, id uuid.UUID) (*services.PaymentResult, error) {
		return h.applicationService.RetryPayment(c.Request.Context(), tenantID, id, permit.PaymentMethod(req.Method))
	})
}

// POST /applications/:id/payment/sync
func (h *PaymentHandler) SyncPayment(c *gin.Context) {
	h.paymentAction(c, func(tenantID, _ string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.SyncPayment(c.Request.Context(), tenantID, id)
	})
}

// POST /applications/:id/payment/complete
func (h *PaymentHandler) CompletePayment(c *gin.Context) {
	var req CompletePaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	h.paymentAction(c, func(tenantID, _ string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.CompletePayment(c.Request.Context(), tenantID, id, permit.CompletePaymentParams{
			TransactionReference: req.TransactionReference,
			ReceiptNumber:        req.ReceiptNumber,
			ReceiptURL:           req.ReceiptURL,
		})
	})
}

// POST /applications/:id/payment/fail
func (h *PaymentHandler) FailPayment(c *gin.Context) {
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	h.paymentAction(c, func(tenantID, _ string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.FailPayment(c.Request.Context(), tenantID, id, req.Reason)
	})
}

// POST /applications/:id/payment/verify
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	h.paymentAction(c, func(tenantID, actor string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.VerifyPayment(c.Request.Context(), tenantID, id, actor)
	})
}

// POST /applications/:id/payment/refund
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	h.paymentAction(c, func(tenantID, _ string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.RefundPayment(c.Request.Context(), tenantID, id, req.Reason)
	})
}

// POST /webhooks/stripe
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "payload"), nil)
		return
	}

	intent, err := h.paymentService.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		logrus.WithError(err).Warn("Rejected payment webhook")
		respondError(c, err)
		return
	}

	if err := h.applicationService.HandleGatewayEvent(c.Request.Context(), intent); err != nil {
		// A non-2xx answer makes the gateway redeliver.
		logrus.WithError(err).Error("Failed to apply payment webhook")
		utils.InternalErrorResponse(c, "")
		return
	}

	c.Status(http.StatusOK)
}
