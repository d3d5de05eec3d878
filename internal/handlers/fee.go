// internal/handlers/fee.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civilaviation/fop-backend/internal/services"
	"github.com/civilaviation/fop-backend/internal/utils"
)

// FeeHandler serves the public fee quotes.
type FeeHandler struct {
	feeService *services.FeeService
}

func NewFeeHandler(feeService *services.FeeService) *FeeHandler {
	return &FeeHandler{
		feeService: feeService,
	}
}

// POST /fees/permit-quote
func (h *FeeHandler) QuotePermit(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	var req services.PermitQuoteRequest
	if !bindJSON(c, &req) {
		return
	}

	quote, err := h.feeService.QuotePermit(c.Request.Context(), tenantID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"quote": quote,
	})
}

// POST /fees/tariff-quote
func (h *FeeHandler) QuoteTariff(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	var req services.TariffQuoteRequest
	if !bindJSON(c, &req) {
		return
	}

	quote, err := h.feeService.QuoteTariff(c.Request.Context(), tenantID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"quote": quote,
	})
}

// POST /fees/interest
func (h *FeeHandler) QuoteInterest(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	var req services.InterestQuoteRequest
	if !bindJSON(c, &req) {
		return
	}

	interest, err := h.feeService.QuoteInterest(c.Request.Context(), tenantID, &req, time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"interest":     interest,
		"days_overdue": req.DaysOverdue,
	})
}
