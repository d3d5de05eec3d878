// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/civilaviation/fop-backend/internal/i18n"
	"github.com/civilaviation/fop-backend/internal/permit"
	"github.com/civilaviation/fop-backend/internal/services"
	"github.com/civilaviation/fop-backend/internal/utils"
)

// respondError maps service and domain errors onto HTTP responses.
func respondError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	var (
		argErr        *permit.ArgumentError
		transitionErr *permit.TransitionError
		missingErr    *permit.MissingDocumentsError
		expiredErr    *permit.DocumentExpiredError
		ruleErr       *permit.RuleError
		notFoundErr   *permit.NotFoundError
	)

	switch {
	case errors.Is(err, services.ErrConcurrentModification):
		utils.ConflictResponse(c, "CONCURRENT_MODIFICATION", i18n.T(lang, i18n.KeyApplicationConflict), nil)
	case errors.Is(err, services.ErrGateway):
		logrus.WithError(err).Warn("Payment gateway call failed")
		utils.ErrorResponse(c, http.StatusBadGateway, "PAYMENT_GATEWAY_ERROR", i18n.T(lang, i18n.KeyPaymentGateway), nil)
	case errors.As(err, &missingErr):
		utils.UnprocessableResponse(c, "MISSING_DOCUMENTS", i18n.T(lang, i18n.KeyApplicationMissingDocs),
			gin.H{"missing": missingErr.Missing})
	case errors.As(err, &expiredErr):
		utils.UnprocessableResponse(c, "DOCUMENT_EXPIRED", i18n.T(lang, i18n.KeyDocumentExpired),
			gin.H{"document_type": expiredErr.DocumentType, "expiry_date": expiredErr.ExpiryDate.Format("2006-01-02")})
	case errors.As(err, &ruleErr):
		utils.UnprocessableResponse(c, "RULE_VIOLATION", i18n.T(lang, i18n.KeyApplicationRule),
			gin.H{"rule": ruleErr.Rule, "reason": ruleErr.Message})
	case errors.Is(err, permit.ErrRuleViolation):
		utils.UnprocessableResponse(c, "RULE_VIOLATION", i18n.T(lang, i18n.KeyApplicationRule), err.Error())
	case errors.As(err, &transitionErr):
		utils.ConflictResponse(c, "INVALID_TRANSITION", i18n.T(lang, i18n.KeyApplicationTransition),
			gin.H{"operation": transitionErr.Operation, "status": transitionErr.Actual, "expected": transitionErr.Expected})
	case errors.Is(err, permit.ErrInvalidTransition):
		utils.ConflictResponse(c, "INVALID_TRANSITION", i18n.T(lang, i18n.KeyApplicationTransition), err.Error())
	case errors.As(err, &notFoundErr):
		key := strings.ReplaceAll(notFoundErr.Kind, " ", "_") + ".not_found"
		message := i18n.T(lang, key)
		if message == key {
			message = err.Error()
		}
		utils.ErrorResponse(c, http.StatusNotFound, "NOT_FOUND", message, gin.H{"key": notFoundErr.Key})
	case errors.Is(err, permit.ErrNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.As(err, &argErr):
		utils.BadRequestResponse(c, err.Error(), gin.H{"field": argErr.Field, "reason": argErr.Reason})
	case errors.Is(err, permit.ErrInvalidArgument):
		utils.BadRequestResponse(c, err.Error(), nil)
	default:
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		utils.InternalErrorResponse(c, "")
	}
}

// bindJSON decodes and validates a request body, writing the error response
// itself when it fails.
func bindJSON(c *gin.Context, req interface{}) bool {
	lang := utils.GetLangFromContext(c)
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, name), nil)
		return uuid.Nil, false
	}
	return id, true
}

// identity returns the tenant and the acting user. The middleware chain
// guarantees both on protected routes.
func identity(c *gin.Context) (tenantID, actor string, ok bool) {
	tenantID, ok = utils.GetTenantFromContext(c)
	if !ok {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyAuthTenantMissing), nil)
		return "", "", false
	}
	actor, ok = utils.GetActorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return "", "", false
	}
	return tenantID, actor, true
}

func tenantOf(c *gin.Context) (string, bool) {
	tenantID, ok := utils.GetTenantFromContext(c)
	if !ok {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyAuthTenantMissing), nil)
	}
	return tenantID, ok
}
