// internal/handlers/document.go
package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/civilaviation/fop-backend/internal/i18n"
	"github.com/civilaviation/fop-backend/internal/permit"
	"github.com/civilaviation/fop-backend/internal/services"
	"github.com/civilaviation/fop-backend/internal/utils"
)

// POST /applications/:id/documents (multipart: file, type, expiry_date)
func (h *ApplicationHandler) UploadDocument(c *gin.Context) {
	maxUploadMB := h.maxUploadMB
	lang := utils.GetLangFromContext(c)

	var req services.UploadDocumentRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "file"), nil)
		return
	}
	maxBytes := int64(maxUploadMB) << 20
	if maxBytes > 0 && header.Size > maxBytes {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileTooLarge, maxUploadMB), nil)
		return
	}

	file, err := header.Open()
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileUploadFailed), err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileUploadFailed), err.Error())
		return
	}
	req.FileName = header.Filename
	req.Data = data

	h.applicationAction(c, func(tenantID, actor string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.UploadDocument(c.Request.Context(), tenantID, id, actor, &req)
	})
}

// GET /applications/:id/documents/:type
func (h *ApplicationHandler) DownloadDocument(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	doc, url, presigned, err := h.applicationService.DocumentURL(c.Request.Context(), tenantID, id, permit.DocumentType(c.Param("type")))
	if err != nil {
		respondError(c, err)
		return
	}
	if presigned {
		c.Redirect(http.StatusTemporaryRedirect, url)
		return
	}

	data, err := h.applicationService.DocumentContent(c.Request.Context(), doc.Locator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	c.Data(http.StatusOK, doc.MimeType, data)
}

// POST /applications/:id/documents/:type/verify
func (h *ApplicationHandler) VerifyDocument(c *gin.Context) {
	docType := permit.DocumentType(c.Param("type"))
	h.applicationAction(c, func(tenantID, actor string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.VerifyDocument(c.Request.Context(), tenantID, id, actor, docType)
	})
}

// POST /applications/:id/documents/:type/reject
func (h *ApplicationHandler) RejectDocument(c *gin.Context) {
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	docType := permit.DocumentType(c.Param("type"))
	h.applicationAction(c, func(tenantID, actor string, id uuid.UUID) (*permit.Application, error) {
		return h.applicationService.RejectDocument(c.Request.Context(), tenantID, id, actor, docType, req.Reason)
	})
}
