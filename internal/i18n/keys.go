// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess     = "success"
	KeyError       = "error"
	KeyRateLimited = "rate_limited"

	// Authentication
	KeyAuthRequired      = "auth.required"
	KeyAuthInvalidToken  = "auth.invalid_token"
	KeyAuthTokenExpired  = "auth.token_expired"
	KeyAuthTenantMissing = "auth.tenant_missing"
	KeyAccessDenied      = "auth.access_denied"

	// Applications
	KeyApplicationNotFound    = "application.not_found"
	KeyApplicationConflict    = "application.concurrent_modification"
	KeyApplicationTransition  = "application.invalid_transition"
	KeyApplicationRule        = "application.rule_violation"
	KeyApplicationMissingDocs = "application.missing_documents"

	// Documents
	KeyDocumentNotFound = "document.not_found"
	KeyDocumentExpired  = "document.expired"

	// Payments
	KeyPaymentNotFound = "payment.not_found"
	KeyPaymentGateway  = "payment.gateway_error"

	// Waivers
	KeyWaiverNotFound = "waiver.not_found"

	// Fees
	KeyFeeRateNotFound = "fee_rate.not_found"

	// Notifications
	KeyNotificationNotFound = "notification.not_found"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"

	// File Upload
	KeyFileUploadFailed = "file.upload_failed"
	KeyFileInvalidType  = "file.invalid_type"
	KeyFileTooLarge     = "file.too_large"
)
