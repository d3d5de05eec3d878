// internal/permit/status.go
package permit

type PermitType string

const (
	PermitTypeOneTime   PermitType = "one_time"
	PermitTypeBlanket   PermitType = "blanket"
	PermitTypeEmergency PermitType = "emergency"
)

func (t PermitType) Valid() bool {
	switch t {
	case PermitTypeOneTime, PermitTypeBlanket, PermitTypeEmergency:
		return true
	}
	return false
}

type Status string

const (
	StatusDraft            Status = "draft"
	StatusSubmitted        Status = "submitted"
	StatusUnderReview      Status = "under_review"
	StatusPendingDocuments Status = "pending_documents"
	StatusPendingPayment   Status = "pending_payment"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusCancelled        Status = "cancelled"
)

var AllStatuses = []Status{
	StatusDraft, StatusSubmitted, StatusUnderReview, StatusPendingDocuments,
	StatusPendingPayment, StatusApproved, StatusRejected, StatusCancelled,
}

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

var nonTerminalStatuses = []Status{
	StatusDraft, StatusSubmitted, StatusUnderReview, StatusPendingDocuments, StatusPendingPayment,
}

type DocumentType string

const (
	DocumentAirworthiness       DocumentType = "airworthiness"
	DocumentRegistration        DocumentType = "registration"
	DocumentOperatorCertificate DocumentType = "operator_certificate"
	DocumentInsurance           DocumentType = "insurance"
	DocumentNoiseCertificate    DocumentType = "noise_certificate"
	DocumentCrewLicenses        DocumentType = "crew_licenses"
	DocumentOther               DocumentType = "other"
)

// RequiredDocumentTypes must all be present before an application can be
// submitted.
var RequiredDocumentTypes = []DocumentType{
	DocumentAirworthiness,
	DocumentRegistration,
	DocumentOperatorCertificate,
	DocumentInsurance,
}

func (t DocumentType) Valid() bool {
	switch t {
	case DocumentAirworthiness, DocumentRegistration, DocumentOperatorCertificate, DocumentInsurance,
		DocumentNoiseCertificate, DocumentCrewLicenses, DocumentOther:
		return true
	}
	return false
}

type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "pending"
	DocumentStatusVerified DocumentStatus = "verified"
	DocumentStatusRejected DocumentStatus = "rejected"
	DocumentStatusExpired  DocumentStatus = "expired"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// Active reports whether the payment can still move towards completion.
func (s PaymentStatus) Active() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCash         PaymentMethod = "cash"
)

type WaiverType string

const (
	WaiverTypeEmergency    WaiverType = "emergency"
	WaiverTypeHumanitarian WaiverType = "humanitarian"
	WaiverTypeGovernment   WaiverType = "government"
	WaiverTypeDiplomatic   WaiverType = "diplomatic"
	WaiverTypeMilitary     WaiverType = "military"
	WaiverTypeOther        WaiverType = "other"
)

func (t WaiverType) Valid() bool {
	switch t {
	case WaiverTypeEmergency, WaiverTypeHumanitarian, WaiverTypeGovernment,
		WaiverTypeDiplomatic, WaiverTypeMilitary, WaiverTypeOther:
		return true
	}
	return false
}

type WaiverStatus string

const (
	WaiverStatusPending  WaiverStatus = "pending"
	WaiverStatusApproved WaiverStatus = "approved"
	WaiverStatusRejected WaiverStatus = "rejected"
)
