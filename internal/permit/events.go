// internal/permit/events.go
package permit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventApplicationCreated                    EventType = "application.created"
	EventApplicationSubmitted                  EventType = "application.submitted"
	EventReviewStarted                         EventType = "application.review_started"
	EventDocumentUploaded                      EventType = "document.uploaded"
	EventDocumentVerified                      EventType = "document.verified"
	EventDocumentRejected                      EventType = "document.rejected"
	EventDocumentExpired                       EventType = "document.expired"
	EventDocumentExpiringSoon                  EventType = "document.expiring_soon"
	EventDocumentVerificationFailedDueToExpiry EventType = "document.verification_failed_expired"
	EventPaymentRequested                      EventType = "payment.requested"
	EventPaymentProcessing                     EventType = "payment.processing"
	EventPaymentCompleted                      EventType = "payment.completed"
	EventPaymentFailed                         EventType = "payment.failed"
	EventPaymentRefunded                       EventType = "payment.refunded"
	EventPaymentVerified                       EventType = "payment.verified"
	EventApplicationApproved                   EventType = "application.approved"
	EventApplicationRejected                   EventType = "application.rejected"
	EventApplicationCancelled                  EventType = "application.cancelled"
	EventWaiverRequested                       EventType = "waiver.requested"
	EventWaiverApproved                        EventType = "waiver.approved"
	EventWaiverRejected                        EventType = "waiver.rejected"
	EventFeeOverridden                         EventType = "fee.overridden"
	EventApplicationFlagged                    EventType = "application.flagged"
	EventApplicationUnflagged                  EventType = "application.unflagged"
)

// Event is a fact recorded by the aggregate for consumers outside the core.
type Event interface {
	Type() EventType
	AggregateID() uuid.UUID
	Tenant() string
	OccurredOn() time.Time
}

// EventHeader is embedded in every event.
type EventHeader struct {
	ApplicationID     uuid.UUID `json:"application_id"`
	ApplicationNumber string    `json:"application_number"`
	TenantID          string    `json:"tenant_id"`
	OccurredAt        time.Time `json:"occurred_at"`
}

func (h EventHeader) AggregateID() uuid.UUID { return h.ApplicationID }
func (h EventHeader) Tenant() string { return h.TenantID }
func (h EventHeader) OccurredOn() time.Time { return h.OccurredAt }

type ApplicationCreated struct {
	EventHeader
	PermitType PermitType `json:"permit_type"`
	OperatorID uuid.UUID  `json:"operator_id"`
	Fee        Money      `json:"fee"`
}

type ApplicationSubmitted struct {
	EventHeader
	SubmittedBy string `json:"submitted_by"`
}

type ReviewStarted struct {
	EventHeader
	Reviewer string `json:"reviewer"`
}

type DocumentUploaded struct {
	EventHeader
	DocumentType DocumentType `json:"document_type"`
	Locator      string       `json:"locator"`
	Replaced     bool         `json:"replaced"`
}

type DocumentVerified struct {
	EventHeader
	DocumentType DocumentType `json:"document_type"`
	VerifiedBy   string       `json:"verified_by"`
}

type DocumentRejected struct {
	EventHeader
	DocumentType DocumentType `json:"document_type"`
	RejectedBy   string       `json:"rejected_by"`
	Reason       string       `json:"reason"`
}

type DocumentExpired struct {
	EventHeader
	DocumentType DocumentType `json:"document_type"`
	ExpiryDate   time.Time    `json:"expiry_date"`
}

type DocumentExpiringSoon struct {
	EventHeader
	DocumentType  DocumentType `json:"document_type"`
	ExpiryDate    time.Time    `json:"expiry_date"`
	DaysRemaining int          `json:"days_remaining"`
}

type DocumentVerificationFailedDueToExpiry struct {
	EventHeader
	DocumentType DocumentType `json:"document_type"`
	ExpiryDate   time.Time    `json:"expiry_date"`
	AttemptedBy  string       `json:"attempted_by"`
}

type PaymentRequested struct {
	EventHeader
	PaymentID uuid.UUID `json:"payment_id"`
	Amount    Money     `json:"amount"`
}

type PaymentProcessing struct {
	EventHeader
	PaymentID            uuid.UUID `json:"payment_id"`
	TransactionReference string    `json:"transaction_reference"`
}

type PaymentCompleted struct {
	EventHeader
	PaymentID            uuid.UUID `json:"payment_id"`
	Amount               Money     `json:"amount"`
	TransactionReference string    `json:"transaction_reference"`
	ReceiptNumber        string    `json:"receipt_number"`
}

type PaymentFailed struct {
	EventHeader
	PaymentID uuid.UUID `json:"payment_id"`
	Reason    string    `json:"reason"`
}

type PaymentRefunded struct {
	EventHeader
	PaymentID uuid.UUID `json:"payment_id"`
	Reason    string    `json:"reason"`
}

type PaymentVerified struct {
	EventHeader
	PaymentID  uuid.UUID `json:"payment_id"`
	VerifiedBy string    `json:"verified_by"`
}

type ApplicationApproved struct {
	EventHeader
	ApprovedBy string `json:"approved_by"`
	Validity   Period `json:"validity"`
}

type ApplicationRejected struct {
	EventHeader
	RejectedBy string `json:"rejected_by"`
	Reason     string `json:"reason"`
}

type ApplicationCancelled struct {
	EventHeader
	CancelledBy      string `json:"cancelled_by"`
	Reason           string `json:"reason"`
	PaymentCancelled bool   `json:"payment_cancelled"`
}

type WaiverRequested struct {
	EventHeader
	WaiverID    uuid.UUID  `json:"waiver_id"`
	WaiverType  WaiverType `json:"waiver_type"`
	RequestedBy string     `json:"requested_by"`
}

type WaiverApproved struct {
	EventHeader
	WaiverID     uuid.UUID       `json:"waiver_id"`
	Percentage   decimal.Decimal `json:"percentage"`
	WaivedAmount Money           `json:"waived_amount"`
	NewFee       Money           `json:"new_fee"`
	ApprovedBy   string          `json:"approved_by"`
}

type WaiverRejected struct {
	EventHeader
	WaiverID   uuid.UUID `json:"waiver_id"`
	RejectedBy string    `json:"rejected_by"`
	Reason     string    `json:"reason"`
}

type FeeOverridden struct {
	EventHeader
	PreviousFee   Money  `json:"previous_fee"`
	NewFee        Money  `json:"new_fee"`
	Justification string `json:"justification"`
	OverriddenBy  string `json:"overridden_by"`
}

type ApplicationFlagged struct {
	EventHeader
	Reason    string `json:"reason"`
	FlaggedBy string `json:"flagged_by"`
}

type ApplicationUnflagged struct {
	EventHeader
	UnflaggedBy string `json:"unflagged_by"`
}

func (ApplicationCreated) Type() EventType { return EventApplicationCreated }
func (ApplicationSubmitted) Type() EventType { return EventApplicationSubmitted }
func (ReviewStarted) Type() EventType { return EventReviewStarted }
func (DocumentUploaded) Type() EventType { return EventDocumentUploaded }
func (DocumentVerified) Type() EventType { return EventDocumentVerified }
func (DocumentRejected) Type() EventType { return EventDocumentRejected }
func (DocumentExpired) Type() EventType { return EventDocumentExpired }
func (DocumentExpiringSoon) Type() EventType { return EventDocumentExpiringSoon }
func (DocumentVerificationFailedDueToExpiry) Type() EventType { return EventDocumentVerificationFailedDueToExpiry }
func (PaymentRequested) Type() EventType { return EventPaymentRequested }
func (PaymentProcessing) Type() EventType { return EventPaymentProcessing }
func (PaymentCompleted) Type() EventType { return EventPaymentCompleted }
func (PaymentFailed) Type() EventType { return EventPaymentFailed }
func (PaymentRefunded) Type() EventType { return EventPaymentRefunded }
func (PaymentVerified) Type() EventType { return EventPaymentVerified }
func (ApplicationApproved) Type() EventType { return EventApplicationApproved }
func (ApplicationRejected) Type() EventType { return EventApplicationRejected }
func (ApplicationCancelled) Type() EventType { return EventApplicationCancelled }
func (WaiverRequested) Type() EventType { return EventWaiverRequested }
func (WaiverApproved) Type() EventType { return EventWaiverApproved }
func (WaiverRejected) Type() EventType { return EventWaiverRejected }
func (FeeOverridden) Type() EventType { return EventFeeOverridden }
func (ApplicationFlagged) Type() EventType { return EventApplicationFlagged }
func (ApplicationUnflagged) Type() EventType { return EventApplicationUnflagged }
