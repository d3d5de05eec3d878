// internal/permit/application.go
package permit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Application is the aggregate root of one permit request. It owns its
// documents, payment and waivers; operator and aircraft are referenced by id.
//
// Fields are exported so the persistence layer can rebuild the aggregate, but
// every change of state must go through the methods below.
type Application struct {
	ID         uuid.UUID     `json:"id"`
	TenantID   string        `json:"tenant_id"`
	Number     string        `json:"number"`
	PermitType PermitType    `json:"permit_type"`
	Status     Status        `json:"status"`
	OperatorID uuid.UUID     `json:"operator_id"`
	AircraftID uuid.UUID     `json:"aircraft_id"`
	Flight     FlightDetails `json:"flight"`
	Validity   Period        `json:"validity"`

	CalculatedFee Money `json:"calculated_fee"`
	OriginalFee   Money `json:"original_fee"`

	SubmittedAt        *time.Time `json:"submitted_at,omitempty"`
	SubmittedBy        string     `json:"submitted_by,omitempty"`
	ReviewedAt         *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy         string     `json:"reviewed_by,omitempty"`
	ApprovedAt         *time.Time `json:"approved_at,omitempty"`
	ApprovedBy         string     `json:"approved_by,omitempty"`
	RejectedAt         *time.Time `json:"rejected_at,omitempty"`
	RejectedBy         string     `json:"rejected_by,omitempty"`
	RejectionReason    string     `json:"rejection_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        string     `json:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`

	FeeOverride *FeeOverride `json:"fee_override,omitempty"`
	Flagging    FlagState    `json:"flag"`

	Documents []*Document `json:"documents"`
	Payment   *Payment    `json:"payment,omitempty"`
	Waivers   []*Waiver   `json:"waivers"`

	Version   int64     `json:"version"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	events []Event
}

type FeeOverride struct {
	PreviousFee   Money     `json:"previous_fee"`
	NewFee        Money     `json:"new_fee"`
	Justification string    `json:"justification"`
	OverriddenBy  string    `json:"overridden_by"`
	OverriddenAt  time.Time `json:"overridden_at"`
}

// FlagState is independent of the lifecycle status.
type FlagState struct {
	Flagged     bool       `json:"flagged"`
	Reason      string     `json:"reason,omitempty"`
	FlaggedBy   string     `json:"flagged_by,omitempty"`
	FlaggedAt   *time.Time `json:"flagged_at,omitempty"`
	UnflaggedBy string     `json:"unflagged_by,omitempty"`
	UnflaggedAt *time.Time `json:"unflagged_at,omitempty"`
}

type NewApplicationParams struct {
	ID         uuid.UUID
	TenantID   string
	Number     string
	PermitType PermitType
	OperatorID uuid.UUID
	AircraftID uuid.UUID
	Flight     FlightDetails
	Validity   Period
	Fee        Money
	CreatedBy  string
}

// FormatNumber builds the human-readable application number.
func FormatNumber(year int, suffix string) string {
	return fmt.Sprintf("FOP-%d-%s", year, strings.ToUpper(suffix))
}

// New creates a draft application.
func New(p NewApplicationParams, now time.Time) (*Application, error) {
	if strings.TrimSpace(p.TenantID) == "" {
		return nil, invalidArg("tenant_id", "is required")
	}
	if strings.TrimSpace(p.Number) == "" {
		return nil, invalidArg("number", "is required")
	}
	if !p.PermitType.Valid() {
		return nil, invalidArg("permit_type", fmt.Sprintf("unknown permit type %q", p.PermitType))
	}
	if p.OperatorID == uuid.Nil {
		return nil, invalidArg("operator_id", "is required")
	}
	if p.AircraftID == uuid.Nil {
		return nil, invalidArg("aircraft_id", "is required")
	}
	if err := requireActor("created_by", p.CreatedBy); err != nil {
		return nil, err
	}
	flight, err := NewFlightDetails(p.Flight)
	if err != nil {
		return nil, err
	}
	validity, err := NewPeriod(p.Validity.Start, p.Validity.End)
	if err != nil {
		return nil, err
	}
	fee, err := NewMoney(p.Fee.Amount, p.Fee.Currency)
	if err != nil {
		return nil, err
	}

	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	a := &Application{
		ID:            id,
		TenantID:      p.TenantID,
		Number:        p.Number,
		PermitType:    p.PermitType,
		Status:        StatusDraft,
		OperatorID:    p.OperatorID,
		AircraftID:    p.AircraftID,
		Flight:        flight,
		Validity:      validity,
		CalculatedFee: fee.Round(),
		OriginalFee:   fee.Round(),
		CreatedBy:     p.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	a.record(ApplicationCreated{
		EventHeader: a.header(now),
		PermitType:  a.PermitType,
		OperatorID:  a.OperatorID,
		Fee:         a.CalculatedFee,
	})
	return a, nil
}

// PullEvents returns the events recorded since the last call and clears them.
func (a *Application) PullEvents() []Event {
	events := a.events
	a.events = nil
	return events
}

// PendingEvents returns the recorded events without clearing them.
func (a *Application) PendingEvents() []Event {
	return append([]Event(nil), a.events...)
}

func (a *Application) record(e Event) {
	a.events = append(a.events, e)
}

func (a *Application) header(now time.Time) EventHeader {
	return EventHeader{
		ApplicationID:     a.ID,
		ApplicationNumber: a.Number,
		TenantID:          a.TenantID,
		OccurredAt:        now,
	}
}

func (a *Application) touch(now time.Time) {
	a.UpdatedAt = now
}

func (a *Application) requireStatus(op string, allowed ...Status) error {
	for _, s := range allowed {
		if a.Status == s {
			return nil
		}
	}
	return transitionErr(op, a.Status, allowed...)
}

// Submit moves a draft to Submitted once every required document type has
// been uploaded. Verification is not required at this point.
func (a *Application) Submit(submittedBy string, now time.Time) error {
	if err := requireActor("submitted_by", submittedBy); err != nil {
		return err
	}
	if err := a.requireStatus("submit", StatusDraft); err != nil {
		return err
	}
	if missing := a.MissingDocumentTypes(); len(missing) > 0 {
		return &MissingDocumentsError{Missing: missing}
	}

	a.Status = StatusSubmitted
	a.SubmittedAt = timePtr(now)
	a.SubmittedBy = submittedBy
	a.touch(now)
	a.record(ApplicationSubmitted{EventHeader: a.header(now), SubmittedBy: submittedBy})
	return nil
}

func (a *Application) StartReview(reviewer string, now time.Time) error {
	if err := requireActor("reviewer", reviewer); err != nil {
		return err
	}
	if err := a.requireStatus("start review of", StatusSubmitted); err != nil {
		return err
	}

	a.Status = StatusUnderReview
	a.ReviewedAt = timePtr(now)
	a.ReviewedBy = reviewer
	a.touch(now)
	a.record(ReviewStarted{EventHeader: a.header(now), Reviewer: reviewer})
	return nil
}

// Approve requires a completed payment.
func (a *Application) Approve(approver string, now time.Time) error {
	if err := requireActor("approved_by", approver); err != nil {
		return err
	}
	if err := a.requireStatus("approve", StatusPendingPayment, StatusUnderReview); err != nil {
		return err
	}
	if a.Payment == nil {
		return ruleErr(RulePaymentMissing, "application %s has no payment", a.Number)
	}
	if a.Payment.Status != PaymentStatusCompleted {
		return ruleErr(RulePaymentNotCompleted, "payment is %s, not completed", a.Payment.Status)
	}

	a.Status = StatusApproved
	a.ApprovedAt = timePtr(now)
	a.ApprovedBy = approver
	a.touch(now)
	a.record(ApplicationApproved{EventHeader: a.header(now), ApprovedBy: approver, Validity: a.Validity})
	return nil
}

// Reject closes a non-terminal application. An in-flight payment is
// cancelled with it.
func (a *Application) Reject(reason, rejectedBy string, now time.Time) error {
	if err := requireActor("reason", reason); err != nil {
		return err
	}
	if err := requireActor("rejected_by", rejectedBy); err != nil {
		return err
	}
	if err := a.requireStatus("reject", nonTerminalStatuses...); err != nil {
		return err
	}

	a.cancelActivePayment(now)
	a.Status = StatusRejected
	a.RejectedAt = timePtr(now)
	a.RejectedBy = rejectedBy
	a.RejectionReason = reason
	a.touch(now)
	a.record(ApplicationRejected{EventHeader: a.header(now), RejectedBy: rejectedBy, Reason: reason})
	return nil
}

// Cancel is allowed from every status except Approved and Cancelled.
func (a *Application) Cancel(reason, cancelledBy string, now time.Time) error {
	if err := requireActor("cancelled_by", cancelledBy); err != nil {
		return err
	}
	if a.Status == StatusApproved || a.Status == StatusCancelled {
		return transitionErr("cancel", a.Status,
			StatusDraft, StatusSubmitted, StatusUnderReview, StatusPendingDocuments, StatusPendingPayment, StatusRejected)
	}

	paymentCancelled := a.cancelActivePayment(now)
	a.Status = StatusCancelled
	a.CancelledAt = timePtr(now)
	a.CancelledBy = cancelledBy
	a.CancellationReason = reason
	a.touch(now)
	a.record(ApplicationCancelled{
		EventHeader:      a.header(now),
		CancelledBy:      cancelledBy,
		Reason:           reason,
		PaymentCancelled: paymentCancelled,
	})
	return nil
}

// OverrideFee replaces the calculated fee. Only allowed before submission or
// while the application is under review.
func (a *Application) OverrideFee(newFee Money, justification, overriddenBy string, now time.Time) error {
	fee, err := NewMoney(newFee.Amount, newFee.Currency)
	if err != nil {
		return err
	}
	if err := requireActor("justification", justification); err != nil {
		return err
	}
	if err := requireActor("overridden_by", overriddenBy); err != nil {
		return err
	}
	if fee.Currency != a.CalculatedFee.Currency {
		return invalidArg("currency", fmt.Sprintf("fee currency must be %s", a.CalculatedFee.Currency))
	}
	if err := a.requireStatus("override fee of", StatusDraft, StatusUnderReview); err != nil {
		return err
	}

	previous := a.CalculatedFee
	a.CalculatedFee = fee.Round()
	a.FeeOverride = &FeeOverride{
		PreviousFee:   previous,
		NewFee:        a.CalculatedFee,
		Justification: justification,
		OverriddenBy:  overriddenBy,
		OverriddenAt:  now,
	}
	a.touch(now)
	a.record(FeeOverridden{
		EventHeader:   a.header(now),
		PreviousFee:   previous,
		NewFee:        a.CalculatedFee,
		Justification: justification,
		OverriddenBy:  overriddenBy,
	})
	return nil
}

// Flag marks the application for attention. It does not interact with the
// lifecycle and may be applied again to replace the reason.
func (a *Application) Flag(reason, flaggedBy string, now time.Time) error {
	if err := requireActor("reason", reason); err != nil {
		return err
	}
	if err := requireActor("flagged_by", flaggedBy); err != nil {
		return err
	}

	a.Flagging = FlagState{
		Flagged:   true,
		Reason:    reason,
		FlaggedBy: flaggedBy,
		FlaggedAt: timePtr(now),
	}
	a.touch(now)
	a.record(ApplicationFlagged{EventHeader: a.header(now), Reason: reason, FlaggedBy: flaggedBy})
	return nil
}

func (a *Application) Unflag(unflaggedBy string, now time.Time) error {
	if err := requireActor("unflagged_by", unflaggedBy); err != nil {
		return err
	}
	if !a.Flagging.Flagged {
		return ruleErr(RuleNotFlagged, "application %s is not flagged", a.Number)
	}

	a.Flagging.Flagged = false
	a.Flagging.UnflaggedBy = unflaggedBy
	a.Flagging.UnflaggedAt = timePtr(now)
	a.touch(now)
	a.record(ApplicationUnflagged{EventHeader: a.header(now), UnflaggedBy: unflaggedBy})
	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
