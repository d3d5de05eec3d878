// internal/permit/waiver.go
package permit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Waiver struct {
	ID            uuid.UUID       `json:"id"`
	Type          WaiverType      `json:"type"`
	Status        WaiverStatus    `json:"status"`
	Reason        string          `json:"reason"`
	RequestedBy   string          `json:"requested_by"`
	RequestedAt   time.Time       `json:"requested_at"`
	DecidedBy     string          `json:"decided_by,omitempty"`
	DecidedAt     *time.Time      `json:"decided_at,omitempty"`
	DecisionNotes string          `json:"decision_notes,omitempty"`
	Percentage    decimal.Decimal `json:"percentage"`
	WaivedAmount  *Money          `json:"waived_amount,omitempty"`
}

// waiverStatuses are the application statuses in which waivers can be
// requested or decided; once a payment exists the fee is fixed.
var waiverStatuses = []Status{StatusDraft, StatusSubmitted, StatusUnderReview, StatusPendingDocuments}

// PendingWaiver returns the single pending waiver, if any.
func (a *Application) PendingWaiver() (*Waiver, bool) {
	for _, w := range a.Waivers {
		if w.Status == WaiverStatusPending {
			return w, true
		}
	}
	return nil, false
}

func (a *Application) Waiver(id uuid.UUID) (*Waiver, bool) {
	for _, w := range a.Waivers {
		if w.ID == id {
			return w, true
		}
	}
	return nil, false
}

// RequestWaiver opens a waiver request. At most one may be pending.
func (a *Application) RequestWaiver(t WaiverType, reason, requestedBy string, now time.Time) (*Waiver, error) {
	if !t.Valid() {
		return nil, invalidArg("waiver_type", fmt.Sprintf("unknown waiver type %q", t))
	}
	if err := requireActor("reason", reason); err != nil {
		return nil, err
	}
	if err := requireActor("requested_by", requestedBy); err != nil {
		return nil, err
	}
	if err := a.requireStatus("request waiver for", waiverStatuses...); err != nil {
		return nil, err
	}
	if pending, ok := a.PendingWaiver(); ok {
		return nil, ruleErr(RuleWaiverPending, "waiver %s is already pending", pending.ID)
	}

	w := &Waiver{
		ID:          uuid.New(),
		Type:        t,
		Status:      WaiverStatusPending,
		Reason:      reason,
		RequestedBy: requestedBy,
		RequestedAt: now,
	}
	a.Waivers = append(a.Waivers, w)
	a.touch(now)
	a.record(WaiverRequested{EventHeader: a.header(now), WaiverID: w.ID, WaiverType: t, RequestedBy: requestedBy})
	return w, nil
}

func (a *Application) pendingWaiverByID(op string, id uuid.UUID) (*Waiver, error) {
	if err := a.requireStatus(op, waiverStatuses...); err != nil {
		return nil, err
	}
	w, ok := a.Waiver(id)
	if !ok {
		return nil, &NotFoundError{Kind: "waiver", Key: id.String()}
	}
	if w.Status != WaiverStatusPending {
		return nil, ruleErr(RuleWaiverDecided, "waiver %s is already %s", id, w.Status)
	}
	return w, nil
}

// WaiverBasis is the fee waiver percentages apply to: the latest override
// when there is one, otherwise the fee set at creation.
func (a *Application) WaiverBasis() Money {
	if a.FeeOverride != nil {
		return a.FeeOverride.NewFee
	}
	return a.OriginalFee
}

// ApproveWaiver approves the waiver for percentage (0-100) of WaiverBasis
// and lowers the calculated fee by that amount, never below zero.
func (a *Application) ApproveWaiver(id uuid.UUID, percentage decimal.Decimal, notes, approvedBy string, now time.Time) (*Waiver, error) {
	if percentage.IsNegative() || percentage.GreaterThan(hundred) {
		return nil, invalidArg("percentage", "must be between 0 and 100")
	}
	if err := requireActor("approved_by", approvedBy); err != nil {
		return nil, err
	}
	w, err := a.pendingWaiverByID("approve waiver for", id)
	if err != nil {
		return nil, err
	}

	basis := a.WaiverBasis()
	waived := basis.Percent(percentage)
	if waived.Currency != a.CalculatedFee.Currency {
		return nil, invalidArg("currency", fmt.Sprintf("fee currency must be %s", basis.Currency))
	}
	if waived.Amount.GreaterThan(a.CalculatedFee.Amount) {
		waived = a.CalculatedFee
	}
	newFee, err := a.CalculatedFee.Sub(waived)
	if err != nil {
		return nil, err
	}

	w.Status = WaiverStatusApproved
	w.DecidedBy = approvedBy
	w.DecidedAt = timePtr(now)
	w.DecisionNotes = notes
	w.Percentage = percentage
	w.WaivedAmount = &waived
	a.CalculatedFee = newFee
	a.touch(now)
	a.record(WaiverApproved{
		EventHeader:  a.header(now),
		WaiverID:     w.ID,
		Percentage:   percentage,
		WaivedAmount: waived,
		NewFee:       newFee,
		ApprovedBy:   approvedBy,
	})
	return w, nil
}

func (a *Application) RejectWaiver(id uuid.UUID, reason, rejectedBy string, now time.Time) (*Waiver, error) {
	if err := requireActor("reason", reason); err != nil {
		return nil, err
	}
	if err := requireActor("rejected_by", rejectedBy); err != nil {
		return nil, err
	}
	w, err := a.pendingWaiverByID("reject waiver for", id)
	if err != nil {
		return nil, err
	}

	w.Status = WaiverStatusRejected
	w.DecidedBy = rejectedBy
	w.DecidedAt = timePtr(now)
	w.DecisionNotes = reason
	a.touch(now)
	a.record(WaiverRejected{EventHeader: a.header(now), WaiverID: w.ID, RejectedBy: rejectedBy, Reason: reason})
	return w, nil
}
