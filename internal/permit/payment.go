// internal/permit/payment.go
package permit

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// WaivedTransactionReference marks a zero-amount payment settled by waivers.
const WaivedTransactionReference = "WAIVED"

type Payment struct {
	ID                   uuid.UUID     `json:"id"`
	Amount               Money         `json:"amount"`
	Method               PaymentMethod `json:"method"`
	Status               PaymentStatus `json:"status"`
	TransactionReference string        `json:"transaction_reference,omitempty"`
	ReceiptNumber        string        `json:"receipt_number,omitempty"`
	ReceiptURL           string        `json:"receipt_url,omitempty"`
	FailureReason        string        `json:"failure_reason,omitempty"`
	RefundReason         string        `json:"refund_reason,omitempty"`
	RequestedAt          time.Time     `json:"requested_at"`
	ProcessingAt         *time.Time    `json:"processing_at,omitempty"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
	FailedAt             *time.Time    `json:"failed_at,omitempty"`
	RefundedAt           *time.Time    `json:"refunded_at,omitempty"`
	CancelledAt          *time.Time    `json:"cancelled_at,omitempty"`

	// Finance-officer verification, independent of the gateway outcome.
	Verified   bool       `json:"verified"`
	VerifiedBy string     `json:"verified_by,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

type CompletePaymentParams struct {
	TransactionReference string
	ReceiptNumber        string
	ReceiptURL           string
}

func validMethod(m PaymentMethod) bool {
	switch m {
	case PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodCash:
		return true
	}
	return false
}

func (a *Application) newPayment(method PaymentMethod, now time.Time) *Payment {
	p := &Payment{
		ID:          uuid.New(),
		Amount:      a.CalculatedFee,
		Method:      method,
		Status:      PaymentStatusPending,
		RequestedAt: now,
	}
	a.Payment = p
	a.record(PaymentRequested{EventHeader: a.header(now), PaymentID: p.ID, Amount: p.Amount})

	// Nothing to collect once waivers brought the fee to zero.
	if p.Amount.IsZero() {
		p.Status = PaymentStatusCompleted
		p.TransactionReference = WaivedTransactionReference
		p.CompletedAt = timePtr(now)
		a.record(PaymentCompleted{
			EventHeader:          a.header(now),
			PaymentID:            p.ID,
			Amount:               p.Amount,
			TransactionReference: p.TransactionReference,
		})
	}
	return p
}

// RequestPayment moves a reviewed application to PendingPayment and creates
// the payment for the current calculated fee. A payment already completed
// earlier (before a document was sent back) is reused.
func (a *Application) RequestPayment(method PaymentMethod, now time.Time) (*Payment, error) {
	if !validMethod(method) {
		return nil, invalidArg("method", "unknown payment method")
	}
	if err := a.requireStatus("request payment for", StatusUnderReview); err != nil {
		return nil, err
	}
	if !a.AllDocumentsVerified() {
		return nil, ruleErr(RuleDocumentsUnverified,
			"documents not verified: %s", strings.Join(a.unverifiedDocumentTypes(), ", "))
	}

	a.Status = StatusPendingPayment
	a.touch(now)
	if a.Payment != nil && a.Payment.Status == PaymentStatusCompleted {
		return a.Payment, nil
	}
	return a.newPayment(method, now), nil
}

// RetryPayment replaces a failed, cancelled or refunded payment with a new
// pending one.
func (a *Application) RetryPayment(method PaymentMethod, now time.Time) (*Payment, error) {
	if !validMethod(method) {
		return nil, invalidArg("method", "unknown payment method")
	}
	if err := a.requireStatus("retry payment for", StatusPendingPayment); err != nil {
		return nil, err
	}
	if a.Payment == nil {
		return nil, ruleErr(RulePaymentMissing, "application %s has no payment", a.Number)
	}
	switch a.Payment.Status {
	case PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
	default:
		return nil, ruleErr(RulePaymentState, "payment is %s and cannot be retried", a.Payment.Status)
	}

	a.touch(now)
	return a.newPayment(method, now), nil
}

func (a *Application) activePayment(op string) (*Payment, error) {
	if err := a.requireStatus(op, StatusPendingPayment); err != nil {
		return nil, err
	}
	if a.Payment == nil {
		return nil, ruleErr(RulePaymentMissing, "application %s has no payment", a.Number)
	}
	if !a.Payment.Status.Active() {
		return nil, ruleErr(RulePaymentState, "payment is already %s", a.Payment.Status)
	}
	return a.Payment, nil
}

// StartPaymentProcessing records that the gateway accepted the payment.
func (a *Application) StartPaymentProcessing(transactionReference string, now time.Time) error {
	if err := requireActor("transaction_reference", transactionReference); err != nil {
		return err
	}
	p, err := a.activePayment("process payment for")
	if err != nil {
		return err
	}
	if p.Status != PaymentStatusPending {
		return ruleErr(RulePaymentState, "payment is already %s", p.Status)
	}

	p.Status = PaymentStatusProcessing
	p.TransactionReference = transactionReference
	p.ProcessingAt = timePtr(now)
	a.touch(now)
	a.record(PaymentProcessing{EventHeader: a.header(now), PaymentID: p.ID, TransactionReference: transactionReference})
	return nil
}

// CompletePayment settles the payment. The application status is unchanged;
// approval is a separate decision.
func (a *Application) CompletePayment(params CompletePaymentParams, now time.Time) error {
	if err := requireActor("transaction_reference", params.TransactionReference); err != nil {
		return err
	}
	p, err := a.activePayment("complete payment for")
	if err != nil {
		return err
	}

	p.Status = PaymentStatusCompleted
	p.TransactionReference = params.TransactionReference
	p.ReceiptNumber = params.ReceiptNumber
	p.ReceiptURL = params.ReceiptURL
	p.CompletedAt = timePtr(now)
	a.touch(now)
	a.record(PaymentCompleted{
		EventHeader:          a.header(now),
		PaymentID:            p.ID,
		Amount:               p.Amount,
		TransactionReference: p.TransactionReference,
		ReceiptNumber:        p.ReceiptNumber,
	})
	return nil
}

func (a *Application) FailPayment(reason string, now time.Time) error {
	if err := requireActor("reason", reason); err != nil {
		return err
	}
	p, err := a.activePayment("fail payment for")
	if err != nil {
		return err
	}

	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	p.FailedAt = timePtr(now)
	a.touch(now)
	a.record(PaymentFailed{EventHeader: a.header(now), PaymentID: p.ID, Reason: reason})
	return nil
}

// RefundPayment reverses a completed payment. Approved applications keep
// their payment.
func (a *Application) RefundPayment(reason string, now time.Time) error {
	if err := requireActor("reason", reason); err != nil {
		return err
	}
	if a.Status == StatusApproved {
		return transitionErr("refund payment of", a.Status,
			StatusPendingPayment, StatusUnderReview, StatusPendingDocuments, StatusRejected, StatusCancelled)
	}
	if a.Payment == nil {
		return ruleErr(RulePaymentMissing, "application %s has no payment", a.Number)
	}
	if a.Payment.Status != PaymentStatusCompleted {
		return ruleErr(RulePaymentNotCompleted, "payment is %s, not completed", a.Payment.Status)
	}

	p := a.Payment
	p.Status = PaymentStatusRefunded
	p.RefundReason = reason
	p.RefundedAt = timePtr(now)
	a.touch(now)
	a.record(PaymentRefunded{EventHeader: a.header(now), PaymentID: p.ID, Reason: reason})
	return nil
}

// RestoreRefundedPayment puts a refunded payment back to Completed. It undoes
// a refund the gateway did not carry out and records no event.
func (a *Application) RestoreRefundedPayment(now time.Time) error {
	if a.Payment == nil {
		return ruleErr(RulePaymentMissing, "application %s has no payment", a.Number)
	}
	p := a.Payment
	if p.Status != PaymentStatusRefunded {
		return ruleErr(RulePaymentState, "payment is %s, not refunded", p.Status)
	}
	p.Status = PaymentStatusCompleted
	p.RefundReason = ""
	p.RefundedAt = nil
	a.touch(now)
	return nil
}

// VerifyPayment records the finance officer's check. Only once, and only for
// a completed payment.
func (a *Application) VerifyPayment(officer string, now time.Time) error {
	if err := requireActor("verified_by", officer); err != nil {
		return err
	}
	if a.Payment == nil {
		return ruleErr(RulePaymentMissing, "application %s has no payment", a.Number)
	}
	p := a.Payment
	if p.Verified {
		return ruleErr(RulePaymentVerified, "payment was already verified by %s", p.VerifiedBy)
	}
	if p.Status != PaymentStatusCompleted {
		return ruleErr(RulePaymentNotCompleted, "payment is %s, not completed", p.Status)
	}

	p.Verified = true
	p.VerifiedBy = officer
	p.VerifiedAt = timePtr(now)
	a.touch(now)
	a.record(PaymentVerified{EventHeader: a.header(now), PaymentID: p.ID, VerifiedBy: officer})
	return nil
}

// cancelActivePayment cancels a pending or processing payment and reports
// whether it did.
func (a *Application) cancelActivePayment(now time.Time) bool {
	if a.Payment == nil || !a.Payment.Status.Active() {
		return false
	}
	a.Payment.Status = PaymentStatusCancelled
	a.Payment.CancelledAt = timePtr(now)
	return true
}
