// internal/permit/payment_test.go
package permit_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civilaviation/fop-backend/internal/permit"
)

func ruleOf(t *testing.T, err error) string {
	t.Helper()
	var ruleErr *permit.RuleError
	require.True(t, errors.As(err, &ruleErr), "expected RuleError, got %v", err)
	return ruleErr.Rule
}

func TestPaymentFailureAndRetry(t *testing.T) {
	app := pendingPayment(t)
	first := app.Payment.ID

	_, err := app.RetryPayment(permit.PaymentMethodCard, now)
	assert.Equal(t, permit.RulePaymentState, ruleOf(t, err))

	require.NoError(t, app.StartPaymentProcessing("pi_1", now))
	assert.Equal(t, permit.PaymentStatusProcessing, app.Payment.Status)

	err = app.StartPaymentProcessing("pi_1", now)
	assert.Equal(t, permit.RulePaymentState, ruleOf(t, err))

	require.NoError(t, app.FailPayment("card declined", now))
	assert.Equal(t, permit.PaymentStatusFailed, app.Payment.Status)
	assert.Equal(t, "card declined", app.Payment.FailureReason)
	assert.Equal(t, permit.StatusPendingPayment, app.Status)

	err = app.CompletePayment(permit.CompletePaymentParams{TransactionReference: "pi_1"}, now)
	assert.Equal(t, permit.RulePaymentState, ruleOf(t, err))

	retried, err := app.RetryPayment(permit.PaymentMethodCash, now)
	require.NoError(t, err)
	assert.NotEqual(t, first, retried.ID)
	assert.Equal(t, permit.PaymentStatusPending, retried.Status)
	assert.Same(t, retried, app.Payment)
}

func TestCompletePaymentKeepsStatus(t *testing.T) {
	app := pendingPayment(t)
	app.PullEvents()

	err := app.CompletePayment(permit.CompletePaymentParams{}, now)
	assert.ErrorIs(t, err, permit.ErrInvalidArgument)

	require.NoError(t, app.CompletePayment(permit.CompletePaymentParams{
		TransactionReference: "TRX-77",
		ReceiptNumber:        "R-77",
		ReceiptURL:           "https://pay.example.com/r/77",
	}, now))
	assert.Equal(t, permit.StatusPendingPayment, app.Status)
	assert.Equal(t, permit.PaymentStatusCompleted, app.Payment.Status)
	assert.Equal(t, "R-77", app.Payment.ReceiptNumber)

	events := app.PullEvents()
	require.Len(t, events, 1)
	completed, ok := events[0].(permit.PaymentCompleted)
	require.True(t, ok)
	assert.Equal(t, "TRX-77", completed.TransactionReference)
}

func TestPaymentOperationsRequirePendingPayment(t *testing.T) {
	app := underReview(t)

	err := app.CompletePayment(permit.CompletePaymentParams{TransactionReference: "pi"}, now)
	assert.ErrorIs(t, err, permit.ErrInvalidTransition)

	err = app.FailPayment("declined", now)
	assert.ErrorIs(t, err, permit.ErrInvalidTransition)

	_, err = app.RequestPayment("crypto", now)
	assert.ErrorIs(t, err, permit.ErrInvalidArgument)
}

func TestVerifyPayment(t *testing.T) {
	app := pendingPayment(t)

	err := app.VerifyPayment("finance", now)
	assert.Equal(t, permit.RulePaymentNotCompleted, ruleOf(t, err))

	require.NoError(t, app.CompletePayment(permit.CompletePaymentParams{TransactionReference: "pi_5"}, now))
	require.NoError(t, app.VerifyPayment("finance", later(time.Hour)))
	assert.True(t, app.Payment.Verified)
	assert.Equal(t, "finance", app.Payment.VerifiedBy)

	err = app.VerifyPayment("finance-2", later(2*time.Hour))
	assert.Equal(t, permit.RulePaymentVerified, ruleOf(t, err))
	assert.Equal(t, "finance", app.Payment.VerifiedBy)

	require.NoError(t, app.Approve("director", now))
	assert.Equal(t, permit.StatusApproved, app.Status)

	err = underReview(t).VerifyPayment("finance", now)
	assert.Equal(t, permit.RulePaymentMissing, ruleOf(t, err))
}

func TestRefundPayment(t *testing.T) {
	app := pendingPayment(t)

	err := app.RefundPayment("duplicate charge", now)
	assert.Equal(t, permit.RulePaymentNotCompleted, ruleOf(t, err))

	require.NoError(t, app.CompletePayment(permit.CompletePaymentParams{TransactionReference: "pi_7"}, now))
	require.NoError(t, app.RefundPayment("duplicate charge", now))
	assert.Equal(t, permit.PaymentStatusRefunded, app.Payment.Status)

	err = app.Approve("director", now)
	assert.Equal(t, permit.RulePaymentNotCompleted, ruleOf(t, err))

	_, err = app.RetryPayment(permit.PaymentMethodCard, now)
	require.NoError(t, err)
	require.NoError(t, app.CompletePayment(permit.CompletePaymentParams{TransactionReference: "pi_8"}, now))
	require.NoError(t, app.Approve("director", now))

	err = app.RefundPayment("change of plans", now)
	assert.ErrorIs(t, err, permit.ErrInvalidTransition)
	assert.Equal(t, permit.PaymentStatusCompleted, app.Payment.Status)
}

func TestCompletedPaymentIsReusedAfterDocumentRejection(t *testing.T) {
	app := pendingPayment(t)
	require.NoError(t, app.CompletePayment(permit.CompletePaymentParams{TransactionReference: "pi_2"}, now))
	paid := app.Payment.ID

	require.NoError(t, app.RejectDocument(permit.DocumentInsurance, "wrong insurer", "officer", now))
	assert.Equal(t, permit.PaymentStatusCompleted, app.Payment.Status)

	expiry := later(100 * 24 * time.Hour)
	upload(t, app, permit.DocumentInsurance, &expiry)
	require.NoError(t, app.VerifyDocument(permit.VerifyDocumentParams{
		Type: permit.DocumentInsurance, VerifiedBy: "officer",
	}, now))

	payment, err := app.RequestPayment(permit.PaymentMethodCard, now)
	require.NoError(t, err)
	assert.Equal(t, paid, payment.ID)
	require.NoError(t, app.Approve("director", now))
}
