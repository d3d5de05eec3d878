// internal/permit/document_test.go
package permit_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civilaviation/fop-backend/internal/permit"
)

func TestVerifyExpiredDocumentFails(t *testing.T) {
	app := newDraft(t)
	uploadRequired(t, app)
	expired := later(-24 * time.Hour)
	upload(t, app, permit.DocumentInsurance, &expired)
	require.NoError(t, app.Submit("operator", now))
	app.PullEvents()

	err := app.VerifyDocument(permit.VerifyDocumentParams{Type: permit.DocumentInsurance, VerifiedBy: "officer"}, now)
	require.Error(t, err)
	assert.ErrorIs(t, err, permit.ErrRuleViolation)

	var expErr *permit.DocumentExpiredError
	require.True(t, errors.As(err, &expErr))
	assert.Equal(t, permit.DocumentInsurance, expErr.DocumentType)
	assert.Equal(t, permit.EventDocumentVerificationFailedDueToExpiry, expErr.Event.Type())
	assert.Equal(t, "officer", expErr.Event.AttemptedBy)

	doc, ok := app.Document(permit.DocumentInsurance)
	require.True(t, ok)
	assert.Equal(t, permit.DocumentStatusPending, doc.Status)
	assert.Empty(t, app.PullEvents())
}

func TestVerifyPreviouslyVerifiedDocumentAfterExpiry(t *testing.T) {
	app := underReview(t)
	expiry := later(24 * time.Hour)
	upload(t, app, permit.DocumentRegistration, &expiry)
	require.NoError(t, app.VerifyDocument(permit.VerifyDocumentParams{
		Type: permit.DocumentRegistration, VerifiedBy: "officer",
	}, now))

	err := app.VerifyDocument(permit.VerifyDocumentParams{
		Type: permit.DocumentRegistration, VerifiedBy: "officer",
	}, later(72*time.Hour))
	assert.ErrorIs(t, err, permit.ErrRuleViolation)
}

func TestVerifyDocumentExpiringSoon(t *testing.T) {
	tests := []struct {
		name     string
		expiry   time.Time
		window   time.Duration
		warned   bool
		daysLeft int
	}{
		{"expires today", now, 0, true, 0},
		{"inside default window", later(10 * 24 * time.Hour), 0, true, 10},
		{"on default window edge", later(30 * 24 * time.Hour), 0, true, 30},
		{"outside default window", later(31 * 24 * time.Hour), 0, false, 0},
		{"outside custom window", later(10 * 24 * time.Hour), 7 * 24 * time.Hour, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newDraft(t)
			expiry := tt.expiry
			upload(t, app, permit.DocumentInsurance, &expiry)
			app.PullEvents()

			require.NoError(t, app.VerifyDocument(permit.VerifyDocumentParams{
				Type: permit.DocumentInsurance, VerifiedBy: "officer", WarningWindow: tt.window,
			}, now))

			var soon *permit.DocumentExpiringSoon
			for _, e := range app.PullEvents() {
				if ev, ok := e.(permit.DocumentExpiringSoon); ok {
					soon = &ev
				}
			}
			if !tt.warned {
				assert.Nil(t, soon)
				return
			}
			require.NotNil(t, soon)
			assert.Equal(t, tt.daysLeft, soon.DaysRemaining)
		})
	}
}

func TestWarnExpiringDocumentsOncePerDocument(t *testing.T) {
	app := newDraft(t)
	insurance := later(20 * 24 * time.Hour)
	registration := later(20 * 24 * time.Hour)
	upload(t, app, permit.DocumentInsurance, &insurance)
	upload(t, app, permit.DocumentRegistration, &registration)
	week := 7 * 24 * time.Hour
	require.NoError(t, app.VerifyDocument(permit.VerifyDocumentParams{
		Type: permit.DocumentInsurance, VerifiedBy: "officer", WarningWindow: week,
	}, now))
	app.PullEvents()

	assert.Empty(t, app.WarnExpiringDocuments(week, now))

	inTwoWeeks := now.Add(14 * 24 * time.Hour)
	assert.Equal(t, []permit.DocumentType{permit.DocumentInsurance}, app.WarnExpiringDocuments(week, inTwoWeeks))
	events := app.PullEvents()
	require.Len(t, events, 1)
	soon, ok := events[0].(permit.DocumentExpiringSoon)
	require.True(t, ok)
	assert.Equal(t, 6, soon.DaysRemaining)

	assert.Empty(t, app.WarnExpiringDocuments(week, inTwoWeeks.Add(24*time.Hour)))
	assert.Empty(t, app.PullEvents())
}

func TestVerifyUnknownDocument(t *testing.T) {
	app := newDraft(t)
	err := app.VerifyDocument(permit.VerifyDocumentParams{Type: permit.DocumentCrewLicenses, VerifiedBy: "officer"}, now)
	assert.ErrorIs(t, err, permit.ErrNotFound)

	err = app.RejectDocument(permit.DocumentCrewLicenses, "blurred", "officer", now)
	assert.ErrorIs(t, err, permit.ErrInvalidTransition)
}

func TestRejectDocumentReturnsToPendingDocuments(t *testing.T) {
	app := pendingPayment(t)
	firstPayment := app.Payment.ID

	require.NoError(t, app.RejectDocument(permit.DocumentInsurance, "policy lapsed", "officer", now))
	assert.Equal(t, permit.StatusPendingDocuments, app.Status)
	assert.Equal(t, permit.PaymentStatusCancelled, app.Payment.Status)

	doc, _ := app.Document(permit.DocumentInsurance)
	assert.Equal(t, permit.DocumentStatusRejected, doc.Status)
	assert.Equal(t, "policy lapsed", doc.RejectionReason)
	assert.Empty(t, doc.VerifiedBy)

	expiry := later(200 * 24 * time.Hour)
	upload(t, app, permit.DocumentInsurance, &expiry)
	assert.Equal(t, permit.StatusPendingDocuments, app.Status)

	require.NoError(t, app.VerifyDocument(permit.VerifyDocumentParams{
		Type: permit.DocumentInsurance, VerifiedBy: "officer",
	}, now))
	assert.Equal(t, permit.StatusUnderReview, app.Status)

	payment, err := app.RequestPayment(permit.PaymentMethodBankTransfer, now)
	require.NoError(t, err)
	assert.NotEqual(t, firstPayment, payment.ID)
	assert.Equal(t, permit.PaymentMethodBankTransfer, payment.Method)
}

func TestVerifyStaysInReviewUntilAllDocumentsVerified(t *testing.T) {
	app := underReview(t)
	require.NoError(t, app.RejectDocument(permit.DocumentRegistration, "wrong tail number", "officer", now))
	require.Equal(t, permit.StatusPendingDocuments, app.Status)

	require.NoError(t, app.VerifyDocument(permit.VerifyDocumentParams{
		Type: permit.DocumentAirworthiness, VerifiedBy: "officer",
	}, now))
	assert.Equal(t, permit.StatusPendingDocuments, app.Status)
}

func TestExpireDocuments(t *testing.T) {
	app := underReview(t)
	soon := later(10 * 24 * time.Hour)
	upload(t, app, permit.DocumentOperatorCertificate, &soon)
	verifyAll(t, app)
	app.PullEvents()

	assert.Empty(t, app.ExpireDocuments(later(10*24*time.Hour)))

	expired := app.ExpireDocuments(later(11 * 24 * time.Hour))
	assert.Equal(t, []permit.DocumentType{permit.DocumentOperatorCertificate}, expired)
	doc, _ := app.Document(permit.DocumentOperatorCertificate)
	assert.Equal(t, permit.DocumentStatusExpired, doc.Status)
	assert.Equal(t, []permit.EventType{permit.EventDocumentExpired}, eventTypes(app.PullEvents()))
	assert.False(t, app.AllDocumentsVerified())

	_, err := app.RequestPayment(permit.PaymentMethodCard, later(11*24*time.Hour))
	assert.ErrorIs(t, err, permit.ErrRuleViolation)
}

func TestUploadDocumentValidation(t *testing.T) {
	app := newDraft(t)
	_, err := app.UploadDocument(permit.UploadDocumentParams{
		Type:       permit.DocumentInsurance,
		FileName:   "insurance.pdf",
		Locator:    "x",
		MimeType:   "application/pdf",
		Size:       0,
		UploadedBy: "operator",
	}, now)
	assert.ErrorIs(t, err, permit.ErrInvalidArgument)
	assert.Empty(t, app.Documents)

	_, err = app.UploadDocument(permit.UploadDocumentParams{Type: "passport"}, now)
	assert.ErrorIs(t, err, permit.ErrInvalidArgument)
}
