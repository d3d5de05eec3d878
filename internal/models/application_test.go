// internal/models/application_test.go
package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civilaviation/fop-backend/internal/permit"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func reviewedApplication(t *testing.T) *permit.Application {
	t.Helper()
	app, err := permit.New(permit.NewApplicationParams{
		TenantID:   "sxm-caa",
		Number:     permit.FormatNumber(2026, "000007"),
		PermitType: permit.PermitTypeBlanket,
		OperatorID: uuid.New(),
		AircraftID: uuid.New(),
		Flight: permit.FlightDetails{
			Purpose:            permit.FlightPurposeCargo,
			DepartureAirport:   "KMIA",
			ArrivalAirport:     "TNCM",
			FlightDate:         now.AddDate(0, 0, 10),
			CargoDescription:   "medical supplies",
			CargoWeightKg:      decimal.NewFromInt(1200),
			SeatCount:          2,
			MaxTakeoffWeightKg: decimal.NewFromInt(20000),
		},
		Validity:  permit.Period{Start: now.AddDate(0, 0, 10), End: now.AddDate(0, 3, 0)},
		Fee:       permit.MustMoney("1425", "USD"),
		CreatedBy: "operator@example.com",
	}, now)
	require.NoError(t, err)

	expiry := now.AddDate(1, 0, 0)
	for _, docType := range permit.RequiredDocumentTypes {
		_, err := app.UploadDocument(permit.UploadDocumentParams{
			Type: docType, FileName: "f.pdf", Locator: "loc/" + string(docType), MimeType: "application/pdf",
			Size: 10, ExpiryDate: &expiry, UploadedBy: "operator@example.com",
		}, now)
		require.NoError(t, err)
	}
	w, err := app.RequestWaiver(permit.WaiverTypeHumanitarian, "relief flight", "operator@example.com", now)
	require.NoError(t, err)
	_, err = app.ApproveWaiver(w.ID, decimal.NewFromInt(20), "ok", "director", now)
	require.NoError(t, err)
	require.NoError(t, app.Submit("operator@example.com", now))
	require.NoError(t, app.StartReview("officer", now))
	for _, docType := range permit.RequiredDocumentTypes {
		require.NoError(t, app.VerifyDocument(permit.VerifyDocumentParams{Type: docType, VerifiedBy: "officer"}, now))
	}
	require.NoError(t, app.Flag("sanctions screening", "officer", now))
	_, err = app.RequestPayment(permit.PaymentMethodCard, now)
	require.NoError(t, err)
	app.PullEvents()
	return app
}

func TestApplicationRecordPreservesAggregate(t *testing.T) {
	app := reviewedApplication(t)

	rec := ApplicationFromDomain(app)
	assert.Equal(t, "USD", rec.Currency)
	assert.True(t, rec.CalculatedFee.Equal(decimal.NewFromInt(1140)))
	assert.True(t, rec.OriginalFee.Equal(decimal.NewFromInt(1425)))
	require.Len(t, rec.Documents, 4)
	require.Len(t, rec.Payments, 1)
	require.Len(t, rec.Waivers, 1)
	assert.Equal(t, app.ID, rec.Payments[0].ApplicationID)
	require.NotNil(t, rec.Waivers[0].WaivedAmount)
	assert.True(t, rec.Waivers[0].WaivedAmount.Equal(decimal.NewFromInt(285)))

	back := rec.ToDomain()
	assert.Equal(t, app.Status, back.Status)
	assert.Equal(t, app.Flight, back.Flight)
	assert.True(t, back.CalculatedFee.Equal(app.CalculatedFee))
	assert.True(t, back.Flagging.Flagged)
	require.NotNil(t, back.Payment)
	assert.Equal(t, app.Payment.ID, back.Payment.ID)
	assert.True(t, back.Payment.Amount.Equal(app.CalculatedFee))
	assert.True(t, back.AllDocumentsVerified())
	require.Len(t, back.Waivers, 1)
	assert.Equal(t, permit.WaiverStatusApproved, back.Waivers[0].Status)
	assert.Empty(t, back.PendingEvents())
}

func TestToDomainUsesLatestPayment(t *testing.T) {
	app := reviewedApplication(t)
	rec := ApplicationFromDomain(app)

	failed := rec.Payments[0]
	failed.ID = uuid.New()
	failed.Status = permit.PaymentStatusFailed
	failed.RequestedAt = now.Add(-time.Hour)
	rec.Payments = append([]PermitPayment{failed}, rec.Payments...)

	back := rec.ToDomain()
	require.NotNil(t, back.Payment)
	assert.Equal(t, app.Payment.ID, back.Payment.ID)
	assert.Equal(t, permit.PaymentStatusPending, back.Payment.Status)
}

func TestFeeOverrideRoundTrip(t *testing.T) {
	app := reviewedApplication(t)
	app.Payment = nil
	app.Status = permit.StatusUnderReview
	require.NoError(t, app.OverrideFee(permit.MustMoney("900", "USD"), "ministerial decision", "director", now))

	back := ApplicationFromDomain(app).ToDomain()
	require.NotNil(t, back.FeeOverride)
	assert.True(t, back.FeeOverride.PreviousFee.Amount.Equal(decimal.NewFromInt(1140)))
	assert.True(t, back.FeeOverride.NewFee.Amount.Equal(decimal.NewFromInt(900)))
	assert.Equal(t, "director", back.FeeOverride.OverriddenBy)
}
