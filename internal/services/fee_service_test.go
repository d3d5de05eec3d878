// internal/services/fee_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civilaviation/fop-backend/internal/database"
	"github.com/civilaviation/fop-backend/internal/fees"
	"github.com/civilaviation/fop-backend/internal/models"
	"github.com/civilaviation/fop-backend/internal/permit"
)

func newFeeService(t *testing.T) (*FeeService, func(*models.TenantFeeSettings)) {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	svc := NewFeeService(db, testConfig(t.TempDir()))
	seed := func(settings *models.TenantFeeSettings) {
		require.NoError(t, database.SeedTenant(db, settings))
	}
	return svc, seed
}

func TestSettingsFallBackToConfig(t *testing.T) {
	svc, seed := newFeeService(t)
	ctx := context.Background()

	settings, err := svc.Settings(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, "USD", settings.Schedule.Currency)
	assert.True(t, settings.Schedule.BaseFee.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, []string{"TNCM"}, settings.PrimaryAirports)
	assert.Equal(t, 30, settings.ExpiryWarningDays)

	schedule := fees.DefaultPermitFeeSchedule()
	schedule.BaseFee = decimal.NewFromInt(200)
	schedule.Currency = "ANG"
	seed(models.TenantFeeSettingsFromSchedule(testTenant, schedule, []string{"TNCM", "TNCE"}, 14))

	settings, err = svc.Settings(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, "ANG", settings.Schedule.Currency)
	assert.Equal(t, []string{"TNCM", "TNCE"}, settings.PrimaryAirports)
	assert.Equal(t, 14, settings.ExpiryWarningDays)

	// Other tenants keep the configured defaults.
	other, err := svc.Settings(ctx, "other-tenant")
	require.NoError(t, err)
	assert.True(t, other.Schedule.BaseFee.Equal(decimal.NewFromInt(150)))
}

func TestQuotePermit(t *testing.T) {
	svc, seed := newFeeService(t)
	ctx := context.Background()
	req := &PermitQuoteRequest{
		PermitType:         string(permit.PermitTypeOneTime),
		SeatCount:          100,
		MaxTakeoffWeightKg: decimal.NewFromInt(50000),
	}

	quote, err := svc.QuotePermit(ctx, testTenant, req)
	require.NoError(t, err)
	assert.Equal(t, "2150.00", quote.Total.Amount.StringFixed(2))
	assert.Equal(t, "USD", quote.Total.Currency)

	req.PermitType = string(permit.PermitTypeBlanket)
	quote, err = svc.QuotePermit(ctx, testTenant, req)
	require.NoError(t, err)
	assert.Equal(t, "5375.00", quote.Total.Amount.StringFixed(2))

	schedule := fees.DefaultPermitFeeSchedule()
	schedule.BaseFee = decimal.NewFromInt(250)
	seed(models.TenantFeeSettingsFromSchedule(testTenant, schedule, nil, 30))

	req.PermitType = string(permit.PermitTypeOneTime)
	quote, err = svc.QuotePermit(ctx, testTenant, req)
	require.NoError(t, err)
	assert.Equal(t, "2250.00", quote.Total.Amount.StringFixed(2))

	_, err = svc.QuotePermit(ctx, testTenant, &PermitQuoteRequest{PermitType: "seasonal"})
	assert.ErrorIs(t, err, permit.ErrInvalidArgument)
}

func TestQuoteTariff(t *testing.T) {
	svc, _ := newFeeService(t)
	ctx := context.Background()
	midday := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	quote, err := svc.QuoteTariff(ctx, testTenant, &TariffQuoteRequest{
		MaxTakeoffWeightLb: decimal.NewFromInt(50000),
		OperationType:      string(fees.OperationGeneralAviation),
		Airport:            "TNCM",
		PassengerCount:     10,
		Departing:          true,
		OperationTime:      midday,
	})
	require.NoError(t, err)
	assert.Equal(t, fees.TierMedium, quote.Tier)
	assert.Equal(t, "780.00", quote.Total.Amount.StringFixed(2))

	_, err = svc.QuoteTariff(ctx, testTenant, &TariffQuoteRequest{
		MaxTakeoffWeightLb: decimal.NewFromInt(5000),
		OperationType:      "ferry",
		Airport:            "TNCM",
		OperationTime:      midday,
	})
	assert.ErrorIs(t, err, permit.ErrInvalidArgument)
}

func TestQuoteInterestUsesEffectiveRate(t *testing.T) {
	svc, _ := newFeeService(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	req := &InterestQuoteRequest{Principal: decimal.NewFromInt(1000), DaysOverdue: 60}

	interest, err := svc.QuoteInterest(ctx, testTenant, req, now)
	require.NoError(t, err)
	assert.Equal(t, "15.00", interest.Amount.StringFixed(2))
	assert.Equal(t, permit.DefaultCurrency, interest.Currency)

	req.DaysOverdue = 30
	interest, err = svc.QuoteInterest(ctx, testTenant, req, now)
	require.NoError(t, err)
	assert.True(t, interest.Amount.IsZero())

	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.db.Create(models.TariffRateFromDomain(testTenant, fees.FeeRate{
		Category:      fees.CategoryLatePaymentInterest,
		Rate:          decimal.NewFromInt(3),
		PerUnit:       true,
		Currency:      "USD",
		EffectiveFrom: jan,
		Active:        true,
	}, "director")).Error)

	req.DaysOverdue = 60
	interest, err = svc.QuoteInterest(ctx, testTenant, req, now)
	require.NoError(t, err)
	assert.Equal(t, "30.00", interest.Amount.StringFixed(2))

	before := jan.AddDate(0, -1, 0)
	req.AsOf = &before
	interest, err = svc.QuoteInterest(ctx, testTenant, req, now)
	require.NoError(t, err)
	assert.Equal(t, "15.00", interest.Amount.StringFixed(2))
}
