// internal/fees/interest.go
package fees

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/civilaviation/fop-backend/internal/permit"
)

const (
	// InterestGraceDays pass before any interest accrues.
	InterestGraceDays = 30
	// InterestPeriodDays is the length of one interest period.
	InterestPeriodDays = 30
)

// DefaultInterestRate is the percentage charged per period.
var DefaultInterestRate = decimal.RequireFromString("1.5")

// CalculateInterest applies the default late-payment rate to principal.
func CalculateInterest(principal permit.Money, daysOverdue int) (permit.Money, error) {
	return calculateInterest(principal, daysOverdue, DefaultInterestRate)
}

// Interest applies the late-payment rate effective at asOf.
func (c *TariffCalculator) Interest(principal permit.Money, daysOverdue int, asOf time.Time) (permit.Money, error) {
	r, ok := c.rates.Find(RateQuery{Category: CategoryLatePaymentInterest, AsOf: asOf})
	if !ok {
		return calculateInterest(principal, daysOverdue, DefaultInterestRate)
	}
	return calculateInterest(principal, daysOverdue, r.Rate)
}

// calculateInterest charges ratePct per 30 days beyond the grace period,
// pro rata for a partial period. The principal's currency is kept.
func calculateInterest(principal permit.Money, daysOverdue int, ratePct decimal.Decimal) (permit.Money, error) {
	if _, err := permit.NewMoney(principal.Amount, principal.Currency); err != nil {
		return permit.Money{}, err
	}
	if daysOverdue < 0 {
		return permit.Money{}, argErr("days_overdue", "must not be negative")
	}
	if daysOverdue <= InterestGraceDays {
		return permit.ZeroMoney(principal.Currency), nil
	}

	periods := decimal.NewFromInt(int64(daysOverdue - InterestGraceDays)).Div(decimal.NewFromInt(InterestPeriodDays))
	interest := principal.Amount.Mul(ratePct).Div(percentDivisor).Mul(periods)
	return permit.Money{Amount: interest.Round(2), Currency: principal.Currency}, nil
}
