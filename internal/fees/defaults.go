// internal/fees/defaults.go
package fees

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/civilaviation/fop-backend/internal/permit"
)

// DefaultPrimaryAirport receives the highest airport-development charge when
// no other primary airport is configured.
const DefaultPrimaryAirport = "TNCM"

// DefaultEffectiveFrom dates the built-in tariff.
var DefaultEffectiveFrom = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	localLandingRates = [4]string{"3.00", "6.00", "7.00", "8.00"}
	gaLandingRates    = [4]string{"5.00", "10.00", "11.50", "12.50"}
	navigationRates   = [4]string{"5.00", "10.00", "20.00", "35.00"}
)

func rate(category Category, amount string, perUnit bool, description string) FeeRate {
	return FeeRate{
		Category:      category,
		Rate:          decimal.RequireFromString(amount),
		PerUnit:       perUnit,
		MinimumFee:    decimal.Zero,
		Currency:      permit.DefaultCurrency,
		Description:   description,
		EffectiveFrom: DefaultEffectiveFrom,
		Active:        true,
	}
}

// DefaultRates is the documented tariff used whenever a tenant has no entry
// of its own for a query.
func DefaultRates(primaryAirports ...string) []FeeRate {
	if len(primaryAirports) == 0 {
		primaryAirports = []string{DefaultPrimaryAirport}
	}

	var rates []FeeRate
	tiers := []WeightTier{TierLight, TierMedium, TierHeavy, TierSuper}
	landing := []struct {
		ops     []OperationType
		rates   [4]string
		minimum string
	}{
		{[]OperationType{OperationLocalScheduled, OperationInterisland}, localLandingRates, "15.00"},
		{[]OperationType{OperationGeneralAviation, OperationCharter}, gaLandingRates, "25.00"},
	}
	for _, group := range landing {
		for _, op := range group.ops {
			for i, tier := range tiers {
				r := rate(CategoryLanding, group.rates[i], true, "landing per 1,000 lb")
				r.OperationType = op
				r.Tier = tier
				r.MinimumFee = decimal.RequireFromString(group.minimum)
				rates = append(rates, r)
			}
		}
	}
	for i, tier := range tiers {
		r := rate(CategoryNavigation, navigationRates[i], false, "navigation")
		r.Tier = tier
		rates = append(rates, r)
	}

	rates = append(rates,
		rate(CategoryParking, "20", true, "parking, percent of landing per 8-hour block"),
		rate(CategoryAirportDevelopment, "10.00", true, "airport development per passenger"),
		rate(CategorySecurity, "5.00", true, "security per passenger"),
		rate(CategoryHoldBaggageScreening, "7.00", true, "hold baggage screening per departing passenger"),
		rate(CategoryLighting, "25.00", true, "lighting per hour"),
		rate(CategoryFlightPlanFiling, "10.00", false, "flight plan filing"),
		rate(CategoryCatViFireUpgrade, "150.00", false, "CAT-VI fire service upgrade"),
		rate(CategoryFuelFlow, "0.05", true, "fuel flow per gallon"),
		rate(CategoryLatePaymentInterest, "1.5", true, "late payment interest, percent per 30 days"),
	)

	interisland := rate(CategoryAirportDevelopment, "5.00", true, "airport development per interisland passenger")
	interisland.OperationType = OperationInterisland
	rates = append(rates, interisland)
	for _, airport := range primaryAirports {
		r := rate(CategoryAirportDevelopment, "15.00", true, "airport development per passenger, primary airport")
		r.Airport = airport
		rates = append(rates, r)
	}

	late := rate(CategoryExtendedOperations, "50.00", false, "extended operations 22:00-06:00")
	late.Band = BandLate
	overnight := rate(CategoryExtendedOperations, "100.00", false, "extended operations 00:00-04:00")
	overnight.Band = BandOvernight
	rates = append(rates, late, overnight)

	return rates
}

func DefaultRateTable(primaryAirports ...string) *RateTable {
	return NewRateTable(DefaultRates(primaryAirports...)...)
}
