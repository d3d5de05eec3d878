// internal/fees/tariff.go
package fees

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/civilaviation/fop-backend/internal/permit"
)

var (
	poundsPerUnit  = decimal.NewFromInt(1000)
	hoursPerBlock  = decimal.NewFromInt(8)
	percentDivisor = decimal.NewFromInt(100)
)

// TariffRequest describes one movement at an airport. OperationTime is read
// in its own location, which should be the airport's local time.
type TariffRequest struct {
	MaxTakeoffWeightLb decimal.Decimal
	OperationType      OperationType
	Airport            string
	PassengerCount     int
	Departing          bool
	Interisland        bool
	OperationTime      time.Time

	ParkingHours     decimal.Decimal
	LightingHours    decimal.Decimal
	FlightPlanFiling bool
	CatViFireUpgrade bool
	FuelGallons      decimal.Decimal
}

type LineItem struct {
	Category    Category        `json:"category"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      permit.Money    `json:"amount"`
}

type TariffBreakdown struct {
	Tier          WeightTier    `json:"tier"`
	LandingExempt bool          `json:"landing_exempt"`
	Items         []LineItem    `json:"items"`
	Total         permit.Money  `json:"total"`
	AsOf          time.Time     `json:"as_of"`
	OperationType OperationType `json:"operation_type"`
}

// Amount returns the charge of one category, zero when absent.
func (b TariffBreakdown) Amount(c Category) decimal.Decimal {
	for _, item := range b.Items {
		if item.Category == c {
			return item.Amount.Amount
		}
	}
	return decimal.Zero
}

type TariffCalculator struct {
	rates    *RateTable
	currency string
}

// NewTariffCalculator resolves rates from table. A nil table means the default
// tariff; tenant tables chain it with WithFallback.
func NewTariffCalculator(table *RateTable) *TariffCalculator {
	if table == nil {
		table = DefaultRateTable()
	}
	return &TariffCalculator{rates: table, currency: permit.DefaultCurrency}
}

func (r TariffRequest) validate() error {
	switch {
	case !r.OperationType.Valid():
		return argErr("operation_type", fmt.Sprintf("unknown operation type %q", r.OperationType))
	case r.MaxTakeoffWeightLb.IsNegative():
		return argErr("max_takeoff_weight_lb", "must not be negative")
	case strings.TrimSpace(r.Airport) == "":
		return argErr("airport", "is required")
	case r.OperationTime.IsZero():
		return argErr("operation_time", "is required")
	case r.LightingHours.IsNegative():
		return argErr("lighting_hours", "must not be negative")
	case r.FuelGallons.IsNegative():
		return argErr("fuel_gallons", "must not be negative")
	}
	return nil
}

// Calculate itemizes the airport charges for req. Only non-zero items are
// listed.
func (c *TariffCalculator) Calculate(req TariffRequest) (TariffBreakdown, error) {
	if err := req.validate(); err != nil {
		return TariffBreakdown{}, err
	}

	b := TariffBreakdown{
		Tier:          TierFor(req.MaxTakeoffWeightLb),
		LandingExempt: req.OperationType.LandingExempt(),
		AsOf:          req.OperationTime,
		OperationType: req.OperationType,
	}
	q := RateQuery{
		OperationType: req.OperationType,
		Airport:       strings.ToUpper(strings.TrimSpace(req.Airport)),
		Tier:          b.Tier,
		AsOf:          req.OperationTime,
	}

	landing, err := c.landing(req, q)
	if err != nil {
		return TariffBreakdown{}, err
	}
	if !landing.Amount.IsZero() {
		b.Items = append(b.Items, landing)
	}

	steps := []func(TariffRequest, RateQuery, decimal.Decimal) ([]LineItem, error){
		c.navigation,
		c.parking,
		c.passengers,
		c.extendedOperations,
		c.addOns,
	}
	for _, step := range steps {
		items, err := step(req, q, landing.Amount.Amount)
		if err != nil {
			return TariffBreakdown{}, err
		}
		for _, item := range items {
			if !item.Amount.IsZero() {
				b.Items = append(b.Items, item)
			}
		}
	}

	total := decimal.Zero
	for _, item := range b.Items {
		total = total.Add(item.Amount.Amount)
	}
	b.Total = permit.Money{Amount: total.Round(2), Currency: c.currency}
	return b, nil
}

func (c *TariffCalculator) find(q RateQuery, category Category) (FeeRate, error) {
	q.Category = category
	r, ok := c.rates.Find(q)
	if !ok {
		return FeeRate{}, &permit.NotFoundError{Kind: "fee rate", Key: q.String()}
	}
	if r.Currency != c.currency {
		return FeeRate{}, argErr("currency", fmt.Sprintf("rate %s is in %s, expected %s", r.ID, r.Currency, c.currency))
	}
	return r, nil
}

func (c *TariffCalculator) item(r FeeRate, quantity decimal.Decimal) LineItem {
	amount := r.Rate
	if r.PerUnit {
		amount = r.Rate.Mul(quantity)
	}
	return LineItem{
		Category:    r.Category,
		Description: r.Description,
		Quantity:    quantity,
		Rate:        r.Rate,
		Amount:      permit.Money{Amount: amount.Round(2), Currency: c.currency},
	}
}

// landing charges per started 1,000 lb, clamped to the rate's minimum.
func (c *TariffCalculator) landing(req TariffRequest, q RateQuery) (LineItem, error) {
	if req.OperationType.LandingExempt() {
		return LineItem{Category: CategoryLanding, Amount: permit.ZeroMoney(c.currency)}, nil
	}
	r, err := c.find(q, CategoryLanding)
	if err != nil {
		return LineItem{}, err
	}
	units := req.MaxTakeoffWeightLb.Div(poundsPerUnit).Ceil()
	item := c.item(r, units)
	if item.Amount.Amount.LessThan(r.MinimumFee) {
		item.Amount.Amount = r.MinimumFee.Round(2)
		item.Description = r.Description + " (minimum)"
	}
	return item, nil
}

func (c *TariffCalculator) navigation(req TariffRequest, q RateQuery, _ decimal.Decimal) ([]LineItem, error) {
	r, err := c.find(q, CategoryNavigation)
	if err != nil {
		return nil, err
	}
	return []LineItem{c.item(r, decimal.NewFromInt(1))}, nil
}

// parking is a percentage of the landing fee per started 8-hour block.
// parking charges per started block; negative hours charge nothing.
func (c *TariffCalculator) parking(req TariffRequest, q RateQuery, landing decimal.Decimal) ([]LineItem, error) {
	blocks := req.ParkingHours.Div(hoursPerBlock).Ceil()
	if !blocks.IsPositive() || landing.IsZero() {
		return nil, nil
	}
	r, err := c.find(q, CategoryParking)
	if err != nil {
		return nil, err
	}
	amount := landing.Mul(r.Rate).Div(percentDivisor).Mul(blocks)
	return []LineItem{{
		Category:    CategoryParking,
		Description: r.Description,
		Quantity:    blocks,
		Rate:        r.Rate,
		Amount:      permit.Money{Amount: amount.Round(2), Currency: c.currency},
	}}, nil
}

func (c *TariffCalculator) passengers(req TariffRequest, q RateQuery, _ decimal.Decimal) ([]LineItem, error) {
	if req.PassengerCount <= 0 {
		return nil, nil
	}
	pax := decimal.NewFromInt(int64(req.PassengerCount))

	devQuery := q
	if req.Interisland || req.OperationType == OperationInterisland {
		devQuery.OperationType = OperationInterisland
		devQuery.Airport = ""
	}
	dev, err := c.find(devQuery, CategoryAirportDevelopment)
	if err != nil {
		return nil, err
	}
	security, err := c.find(q, CategorySecurity)
	if err != nil {
		return nil, err
	}
	items := []LineItem{c.item(dev, pax), c.item(security, pax)}

	if req.Departing {
		screening, err := c.find(q, CategoryHoldBaggageScreening)
		if err != nil {
			return nil, err
		}
		items = append(items, c.item(screening, pax))
	}
	return items, nil
}

// ExtendedOperationsBand returns the time-of-day band of t: none from 06:00
// to 21:59, BandLate from 22:00 to 23:59 and 04:00 to 05:59, BandOvernight
// from 00:00 to 03:59.
func ExtendedOperationsBand(t time.Time) string {
	switch h := t.Hour(); {
	case h < 4:
		return BandOvernight
	case h < 6 || h >= 22:
		return BandLate
	}
	return ""
}

// extendedOperations is always evaluated from the time of day.
func (c *TariffCalculator) extendedOperations(req TariffRequest, q RateQuery, _ decimal.Decimal) ([]LineItem, error) {
	band := ExtendedOperationsBand(req.OperationTime)
	if band == "" {
		return nil, nil
	}
	bq := q
	bq.Band = band
	r, err := c.find(bq, CategoryExtendedOperations)
	if err != nil {
		return nil, err
	}
	return []LineItem{c.item(r, decimal.NewFromInt(1))}, nil
}

// addOns are charged only when requested.
func (c *TariffCalculator) addOns(req TariffRequest, q RateQuery, _ decimal.Decimal) ([]LineItem, error) {
	var items []LineItem
	add := func(category Category, quantity decimal.Decimal) error {
		r, err := c.find(q, category)
		if err != nil {
			return err
		}
		items = append(items, c.item(r, quantity))
		return nil
	}

	one := decimal.NewFromInt(1)
	if req.LightingHours.IsPositive() {
		if err := add(CategoryLighting, req.LightingHours); err != nil {
			return nil, err
		}
	}
	if req.FlightPlanFiling {
		if err := add(CategoryFlightPlanFiling, one); err != nil {
			return nil, err
		}
	}
	if req.CatViFireUpgrade {
		if err := add(CategoryCatViFireUpgrade, one); err != nil {
			return nil, err
		}
	}
	if req.FuelGallons.IsPositive() {
		if err := add(CategoryFuelFlow, req.FuelGallons); err != nil {
			return nil, err
		}
	}
	return items, nil
}
