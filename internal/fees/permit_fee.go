// internal/fees/permit_fee.go
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/civilaviation/fop-backend/internal/permit"
)

// PermitFeeSchedule holds the tenant-configurable inputs of the base permit
// fee.
type PermitFeeSchedule struct {
	BaseFee     decimal.Decimal
	PerSeatFee  decimal.Decimal
	PerKgFee    decimal.Decimal
	Currency    string
	Multipliers map[permit.PermitType]decimal.Decimal
}

func DefaultPermitFeeSchedule() PermitFeeSchedule {
	return PermitFeeSchedule{
		BaseFee:    decimal.NewFromInt(150),
		PerSeatFee: decimal.NewFromInt(10),
		PerKgFee:   decimal.RequireFromString("0.02"),
		Currency:   permit.DefaultCurrency,
		Multipliers: map[permit.PermitType]decimal.Decimal{
			permit.PermitTypeOneTime:   decimal.NewFromInt(1),
			permit.PermitTypeBlanket:   decimal.RequireFromString("2.5"),
			permit.PermitTypeEmergency: decimal.RequireFromString("0.5"),
		},
	}
}

type PermitFeeRequest struct {
	PermitType         permit.PermitType
	SeatCount          int
	MaxTakeoffWeightKg decimal.Decimal
}

// PermitFeeBreakdown lists the additive components before the type
// multiplier is applied.
type PermitFeeBreakdown struct {
	PermitType permit.PermitType `json:"permit_type"`
	BaseFee    permit.Money      `json:"base_fee"`
	SeatFee    permit.Money      `json:"seat_fee"`
	WeightFee  permit.Money      `json:"weight_fee"`
	Subtotal   permit.Money      `json:"subtotal"`
	Multiplier decimal.Decimal   `json:"multiplier"`
	Total      permit.Money      `json:"total"`
}

type PermitFeeCalculator struct {
	schedule PermitFeeSchedule
}

func NewPermitFeeCalculator(schedule PermitFeeSchedule) *PermitFeeCalculator {
	defaults := DefaultPermitFeeSchedule()
	if schedule.Currency == "" {
		schedule.Currency = defaults.Currency
	}
	if schedule.Multipliers == nil {
		schedule.Multipliers = defaults.Multipliers
	}
	return &PermitFeeCalculator{schedule: schedule}
}

func (c *PermitFeeCalculator) Schedule() PermitFeeSchedule {
	return c.schedule
}

// Calculate returns (base + seats*perSeat + kg*perKg) * multiplier.
func (c *PermitFeeCalculator) Calculate(req PermitFeeRequest) (PermitFeeBreakdown, error) {
	if !req.PermitType.Valid() {
		return PermitFeeBreakdown{}, argErr("permit_type", fmt.Sprintf("unknown permit type %q", req.PermitType))
	}
	if req.SeatCount < 0 {
		return PermitFeeBreakdown{}, argErr("seat_count", "must not be negative")
	}
	if req.MaxTakeoffWeightKg.IsNegative() {
		return PermitFeeBreakdown{}, argErr("max_takeoff_weight_kg", "must not be negative")
	}
	multiplier, ok := c.schedule.Multipliers[req.PermitType]
	if !ok {
		return PermitFeeBreakdown{}, argErr("permit_type", fmt.Sprintf("no multiplier configured for %s", req.PermitType))
	}

	s := c.schedule
	base := s.BaseFee
	seats := s.PerSeatFee.Mul(decimal.NewFromInt(int64(req.SeatCount)))
	weight := s.PerKgFee.Mul(req.MaxTakeoffWeightKg)
	subtotal := base.Add(seats).Add(weight)

	money := func(d decimal.Decimal) permit.Money {
		return permit.Money{Amount: d.Round(2), Currency: s.Currency}
	}
	return PermitFeeBreakdown{
		PermitType: req.PermitType,
		BaseFee:    money(base),
		SeatFee:    money(seats),
		WeightFee:  money(weight),
		Subtotal:   money(subtotal),
		Multiplier: multiplier,
		Total:      money(subtotal.Mul(multiplier)),
	}, nil
}

func argErr(field, reason string) error {
	return &permit.ArgumentError{Field: field, Reason: reason}
}
