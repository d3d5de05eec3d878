// internal/permit/money.go
package permit

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "USD"

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Money is an immutable non-negative amount in a single currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if !currencyPattern.MatchString(currency) {
		return Money{}, invalidArg("currency", "must be a three-letter ISO code")
	}
	if amount.IsNegative() {
		return Money{}, invalidArg("amount", "must not be negative")
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// MustMoney is NewMoney for constants and tests.
func MustMoney(amount string, currency string) Money {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		panic(err)
	}
	m, err := NewMoney(d, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func ZeroMoney(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, invalidArg("currency", fmt.Sprintf("cannot add %s to %s", other.Currency, m.Currency))
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub subtracts other from m. The result must stay non-negative.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, invalidArg("currency", fmt.Sprintf("cannot subtract %s from %s", other.Currency, m.Currency))
	}
	result := m.Amount.Sub(other.Amount)
	if result.IsNegative() {
		return Money{}, invalidArg("amount", "result would be negative")
	}
	return Money{Amount: result, Currency: m.Currency}, nil
}

// Percent returns pct% of m, rounded to cents.
func (m Money) Percent(pct decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(pct).Div(decimal.NewFromInt(100)).Round(2), Currency: m.Currency}
}

func (m Money) Round() Money {
	return Money{Amount: m.Amount.Round(2), Currency: m.Currency}
}

func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}

// Period is the requested validity window of a permit. End may equal Start.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewPeriod(start, end time.Time) (Period, error) {
	if start.IsZero() || end.IsZero() {
		return Period{}, invalidArg("validity", "start and end are required")
	}
	if end.Before(start) {
		return Period{}, invalidArg("validity", "end date is before start date")
	}
	return Period{Start: start, End: end}, nil
}

type FlightPurpose string

const (
	FlightPurposeScheduled  FlightPurpose = "scheduled"
	FlightPurposeCharter    FlightPurpose = "charter"
	FlightPurposeCargo      FlightPurpose = "cargo"
	FlightPurposePrivate    FlightPurpose = "private"
	FlightPurposeMedevac    FlightPurpose = "medevac"
	FlightPurposeTechnical  FlightPurpose = "technical_stop"
	FlightPurposeDiplomatic FlightPurpose = "diplomatic"
)

// FlightDetails describes the operation the permit is requested for.
type FlightDetails struct {
	Purpose            FlightPurpose   `json:"purpose"`
	DepartureAirport   string          `json:"departure_airport"`
	ArrivalAirport     string          `json:"arrival_airport"`
	FlightDate         time.Time       `json:"flight_date"`
	PassengerCount     int             `json:"passenger_count"`
	CargoDescription   string          `json:"cargo_description,omitempty"`
	CargoWeightKg      decimal.Decimal `json:"cargo_weight_kg"`
	SeatCount          int             `json:"seat_count"`
	MaxTakeoffWeightKg decimal.Decimal `json:"max_takeoff_weight_kg"`
}

func NewFlightDetails(fd FlightDetails) (FlightDetails, error) {
	fd.DepartureAirport = strings.ToUpper(strings.TrimSpace(fd.DepartureAirport))
	fd.ArrivalAirport = strings.ToUpper(strings.TrimSpace(fd.ArrivalAirport))
	switch {
	case fd.Purpose == "":
		return FlightDetails{}, invalidArg("flight.purpose", "is required")
	case fd.DepartureAirport == "":
		return FlightDetails{}, invalidArg("flight.departure_airport", "is required")
	case fd.ArrivalAirport == "":
		return FlightDetails{}, invalidArg("flight.arrival_airport", "is required")
	case fd.FlightDate.IsZero():
		return FlightDetails{}, invalidArg("flight.flight_date", "is required")
	case fd.PassengerCount < 0:
		return FlightDetails{}, invalidArg("flight.passenger_count", "must not be negative")
	case fd.SeatCount < 0:
		return FlightDetails{}, invalidArg("flight.seat_count", "must not be negative")
	case fd.CargoWeightKg.IsNegative():
		return FlightDetails{}, invalidArg("flight.cargo_weight_kg", "must not be negative")
	case fd.MaxTakeoffWeightKg.IsNegative():
		return FlightDetails{}, invalidArg("flight.max_takeoff_weight_kg", "must not be negative")
	}
	return fd, nil
}
