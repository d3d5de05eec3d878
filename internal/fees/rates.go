// internal/fees/rates.go
package fees

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryLanding              Category = "landing"
	CategoryNavigation           Category = "navigation"
	CategoryParking              Category = "parking"
	CategoryAirportDevelopment   Category = "airport_development"
	CategorySecurity             Category = "security"
	CategoryHoldBaggageScreening Category = "hold_baggage_screening"
	CategoryExtendedOperations   Category = "extended_operations"
	CategoryLighting             Category = "lighting"
	CategoryFlightPlanFiling     Category = "flight_plan_filing"
	CategoryCatViFireUpgrade     Category = "cat_vi_fire_upgrade"
	CategoryFuelFlow             Category = "fuel_flow"
	CategoryLatePaymentInterest  Category = "late_payment_interest"
)

var AllCategories = []Category{
	CategoryLanding, CategoryNavigation, CategoryParking, CategoryAirportDevelopment,
	CategorySecurity, CategoryHoldBaggageScreening, CategoryExtendedOperations, CategoryLighting,
	CategoryFlightPlanFiling, CategoryCatViFireUpgrade, CategoryFuelFlow, CategoryLatePaymentInterest,
}

func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

type OperationType string

const (
	OperationLocalScheduled  OperationType = "local_scheduled"
	OperationInterisland     OperationType = "interisland"
	OperationGeneralAviation OperationType = "general_aviation"
	OperationCharter         OperationType = "charter"
	OperationEmergency       OperationType = "emergency"
	OperationMilitary        OperationType = "military"
	OperationGovernment      OperationType = "government"
)

func (o OperationType) Valid() bool {
	switch o {
	case OperationLocalScheduled, OperationInterisland, OperationGeneralAviation, OperationCharter,
		OperationEmergency, OperationMilitary, OperationGovernment:
		return true
	}
	return false
}

// LandingExempt reports whether the operation pays no landing fee.
func (o OperationType) LandingExempt() bool {
	return o == OperationEmergency || o == OperationMilitary || o == OperationGovernment
}

// WeightTier bands aircraft by maximum take-off weight in pounds. The zero
// value on a rate means "any tier".
type WeightTier int

const (
	TierAny WeightTier = iota
	TierLight
	TierMedium
	TierHeavy
	TierSuper
)

var (
	tierLightMaxLb  = decimal.NewFromInt(12500)
	tierMediumMaxLb = decimal.NewFromInt(75000)
	tierHeavyMaxLb  = decimal.NewFromInt(100000)
)

// TierFor returns the band for mtowLb: up to 12,500 lb, 12,501-75,000,
// 75,001-100,000 and above.
func TierFor(mtowLb decimal.Decimal) WeightTier {
	switch {
	case mtowLb.LessThanOrEqual(tierLightMaxLb):
		return TierLight
	case mtowLb.LessThanOrEqual(tierMediumMaxLb):
		return TierMedium
	case mtowLb.LessThanOrEqual(tierHeavyMaxLb):
		return TierHeavy
	default:
		return TierSuper
	}
}

func (t WeightTier) String() string {
	switch t {
	case TierLight:
		return "0-12500lb"
	case TierMedium:
		return "12501-75000lb"
	case TierHeavy:
		return "75001-100000lb"
	case TierSuper:
		return ">100000lb"
	}
	return "any"
}

// Time-of-day bands for extended operations.
const (
	BandLate      = "late"
	BandOvernight = "overnight"
)

// FeeRate is one effective-dated tariff entry. Empty discriminators match any
// query value.
type FeeRate struct {
	ID            uuid.UUID       `json:"id"`
	Category      Category        `json:"category"`
	OperationType OperationType   `json:"operation_type,omitempty"`
	Airport       string          `json:"airport,omitempty"`
	Tier          WeightTier      `json:"tier,omitempty"`
	Band          string          `json:"band,omitempty"`
	Rate          decimal.Decimal `json:"rate"`
	PerUnit       bool            `json:"per_unit"`
	MinimumFee    decimal.Decimal `json:"minimum_fee"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description,omitempty"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	Active        bool            `json:"active"`
}

// EffectiveAt reports whether the rate applies at t. EffectiveTo is exclusive.
func (r FeeRate) EffectiveAt(t time.Time) bool {
	if !r.Active || t.Before(r.EffectiveFrom) {
		return false
	}
	return r.EffectiveTo == nil || t.Before(*r.EffectiveTo)
}

func (r FeeRate) specificity() int {
	score := 0
	if r.Airport != "" {
		score += 4
	}
	if r.OperationType != "" {
		score += 2
	}
	if r.Tier != TierAny {
		score++
	}
	return score
}

func (r FeeRate) matches(q RateQuery) bool {
	if r.Category != q.Category || r.Band != q.Band {
		return false
	}
	if r.OperationType != "" && r.OperationType != q.OperationType {
		return false
	}
	if r.Airport != "" && !strings.EqualFold(r.Airport, q.Airport) {
		return false
	}
	if r.Tier != TierAny && r.Tier != q.Tier {
		return false
	}
	return r.EffectiveAt(q.AsOf)
}

type RateQuery struct {
	Category      Category
	OperationType OperationType
	Airport       string
	Tier          WeightTier
	Band          string
	AsOf          time.Time
}

func (q RateQuery) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s@%s", q.Category, q.OperationType, q.Airport, q.Tier, q.Band,
		q.AsOf.Format("2006-01-02"))
}

// RateTable is an append-only, effective-dated list of tariff entries. It is
// safe for concurrent use.
type RateTable struct {
	mu       sync.RWMutex
	rates    []FeeRate
	fallback *RateTable
}

func NewRateTable(rates ...FeeRate) *RateTable {
	t := &RateTable{}
	for _, r := range rates {
		t.Add(r)
	}
	return t
}

// WithFallback sets the table consulted when no entry of t matches a query.
func (t *RateTable) WithFallback(fallback *RateTable) *RateTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fallback = fallback
	return t
}

// Add appends an entry. Superseding a rate means adding a newer entry with the
// same discriminators; the older one stays for historical queries.
func (t *RateTable) Add(r FeeRate) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.Airport = strings.ToUpper(strings.TrimSpace(r.Airport))
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rates = append(t.rates, r)
}

// Deactivate switches an entry off. Entries are never removed.
func (t *RateTable) Deactivate(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.rates {
		if t.rates[i].ID == id {
			t.rates[i].Active = false
			return true
		}
	}
	return false
}

// Find returns the applicable rate as of q.AsOf: the most specific matching
// entry (airport, then operation type, then weight tier), the latest
// EffectiveFrom among equally specific ones, and the latest added among exact
// ties.
func (t *RateTable) Find(q RateQuery) (FeeRate, bool) {
	t.mu.RLock()
	var (
		best  FeeRate
		found bool
	)
	for _, r := range t.rates {
		if !r.matches(q) {
			continue
		}
		if !found || better(r, best) {
			best, found = r, true
		}
	}
	fallback := t.fallback
	t.mu.RUnlock()

	if !found && fallback != nil {
		return fallback.Find(q)
	}
	return best, found
}

func better(candidate, current FeeRate) bool {
	cs, bs := candidate.specificity(), current.specificity()
	if cs != bs {
		return cs > bs
	}
	return !candidate.EffectiveFrom.Before(current.EffectiveFrom)
}

// Rates returns a copy of the entries ordered by category and effective date.
func (t *RateTable) Rates() []FeeRate {
	t.mu.RLock()
	out := append([]FeeRate(nil), t.rates...)
	t.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].EffectiveFrom.Before(out[j].EffectiveFrom)
	})
	return out
}

func (t *RateTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rates)
}
