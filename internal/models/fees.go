// internal/models/fees.go
package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/civilaviation/fop-backend/internal/fees"
	"github.com/civilaviation/fop-backend/internal/permit"
)

// TariffRate is a persisted fees.FeeRate. TenantID is empty for the shared
// default schedule.
type TariffRate struct {
	BaseModel
	TenantID      string             `json:"tenant_id" gorm:"size:64;index"`
	Category      fees.Category      `json:"category" gorm:"type:varchar(40);not null;index"`
	OperationType fees.OperationType `json:"operation_type" gorm:"type:varchar(30)"`
	Airport       string             `json:"airport" gorm:"size:8"`
	Tier          fees.WeightTier    `json:"tier" gorm:"default:0"`
	Band          string             `json:"band" gorm:"size:20"`
	Rate          decimal.Decimal    `json:"rate" gorm:"type:decimal(12,4);not null"`
	PerUnit       bool               `json:"per_unit" gorm:"default:true"`
	MinimumFee    decimal.Decimal    `json:"minimum_fee" gorm:"type:decimal(12,2);default:0"`
	Currency      string             `json:"currency" gorm:"size:3;not null"`
	Description   string             `json:"description" gorm:"size:255"`
	EffectiveFrom time.Time          `json:"effective_from" gorm:"not null;index"`
	EffectiveTo   *time.Time         `json:"effective_to"`
	Active        bool               `json:"active" gorm:"default:true;index"`
	CreatedBy     string             `json:"created_by" gorm:"size:255"`
}

func TariffRateFromDomain(tenantID string, r fees.FeeRate, createdBy string) *TariffRate {
	return &TariffRate{
		BaseModel:     BaseModel{ID: r.ID},
		TenantID:      tenantID,
		Category:      r.Category,
		OperationType: r.OperationType,
		Airport:       r.Airport,
		Tier:          r.Tier,
		Band:          r.Band,
		Rate:          r.Rate,
		PerUnit:       r.PerUnit,
		MinimumFee:    r.MinimumFee,
		Currency:      r.Currency,
		Description:   r.Description,
		EffectiveFrom: r.EffectiveFrom,
		EffectiveTo:   r.EffectiveTo,
		Active:        r.Active,
		CreatedBy:     createdBy,
	}
}

func (r *TariffRate) ToDomain() fees.FeeRate {
	return fees.FeeRate{
		ID:            r.ID,
		Category:      r.Category,
		OperationType: r.OperationType,
		Airport:       r.Airport,
		Tier:          r.Tier,
		Band:          r.Band,
		Rate:          r.Rate,
		PerUnit:       r.PerUnit,
		MinimumFee:    r.MinimumFee,
		Currency:      r.Currency,
		Description:   r.Description,
		EffectiveFrom: r.EffectiveFrom,
		EffectiveTo:   r.EffectiveTo,
		Active:        r.Active,
	}
}

// TenantFeeSettings holds a tenant's permit fee schedule and primary
// airports. Tenants without a row use the configured defaults.
type TenantFeeSettings struct {
	BaseModel
	TenantID            string          `json:"tenant_id" gorm:"size:64;not null;uniqueIndex"`
	Currency            string          `json:"currency" gorm:"size:3;not null"`
	BaseFee             decimal.Decimal `json:"base_fee" gorm:"type:decimal(12,2);not null"`
	PerSeatFee          decimal.Decimal `json:"per_seat_fee" gorm:"type:decimal(12,2);not null"`
	PerKgFee            decimal.Decimal `json:"per_kg_fee" gorm:"type:decimal(12,4);not null"`
	OneTimeMultiplier   decimal.Decimal `json:"one_time_multiplier" gorm:"type:decimal(6,2);not null"`
	BlanketMultiplier   decimal.Decimal `json:"blanket_multiplier" gorm:"type:decimal(6,2);not null"`
	EmergencyMultiplier decimal.Decimal `json:"emergency_multiplier" gorm:"type:decimal(6,2);not null"`
	PrimaryAirports     pq.StringArray  `json:"primary_airports" gorm:"type:text"`
	ExpiryWarningDays   int             `json:"expiry_warning_days" gorm:"default:30"`
}

func TenantFeeSettingsFromSchedule(tenantID string, s fees.PermitFeeSchedule, primaryAirports []string, warningDays int) *TenantFeeSettings {
	return &TenantFeeSettings{
		TenantID:            tenantID,
		Currency:            s.Currency,
		BaseFee:             s.BaseFee,
		PerSeatFee:          s.PerSeatFee,
		PerKgFee:            s.PerKgFee,
		OneTimeMultiplier:   s.Multipliers[permit.PermitTypeOneTime],
		BlanketMultiplier:   s.Multipliers[permit.PermitTypeBlanket],
		EmergencyMultiplier: s.Multipliers[permit.PermitTypeEmergency],
		PrimaryAirports:     pq.StringArray(primaryAirports),
		ExpiryWarningDays:   warningDays,
	}
}

func (s *TenantFeeSettings) Schedule() fees.PermitFeeSchedule {
	return fees.PermitFeeSchedule{
		BaseFee:    s.BaseFee,
		PerSeatFee: s.PerSeatFee,
		PerKgFee:   s.PerKgFee,
		Currency:   s.Currency,
		Multipliers: map[permit.PermitType]decimal.Decimal{
			permit.PermitTypeOneTime:   s.OneTimeMultiplier,
			permit.PermitTypeBlanket:   s.BlanketMultiplier,
			permit.PermitTypeEmergency: s.EmergencyMultiplier,
		},
	}
}
