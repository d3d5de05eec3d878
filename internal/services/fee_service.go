// internal/services/fee_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/civilaviation/fop-backend/internal/config"
	"github.com/civilaviation/fop-backend/internal/fees"
	"github.com/civilaviation/fop-backend/internal/metrics"
	"github.com/civilaviation/fop-backend/internal/models"
	"github.com/civilaviation/fop-backend/internal/permit"
)

// sharedTenant is the tenant id of the shared tariff rows.
const sharedTenant = ""

type FeeService struct {
	db     *gorm.DB
	config *config.Config
}

type PermitQuoteRequest struct {
	PermitType         string          `json:"permit_type" validate:"required,oneof=one_time blanket emergency"`
	SeatCount          int             `json:"seat_count" validate:"min=0"`
	MaxTakeoffWeightKg decimal.Decimal `json:"max_takeoff_weight_kg"`
}

type TariffQuoteRequest struct {
	MaxTakeoffWeightLb decimal.Decimal `json:"max_takeoff_weight_lb"`
	OperationType      string          `json:"operation_type" validate:"required"`
	Airport            string          `json:"airport" validate:"required,icao"`
	PassengerCount     int             `json:"passenger_count" validate:"min=0"`
	Departing          bool            `json:"departing"`
	Interisland        bool            `json:"interisland"`
	OperationTime      time.Time       `json:"operation_time" validate:"required"`
	ParkingHours       decimal.Decimal `json:"parking_hours"`
	LightingHours      decimal.Decimal `json:"lighting_hours"`
	FlightPlanFiling   bool            `json:"flight_plan_filing"`
	CatViFireUpgrade   bool            `json:"cat_vi_fire_upgrade"`
	FuelGallons        decimal.Decimal `json:"fuel_gallons"`
}

type InterestQuoteRequest struct {
	Principal   decimal.Decimal `json:"principal"`
	Currency    string          `json:"currency" validate:"omitempty,currency"`
	DaysOverdue int             `json:"days_overdue" validate:"min=0"`
	AsOf        *time.Time      `json:"as_of,omitempty"`
}

// TenantFees is the fee configuration in force for one tenant.
type TenantFees struct {
	Schedule          fees.PermitFeeSchedule
	PrimaryAirports   []string
	ExpiryWarningDays int
}

func NewFeeService(db *gorm.DB, config *config.Config) *FeeService {
	return &FeeService{
		db:     db,
		config: config,
	}
}

// Settings returns the tenant's stored fee settings, or the configured
// defaults when the tenant has none.
func (s *FeeService) Settings(ctx context.Context, tenantID string) (TenantFees, error) {
	var row models.TenantFeeSettings
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&row).Error
	switch {
	case err == nil:
		return TenantFees{
			Schedule:          row.Schedule(),
			PrimaryAirports:   []string(row.PrimaryAirports),
			ExpiryWarningDays: row.ExpiryWarningDays,
		}, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.defaultSettings(), nil
	default:
		return TenantFees{}, fmt.Errorf("failed to load fee settings: %w", err)
	}
}

func (s *FeeService) defaultSettings() TenantFees {
	cfg := s.config.Fees
	schedule := fees.DefaultPermitFeeSchedule()
	schedule.BaseFee = decimal.NewFromFloat(cfg.BaseFee)
	schedule.PerSeatFee = decimal.NewFromFloat(cfg.PerSeatFee)
	schedule.PerKgFee = decimal.NewFromFloat(cfg.PerKgFee)
	schedule.Currency = strings.ToUpper(cfg.Currency)
	return TenantFees{
		Schedule:          schedule,
		PrimaryAirports:   cfg.PrimaryAirports,
		ExpiryWarningDays: cfg.ExpiryWarningDays,
	}
}

// RateTable builds the tariff for tenantID: the tenant's own rates, falling
// back to the shared rates, falling back to the built-in default tariff.
func (s *FeeService) RateTable(ctx context.Context, tenantID string) (*fees.RateTable, error) {
	settings, err := s.Settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	builtin := fees.DefaultRateTable(settings.PrimaryAirports...)

	shared, err := s.loadRates(ctx, sharedTenant)
	if err != nil {
		return nil, err
	}
	table := builtin
	if shared.Len() > 0 {
		table = shared.WithFallback(builtin)
	}
	if tenantID == sharedTenant {
		return table, nil
	}

	own, err := s.loadRates(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if own.Len() == 0 {
		return table, nil
	}
	return own.WithFallback(table), nil
}

func (s *FeeService) loadRates(ctx context.Context, tenantID string) (*fees.RateTable, error) {
	var rows []models.TariffRate
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("effective_from ASC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load tariff rates: %w", err)
	}
	table := fees.NewRateTable()
	for i := range rows {
		table.Add(rows[i].ToDomain())
	}
	return table, nil
}

func (s *FeeService) PermitCalculator(ctx context.Context, tenantID string) (*fees.PermitFeeCalculator, error) {
	settings, err := s.Settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return fees.NewPermitFeeCalculator(settings.Schedule), nil
}

func (s *FeeService) QuotePermit(ctx context.Context, tenantID string, req *PermitQuoteRequest) (fees.PermitFeeBreakdown, error) {
	calc, err := s.PermitCalculator(ctx, tenantID)
	if err != nil {
		return fees.PermitFeeBreakdown{}, err
	}
	breakdown, err := calc.Calculate(fees.PermitFeeRequest{
		PermitType:         permit.PermitType(req.PermitType),
		SeatCount:          req.SeatCount,
		MaxTakeoffWeightKg: req.MaxTakeoffWeightKg,
	})
	metrics.RecordQuote("permit", err)
	return breakdown, err
}

func (s *FeeService) QuoteTariff(ctx context.Context, tenantID string, req *TariffQuoteRequest) (fees.TariffBreakdown, error) {
	table, err := s.RateTable(ctx, tenantID)
	if err != nil {
		return fees.TariffBreakdown{}, err
	}
	breakdown, err := fees.NewTariffCalculator(table).Calculate(fees.TariffRequest{
		MaxTakeoffWeightLb: req.MaxTakeoffWeightLb,
		OperationType:      fees.OperationType(req.OperationType),
		Airport:            req.Airport,
		PassengerCount:     req.PassengerCount,
		Departing:          req.Departing,
		Interisland:        req.Interisland,
		OperationTime:      req.OperationTime,
		ParkingHours:       req.ParkingHours,
		LightingHours:      req.LightingHours,
		FlightPlanFiling:   req.FlightPlanFiling,
		CatViFireUpgrade:   req.CatViFireUpgrade,
		FuelGallons:        req.FuelGallons,
	})
	metrics.RecordQuote("tariff", err)
	return breakdown, err
}

// QuoteInterest applies the tenant's late-payment rate effective at AsOf
// (default now).
func (s *FeeService) QuoteInterest(ctx context.Context, tenantID string, req *InterestQuoteRequest, now time.Time) (permit.Money, error) {
	currency := req.Currency
	if currency == "" {
		currency = permit.DefaultCurrency
	}
	asOf := now
	if req.AsOf != nil {
		asOf = *req.AsOf
	}
	table, err := s.RateTable(ctx, tenantID)
	if err != nil {
		return permit.Money{}, err
	}
	interest, err := fees.NewTariffCalculator(table).Interest(
		permit.Money{Amount: req.Principal, Currency: currency}, req.DaysOverdue, asOf)
	metrics.RecordQuote("interest", err)
	return interest, err
}
