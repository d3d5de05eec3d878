// internal/database/seed.go
package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/civilaviation/fop-backend/internal/fees"
	"github.com/civilaviation/fop-backend/internal/models"
)

const seedActor = "system"

// SeedInitialData loads the default tariff schedule as shared rates (empty
// tenant) unless shared rates already exist.
func SeedInitialData(db *gorm.DB, primaryAirports []string) error {
	var count int64
	if err := db.Model(&models.TariffRate{}).Where("tenant_id = ?", "").Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count tariff rates: %w", err)
	}
	if count > 0 {
		logrus.WithField("rates", count).Debug("Default tariff already seeded")
		return nil
	}

	rates := fees.DefaultRates(primaryAirports...)
	records := make([]*models.TariffRate, 0, len(rates))
	for _, r := range rates {
		records = append(records, models.TariffRateFromDomain("", r, seedActor))
	}
	if err := db.CreateInBatches(records, 100).Error; err != nil {
		return fmt.Errorf("failed to seed tariff rates: %w", err)
	}

	logrus.WithField("rates", len(records)).Info("Default tariff seeded")
	return nil
}

// SeedTenant creates or replaces a tenant's fee settings.
func SeedTenant(db *gorm.DB, settings *models.TenantFeeSettings) error {
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"currency", "base_fee", "per_seat_fee", "per_kg_fee",
			"one_time_multiplier", "blanket_multiplier", "emergency_multiplier",
			"primary_airports", "expiry_warning_days", "updated_at",
		}),
	}).Create(settings).Error
	if err != nil {
		return fmt.Errorf("failed to seed tenant %s: %w", settings.TenantID, err)
	}
	return nil
}
