// internal/database/connection_test.go
package database

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/civilaviation/fop-backend/internal/fees"
	"github.com/civilaviation/fop-backend/internal/models"
)

func TestSeedInitialDataIsIdempotent(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, SeedInitialData(db, []string{"TNCM"}))
	require.NoError(t, SeedInitialData(db, []string{"TNCM"}))

	var count int64
	require.NoError(t, db.Model(&models.TariffRate{}).Count(&count).Error)
	assert.Equal(t, int64(len(fees.DefaultRates("TNCM"))), count)

	var landing models.TariffRate
	require.NoError(t, db.Where("category = ? AND operation_type = ? AND tier = ?",
		fees.CategoryLanding, fees.OperationCharter, fees.TierHeavy).First(&landing).Error)
	assert.True(t, landing.Rate.Equal(decimal.RequireFromString("11.5")))
	assert.Equal(t, "", landing.TenantID)
}

func TestSeedTenantUpserts(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer Close(db)

	schedule := fees.DefaultPermitFeeSchedule()
	settings := models.TenantFeeSettingsFromSchedule("sxm-caa", schedule, []string{"TNCM"}, 30)
	require.NoError(t, SeedTenant(db, settings))

	schedule.BaseFee = decimal.NewFromInt(200)
	again := models.TenantFeeSettingsFromSchedule("sxm-caa", schedule, []string{"TNCM", "TQPF"}, 14)
	require.NoError(t, SeedTenant(db, again))

	var rows []models.TenantFeeSettings
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].BaseFee.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, []string{"TNCM", "TQPF"}, []string(rows[0].PrimaryAirports))
	assert.Equal(t, 14, rows[0].ExpiryWarningDays)
	assert.True(t, rows[0].Schedule().Multipliers["blanket"].Equal(decimal.RequireFromString("2.5")))
}

func TestWithTransactionRollsBack(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer Close(db)

	boom := errors.New("boom")
	err = WithTransaction(db, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&models.AdminNotification{
			TenantID: "sxm-caa", Type: "test", Title: "t", Message: "m",
		}).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&models.AdminNotification{}).Count(&count).Error)
	assert.Zero(t, count)
}
