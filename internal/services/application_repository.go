// internal/services/application_repository.go
package services

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/civilaviation/fop-backend/internal/models"
	"github.com/civilaviation/fop-backend/internal/permit"
)

// applicationRepository persists the aggregate as one unit. All methods take
// the transaction to run in.
type applicationRepository struct{}

func (applicationRepository) load(tx *gorm.DB, tenantID string, id uuid.UUID) (*models.PermitApplication, error) {
	var rec models.PermitApplication
	err := tx.
		Preload("Documents").
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("requested_at ASC") }).
		Preload("Waivers", func(db *gorm.DB) *gorm.DB { return db.Order("requested_at ASC") }).
		Where("tenant_id = ?", tenantID).
		First(&rec, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "application", id.String())
	}
	return &rec, nil
}

// insert stores a new aggregate at version 1.
func (applicationRepository) insert(tx *gorm.DB, app *permit.Application) error {
	rec := models.ApplicationFromDomain(app)
	rec.Version = 1
	if err := tx.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	app.Version = 1
	return nil
}

// update writes the aggregate if its stored version is still app.Version and
// bumps the version. Documents no longer in the aggregate are removed; older
// payments are kept as history.
func (r applicationRepository) update(tx *gorm.DB, app *permit.Application) error {
	rec := models.ApplicationFromDomain(app)
	expected := app.Version
	rec.Version = expected + 1

	result := tx.Model(&models.PermitApplication{}).
		Where("id = ? AND version = ?", app.ID, expected).
		Select("*").
		Omit("id", "created_at", "deleted_at", clause.Associations).
		Updates(rec)
	if result.Error != nil {
		return fmt.Errorf("failed to update application: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConcurrentModification
	}

	if err := r.syncDocuments(tx, app.ID, rec.Documents); err != nil {
		return err
	}
	if len(rec.Payments) > 0 {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec.Payments).Error; err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}
	}
	if len(rec.Waivers) > 0 {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec.Waivers).Error; err != nil {
			return fmt.Errorf("failed to save waivers: %w", err)
		}
	}

	app.Version = rec.Version
	return nil
}

func (applicationRepository) syncDocuments(tx *gorm.DB, appID uuid.UUID, docs []models.PermitDocument) error {
	// Replaced documents are hard-deleted so the (application, type) index
	// admits the replacement.
	stale := tx.Unscoped().Where("application_id = ?", appID)
	if len(docs) > 0 {
		ids := make([]uuid.UUID, len(docs))
		for i, d := range docs {
			ids[i] = d.ID
		}
		stale = stale.Where("id NOT IN ?", ids)
	}
	if err := stale.Delete(&models.PermitDocument{}).Error; err != nil {
		return fmt.Errorf("failed to remove replaced documents: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}
	if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&docs).Error; err != nil {
		return fmt.Errorf("failed to save documents: %w", err)
	}
	return nil
}

// appendOutbox stores events for dispatch after commit and returns their ids.
func (applicationRepository) appendOutbox(tx *gorm.DB, events []permit.Event) ([]uuid.UUID, error) {
	if len(events) == 0 {
		return nil, nil
	}
	rows := make([]models.OutboxEvent, 0, len(events))
	for _, e := range events {
		payload, err := models.ToJSONB(e)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s event: %w", e.Type(), err)
		}
		rows = append(rows, models.OutboxEvent{
			BaseModel:   models.BaseModel{ID: uuid.New()},
			TenantID:    e.Tenant(),
			AggregateID: e.AggregateID(),
			EventType:   string(e.Type()),
			Payload:     payload,
			OccurredAt:  e.OccurredOn(),
		})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to write outbox: %w", err)
	}
	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}
