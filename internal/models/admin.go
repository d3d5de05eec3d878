// internal/models/admin.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	BaseModel
	TenantID     string     `json:"tenant_id" gorm:"size:64;index"`
	ActorID      string     `json:"actor_id" gorm:"size:255;index"`
	Action       string     `json:"action" gorm:"size:100;not null;index"`
	ResourceType string     `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   *uuid.UUID `json:"resource_id" gorm:"type:uuid;index"`
	NewValues    JSONB      `json:"new_values" gorm:"type:jsonb"`
	StatusCode   int        `json:"status_code"`
	IPAddress    string     `json:"ip_address" gorm:"size:45"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`
}

type AdminNotification struct {
	BaseModel
	TenantID            string               `json:"tenant_id" gorm:"size:64;not null;index"`
	Type                string               `json:"type" gorm:"type:varchar(50);not null;index"`
	Title               string               `json:"title" gorm:"size:255;not null"`
	Message             string               `json:"message" gorm:"type:text;not null"`
	Priority            NotificationPriority `json:"priority" gorm:"type:varchar(20);default:'medium';index"`
	Status              NotificationStatus   `json:"status" gorm:"type:varchar(20);default:'unread';index"`
	RelatedResourceType string               `json:"related_resource_type,omitempty" gorm:"size:50"`
	RelatedResourceID   *uuid.UUID           `json:"related_resource_id" gorm:"type:uuid"`
	ReadAt              *time.Time           `json:"read_at"`
}

// OutboxEvent is a domain event committed together with the aggregate and
// dispatched afterwards.
type OutboxEvent struct {
	BaseModel
	TenantID     string     `json:"tenant_id" gorm:"size:64;not null;index"`
	AggregateID  uuid.UUID  `json:"aggregate_id" gorm:"type:uuid;not null;index"`
	EventType    string     `json:"event_type" gorm:"size:100;not null;index"`
	Payload      JSONB      `json:"payload" gorm:"type:jsonb;not null"`
	OccurredAt   time.Time  `json:"occurred_at" gorm:"not null"`
	DispatchedAt *time.Time `json:"dispatched_at" gorm:"index"`
	Attempts     int        `json:"attempts" gorm:"default:0"`
	LastError    string     `json:"last_error,omitempty" gorm:"type:text"`
}
