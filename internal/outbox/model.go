package outbox

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusDispatched Status = "DISPATCHED"
	StatusFailed     Status = "FAILED"
)

// Operation is one deferred write of a full entity row to the remote backend.
type Operation struct {
	ID           string         `gorm:"primaryKey;type:char(26)" json:"id"`
	Table        string         `gorm:"column:entity_table;type:varchar(64);not null;index:idx_outbox_entity" json:"table"`
	EntityID     snowflake.ID   `gorm:"not null;index:idx_outbox_entity" json:"entity_id"`
	Version      int64          `gorm:"not null" json:"version"`
	DedupeKey    string         `gorm:"type:varchar(128);not null;uniqueIndex" json:"dedupe_key"`
	Payload      datatypes.JSON `gorm:"type:json;not null" json:"payload"`
	Status       Status         `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	Attempts     int            `gorm:"not null;default:0" json:"attempts"`
	LastError    string         `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
	DispatchedAt *time.Time     `json:"dispatched_at,omitempty"`
}

func (Operation) TableName() string { return "outbox_operations" }

// DedupeKey identifies one version of one entity; enqueueing it twice is a no-op.
func DedupeKey(table string, id snowflake.ID, version int64) string {
	return fmt.Sprintf("%s:%d:%d", table, id, version)
}

// EntityKey addresses a row independent of its version.
type EntityKey struct {
	Table string
	ID    snowflake.ID
}
