package artifact

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Metadata is the persisted bookkeeping row, one per artifact name.
// Rows are upserted on every create and never deleted; drop flips
// IsActive instead so the history stays auditable.
type Metadata struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ViewName        string         `gorm:"column:view_name;not null;uniqueIndex" json:"view_name"`
	SchemaName      string         `gorm:"column:schema_name;not null" json:"schema_name"`
	Description     string         `gorm:"column:description;not null" json:"description"`
	SourceRelations datatypes.JSON `gorm:"column:source_relations;type:jsonb" json:"source_relations"`
	RefreshStrategy string         `gorm:"column:refresh_strategy;not null" json:"refresh_strategy"`
	QualityChecks   datatypes.JSON `gorm:"column:quality_checks;type:jsonb" json:"quality_checks"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
	Version         int            `gorm:"column:version;not null" json:"version"`
	IsActive        bool           `gorm:"column:is_active;not null" json:"is_active"`
}

func (Metadata) TableName() string { return "mart_artifact_metadata" }

// RefreshLogEntry is one row of the append-only refresh ledger. Every
// refresh attempt produces exactly one row, failures included.
type RefreshLogEntry struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ViewName        string    `gorm:"column:view_name;not null;index" json:"view_name"`
	SchemaName      string    `gorm:"column:schema_name;not null" json:"schema_name"`
	RefreshStrategy string    `gorm:"column:refresh_strategy;not null" json:"refresh_strategy"`
	StartedAt       time.Time `gorm:"column:started_at;not null" json:"started_at"`
	FinishedAt      time.Time `gorm:"column:finished_at;not null" json:"finished_at"`
	DurationSeconds float64   `gorm:"column:duration_seconds;not null" json:"duration_seconds"`
	Success         bool      `gorm:"column:success;not null" json:"success"`
	ErrorMessage    *string   `gorm:"column:error_message" json:"error_message,omitempty"`
	RowCount        int64     `gorm:"column:row_count;not null" json:"row_count"`
}

func (RefreshLogEntry) TableName() string { return "mart_refresh_log" }
