package stores

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/relmart/internal/domain/artifact"
	"github.com/yungbote/relmart/internal/platform/dbctx"
	"github.com/yungbote/relmart/internal/platform/logger"
)

type MetadataStore interface {
	// Upsert inserts or updates the single metadata row for the artifact,
	// bumping version by exactly one either way.
	Upsert(dbc dbctx.Context, row *artifact.Metadata) error
	GetByViewName(dbc dbctx.Context, viewName string) (*artifact.Metadata, error)
	// Deactivate flips is_active off; the row is retained for audit.
	Deactivate(dbc dbctx.Context, viewName string) error
	ListActive(dbc dbctx.Context) ([]*artifact.Metadata, error)
}

type metadataStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMetadataStore(gdb *gorm.DB, baseLog *logger.Logger) MetadataStore {
	return &metadataStore{db: gdb, log: baseLog.With("store", "MetadataStore")}
}

func (s *metadataStore) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return s.db
}

func (s *metadataStore) Upsert(dbc dbctx.Context, row *artifact.Metadata) error {
	if row == nil || row.ViewName == "" {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	now := time.Now().UTC()
	row.UpdatedAt = now
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.Version == 0 {
		row.Version = 1
	}
	row.IsActive = true

	assignments := clause.AssignmentColumns([]string{
		"schema_name",
		"description",
		"source_relations",
		"refresh_strategy",
		"quality_checks",
		"updated_at",
		"is_active",
	})
	assignments = append(assignments, clause.Assignment{
		Column: clause.Column{Name: "version"},
		Value:  gorm.Expr("version + 1"),
	})

	return s.conn(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "view_name"}},
			DoUpdates: assignments,
		}).
		Create(row).Error
}

func (s *metadataStore) GetByViewName(dbc dbctx.Context, viewName string) (*artifact.Metadata, error) {
	var row artifact.Metadata
	err := s.conn(dbc).WithContext(dbc.Ctx).
		Where("view_name = ?", viewName).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *metadataStore) Deactivate(dbc dbctx.Context, viewName string) error {
	return s.conn(dbc).WithContext(dbc.Ctx).
		Model(&artifact.Metadata{}).
		Where("view_name = ?", viewName).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
			"version":    gorm.Expr("version + 1"),
		}).Error
}

func (s *metadataStore) ListActive(dbc dbctx.Context) ([]*artifact.Metadata, error) {
	var rows []*artifact.Metadata
	err := s.conn(dbc).WithContext(dbc.Ctx).
		Where("is_active = ?", true).
		Order("view_name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
