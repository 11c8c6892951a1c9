package stores

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/relmart/internal/domain/artifact"
	"github.com/yungbote/relmart/internal/platform/dbctx"
	"github.com/yungbote/relmart/internal/platform/logger"
)

type RefreshLogStore interface {
	// Append writes one ledger row. The ledger is append-only; nothing in
	// this core ever deletes from it.
	Append(dbc dbctx.Context, entry *artifact.RefreshLogEntry) error
	ListByViewName(dbc dbctx.Context, viewName string, limit int) ([]*artifact.RefreshLogEntry, error)
}

type refreshLogStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRefreshLogStore(gdb *gorm.DB, baseLog *logger.Logger) RefreshLogStore {
	return &refreshLogStore{db: gdb, log: baseLog.With("store", "RefreshLogStore")}
}

func (s *refreshLogStore) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return s.db
}

func (s *refreshLogStore) Append(dbc dbctx.Context, entry *artifact.RefreshLogEntry) error {
	if entry == nil {
		return nil
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return s.conn(dbc).WithContext(dbc.Ctx).Create(entry).Error
}

func (s *refreshLogStore) ListByViewName(dbc dbctx.Context, viewName string, limit int) ([]*artifact.RefreshLogEntry, error) {
	var rows []*artifact.RefreshLogEntry
	q := s.conn(dbc).WithContext(dbc.Ctx).
		Where("view_name = ?", viewName).
		Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
