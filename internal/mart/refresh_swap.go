package mart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/relmart/internal/data/catalog"
	"github.com/yungbote/relmart/internal/domain/artifact"
)

// tempSuffix yields a collision-resistant suffix for shadow and backup
// table names.
func tempSuffix() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// refreshSwap rebuilds a table-backed artifact without ever exposing an
// empty or half-populated table: the new contents are loaded into a
// shadow table, then a rename pair inside one short transaction moves the
// live name over. Readers see either the full old row set or the full new
// one.
func (a *Artifact) refreshSwap(ctx context.Context) artifact.Result {
	res := a.begin(string(artifact.StrategyFullTableSwap))

	rel, err := a.cat.Lookup(ctx, nil, a.def.Schema, a.def.PhysicalName())
	if err != nil {
		return a.fail(res, err)
	}
	if rel == nil {
		return a.fail(res, fmt.Errorf("relation %s does not exist; create it before refreshing", a.def.Qualified()))
	}
	if rel.Kind != catalog.KindTable {
		return a.fail(res, a.kindMismatch("mart.Artifact.refreshSwap", rel.Kind))
	}

	liveName := a.def.PhysicalName()
	shadowName := fmt.Sprintf("%s_shadow_%s", liveName, tempSuffix())
	backupName := fmt.Sprintf("%s_backup_%s", liveName, tempSuffix())
	shadow := quoteQualified(a.def.Schema, shadowName)

	create := fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING ALL)", shadow, a.qualified())
	if err := a.db.WithContext(ctx).Exec(create).Error; err != nil {
		return a.fail(res, fmt.Errorf("create shadow table: %w", err))
	}

	rowCount, err := a.loadShadow(ctx, shadowName)
	if err != nil {
		a.dropBestEffort(ctx, shadowName)
		return a.fail(res, err)
	}

	// The rename pair is the only step that blocks readers of the live
	// name, deliberately kept to two catalog operations.
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
			a.qualified(), quoteIdent(backupName))).Error; err != nil {
			return fmt.Errorf("rename live to backup: %w", err)
		}
		if err := tx.Exec(fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
			shadow, quoteIdent(liveName))).Error; err != nil {
			return fmt.Errorf("rename shadow to live: %w", err)
		}
		return nil
	})
	if err != nil {
		a.dropBestEffort(ctx, shadowName)
		return a.fail(res, err)
	}

	a.dropBackup(ctx, backupName)
	return a.succeed(res, rowCount)
}

// loadShadow bulk-loads the shadow table over an effectively unbounded
// window, with the explicit catalog-resolved column ordering.
func (a *Artifact) loadShadow(ctx context.Context, shadowName string) (int64, error) {
	var rowCount int64
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := setLocalStatementTimeout(tx, a.cfg.StatementTimeout); err != nil {
			return err
		}
		cols, err := a.cat.ColumnNames(ctx, tx, a.def.Schema, shadowName)
		if err != nil {
			return err
		}
		start := time.Unix(0, 0).UTC()
		end := time.Now().UTC().AddDate(100, 0, 0)
		sel, args := a.def.IncrementalSelect(start, end)
		ins := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM (%s) AS src",
			quoteQualified(a.def.Schema, shadowName), quoteColumns(cols), quoteColumns(cols), sel)
		if err := tx.Exec(ins, args...).Error; err != nil {
			return fmt.Errorf("bulk load shadow table: %w", err)
		}
		return tx.Raw(fmt.Sprintf("SELECT COUNT(*) FROM %s",
			quoteQualified(a.def.Schema, shadowName))).Scan(&rowCount).Error
	})
	return rowCount, err
}

// dropBackup drops the renamed-away old table under a short lock-wait
// bound. A reader still holding a lock on it must not stall the refresh,
// so failure is a warning and the backup is left for manual cleanup.
func (a *Artifact) dropBackup(ctx context.Context, backupName string) {
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = %d",
			a.cfg.LockTimeout.Milliseconds())).Error; err != nil {
			return err
		}
		return tx.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s",
			quoteQualified(a.def.Schema, backupName))).Error
	})
	if err != nil {
		if catalog.IsLockNotAvailable(err) {
			a.log.Warn("backup table is locked by a reader, leaving it for manual cleanup",
				"backup", backupName)
		} else {
			a.log.Warn("backup table drop failed, leaving it for manual cleanup",
				"backup", backupName, "error", err)
		}
	}
}

func (a *Artifact) dropBestEffort(ctx context.Context, name string) {
	stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteQualified(a.def.Schema, name))
	if err := a.db.WithContext(ctx).Exec(stmt).Error; err != nil {
		a.log.Warn("failed to drop leftover table", "table", name, "error", err)
	}
}
