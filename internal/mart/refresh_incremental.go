package mart

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/relmart/internal/data/catalog"
	"github.com/yungbote/relmart/internal/domain/artifact"
)

const windowDateLayout = "2006-01-02"

func (a *Artifact) window(start, end time.Time) (time.Time, time.Time) {
	if !start.IsZero() && !end.IsZero() {
		return start, end
	}
	e := time.Now().UTC()
	s := e.AddDate(0, 0, -a.def.LookbackDays)
	return s, e
}

func windowSuffix(strategy string, start, end time.Time) string {
	return fmt.Sprintf("%s[%s..%s]",
		strategy, start.Format(windowDateLayout), end.Format(windowDateLayout))
}

// refreshIncremental deletes and recomputes one date window inside a
// single transaction, so concurrent readers never observe the delete
// without the insert. The insert names columns explicitly on both sides
// in the table's catalog order; a select whose column order drifts from
// the table's can therefore never miswrite values into the wrong column.
func (a *Artifact) refreshIncremental(ctx context.Context, start, end time.Time) artifact.Result {
	start, end = a.window(start, end)
	res := a.begin(windowSuffix(string(artifact.StrategyIncrementalTable), start, end))

	rel, err := a.cat.Lookup(ctx, nil, a.def.Schema, a.def.PhysicalName())
	if err != nil {
		return a.fail(res, err)
	}
	if rel == nil {
		return a.fail(res, fmt.Errorf("relation %s does not exist; create it before refreshing", a.def.Qualified()))
	}
	if rel.Kind == catalog.KindMaterializedView {
		// Views cannot take row-level DELETEs; a prior incarnation created
		// under a native strategy still gets refreshed rather than corrupted.
		a.log.Warn("incremental target is a materialized view, falling back to native full refresh")
		return a.refreshNative(ctx, false)
	}
	if rel.Kind != catalog.KindTable {
		return a.fail(res, a.kindMismatch("mart.Artifact.refreshIncremental", rel.Kind))
	}

	var rowCount int64
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := setLocalStatementTimeout(tx, a.cfg.StatementTimeout); err != nil {
			return err
		}

		del := fmt.Sprintf("DELETE FROM %s WHERE %s >= ? AND %s <= ?",
			a.qualified(), quoteIdent(a.def.DateColumn), quoteIdent(a.def.DateColumn))
		if err := tx.Exec(del, start, end).Error; err != nil {
			return fmt.Errorf("delete window: %w", err)
		}

		cols, err := a.cat.ColumnNames(ctx, tx, a.def.Schema, a.def.PhysicalName())
		if err != nil {
			return err
		}
		sel, args := a.def.IncrementalSelect(start, end)
		ins := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM (%s) AS src",
			a.qualified(), quoteColumns(cols), quoteColumns(cols), sel)
		if err := tx.Exec(ins, args...).Error; err != nil {
			return fmt.Errorf("recompute window: %w", err)
		}

		count := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s >= ? AND %s <= ?",
			a.qualified(), quoteIdent(a.def.DateColumn), quoteIdent(a.def.DateColumn))
		if err := tx.Raw(count, start, end).Scan(&rowCount).Error; err != nil {
			return fmt.Errorf("window row count: %w", err)
		}
		return nil
	})
	if err != nil {
		return a.fail(res, err)
	}
	return a.succeed(res, rowCount)
}

// setLocalStatementTimeout extends the statement timeout for the current
// transaction only, so bulk loads are not bound by the pool's default and
// nothing leaks to later work on the same connection.
func setLocalStatementTimeout(tx *gorm.DB, d time.Duration) error {
	return tx.Exec(fmt.Sprintf("SET LOCAL statement_timeout = %d", d.Milliseconds())).Error
}
