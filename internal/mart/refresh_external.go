package mart

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/relmart/internal/data/catalog"
	"github.com/yungbote/relmart/internal/domain/artifact"
)

// insertBatchSize bounds the number of rows per parameterized INSERT so
// the statement stays well under the engine's parameter limit.
const insertBatchSize = 500

// refreshExternal runs the incremental delete-then-load protocol with a
// caller-supplied compute function as the row source instead of a SQL
// select. Rows arrive keyed by column name; the engine orders them by the
// table's catalog column order and normalizes missing and NaN values to
// SQL NULL before insertion.
func (a *Artifact) refreshExternal(ctx context.Context, start, end time.Time) artifact.Result {
	start, end = a.window(start, end)
	res := a.begin(windowSuffix(string(artifact.StrategyExternalCompute), start, end))

	rel, err := a.cat.Lookup(ctx, nil, a.def.Schema, a.def.PhysicalName())
	if err != nil {
		return a.fail(res, err)
	}
	if rel == nil {
		return a.fail(res, fmt.Errorf("relation %s does not exist; create it before refreshing", a.def.Qualified()))
	}
	if rel.Kind != catalog.KindTable {
		return a.fail(res, a.kindMismatch("mart.Artifact.refreshExternal", rel.Kind))
	}

	rows, err := a.def.Compute(ctx, start, end)
	if err != nil {
		return a.fail(res, fmt.Errorf("external compute: %w", err))
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
		if err := a.insertComputedRows(tx, cols, rows); err != nil {
			return err
		}

		count := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s >= ? AND %s <= ?",
			a.qualified(), quoteIdent(a.def.DateColumn), quoteIdent(a.def.DateColumn))
		return tx.Raw(count, start, end).Scan(&rowCount).Error
	})
	if err != nil {
		return a.fail(res, err)
	}
	return a.succeed(res, rowCount)
}

func (a *Artifact) insertComputedRows(tx *gorm.DB, cols []string, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", a.qualified(), quoteColumns(cols))

	for offset := 0; offset < len(rows); offset += insertBatchSize {
		batch := rows[offset:min(offset+insertBatchSize, len(rows))]
		values := make([]string, len(batch))
		args := make([]interface{}, 0, len(batch)*len(cols))
		for i, row := range batch {
			values[i] = placeholder
			for _, col := range cols {
				args = append(args, normalizeValue(row[col]))
			}
		}
		if err := tx.Exec(prefix+strings.Join(values, ", "), args...).Error; err != nil {
			return fmt.Errorf("insert computed rows: %w", err)
		}
	}
	return nil
}

// normalizeValue maps missing-value markers from external computations to
// SQL NULL; the database cannot ingest NaN into numeric columns.
func normalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return x
	default:
		return v
	}
}
