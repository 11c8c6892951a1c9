package catalog

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/relmart/internal/domain/artifact"
	"github.com/yungbote/relmart/internal/platform/logger"
)

// Kind is the catalog relation kind this core cares about.
type Kind string

const (
	KindTable            Kind = "table"
	KindView             Kind = "view"
	KindMaterializedView Kind = "materialized_view"
)

// Relation identifies one catalog object.
type Relation struct {
	OID    int64
	Schema string
	Name   string
	Kind   Kind
}

func (r Relation) Qualified() string { return fmt.Sprintf("%s.%s", r.Schema, r.Name) }

// Catalog answers the small set of pg_catalog questions the lifecycle
// manager needs: relation kind, physical column order, rewrite-rule
// dependents and view definition text.
type Catalog struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(gdb *gorm.DB, baseLog *logger.Logger) *Catalog {
	return &Catalog{db: gdb, log: baseLog.With("component", "catalog")}
}

func (c *Catalog) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}

type relationRow struct {
	OID     int64  `gorm:"column:oid"`
	Nspname string `gorm:"column:nspname"`
	Relname string `gorm:"column:relname"`
	Relkind string `gorm:"column:relkind"`
}

func kindOf(relkind string) (Kind, bool) {
	switch relkind {
	case "r", "p":
		return KindTable, true
	case "v":
		return KindView, true
	case "m":
		return KindMaterializedView, true
	}
	return "", false
}

// Lookup resolves schema.name to its catalog identity. A missing relation
// returns (nil, nil) rather than an error.
func (c *Catalog) Lookup(ctx context.Context, tx *gorm.DB, schema, name string) (*Relation, error) {
	var rows []relationRow
	err := c.conn(tx).WithContext(ctx).Raw(`
		SELECT c.oid, n.nspname, c.relname, c.relkind
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = ? AND c.relname = ?`, schema, name).Scan(&rows).Error
	if err != nil {
		return nil, artifact.Wrap(artifact.CodeInternal, "catalog.Lookup", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	kind, ok := kindOf(rows[0].Relkind)
	if !ok {
		return nil, nil
	}
	return &Relation{OID: rows[0].OID, Schema: rows[0].Nspname, Name: rows[0].Relname, Kind: kind}, nil
}

// ColumnNames returns the physical column order of schema.name. The
// engines build INSERT lists from this, never from a select statement's
// own order.
func (c *Catalog) ColumnNames(ctx context.Context, tx *gorm.DB, schema, name string) ([]string, error) {
	var cols []string
	err := c.conn(tx).WithContext(ctx).Raw(`
		SELECT a.attname
		FROM pg_catalog.pg_attribute a
		JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = ? AND c.relname = ?
		  AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum`, schema, name).Scan(&cols).Error
	if err != nil {
		return nil, artifact.Wrap(artifact.CodeInternal, "catalog.ColumnNames", err)
	}
	if len(cols) == 0 {
		return nil, artifact.NewError(artifact.CodeNotFound, "catalog.ColumnNames",
			fmt.Sprintf("relation %s.%s has no columns in the catalog", schema, name), nil)
	}
	return cols, nil
}

// DirectDependents returns the relations whose rewrite rules read the
// relation identified by oid. These are view dependencies, not foreign
// keys.
func (c *Catalog) DirectDependents(ctx context.Context, tx *gorm.DB, oid int64) ([]Relation, error) {
	var rows []relationRow
	err := c.conn(tx).WithContext(ctx).Raw(`
		SELECT DISTINCT dc.oid, n.nspname, dc.relname, dc.relkind
		FROM pg_catalog.pg_depend d
		JOIN pg_catalog.pg_rewrite rw ON rw.oid = d.objid
		JOIN pg_catalog.pg_class dc ON dc.oid = rw.ev_class
		JOIN pg_catalog.pg_namespace n ON n.oid = dc.relnamespace
		WHERE d.classid = 'pg_rewrite'::regclass
		  AND d.refclassid = 'pg_class'::regclass
		  AND d.refobjid = ?
		  AND dc.oid <> ?`, oid, oid).Scan(&rows).Error
	if err != nil {
		return nil, artifact.Wrap(artifact.CodeInternal, "catalog.DirectDependents", err)
	}
	out := make([]Relation, 0, len(rows))
	for _, row := range rows {
		kind, ok := kindOf(row.Relkind)
		if !ok {
			continue
		}
		out = append(out, Relation{OID: row.OID, Schema: row.Nspname, Name: row.Relname, Kind: kind})
	}
	return out, nil
}

// ViewDefinition captures the current definition text of a plain view.
func (c *Catalog) ViewDefinition(ctx context.Context, tx *gorm.DB, oid int64) (string, error) {
	var def string
	err := c.conn(tx).WithContext(ctx).Raw(
		`SELECT pg_catalog.pg_get_viewdef(?::oid, true)`, oid).Scan(&def).Error
	if err != nil {
		return "", artifact.Wrap(artifact.CodeInternal, "catalog.ViewDefinition", err)
	}
	return def, nil
}
