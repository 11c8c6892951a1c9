package evolution

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/relmart/internal/data/catalog"
	"github.com/yungbote/relmart/internal/domain/artifact"
	"github.com/yungbote/relmart/internal/platform/logger"
)

// ColumnChange is one in-place column type alteration on the base
// relation.
type ColumnChange struct {
	Column  string
	NewType string
	// Using optionally supplies the USING expression for casts Postgres
	// cannot derive implicitly.
	Using string
}

// CapturedView holds a dependent view's identity and definition text as
// captured before anything was dropped. On partial failure these are the
// operator's replay material.
type CapturedView struct {
	Schema     string
	Name       string
	Definition string
}

// Report describes a completed (or no-op) evolution run.
type Report struct {
	Applied       bool
	DropOrder     []string
	RecreateOrder []string
	Captured      []CapturedView
}

// Coordinator alters a base relation that has transitively dependent
// plain views: it discovers the rewrite-rule dependency closure, drops
// dependents in safe order, applies the change, and recreates them.
type Coordinator struct {
	db  *gorm.DB
	cat *catalog.Catalog
	log *logger.Logger
}

func NewCoordinator(gdb *gorm.DB, cat *catalog.Catalog, baseLog *logger.Logger) *Coordinator {
	return &Coordinator{db: gdb, cat: cat, log: baseLog.With("component", "evolution")}
}

type node struct {
	rel        catalog.Relation
	dependents []int64
}

// closure breadth-first traverses rewrite dependencies from the base
// relation, returning all transitively dependent relations and the edge
// list needed for ordering.
func (c *Coordinator) closure(ctx context.Context, base catalog.Relation) (map[int64]*node, error) {
	nodes := map[int64]*node{base.OID: {rel: base}}
	queue := []int64{base.OID}
	for len(queue) > 0 {
		oid := queue[0]
		queue = queue[1:]
		deps, err := c.cat.DirectDependents(ctx, nil, oid)
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			nodes[oid].dependents = append(nodes[oid].dependents, dep.OID)
			if _, seen := nodes[dep.OID]; !seen {
				nodes[dep.OID] = &node{rel: dep}
				queue = append(queue, dep.OID)
			}
		}
	}
	return nodes, nil
}

// dropOrder computes a post-order (dependents before their bases) walk so
// no view is dropped while something still reads it. The base relation
// itself is excluded.
func dropOrder(nodes map[int64]*node, baseOID int64) []catalog.Relation {
	var order []catalog.Relation
	visited := make(map[int64]bool)
	var visit func(oid int64)
	visit = func(oid int64) {
		if visited[oid] {
			return
		}
		visited[oid] = true
		for _, dep := range nodes[oid].dependents {
			visit(dep)
		}
		if oid != baseOID {
			order = append(order, nodes[oid].rel)
		}
	}
	// Post-order emits a view only after everything that reads it.
	visit(baseOID)
	return order
}

// AlterColumns changes column types on schema.name. The operation aborts
// before any DDL when the base relation has a dependent materialized
// view: repopulating one safely is a higher-risk operation this
// coordinator deliberately does not attempt. If recreation fails partway,
// the report carries every captured definition for manual replay.
func (c *Coordinator) AlterColumns(ctx context.Context, schema, name string, changes []ColumnChange) (*Report, error) {
	op := "evolution.Coordinator.AlterColumns"
	report := &Report{}
	if len(changes) == 0 {
		return report, nil
	}

	base, err := c.cat.Lookup(ctx, nil, schema, name)
	if err != nil {
		return report, err
	}
	if base == nil {
		c.log.Info("base relation does not exist, nothing to evolve", "relation", schema+"."+name)
		return report, nil
	}

	nodes, err := c.closure(ctx, *base)
	if err != nil {
		return report, err
	}

	for oid, n := range nodes {
		if oid == base.OID {
			continue
		}
		if n.rel.Kind == catalog.KindMaterializedView {
			return report, artifact.NewError(artifact.CodeEvolutionAbort, op,
				fmt.Sprintf("dependent %s is a materialized view; aborting before any DDL, nothing was changed", n.rel.Qualified()), nil)
		}
	}

	drops := dropOrder(nodes, base.OID)
	for _, rel := range drops {
		def, err := c.cat.ViewDefinition(ctx, nil, rel.OID)
		if err != nil {
			return report, err
		}
		report.Captured = append(report.Captured, CapturedView{
			Schema:     rel.Schema,
			Name:       rel.Name,
			Definition: def,
		})
		report.DropOrder = append(report.DropOrder, rel.Qualified())
	}

	for _, rel := range drops {
		stmt := fmt.Sprintf("DROP VIEW %s", quote(rel.Schema, rel.Name))
		if err := c.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			// A view that vanished between capture and drop is fine; its
			// captured definition still gets recreated afterwards.
			if !catalog.IsUndefinedTable(err) {
				return report, c.partialFailure(op, report, fmt.Errorf("drop %s: %w", rel.Qualified(), err))
			}
		}
		c.log.Info("dropped dependent view", "view", rel.Qualified())
	}

	for _, ch := range changes {
		stmt := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s",
			quote(schema, name), quoteIdent(ch.Column), ch.NewType)
		if strings.TrimSpace(ch.Using) != "" {
			stmt += " USING " + ch.Using
		}
		if err := c.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return report, c.partialFailure(op, report, fmt.Errorf("alter column %s: %w", ch.Column, err))
		}
		c.log.Info("altered column type", "relation", schema+"."+name,
			"column", ch.Column, "type", ch.NewType)
	}

	for i := len(report.Captured) - 1; i >= 0; i-- {
		cv := report.Captured[i]
		stmt := fmt.Sprintf("CREATE VIEW %s AS %s", quote(cv.Schema, cv.Name), cv.Definition)
		if err := c.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return report, c.partialFailure(op, report, fmt.Errorf("recreate %s.%s: %w", cv.Schema, cv.Name, err))
		}
		report.RecreateOrder = append(report.RecreateOrder, cv.Schema+"."+cv.Name)
		c.log.Info("recreated dependent view", "view", cv.Schema+"."+cv.Name)
	}

	report.Applied = true
	return report, nil
}

// partialFailure surfaces the captured definitions in the error; there is
// no automatic rollback of already-dropped views beyond this.
func (c *Coordinator) partialFailure(op string, report *Report, cause error) error {
	var defs []string
	for _, cv := range report.Captured {
		defs = append(defs, fmt.Sprintf("-- %s.%s\nCREATE VIEW %s AS %s;",
			cv.Schema, cv.Name, quote(cv.Schema, cv.Name), cv.Definition))
	}
	msg := cause.Error()
	if len(defs) > 0 {
		msg += "; captured view definitions for manual replay:\n" + strings.Join(defs, "\n")
	}
	c.log.Error("schema evolution failed partway", "error", cause)
	return artifact.NewError(artifact.CodeRefreshFailed, op, msg, cause)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quote(schema, name string) string {
	return quoteIdent(schema) + "." + quoteIdent(name)
}
