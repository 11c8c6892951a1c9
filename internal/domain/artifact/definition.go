package artifact

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RefreshStrategy selects how an artifact's contents are recomputed.
type RefreshStrategy string

const (
	// StrategyNativeFull issues the engine's blocking materialized-view refresh.
	StrategyNativeFull RefreshStrategy = "native_full"
	// StrategyNativeConcurrent issues the non-blocking variant, falling back
	// once to the blocking form when the engine rejects it.
	StrategyNativeConcurrent RefreshStrategy = "native_concurrent"
	// StrategyIncrementalTable deletes and recomputes a date window of a
	// table-backed artifact inside one transaction.
	StrategyIncrementalTable RefreshStrategy = "incremental_table"
	// StrategyFullTableSwap rebuilds a table-backed artifact in a shadow
	// table and swaps it in with a rename pair.
	StrategyFullTableSwap RefreshStrategy = "full_table_swap"
	// StrategyExternalCompute loads rows produced by a caller-supplied
	// compute function instead of a SQL select.
	StrategyExternalCompute RefreshStrategy = "external_compute"
)

func (s RefreshStrategy) Valid() bool {
	switch s {
	case StrategyNativeFull, StrategyNativeConcurrent, StrategyIncrementalTable,
		StrategyFullTableSwap, StrategyExternalCompute:
		return true
	}
	return false
}

// TableBacked reports whether the physical relation is a base table rather
// than a materialized view.
func (s RefreshStrategy) TableBacked() bool {
	switch s {
	case StrategyIncrementalTable, StrategyFullTableSwap, StrategyExternalCompute:
		return true
	}
	return false
}

// QualityCheck is a named SQL predicate expected to return a single boolean
// column; stored with the metadata row and runnable on demand.
type QualityCheck struct {
	Name string `json:"name"`
	SQL  string `json:"sql"`
}

// SelectFunc produces the incremental select for a window. The returned
// statement must yield exactly the columns of the target relation; the
// engines re-order by catalog position, never by select position.
type SelectFunc func(start, end time.Time) (sql string, args []interface{})

// ComputeFunc produces externally computed rows for a window, keyed by
// column name. Missing keys and NaN values insert as SQL NULL.
type ComputeFunc func(ctx context.Context, start, end time.Time) ([]map[string]interface{}, error)

// Definition describes one derived relation. Definitions are immutable
// after registration; many live handles may share one definition across
// process restarts.
type Definition struct {
	Name            string
	Module          string
	Description     string
	SourceRelations []string
	Strategy        RefreshStrategy
	Schema          string

	// ViewName overrides the default physical name mv_<Name>.
	ViewName string

	// DateColumn and LookbackDays bound the incremental window for the
	// windowed strategies.
	DateColumn   string
	LookbackDays int

	CreateStatement      string
	PostCreateStatements []string

	IncrementalSelect SelectFunc
	Compute           ComputeFunc

	QualityChecks []QualityCheck
}

// PhysicalName resolves the unqualified relation name.
func (d *Definition) PhysicalName() string {
	if strings.TrimSpace(d.ViewName) != "" {
		return d.ViewName
	}
	return "mv_" + d.Name
}

// Qualified resolves the schema-qualified relation name.
func (d *Definition) Qualified() string {
	return fmt.Sprintf("%s.%s", d.Schema, d.PhysicalName())
}

// Validate checks required fields and the single-target-schema invariant.
func (d *Definition) Validate(targetSchema string) error {
	op := "artifact.Definition.Validate"
	var missing []string
	if strings.TrimSpace(d.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(d.Description) == "" {
		missing = append(missing, "description")
	}
	if len(d.SourceRelations) == 0 {
		missing = append(missing, "source_relations")
	}
	if strings.TrimSpace(d.CreateStatement) == "" {
		missing = append(missing, "create_statement")
	}
	if len(missing) > 0 {
		return NewError(CodeInvalidDefinition, op,
			fmt.Sprintf("definition %q missing required fields: %s", d.Name, strings.Join(missing, ", ")), nil)
	}
	if !d.Strategy.Valid() {
		return NewError(CodeInvalidDefinition, op,
			fmt.Sprintf("definition %q has unknown refresh strategy %q", d.Name, d.Strategy), nil)
	}
	if d.Schema != targetSchema {
		return NewError(CodeInvalidDefinition, op,
			fmt.Sprintf("definition %q targets schema %q, only %q is allowed", d.Name, d.Schema, targetSchema), nil)
	}
	switch d.Strategy {
	case StrategyIncrementalTable:
		if d.DateColumn == "" || d.LookbackDays <= 0 || d.IncrementalSelect == nil {
			return NewError(CodeInvalidDefinition, op,
				fmt.Sprintf("definition %q requires date_column, lookback_days and an incremental select", d.Name), nil)
		}
	case StrategyFullTableSwap:
		if d.IncrementalSelect == nil {
			return NewError(CodeInvalidDefinition, op,
				fmt.Sprintf("definition %q requires an incremental select for swap rebuilds", d.Name), nil)
		}
	case StrategyExternalCompute:
		if d.DateColumn == "" || d.LookbackDays <= 0 || d.Compute == nil {
			return NewError(CodeInvalidDefinition, op,
				fmt.Sprintf("definition %q requires date_column, lookback_days and a compute function", d.Name), nil)
		}
	}
	return nil
}
