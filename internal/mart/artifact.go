package mart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/relmart/internal/data/catalog"
	"github.com/yungbote/relmart/internal/data/stores"
	"github.com/yungbote/relmart/internal/domain/artifact"
	"github.com/yungbote/relmart/internal/platform/dbctx"
	"github.com/yungbote/relmart/internal/platform/logger"
)

// Config carries the two timeouts the refresh engines need: an extended
// statement timeout for long rebuilds and a short lock-wait bound for
// backup cleanup. Both are applied with SET LOCAL so neither leaks past
// its transaction.
type Config struct {
	StatementTimeout time.Duration
	LockTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.StatementTimeout <= 0 {
		c.StatementTimeout = time.Hour
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
	return c
}

// Artifact is a live handle binding a definition to a database. It is
// stateless beyond the bound connection; concurrent refreshes of the same
// artifact are the caller's responsibility to serialize.
type Artifact struct {
	def    *artifact.Definition
	db     *gorm.DB
	cat    *catalog.Catalog
	meta   stores.MetadataStore
	ledger stores.RefreshLogStore
	log    *logger.Logger
	cfg    Config
}

func New(def *artifact.Definition, gdb *gorm.DB, cat *catalog.Catalog,
	meta stores.MetadataStore, ledger stores.RefreshLogStore,
	baseLog *logger.Logger, cfg Config) *Artifact {
	return &Artifact{
		def:    def,
		db:     gdb,
		cat:    cat,
		meta:   meta,
		ledger: ledger,
		log:    baseLog.With("artifact", def.Name, "relation", def.Qualified()),
		cfg:    cfg.withDefaults(),
	}
}

func (a *Artifact) Definition() *artifact.Definition { return a.def }

func (a *Artifact) expectedKind() catalog.Kind {
	if a.def.Strategy.TableBacked() {
		return catalog.KindTable
	}
	return catalog.KindMaterializedView
}

// Exists reports whether the physical relation of the expected kind is
// present in the catalog.
func (a *Artifact) Exists(ctx context.Context) (bool, error) {
	rel, err := a.cat.Lookup(ctx, nil, a.def.Schema, a.def.PhysicalName())
	if err != nil {
		return false, err
	}
	return rel != nil && rel.Kind == a.expectedKind(), nil
}

// Create executes the definition's creation statement and post-creation
// statements, then upserts the metadata row. When the relation already
// exists and ifNotExists is set, only the metadata row is refreshed (so a
// second Create still bumps version by exactly one) and the status is
// StatusSkipped rather than StatusSuccess.
func (a *Artifact) Create(ctx context.Context, ifNotExists bool) (artifact.Status, error) {
	op := "mart.Artifact.Create"
	rel, err := a.cat.Lookup(ctx, nil, a.def.Schema, a.def.PhysicalName())
	if err != nil {
		return artifact.StatusFailed, err
	}
	if rel != nil {
		if rel.Kind != a.expectedKind() {
			return artifact.StatusFailed, a.kindMismatch(op, rel.Kind)
		}
		if !ifNotExists {
			return artifact.StatusFailed, artifact.NewError(artifact.CodeRefreshFailed, op,
				fmt.Sprintf("relation %s already exists", a.def.Qualified()), nil)
		}
		a.log.Debug("relation already exists, refreshing metadata only")
		if err := a.upsertMetadata(ctx); err != nil {
			return artifact.StatusFailed, err
		}
		return artifact.StatusSkipped, nil
	}

	if err := a.db.WithContext(ctx).Exec(a.def.CreateStatement).Error; err != nil {
		return artifact.StatusFailed, artifact.Wrap(artifact.CodeRefreshFailed, op, err)
	}
	for _, stmt := range a.def.PostCreateStatements {
		if err := a.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return artifact.StatusFailed, artifact.Wrap(artifact.CodeRefreshFailed, op, err)
		}
	}
	if err := a.upsertMetadata(ctx); err != nil {
		return artifact.StatusFailed, err
	}
	a.log.Info("created artifact relation")
	return artifact.StatusSuccess, nil
}

// Drop removes the physical relation and marks the metadata row inactive.
// The metadata row itself is retained. A relation already gone with
// ifExists set still deactivates metadata but reports StatusSkipped.
func (a *Artifact) Drop(ctx context.Context, ifExists bool) (artifact.Status, error) {
	op := "mart.Artifact.Drop"
	rel, err := a.cat.Lookup(ctx, nil, a.def.Schema, a.def.PhysicalName())
	if err != nil {
		return artifact.StatusFailed, err
	}
	if rel == nil {
		if !ifExists {
			return artifact.StatusFailed, artifact.NewError(artifact.CodeNotFound, op,
				fmt.Sprintf("relation %s does not exist", a.def.Qualified()), nil)
		}
		if err := a.deactivateMetadata(ctx); err != nil {
			return artifact.StatusFailed, err
		}
		return artifact.StatusSkipped, nil
	}

	var stmt string
	switch rel.Kind {
	case catalog.KindMaterializedView:
		stmt = fmt.Sprintf("DROP MATERIALIZED VIEW IF EXISTS %s", a.qualified())
	case catalog.KindView:
		stmt = fmt.Sprintf("DROP VIEW IF EXISTS %s", a.qualified())
	default:
		stmt = fmt.Sprintf("DROP TABLE IF EXISTS %s", a.qualified())
	}
	if err := a.db.WithContext(ctx).Exec(stmt).Error; err != nil {
		return artifact.StatusFailed, artifact.Wrap(artifact.CodeRefreshFailed, op, err)
	}
	if err := a.deactivateMetadata(ctx); err != nil {
		return artifact.StatusFailed, err
	}
	a.log.Info("dropped artifact relation")
	return artifact.StatusSuccess, nil
}

// RowCount is a best-effort count of the physical relation.
func (a *Artifact) RowCount(ctx context.Context) (int64, error) {
	var count int64
	err := a.db.WithContext(ctx).Raw(
		fmt.Sprintf("SELECT COUNT(*) FROM %s", a.qualified())).Scan(&count).Error
	if err != nil {
		return 0, artifact.Wrap(artifact.CodeRefreshFailed, "mart.Artifact.RowCount", err)
	}
	return count, nil
}

// RefreshOption adjusts a single Refresh call.
type RefreshOption func(*refreshOptions)

type refreshOptions struct {
	strategy artifact.RefreshStrategy
	start    time.Time
	end      time.Time
}

// WithStrategy overrides the definition's default strategy for one call.
func WithStrategy(s artifact.RefreshStrategy) RefreshOption {
	return func(o *refreshOptions) { o.strategy = s }
}

// WithWindow overrides the computed incremental window, e.g. for manual
// backfills.
func WithWindow(start, end time.Time) RefreshOption {
	return func(o *refreshOptions) {
		o.start = start
		o.end = end
	}
}

// Refresh recomputes the artifact using the requested strategy. Every
// attempt, failures included, appends exactly one ledger row. Expected
// operational failures are reported through the Result; the returned
// error is non-nil only for invalid strategy values and context
// cancellation.
func (a *Artifact) Refresh(ctx context.Context, opts ...RefreshOption) (artifact.Result, error) {
	o := refreshOptions{strategy: a.def.Strategy}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.strategy.Valid() {
		return artifact.Result{}, artifact.NewError(artifact.CodeRefreshFailed, "mart.Artifact.Refresh",
			fmt.Sprintf("unknown refresh strategy %q", o.strategy), nil)
	}

	var res artifact.Result
	switch o.strategy {
	case artifact.StrategyNativeFull:
		res = a.refreshNative(ctx, false)
	case artifact.StrategyNativeConcurrent:
		res = a.refreshNative(ctx, true)
	case artifact.StrategyIncrementalTable:
		res = a.refreshIncremental(ctx, o.start, o.end)
	case artifact.StrategyFullTableSwap:
		res = a.refreshSwap(ctx)
	case artifact.StrategyExternalCompute:
		res = a.refreshExternal(ctx, o.start, o.end)
	}

	a.record(ctx, res)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// record appends the ledger row. A ledger-write failure is logged and
// swallowed so it never masks the refresh outcome.
func (a *Artifact) record(ctx context.Context, res artifact.Result) {
	entry := &artifact.RefreshLogEntry{
		ViewName:        a.def.PhysicalName(),
		SchemaName:      a.def.Schema,
		RefreshStrategy: res.Strategy,
		StartedAt:       res.StartedAt,
		FinishedAt:      res.FinishedAt,
		DurationSeconds: res.Duration.Seconds(),
		Success:         res.Status == artifact.StatusSuccess,
		RowCount:        res.RowCount,
	}
	if res.Error != "" {
		msg := res.Error
		entry.ErrorMessage = &msg
	}
	if err := a.ledger.Append(dbctx.Context{Ctx: ctx}, entry); err != nil {
		a.log.Warn("refresh ledger write failed", "error", err)
	}
}

func (a *Artifact) upsertMetadata(ctx context.Context) error {
	sources, err := json.Marshal(a.def.SourceRelations)
	if err != nil {
		return artifact.Wrap(artifact.CodeInternal, "mart.Artifact.upsertMetadata", err)
	}
	checks, err := json.Marshal(a.def.QualityChecks)
	if err != nil {
		return artifact.Wrap(artifact.CodeInternal, "mart.Artifact.upsertMetadata", err)
	}
	row := &artifact.Metadata{
		ViewName:        a.def.PhysicalName(),
		SchemaName:      a.def.Schema,
		Description:     a.def.Description,
		SourceRelations: datatypes.JSON(sources),
		RefreshStrategy: string(a.def.Strategy),
		QualityChecks:   datatypes.JSON(checks),
	}
	return a.meta.Upsert(dbctx.Context{Ctx: ctx}, row)
}

func (a *Artifact) deactivateMetadata(ctx context.Context) error {
	return a.meta.Deactivate(dbctx.Context{Ctx: ctx}, a.def.PhysicalName())
}

func (a *Artifact) kindMismatch(op string, found catalog.Kind) error {
	return artifact.NewError(artifact.CodeKindMismatch, op,
		fmt.Sprintf("relation %s is a %s but strategy %s expects a %s; drop the mismatched object and recreate the artifact",
			a.def.Qualified(), found, a.def.Strategy, a.expectedKind()), nil)
}

func (a *Artifact) qualified() string {
	return quoteQualified(a.def.Schema, a.def.PhysicalName())
}

func (a *Artifact) begin(strategy string) artifact.Result {
	return artifact.Result{
		ViewName:   a.def.PhysicalName(),
		SchemaName: a.def.Schema,
		Strategy:   strategy,
		StartedAt:  time.Now().UTC(),
	}
}

func (a *Artifact) fail(res artifact.Result, err error) artifact.Result {
	res.FinishedAt = time.Now().UTC()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)
	res.Status = artifact.StatusFailed
	res.Error = err.Error()
	a.log.Error("refresh failed", "strategy", res.Strategy, "error", err)
	return res
}

func (a *Artifact) succeed(res artifact.Result, rowCount int64) artifact.Result {
	res.FinishedAt = time.Now().UTC()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)
	res.Status = artifact.StatusSuccess
	res.RowCount = rowCount
	a.log.Info("refresh complete", "strategy", res.Strategy,
		"row_count", rowCount, "duration", res.Duration.String())
	return res
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteQualified(schema, name string) string {
	return quoteIdent(schema) + "." + quoteIdent(name)
}

func quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}
