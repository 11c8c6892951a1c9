package mart

import (
	"context"
	"fmt"

	"github.com/yungbote/relmart/internal/data/catalog"
	"github.com/yungbote/relmart/internal/domain/artifact"
)

// refreshNative wraps REFRESH MATERIALIZED VIEW. The concurrent form
// falls back once to the blocking form when the engine rejects it, the
// usual cause being a missing unique index on the view.
func (a *Artifact) refreshNative(ctx context.Context, concurrent bool) artifact.Result {
	strategy := string(artifact.StrategyNativeFull)
	if concurrent {
		strategy = string(artifact.StrategyNativeConcurrent)
	}
	res := a.begin(strategy)

	rel, err := a.cat.Lookup(ctx, nil, a.def.Schema, a.def.PhysicalName())
	if err != nil {
		return a.fail(res, err)
	}
	if rel == nil {
		return a.fail(res, fmt.Errorf("materialized view %s does not exist; create it before refreshing", a.def.Qualified()))
	}
	if rel.Kind != catalog.KindMaterializedView {
		return a.fail(res, a.kindMismatch("mart.Artifact.refreshNative", rel.Kind))
	}

	if concurrent {
		stmt := fmt.Sprintf("REFRESH MATERIALIZED VIEW CONCURRENTLY %s", a.qualified())
		err := a.db.WithContext(ctx).Exec(stmt).Error
		if err == nil {
			return a.finishNative(ctx, res)
		}
		if !concurrentRejected(err) {
			return a.fail(res, err)
		}
		a.log.Warn("concurrent refresh rejected, falling back to blocking refresh", "error", err)
	}

	stmt := fmt.Sprintf("REFRESH MATERIALIZED VIEW %s", a.qualified())
	if err := a.db.WithContext(ctx).Exec(stmt).Error; err != nil {
		return a.fail(res, err)
	}
	return a.finishNative(ctx, res)
}

// concurrentRejected reports whether the engine refused the concurrent
// form itself rather than failing the refresh: missing unique index
// (feature_not_supported) or a never-populated view
// (object_not_in_prerequisite_state). Only these get the blocking
// fallback; anything else would fail the same way again.
func concurrentRejected(err error) bool {
	switch catalog.SQLState(err) {
	case catalog.StateFeatureNotSupported, catalog.StateObjectNotInPrerequisiteState:
		return true
	}
	return false
}

func (a *Artifact) finishNative(ctx context.Context, res artifact.Result) artifact.Result {
	count, err := a.RowCount(ctx)
	if err != nil {
		a.log.Warn("row count read-back failed after refresh", "error", err)
		count = -1
	}
	return a.succeed(res, count)
}
