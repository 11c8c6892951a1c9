package definitions

import (
	"fmt"

	"github.com/yungbote/relmart/internal/domain/artifact"
	"github.com/yungbote/relmart/internal/registry"
)

// orderDailyRollup is a materialized-view artifact aggregating raw orders
// per day. The unique index is what makes the concurrent refresh form
// possible.
func orderDailyRollup(schema string) func(*registry.Registry) error {
	name := "order_daily_rollup"
	view := "mv_" + name
	return func(r *registry.Registry) error {
		return r.Register("definitions/order_daily_rollup", &artifact.Definition{
			Name:            name,
			Description:     "Daily order counts and gross totals rolled up from raw.orders",
			SourceRelations: []string{"raw.orders"},
			Strategy:        artifact.StrategyNativeConcurrent,
			Schema:          schema,
			CreateStatement: fmt.Sprintf(`
				CREATE MATERIALIZED VIEW %s.%s AS
				SELECT
					date_trunc('day', ordered_at)::date AS order_date,
					count(*)                            AS order_count,
					sum(total_cents)                    AS gross_cents
				FROM raw.orders
				GROUP BY 1
				WITH DATA`, schema, view),
			PostCreateStatements: []string{
				fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s_order_date_uidx ON %s.%s (order_date)",
					view, schema, view),
			},
			QualityChecks: []artifact.QualityCheck{
				{
					Name: "no_future_days",
					SQL: fmt.Sprintf(
						"SELECT count(*) = 0 FROM %s.%s WHERE order_date > current_date", schema, view),
				},
			},
		})
	}
}
