package definitions

import (
	"fmt"
	"time"

	"github.com/yungbote/relmart/internal/domain/artifact"
	"github.com/yungbote/relmart/internal/registry"
)

// orderItemHistory is a table-backed incremental artifact: only the
// trailing window is recomputed on each refresh.
func orderItemHistory(schema string) func(*registry.Registry) error {
	name := "order_item_history"
	view := "mv_" + name
	sel := `
		SELECT
			o.ordered_at::date AS order_date,
			i.sku              AS sku,
			sum(i.quantity)    AS quantity,
			sum(i.price_cents) AS revenue_cents
		FROM raw.orders o
		JOIN raw.order_items i ON i.order_id = o.id
		WHERE o.ordered_at >= ? AND o.ordered_at <= ?
		GROUP BY 1, 2`
	return func(r *registry.Registry) error {
		return r.Register("definitions/order_item_history", &artifact.Definition{
			Name:            name,
			Description:     "Per-SKU daily sales history recomputed over a trailing window",
			SourceRelations: []string{"raw.orders", "raw.order_items"},
			Strategy:        artifact.StrategyIncrementalTable,
			Schema:          schema,
			DateColumn:      "order_date",
			LookbackDays:    30,
			CreateStatement: fmt.Sprintf(`
				CREATE TABLE %s.%s (
					order_date    date    NOT NULL,
					sku           text    NOT NULL,
					quantity      bigint  NOT NULL,
					revenue_cents bigint  NOT NULL
				)`, schema, view),
			PostCreateStatements: []string{
				fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_order_date_idx ON %s.%s (order_date)",
					view, schema, view),
			},
			IncrementalSelect: func(start, end time.Time) (string, []interface{}) {
				return sel, []interface{}{start, end}
			},
		})
	}
}
