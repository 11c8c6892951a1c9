// Package definitions enumerates every artifact-definition module in one
// bootstrap list. A module that fails to register aborts discovery as a
// whole; there is no best-effort partial load.
package definitions

import "github.com/yungbote/relmart/internal/registry"

// Bootstrap returns the loaders for all bundled artifact modules, bound
// to the configured target schema.
func Bootstrap(schema string) []registry.Loader {
	return []registry.Loader{
		{Module: "definitions/order_daily_rollup", Load: orderDailyRollup(schema)},
		{Module: "definitions/order_item_history", Load: orderItemHistory(schema)},
	}
}
