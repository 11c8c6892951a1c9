package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a caller context with an optional GORM transaction.
// Stores fall back to their own connection when Tx is nil.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
