package app

import (
	"time"

	"github.com/yungbote/relmart/internal/platform/envutil"
)

type Config struct {
	// TargetSchema is the single schema all artifacts must live in.
	TargetSchema string
	// StatementTimeout bounds long rebuild statements inside their own
	// transaction.
	StatementTimeout time.Duration
	// LockTimeout bounds the backup-table drop after a swap.
	LockTimeout time.Duration
	// RefreshConcurrency caps how many artifacts refresh at once; each
	// artifact is still refreshed by at most one goroutine.
	RefreshConcurrency int
}

func LoadConfig() Config {
	return Config{
		TargetSchema:       envutil.String("RELMART_SCHEMA", "marts"),
		StatementTimeout:   envutil.Duration("RELMART_STATEMENT_TIMEOUT", time.Hour),
		LockTimeout:        envutil.Duration("RELMART_LOCK_TIMEOUT", 5*time.Second),
		RefreshConcurrency: envutil.Int("RELMART_REFRESH_CONCURRENCY", 4),
	}
}
