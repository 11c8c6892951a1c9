package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/relmart/internal/domain/artifact"
)

// AutoMigrateAll creates the two tables this core owns: the artifact
// metadata table and the refresh ledger. Everything else lives in the
// target schema and is created through artifact definitions.
func AutoMigrateAll(gdb *gorm.DB, targetSchema string) error {
	if err := gdb.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", targetSchema)).Error; err != nil {
		return fmt.Errorf("create schema %s: %w", targetSchema, err)
	}
	return gdb.AutoMigrate(
		&artifact.Metadata{},
		&artifact.RefreshLogEntry{},
	)
}
