package app

import (
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/yungbote/relmart/internal/data/catalog"
	"github.com/yungbote/relmart/internal/data/db"
	"github.com/yungbote/relmart/internal/data/stores"
	"github.com/yungbote/relmart/internal/domain/artifact"
	"github.com/yungbote/relmart/internal/evolution"
	"github.com/yungbote/relmart/internal/mart"
	"github.com/yungbote/relmart/internal/platform/logger"
	"github.com/yungbote/relmart/internal/registry"
)

type App struct {
	Log       *logger.Logger
	DB        *gorm.DB
	Cfg       Config
	Registry  *registry.Registry
	Catalog   *catalog.Catalog
	Metadata  stores.MetadataStore
	Ledger    stores.RefreshLogStore
	Evolution *evolution.Coordinator

	pg *db.PostgresService
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig()

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	theDB := pg.DB()
	if err := db.AutoMigrateAll(theDB, cfg.TargetSchema); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}

	cat := catalog.New(theDB, log)

	return &App{
		Log:       log,
		DB:        theDB,
		Cfg:       cfg,
		Registry:  registry.New(cfg.TargetSchema, log),
		Catalog:   cat,
		Metadata:  stores.NewMetadataStore(theDB, log),
		Ledger:    stores.NewRefreshLogStore(theDB, log),
		Evolution: evolution.NewCoordinator(theDB, cat, log),
		pg:        pg,
	}, nil
}

// Artifact binds a registered definition to the shared connection pool.
func (a *App) Artifact(def *artifact.Definition) *mart.Artifact {
	return mart.New(def, a.DB, a.Catalog, a.Metadata, a.Ledger, a.Log, mart.Config{
		StatementTimeout: a.Cfg.StatementTimeout,
		LockTimeout:      a.Cfg.LockTimeout,
	})
}

func (a *App) Close() {
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.Log.Warn("closing postgres connection failed", "error", err)
		}
	}
	a.Log.Sync()
}
