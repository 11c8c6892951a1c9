package mart

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/relmart/internal/data/catalog"
	"github.com/yungbote/relmart/internal/data/stores"
	"github.com/yungbote/relmart/internal/data/testutil"
	"github.com/yungbote/relmart/internal/domain/artifact"
	"github.com/yungbote/relmart/internal/platform/dbctx"
)

func suffix() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

func newHandle(t *testing.T, gdb *gorm.DB, def *artifact.Definition) *Artifact {
	t.Helper()
	logg := testutil.Logger(t)
	return New(def, gdb, catalog.New(gdb, logg),
		stores.NewMetadataStore(gdb, logg),
		stores.NewRefreshLogStore(gdb, logg),
		logg, Config{StatementTimeout: 5 * time.Minute, LockTimeout: 2 * time.Second})
}

func execOrFatal(t *testing.T, gdb *gorm.DB, stmt string, args ...interface{}) {
	t.Helper()
	if err := gdb.Exec(stmt, args...).Error; err != nil {
		t.Fatalf("exec %q: %v", stmt, err)
	}
}

func dropOnCleanup(t *testing.T, gdb *gorm.DB, stmts ...string) {
	t.Cleanup(func() {
		for _, stmt := range stmts {
			_ = gdb.Exec(stmt).Error
		}
	})
}

func ledgerFor(t *testing.T, gdb *gorm.DB, viewName string) []*artifact.RefreshLogEntry {
	t.Helper()
	rows, err := stores.NewRefreshLogStore(gdb, testutil.Logger(t)).
		ListByViewName(dbctx.Context{Ctx: context.Background()}, viewName, 0)
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	return rows
}

func metadataFor(t *testing.T, gdb *gorm.DB, viewName string) *artifact.Metadata {
	t.Helper()
	row, err := stores.NewMetadataStore(gdb, testutil.Logger(t)).
		GetByViewName(dbctx.Context{Ctx: context.Background()}, viewName)
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	return row
}

func mvDefinition(name, sourceTable string) *artifact.Definition {
	return &artifact.Definition{
		Name:            name,
		Description:     "test materialized view",
		SourceRelations: []string{testutil.Schema + "." + sourceTable},
		Strategy:        artifact.StrategyNativeFull,
		Schema:          testutil.Schema,
		CreateStatement: fmt.Sprintf(
			"CREATE MATERIALIZED VIEW %s.mv_%s AS SELECT id, val FROM %s.%s WITH DATA",
			testutil.Schema, name, testutil.Schema, sourceTable),
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	gdb := testutil.DB(t)
	ctx := context.Background()
	sfx := suffix()
	src := "src_" + sfx

	execOrFatal(t, gdb, fmt.Sprintf("CREATE TABLE %s.%s (id int, val int)", testutil.Schema, src))
	def := mvDefinition("t"+sfx, src)
	dropOnCleanup(t, gdb,
		fmt.Sprintf("DROP MATERIALIZED VIEW IF EXISTS %s", def.Qualified()),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", testutil.Schema, src))

	handle := newHandle(t, gdb, def)
	st, err := handle.Create(ctx, true)
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if st != artifact.StatusSuccess {
		t.Fatalf("first Create status %q, want success", st)
	}
	st, err = handle.Create(ctx, true)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if st != artifact.StatusSkipped {
		t.Fatalf("second Create status %q, want skipped", st)
	}

	exists, err := handle.Exists(ctx)
	if err != nil || !exists {
		t.Fatalf("Exists after create: exists=%v err=%v", exists, err)
	}

	meta := metadataFor(t, gdb, def.PhysicalName())
	if meta == nil {
		t.Fatal("metadata row missing after create")
	}
	// Two creates, one upsert each: version 2, not 3 and not 1.
	if meta.Version != 2 {
		t.Fatalf("metadata version after two creates: %d", meta.Version)
	}
	if !meta.IsActive {
		t.Fatal("metadata inactive after create")
	}
}

func TestCreateRefusesKindMismatch(t *testing.T) {
	gdb := testutil.DB(t)
	ctx := context.Background()
	sfx := suffix()
	src := "src_" + sfx

	execOrFatal(t, gdb, fmt.Sprintf("CREATE TABLE %s.%s (id int, val int)", testutil.Schema, src))
	// A previous incarnation created the name as a materialized view.
	mvDef := mvDefinition("t"+sfx, src)
	dropOnCleanup(t, gdb,
		fmt.Sprintf("DROP MATERIALIZED VIEW IF EXISTS %s", mvDef.Qualified()),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", testutil.Schema, src))
	execOrFatal(t, gdb, mvDef.CreateStatement)

	tableDef := &artifact.Definition{
		Name:            "t" + sfx,
		Description:     "table-backed incarnation of the same name",
		SourceRelations: []string{testutil.Schema + "." + src},
		Strategy:        artifact.StrategyIncrementalTable,
		Schema:          testutil.Schema,
		DateColumn:      "d",
		LookbackDays:    7,
		CreateStatement: fmt.Sprintf("CREATE TABLE %s.mv_t%s (d date, val int)", testutil.Schema, sfx),
		IncrementalSelect: func(start, end time.Time) (string, []interface{}) {
			return "SELECT current_date AS d, 1 AS val", nil
		},
	}
	handle := newHandle(t, gdb, tableDef)
	_, err := handle.Create(ctx, true)
	if !artifact.IsCode(err, artifact.CodeKindMismatch) {
		t.Fatalf("expected kind_mismatch, got %v", err)
	}
}

func TestRefreshMissingRelationLogsFailure(t *testing.T) {
	gdb := testutil.DB(t)
	ctx := context.Background()
	def := mvDefinition("t"+suffix(), "nowhere")

	handle := newHandle(t, gdb, def)
	res, err := handle.Refresh(ctx)
	if err != nil {
		t.Fatalf("operational failure must not return a Go error: %v", err)
	}
	if !res.Failed() || res.Error == "" {
		t.Fatalf("expected failed result with message, got %+v", res)
	}

	rows := ledgerFor(t, gdb, def.PhysicalName())
	if len(rows) != 1 {
		t.Fatalf("expected exactly one ledger row, got %d", len(rows))
	}
	if rows[0].Success || rows[0].ErrorMessage == nil {
		t.Fatalf("failure not recorded: %+v", rows[0])
	}
}

func TestConcurrentRefreshFallsBack(t *testing.T) {
	gdb := testutil.DB(t)
	ctx := context.Background()
	sfx := suffix()
	src := "src_" + sfx

	execOrFatal(t, gdb, fmt.Sprintf("CREATE TABLE %s.%s (id int, val int)", testutil.Schema, src))
	execOrFatal(t, gdb, fmt.Sprintf("INSERT INTO %s.%s SELECT g, g*10 FROM generate_series(1, 5) g", testutil.Schema, src))

	// No unique index: the concurrent form must be rejected by the engine
	// and the refresh must still succeed via the blocking fallback.
	def := mvDefinition("t"+sfx, src)
	def.Strategy = artifact.StrategyNativeConcurrent
	dropOnCleanup(t, gdb,
		fmt.Sprintf("DROP MATERIALIZED VIEW IF EXISTS %s", def.Qualified()),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", testutil.Schema, src))

	handle := newHandle(t, gdb, def)
	if _, err := handle.Create(ctx, true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	res, err := handle.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Failed() {
		t.Fatalf("fallback did not rescue the refresh: %+v", res)
	}
	if res.RowCount != 5 {
		t.Fatalf("row count after refresh: %d", res.RowCount)
	}
}

func TestConcurrentRefreshFallsBackWhenUnpopulated(t *testing.T) {
	gdb := testutil.DB(t)
	ctx := context.Background()
	sfx := suffix()
	src := "src_" + sfx

	execOrFatal(t, gdb, fmt.Sprintf("CREATE TABLE %s.%s (id int, val int)", testutil.Schema, src))
	execOrFatal(t, gdb, fmt.Sprintf("INSERT INTO %s.%s SELECT g, g*10 FROM generate_series(1, 3) g", testutil.Schema, src))

	// Unique index present, so the only reason the concurrent form can be
	// rejected is the view never having been populated.
	def := mvDefinition("t"+sfx, src)
	def.Strategy = artifact.StrategyNativeConcurrent
	def.CreateStatement = fmt.Sprintf(
		"CREATE MATERIALIZED VIEW %s AS SELECT id, val FROM %s.%s WITH NO DATA",
		def.Qualified(), testutil.Schema, src)
	def.PostCreateStatements = []string{
		fmt.Sprintf("CREATE UNIQUE INDEX ON %s (id)", def.Qualified()),
	}
	dropOnCleanup(t, gdb,
		fmt.Sprintf("DROP MATERIALIZED VIEW IF EXISTS %s", def.Qualified()),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", testutil.Schema, src))

	handle := newHandle(t, gdb, def)
	if _, err := handle.Create(ctx, true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	res, err := handle.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Failed() {
		t.Fatalf("unpopulated view did not get the blocking fallback: %+v", res)
	}
	if res.RowCount != 3 {
		t.Fatalf("row count after fallback refresh: %d", res.RowCount)
	}
}

func TestIncrementalRefreshIsIdempotent(t *testing.T) {
	gdb := testutil.DB(t)
	ctx := context.Background()
	sfx := suffix()
	src := "src_" + sfx
	target := fmt.Sprintf("%s.mv_t%s", testutil.Schema, sfx)

	execOrFatal(t, gdb, fmt.Sprintf("CREATE TABLE %s.%s (d date, val int)", testutil.Schema, src))
	execOrFatal(t, gdb, fmt.Sprintf(
		"INSERT INTO %s.%s SELECT ('2024-01-01'::date + (g %% 31)), g FROM generate_series(1, 100) g",
		testutil.Schema, src))

	def := &artifact.Definition{
		Name:            "t" + sfx,
		Description:     "incremental window artifact",
		SourceRelations: []string{testutil.Schema + "." + src},
		Strategy:        artifact.StrategyIncrementalTable,
		Schema:          testutil.Schema,
		DateColumn:      "d",
		LookbackDays:    30,
		CreateStatement: fmt.Sprintf("CREATE TABLE %s (d date, val int)", target),
		IncrementalSelect: func(start, end time.Time) (string, []interface{}) {
			return fmt.Sprintf("SELECT d, val FROM %s.%s WHERE d >= ? AND d <= ?", testutil.Schema, src),
				[]interface{}{start, end}
		},
	}
	dropOnCleanup(t, gdb,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", target),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", testutil.Schema, src))

	handle := newHandle(t, gdb, def)
	if _, err := handle.Create(ctx, true); err != nil {
		t.Fatalf("Create: %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
	for i := 0; i < 2; i++ {
		res, err := handle.Refresh(ctx, WithWindow(start, end))
		if err != nil {
			t.Fatalf("Refresh %d: %v", i+1, err)
		}
		if res.Failed() {
			t.Fatalf("Refresh %d failed: %s", i+1, res.Error)
		}
		if res.RowCount != 100 {
			t.Fatalf("Refresh %d row count: %d", i+1, res.RowCount)
		}
	}

	// The row set for the window is identical after the second run.
	var total int64
	if err := gdb.Raw("SELECT COUNT(*) FROM " + target).Scan(&total).Error; err != nil {
		t.Fatalf("count target: %v", err)
	}
	if total != 100 {
		t.Fatalf("idempotence violated, target has %d rows", total)
	}

	rows := ledgerFor(t, gdb, def.PhysicalName())
	if len(rows) != 2 {
		t.Fatalf("expected two ledger rows, got %d", len(rows))
	}
	for _, r := range rows {
		if !r.Success {
			t.Fatalf("ledger row not successful: %+v", r)
		}
		if !strings.Contains(r.RefreshStrategy, "2024-01-01") {
			t.Fatalf("ledger strategy missing window suffix: %q", r.RefreshStrategy)
		}
	}
}

func TestIncrementalInsertUsesCatalogColumnOrder(t *testing.T) {
	gdb := testutil.DB(t)
	ctx := context.Background()
	sfx := suffix()
	target := fmt.Sprintf("%s.mv_t%s", testutil.Schema, sfx)

	def := &artifact.Definition{
		Name:            "t" + sfx,
		Description:     "column order safety",
		SourceRelations: []string{"raw.none"},
		Strategy:        artifact.StrategyIncrementalTable,
		Schema:          testutil.Schema,
		DateColumn:      "d",
		LookbackDays:    7,
		CreateStatement: fmt.Sprintf("CREATE TABLE %s (d date, val int)", target),
		// The select yields the columns in the opposite order of the table.
		IncrementalSelect: func(start, end time.Time) (string, []interface{}) {
			return "SELECT 7 AS val, '2024-06-01'::date AS d", nil
		},
	}
	dropOnCleanup(t, gdb, fmt.Sprintf("DROP TABLE IF EXISTS %s", target))

	handle := newHandle(t, gdb, def)
	if _, err := handle.Create(ctx, true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	res, err := handle.Refresh(ctx, WithWindow(
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)))
	if err != nil || res.Failed() {
		t.Fatalf("Refresh: res=%+v err=%v", res, err)
	}

	var val int
	if err := gdb.Raw("SELECT val FROM " + target).Scan(&val).Error; err != nil {
		t.Fatalf("read back: %v", err)
	}
	if val != 7 {
		t.Fatalf("value landed in the wrong column: val=%d", val)
	}
}

func TestSwapRefreshReplacesContents(t *testing.T) {
	gdb := testutil.DB(t)
	ctx := context.Background()
	sfx := suffix()
	src := "src_" + sfx
	target := fmt.Sprintf("%s.mv_t%s", testutil.Schema, sfx)

	execOrFatal(t, gdb, fmt.Sprintf("CREATE TABLE %s.%s (d date, val int)", testutil.Schema, src))
	execOrFatal(t, gdb, fmt.Sprintf(
		"INSERT INTO %s.%s SELECT current_date, g FROM generate_series(1, 5) g", testutil.Schema, src))

	def := &artifact.Definition{
		Name:            "t" + sfx,
		Description:     "swap rebuild artifact",
		SourceRelations: []string{testutil.Schema + "." + src},
		Strategy:        artifact.StrategyFullTableSwap,
		Schema:          testutil.Schema,
		CreateStatement: fmt.Sprintf("CREATE TABLE %s (d date, val int)", target),
		IncrementalSelect: func(start, end time.Time) (string, []interface{}) {
			return fmt.Sprintf("SELECT d, val FROM %s.%s", testutil.Schema, src), nil
		},
	}
	dropOnCleanup(t, gdb,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", target),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", testutil.Schema, src))

	handle := newHandle(t, gdb, def)
	if _, err := handle.Create(ctx, true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Stale pre-rebuild contents.
	execOrFatal(t, gdb, fmt.Sprintf("INSERT INTO %s VALUES (current_date, 999)", target))

	res, err := handle.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Failed() {
		t.Fatalf("swap refresh failed: %s", res.Error)
	}
	if res.RowCount != 5 {
		t.Fatalf("swap row count: %d", res.RowCount)
	}

	var stale int64
	if err := gdb.Raw("SELECT COUNT(*) FROM "+target+" WHERE val = ?", 999).Scan(&stale).Error; err != nil {
		t.Fatalf("stale check: %v", err)
	}
	if stale != 0 {
		t.Fatal("stale rows survived the swap")
	}

	// The backup table was dropped after the swap.
	var leftovers int64
	err = gdb.Raw(`
		SELECT COUNT(*) FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = ? AND c.relname LIKE ?`,
		testutil.Schema, def.PhysicalName()+"\\_backup\\_%").Scan(&leftovers).Error
	if err != nil {
		t.Fatalf("leftover check: %v", err)
	}
	if leftovers != 0 {
		t.Fatalf("backup table left behind: %d", leftovers)
	}
}

// A reader hammering the live name during a swap must only ever see the
// full old row set or the full new one, never an empty or partial table.
func TestSwapRefreshReaderSeesOldOrNewRowSet(t *testing.T) {
	gdb := testutil.DB(t)
	ctx := context.Background()
	sfx := suffix()
	src := "src_" + sfx
	target := fmt.Sprintf("%s.mv_t%s", testutil.Schema, sfx)

	execOrFatal(t, gdb, fmt.Sprintf("CREATE TABLE %s.%s (d date, val int)", testutil.Schema, src))
	execOrFatal(t, gdb, fmt.Sprintf(
		"INSERT INTO %s.%s SELECT current_date, g FROM generate_series(1, 5) g", testutil.Schema, src))

	def := &artifact.Definition{
		Name:            "t" + sfx,
		Description:     "swap visibility artifact",
		SourceRelations: []string{testutil.Schema + "." + src},
		Strategy:        artifact.StrategyFullTableSwap,
		Schema:          testutil.Schema,
		CreateStatement: fmt.Sprintf("CREATE TABLE %s (d date, val int)", target),
		IncrementalSelect: func(start, end time.Time) (string, []interface{}) {
			return fmt.Sprintf("SELECT d, val FROM %s.%s", testutil.Schema, src), nil
		},
	}
	dropOnCleanup(t, gdb,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", target),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", testutil.Schema, src))

	handle := newHandle(t, gdb, def)
	if _, err := handle.Create(ctx, true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Old row set: exactly one row. New row set: exactly five.
	execOrFatal(t, gdb, fmt.Sprintf("INSERT INTO %s VALUES (current_date, 999)", target))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			var n int64
			if err := gdb.Raw("SELECT COUNT(*) FROM " + target).Scan(&n).Error; err != nil {
				t.Errorf("concurrent read: %v", err)
				return
			}
			if n != 1 && n != 5 {
				t.Errorf("reader observed partial row set: %d rows", n)
				return
			}
		}
	}()

	res, err := handle.Refresh(ctx)
	close(done)
	wg.Wait()
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Failed() {
		t.Fatalf("swap refresh failed: %s", res.Error)
	}
	if res.RowCount != 5 {
		t.Fatalf("swap row count: %d", res.RowCount)
	}
}

func TestSwapRefusesNonTable(t *testing.T) {
	gdb := testutil.DB(t)
	ctx := context.Background()
	sfx := suffix()
	src := "src_" + sfx

	execOrFatal(t, gdb, fmt.Sprintf("CREATE TABLE %s.%s (id int, val int)", testutil.Schema, src))
	mvDef := mvDefinition("t"+sfx, src)
	execOrFatal(t, gdb, mvDef.CreateStatement)
	dropOnCleanup(t, gdb,
		fmt.Sprintf("DROP MATERIALIZED VIEW IF EXISTS %s", mvDef.Qualified()),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", testutil.Schema, src))

	def := &artifact.Definition{
		Name:            "t" + sfx,
		Description:     "swap against a view",
		SourceRelations: []string{testutil.Schema + "." + src},
		Strategy:        artifact.StrategyFullTableSwap,
		Schema:          testutil.Schema,
		CreateStatement: "unused",
		IncrementalSelect: func(start, end time.Time) (string, []interface{}) {
			return "SELECT 1", nil
		},
	}
	handle := newHandle(t, gdb, def)
	res, err := handle.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !res.Failed() || !strings.Contains(res.Error, "kind_mismatch") {
		t.Fatalf("expected kind mismatch failure, got %+v", res)
	}
}

func TestExternalComputeNormalizesMissingValues(t *testing.T) {
	gdb := testutil.DB(t)
	ctx := context.Background()
	sfx := suffix()
	target := fmt.Sprintf("%s.mv_t%s", testutil.Schema, sfx)

	def := &artifact.Definition{
		Name:            "t" + sfx,
		Description:     "externally computed scores",
		SourceRelations: []string{"raw.events"},
		Strategy:        artifact.StrategyExternalCompute,
		Schema:          testutil.Schema,
		DateColumn:      "d",
		LookbackDays:    7,
		CreateStatement: fmt.Sprintf("CREATE TABLE %s (d date, score double precision)", target),
		Compute: func(ctx context.Context, start, end time.Time) ([]map[string]interface{}, error) {
			day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
			return []map[string]interface{}{
				{"d": day, "score": 0.25},
				{"d": day, "score": math.NaN()},
				{"d": day},
			}, nil
		},
	}
	dropOnCleanup(t, gdb, fmt.Sprintf("DROP TABLE IF EXISTS %s", target))

	handle := newHandle(t, gdb, def)
	if _, err := handle.Create(ctx, true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	res, err := handle.Refresh(ctx, WithWindow(
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Failed() {
		t.Fatalf("external refresh failed: %s", res.Error)
	}
	if res.RowCount != 3 {
		t.Fatalf("row count: %d", res.RowCount)
	}

	var nulls int64
	if err := gdb.Raw("SELECT COUNT(*) FROM " + target + " WHERE score IS NULL").Scan(&nulls).Error; err != nil {
		t.Fatalf("null check: %v", err)
	}
	if nulls != 2 {
		t.Fatalf("NaN/missing not normalized to NULL: %d nulls", nulls)
	}
}

func TestDropDeactivatesMetadata(t *testing.T) {
	gdb := testutil.DB(t)
	ctx := context.Background()
	sfx := suffix()
	src := "src_" + sfx

	execOrFatal(t, gdb, fmt.Sprintf("CREATE TABLE %s.%s (id int, val int)", testutil.Schema, src))
	def := mvDefinition("t"+sfx, src)
	dropOnCleanup(t, gdb,
		fmt.Sprintf("DROP MATERIALIZED VIEW IF EXISTS %s", def.Qualified()),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", testutil.Schema, src))

	handle := newHandle(t, gdb, def)
	if _, err := handle.Create(ctx, true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	st, err := handle.Drop(ctx, true)
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if st != artifact.StatusSuccess {
		t.Fatalf("Drop status %q, want success", st)
	}
	st, err = handle.Drop(ctx, true)
	if err != nil {
		t.Fatalf("second Drop: %v", err)
	}
	if st != artifact.StatusSkipped {
		t.Fatalf("second Drop status %q, want skipped", st)
	}

	exists, err := handle.Exists(ctx)
	if err != nil || exists {
		t.Fatalf("relation still present after drop: exists=%v err=%v", exists, err)
	}
	meta := metadataFor(t, gdb, def.PhysicalName())
	if meta == nil {
		t.Fatal("metadata row deleted on drop; it must be retained")
	}
	if meta.IsActive {
		t.Fatal("metadata still active after drop")
	}
}

func TestRunQualityChecks(t *testing.T) {
	gdb := testutil.DB(t)
	ctx := context.Background()
	sfx := suffix()
	src := "src_" + sfx

	execOrFatal(t, gdb, fmt.Sprintf("CREATE TABLE %s.%s (id int, val int)", testutil.Schema, src))
	execOrFatal(t, gdb, fmt.Sprintf("INSERT INTO %s.%s VALUES (1, 10)", testutil.Schema, src))

	def := mvDefinition("t"+sfx, src)
	def.QualityChecks = []artifact.QualityCheck{
		{Name: "has_rows", SQL: fmt.Sprintf("SELECT count(*) > 0 FROM %s", def.Qualified())},
		{Name: "always_false", SQL: "SELECT false"},
	}
	dropOnCleanup(t, gdb,
		fmt.Sprintf("DROP MATERIALIZED VIEW IF EXISTS %s", def.Qualified()),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", testutil.Schema, src))

	handle := newHandle(t, gdb, def)
	if _, err := handle.Create(ctx, true); err != nil {
		t.Fatalf("Create: %v", err)
	}

	results := handle.RunQualityChecks(ctx)
	if len(results) != 2 {
		t.Fatalf("expected two check results, got %d", len(results))
	}
	if !results[0].Passed {
		t.Fatalf("has_rows should pass: %+v", results[0])
	}
	if results[1].Passed {
		t.Fatalf("always_false should fail: %+v", results[1])
	}
}
