//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"staysync/internal/domain"
	mysqlrepo "staysync/internal/storage/mysql"
)

// ---------- small helpers ----------

func pdate(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func mustEnv(t *testing.T, k string) string {
	t.Helper()
	v := os.Getenv(k)
	if v == "" {
		t.Fatalf("%s not set; export it (e.g. MIGRATIONS_DIR=/path/to/sql)", k)
	}
	return v
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := mustEnv(t, "MIGRATIONS_DIR")

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=staysync",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/staysync?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		hostPort)

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

// ---------- the test ----------

func TestRepo_MySQL_RatesChannelsAndSyncLogs(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	// ---- rate entries ----

	base := domain.RateEntry{
		PropertyID: 1, RoomCategory: "deluxe", Plan: domain.PlanEP,
		Occupancy: domain.OccDouble, Tier: domain.TierBase, PriceMinor: 300000, IsActive: true,
	}
	baseID, err := repo.SaveRateEntry(ctx, base)
	if err != nil {
		t.Fatalf("save base: %v", err)
	}

	// a second active BASE for the same combination retires the first
	base2 := base
	base2.PriceMinor = 320000
	base2ID, err := repo.SaveRateEntry(ctx, base2)
	if err != nil {
		t.Fatalf("save base2: %v", err)
	}

	direct := domain.RateEntry{
		PropertyID: 1, RoomCategory: "deluxe", Plan: domain.PlanEP,
		Occupancy: domain.OccDouble, Tier: domain.TierDirect, PriceMinor: 450000,
		StartDate: pdate("2025-12-24"), EndDate: pdate("2025-12-26"), IsActive: true,
	}
	directID, err := repo.SaveRateEntry(ctx, direct)
	if err != nil {
		t.Fatalf("save direct: %v", err)
	}

	key := domain.RateKey{PropertyID: 1, RoomCategory: "deluxe", Plan: domain.PlanEP, Occupancy: domain.OccDouble}

	// inside the window: the retired BASE must be gone, DIRECT and live BASE present
	entries, err := repo.ActiveEntries(ctx, key, *pdate("2025-12-25"))
	if err != nil {
		t.Fatalf("active entries: %v", err)
	}
	ids := map[int64]bool{}
	for _, e := range entries {
		ids[e.ID] = true
	}
	if ids[baseID] || !ids[base2ID] || !ids[directID] {
		t.Fatalf("unexpected active set: %v (base=%d base2=%d direct=%d)", ids, baseID, base2ID, directID)
	}

	// outside the window only the BASE entry qualifies
	entries, err = repo.ActiveEntries(ctx, key, *pdate("2025-12-27"))
	if err != nil {
		t.Fatalf("active entries: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != base2ID {
		t.Fatalf("expected only live BASE outside window, got %+v", entries)
	}

	// ordering: force distinct update times, newest must come first
	if _, err := db.Exec("UPDATE rate_entries SET updated_at = ? WHERE id = ?",
		time.Now().UTC().Add(-time.Hour), base2ID); err != nil {
		t.Fatalf("age base2: %v", err)
	}
	entries, err = repo.ActiveEntries(ctx, key, *pdate("2025-12-25"))
	if err != nil {
		t.Fatalf("active entries: %v", err)
	}
	if entries[0].ID != directID {
		t.Fatalf("expected newest update first, got %+v", entries)
	}

	// deactivation returns the entry and removes it from resolution
	got, err := repo.DeactivateRateEntry(ctx, 1, directID)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if got.ID != directID || got.IsActive {
		t.Fatalf("deactivated entry: %+v", got)
	}
	entries, _ = repo.ActiveEntries(ctx, key, *pdate("2025-12-25"))
	for _, e := range entries {
		if e.ID == directID {
			t.Fatalf("deactivated entry still resolvable")
		}
	}
	if _, err := repo.DeactivateRateEntry(ctx, 1, 99999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	cats, err := repo.RoomCategories(ctx, 1)
	if err != nil || len(cats) != 1 || cats[0] != "deluxe" {
		t.Fatalf("room categories: %v %v", cats, err)
	}

	// ---- channel configs ----

	if _, err := db.Exec(
		`INSERT INTO channel_configs (property_id, channel, enabled, credentials) VALUES (?, ?, 1, ?)`,
		1, "booking.com", `{"api_key":"k","hotel_id":"h"}`); err != nil {
		t.Fatalf("seed channel: %v", err)
	}

	cfg, err := repo.GetChannel(ctx, 1, domain.ChannelBookingCom)
	if err != nil {
		t.Fatalf("get channel: %v", err)
	}
	if !cfg.Enabled || cfg.Credentials["api_key"] != "k" || cfg.SyncStatus != domain.SyncPaused {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if _, err := repo.GetChannel(ctx, 1, domain.ChannelAgoda); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)

	// full failure increments, partial leaves untouched, full success resets
	if err := repo.FinishSync(ctx, 1, domain.ChannelBookingCom, domain.SyncError, now, false, true); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := repo.FinishSync(ctx, 1, domain.ChannelBookingCom, domain.SyncActive, now, false, false); err != nil {
		t.Fatalf("finish: %v", err)
	}
	cfg, _ = repo.GetChannel(ctx, 1, domain.ChannelBookingCom)
	if cfg.SyncErrorCount != 1 {
		t.Fatalf("expected error count 1, got %d", cfg.SyncErrorCount)
	}
	if err := repo.FinishSync(ctx, 1, domain.ChannelBookingCom, domain.SyncActive, now, true, false); err != nil {
		t.Fatalf("finish: %v", err)
	}
	cfg, _ = repo.GetChannel(ctx, 1, domain.ChannelBookingCom)
	if cfg.SyncErrorCount != 0 || cfg.LastSyncAt == nil {
		t.Fatalf("expected reset count with lastSyncAt, got %+v", cfg)
	}

	pairs, err := repo.ListEnabledPairs(ctx)
	if err != nil || len(pairs) != 1 {
		t.Fatalf("enabled pairs: %v %v", pairs, err)
	}

	// ---- sync logs ----

	run := domain.SyncLog{
		SyncID: "00000000-0000-0000-0000-000000000001", PropertyID: 1,
		Channel: domain.ChannelBookingCom, Type: domain.SyncRates,
		StartTime: time.Now().UTC(), TriggeredBy: "test",
	}
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("create log: %v", err)
	}

	// the persisted lock: a second run for the same pair must be refused
	dup := run
	dup.SyncID = "00000000-0000-0000-0000-000000000002"
	if err := repo.Create(ctx, dup); !errors.Is(err, domain.ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}

	end := time.Now().UTC()
	run.Status = domain.RunCompleted
	run.EndTime = &end
	run.RecordsProcessed, run.SuccessfulRecords, run.FailedRecords = 7, 5, 2
	run.Errors = nil
	run.Warnings = []string{"rates deluxe/EP/double/2025-12-24: room closed"}
	run.DurationMS = 1200
	run.AvgRecordMS = 171.4
	if err := repo.Finalize(ctx, run); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// single-shot: both re-finalize and cancel must refuse a terminal run
	if err := repo.Finalize(ctx, run); !errors.Is(err, domain.ErrRunFinalized) {
		t.Fatalf("expected ErrRunFinalized, got %v", err)
	}
	if err := repo.Cancel(ctx, run.SyncID, time.Now().UTC()); !errors.Is(err, domain.ErrRunFinalized) {
		t.Fatalf("expected ErrRunFinalized, got %v", err)
	}

	got2, err := repo.Get(ctx, run.SyncID)
	if err != nil {
		t.Fatalf("get log: %v", err)
	}
	if got2.Status != domain.RunCompleted || got2.RecordsProcessed != 7 ||
		got2.SuccessfulRecords != 5 || got2.FailedRecords != 2 || len(got2.Warnings) != 1 {
		t.Fatalf("unexpected log: %+v", got2)
	}

	// lock released: a new run for the pair is accepted again
	if err := repo.Create(ctx, dup); err != nil {
		t.Fatalf("create after finalize: %v", err)
	}

	// watchdog feed: only running logs older than the cutoff
	stuck, err := repo.StuckRuns(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil || len(stuck) != 1 || stuck[0].SyncID != dup.SyncID {
		t.Fatalf("stuck runs: %+v %v", stuck, err)
	}
	if err := repo.Cancel(ctx, dup.SyncID, time.Now().UTC()); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// history: newest first, filterable, paginated by keyset cursor
	status := domain.RunCompleted
	page, err := repo.List(ctx, domain.SyncLogQuery{PropertyID: 1, Status: &status})
	if err != nil || len(page.Items) != 1 || page.Items[0].SyncID != run.SyncID {
		t.Fatalf("filtered list: %+v %v", page, err)
	}

	page, err = repo.List(ctx, domain.SyncLogQuery{PropertyID: 1, Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || page.NextCursor == nil {
		t.Fatalf("expected one item plus cursor, got %+v", page)
	}
	page2, err := repo.List(ctx, domain.SyncLogQuery{PropertyID: 1, Limit: 1, Cursor: page.NextCursor})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2.Items) != 1 || page2.Items[0].SyncID == page.Items[0].SyncID {
		t.Fatalf("cursor did not advance: %+v", page2)
	}

	// ---- inventory reads ----

	if _, err := db.Exec(
		`INSERT INTO room_inventory (property_id, room_category, stay_date, total_rooms, available_rooms)
		 VALUES (1, 'deluxe', '2025-12-24', 10, 4), (1, 'deluxe', '2025-12-25', 10, 0)`); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	inv, err := repo.Availability(ctx, 1, "deluxe", *pdate("2025-12-24"), *pdate("2025-12-25"))
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if len(inv) != 2 || inv[0].Available != 4 || inv[1].Available != 0 {
		t.Fatalf("unexpected inventory: %+v", inv)
	}
}
