package querylog

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"zunkiree/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "queries.db"), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_LogAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := s.LogQuery(ctx, domain.QueryRecord{
		SiteID: "acme", Question: "What are your hours?", Answer: "9–5",
		Latency: 120 * time.Millisecond, CreatedAt: base,
	}); err != nil {
		t.Fatalf("LogQuery: %v", err)
	}
	if err := s.LogQuery(ctx, domain.QueryRecord{
		SiteID: "acme", Question: "Refunds?", IsError: true, ErrorText: "HTTP 500",
		CreatedAt: base.Add(time.Minute),
	}); err != nil {
		t.Fatalf("LogQuery: %v", err)
	}

	recs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Question != "Refunds?" || !recs[0].IsError || recs[0].ErrorText != "HTTP 500" {
		t.Errorf("newest record = %+v", recs[0])
	}
	if recs[1].Answer != "9–5" || recs[1].Latency != 120*time.Millisecond {
		t.Errorf("oldest record = %+v", recs[1])
	}
	if recs[0].ID == "" || recs[0].ID == recs[1].ID {
		t.Error("records should get distinct generated IDs")
	}
}

func TestStore_RecentLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.LogQuery(ctx, domain.QueryRecord{SiteID: "s", Question: "q"}); err != nil {
			t.Fatal(err)
		}
	}
	recs, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Errorf("got %d, want 3", len(recs))
	}
	n, err := s.Count(ctx)
	if err != nil || n != 5 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func TestStore_Snapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, q := range []string{"a?", "b?", "c?"} {
		if err := s.LogQuery(ctx, domain.QueryRecord{SiteID: "acme", Question: q}); err != nil {
			t.Fatal(err)
		}
	}

	dest := filepath.Join(t.TempDir(), "copy", "snap.db")
	if err := s.Snapshot(ctx, dest); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := s.Snapshot(ctx, dest); err == nil {
		t.Error("second snapshot onto the same path should fail")
	}

	cp, err := Open(dest, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer cp.Close()
	if n, err := cp.Count(ctx); err != nil || n != 3 {
		t.Errorf("snapshot Count = %d, %v", n, err)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := RunMigrations(db, testLogger()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	v, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if v != schemaVersion {
		t.Errorf("version = %d, want %d", v, schemaVersion)
	}
}

func TestRunMigrations_AdoptsUnrecordedSchema(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	// Tables present, schema_version missing.
	if _, err := db.Exec(migrations[0].SQL); err != nil {
		t.Fatal(err)
	}

	if err := RunMigrations(db, testLogger()); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	if v, _ := GetSchemaVersion(db); v != schemaVersion {
		t.Errorf("version = %d", v)
	}
	if _, err := db.Exec(`INSERT INTO queries (id, site_id, question, error_text) VALUES ('a', 's', 'q', 'e')`); err != nil {
		t.Errorf("insert after adopt: %v", err)
	}
}

func TestGetSchemaVersion_FreshDB(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	v, err := GetSchemaVersion(db)
	if err != nil || v != 0 {
		t.Errorf("GetSchemaVersion = %d, %v", v, err)
	}
}
