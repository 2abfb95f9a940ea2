package export

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"opprof/internal/profile"
)

func buildState(t *testing.T) *profile.State {
	t.Helper()
	p, err := profile.New(profile.Topology{Ops: []profile.OpDef{
		{Name: "opA", Type: "Const", Device: "cpu:0"},
		{Name: "opB", Type: "Add", Device: "cpu:0", Inputs: []string{"opA"}},
	}})
	if err != nil {
		t.Fatalf("profile.New: %v", err)
	}
	base := time.Unix(1700000000, 0)
	p.AddStep(0, []profile.TraceRecord{
		{Op: "opA", Start: base, End: base.Add(10 * time.Millisecond), AllocBytes: 64},
		{Op: "opB", Start: base, End: base.Add(5 * time.Millisecond), AllocBytes: 32},
		{Op: "ghost", Start: base, End: base.Add(time.Millisecond)},
	})
	p.AddStep(1, []profile.TraceRecord{
		{Op: "opA", Start: base, End: base.Add(2 * time.Millisecond), AllocBytes: 8},
	})
	return p.State()
}

func TestSQLiteExport(t *testing.T) {
	st := buildState(t)
	path := filepath.Join(t.TempDir(), "profile.db")
	ctx := context.Background()

	if err := SQLite(ctx, path, st); err != nil {
		t.Fatalf("SQLite: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	var ops int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ops WHERE session = ?", st.Session).Scan(&ops); err != nil {
		t.Fatalf("count ops: %v", err)
	}
	if ops != 2 {
		t.Fatalf("ops rows = %d, want 2", ops)
	}

	var totalNanos int64
	if err := db.QueryRowContext(ctx,
		"SELECT total_nanos FROM ops WHERE session = ? AND name = ?", st.Session, "opA").Scan(&totalNanos); err != nil {
		t.Fatalf("query opA: %v", err)
	}
	if totalNanos != int64(12*time.Millisecond) {
		t.Fatalf("opA total_nanos = %d, want 12ms", totalNanos)
	}

	var stepRows int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM op_steps WHERE session = ? AND name = ?", st.Session, "opA").Scan(&stepRows); err != nil {
		t.Fatalf("count op_steps: %v", err)
	}
	if stepRows != 2 {
		t.Fatalf("opA step rows = %d, want 2", stepRows)
	}

	var unknownRecords int64
	if err := db.QueryRowContext(ctx,
		"SELECT records FROM unknown_ops WHERE session = ? AND name = ?", st.Session, "ghost").Scan(&unknownRecords); err != nil {
		t.Fatalf("query unknown: %v", err)
	}
	if unknownRecords != 1 {
		t.Fatalf("ghost records = %d, want 1", unknownRecords)
	}
}

func TestSQLiteExportIsIdempotentPerSession(t *testing.T) {
	st := buildState(t)
	path := filepath.Join(t.TempDir(), "profile.db")
	ctx := context.Background()

	if err := SQLite(ctx, path, st); err != nil {
		t.Fatalf("first export: %v", err)
	}
	if err := SQLite(ctx, path, st); err != nil {
		t.Fatalf("second export: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	var sessions int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&sessions); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if sessions != 1 {
		t.Fatalf("sessions = %d, want 1 after re-export", sessions)
	}
}
