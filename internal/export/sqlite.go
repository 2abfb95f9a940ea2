// Package export writes accumulated profiler state to external stores
// for ad-hoc analysis outside the report views.
package export

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"opprof/internal/profile"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	session       TEXT PRIMARY KEY,
	schema        INTEGER NOT NULL,
	merge_policy  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS ops (
	session       TEXT NOT NULL,
	name          TEXT NOT NULL,
	op_type       TEXT NOT NULL,
	device        TEXT NOT NULL,
	total_nanos   INTEGER NOT NULL,
	count         INTEGER NOT NULL,
	alloc_bytes   INTEGER NOT NULL,
	dealloc_bytes INTEGER NOT NULL,
	PRIMARY KEY (session, name)
);
CREATE TABLE IF NOT EXISTS op_steps (
	session       TEXT NOT NULL,
	name          TEXT NOT NULL,
	step          INTEGER NOT NULL,
	total_nanos   INTEGER NOT NULL,
	count         INTEGER NOT NULL,
	alloc_bytes   INTEGER NOT NULL,
	dealloc_bytes INTEGER NOT NULL,
	PRIMARY KEY (session, name, step)
);
CREATE TABLE IF NOT EXISTS unknown_ops (
	session TEXT NOT NULL,
	name    TEXT NOT NULL,
	records INTEGER NOT NULL,
	PRIMARY KEY (session, name)
);
`

// SQLite writes the profiler state into a SQLite database at path,
// creating the schema when missing. Re-exporting the same session
// replaces its rows, so the export is idempotent per session.
func SQLite(ctx context.Context, path string, st *profile.State) (err error) {
	if st == nil {
		return fmt.Errorf("nil profiler state")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite database: %w", err)
	}
	defer func() {
		err = multierr.Append(err, db.Close())
	}()

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	for _, table := range []string{"sessions", "ops", "op_steps", "unknown_ops"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session = ?", st.Session); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO sessions (session, schema, merge_policy) VALUES (?, ?, ?)",
		st.Session, st.Schema, st.Policy); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	insertOp, err := tx.PrepareContext(ctx,
		"INSERT INTO ops (session, name, op_type, device, total_nanos, count, alloc_bytes, dealloc_bytes) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare ops insert: %w", err)
	}
	defer func() { _ = insertOp.Close() }()

	insertStep, err := tx.PrepareContext(ctx,
		"INSERT INTO op_steps (session, name, step, total_nanos, count, alloc_bytes, dealloc_bytes) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare op_steps insert: %w", err)
	}
	defer func() { _ = insertStep.Close() }()

	for _, op := range st.Ops {
		var total, count, alloc, dealloc int64
		for _, step := range op.Steps {
			total += step.TotalNanos
			count += step.Count
			alloc += step.AllocBytes
			dealloc += step.DeallocBytes
			if _, err := insertStep.ExecContext(ctx,
				st.Session, op.Name, step.Step,
				step.TotalNanos, step.Count, step.AllocBytes, step.DeallocBytes); err != nil {
				return fmt.Errorf("insert step row for %q: %w", op.Name, err)
			}
		}
		if _, err := insertOp.ExecContext(ctx,
			st.Session, op.Name, op.Type, op.Device,
			total, count, alloc, dealloc); err != nil {
			return fmt.Errorf("insert op row for %q: %w", op.Name, err)
		}
	}

	for _, u := range st.UnknownOps {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO unknown_ops (session, name, records) VALUES (?, ?, ?)",
			st.Session, u.Name, u.Records); err != nil {
			return fmt.Errorf("insert unknown op row for %q: %w", u.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export: %w", err)
	}
	return nil
}
