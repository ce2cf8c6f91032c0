package storage

// sqlite.go: durable state for the vault engine.
//
// Layout:
//   - vaults: one row per vault, indexed columns + JSON document.
//   - triggers / time_trigger_index: 1:1 trigger per vault and the due-time index.
//     Index rows sharing a second form a bucket ordered by insertion (seq).
//   - events: append-only audit log with a resource_id index.
//   - pending_operations / disburse_escrow_tasks: saga and escrow bookkeeping.
//   - custom_swap_fees / swap_adjustments: admin-managed settings.
//   - outbox: messages of committed invocations the host has not settled (outbox.go).
//   - external_calls: the host journal of settled external calls (journal.go).
//
// Every engine invocation runs inside Atomic, so a failed invocation leaves no trace.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/dcavault/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS counters (
    name  TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS vaults (
    id         INTEGER PRIMARY KEY,
    owner      TEXT    NOT NULL,
    status     TEXT    NOT NULL,
    created_at INTEGER NOT NULL,
    data       TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vaults_owner        ON vaults(owner, id);
CREATE INDEX IF NOT EXISTS idx_vaults_owner_status ON vaults(owner, status, id);

CREATE TABLE IF NOT EXISTS triggers (
    vault_id INTEGER PRIMARY KEY,
    kind     TEXT    NOT NULL,
    data     TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS time_trigger_index (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    target_time INTEGER NOT NULL,
    vault_id    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trigger_due   ON time_trigger_index(target_time, seq);
CREATE INDEX IF NOT EXISTS idx_trigger_vault ON time_trigger_index(vault_id);

CREATE TABLE IF NOT EXISTS events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    resource_id INTEGER NOT NULL,
    timestamp   INTEGER NOT NULL,
    data        TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_resource ON events(resource_id, id);

CREATE TABLE IF NOT EXISTS pending_operations (
    vault_id       INTEGER PRIMARY KEY,
    kind           TEXT    NOT NULL,
    correlation_id TEXT    NOT NULL,
    created_at     INTEGER NOT NULL,
    data           TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS disburse_escrow_tasks (
    vault_id INTEGER PRIMARY KEY,
    due      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_escrow_due ON disburse_escrow_tasks(due, vault_id);

CREATE TABLE IF NOT EXISTS custom_swap_fees (
    denom TEXT PRIMARY KEY,
    rate  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS swap_adjustments (
    position_type TEXT    NOT NULL,
    model_id      INTEGER NOT NULL,
    value         TEXT    NOT NULL,
    updated_at    INTEGER NOT NULL,
    PRIMARY KEY (position_type, model_id)
);
`

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements ports.State against whichever handle it wraps.
type queries struct {
	db dbtx
}

var _ ports.State = (*queries)(nil)

// SQLiteStorage implementa ports.Store usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	*queries
	conn *sql.DB
}

var _ ports.Store = (*SQLiteStorage)(nil)

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema + outboxSchema + journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	return &SQLiteStorage{queries: &queries{db: db}, conn: db}, nil
}

// Atomic runs fn inside a single transaction. Any error rolls everything back.
func (s *SQLiteStorage) Atomic(ctx context.Context, fn func(ports.State) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Atomic: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Atomic: commit: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.conn.Close()
}

// --- helpers internos ---

// nextID bumps a named counter and returns its new value.
func (q *queries) nextID(ctx context.Context, name string) (uint64, error) {
	var id uint64
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next id %s: %w", name, err)
	}
	return id, nil
}

func cursor(startAfter *uint64) uint64 {
	if startAfter == nil {
		return 0
	}
	return *startAfter
}

func unix(t time.Time) int64 {
	return t.UTC().Unix()
}

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func fromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
