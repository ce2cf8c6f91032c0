package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/dcavault/internal/domain"
	"github.com/alejandrodnm/dcavault/internal/ports"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS external_calls (
    correlation_id TEXT PRIMARY KEY,
    vault_id       INTEGER NOT NULL,
    kind           TEXT    NOT NULL,
    status         TEXT    NOT NULL,
    error          TEXT,
    dispatched_at  INTEGER NOT NULL,
    replied_at     INTEGER
);

CREATE INDEX IF NOT EXISTS idx_external_calls_vault ON external_calls(vault_id, dispatched_at);
`

var _ ports.CallJournal = (*SQLiteStorage)(nil)

// RecordCall journals a call as dispatched.
func (s *SQLiteStorage) RecordCall(ctx context.Context, call domain.Call, at time.Time) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO external_calls (correlation_id, vault_id, kind, status, dispatched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(correlation_id) DO NOTHING`,
		call.CorrelationID, call.VaultID, string(call.Kind), string(domain.CallDispatched), at.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("storage.RecordCall: %s: %w", call.CorrelationID, err)
	}
	return nil
}

// RecordReply marks the journalled call as succeeded or failed.
func (s *SQLiteStorage) RecordReply(ctx context.Context, reply domain.Reply, at time.Time) error {
	status, errMsg := domain.CallSucceeded, ""
	if !reply.Succeeded() {
		status, errMsg = domain.CallFailed, reply.Err.Error()
	}
	res, err := s.conn.ExecContext(ctx, `
		UPDATE external_calls SET status = ?, error = ?, replied_at = ?
		WHERE correlation_id = ?`,
		string(status), nullString(errMsg), at.UTC().UnixNano(), reply.CorrelationID)
	if err != nil {
		return fmt.Errorf("storage.RecordReply: %s: %w", reply.CorrelationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: journalled call %s", domain.ErrNotFound, reply.CorrelationID)
	}
	return nil
}

// GetCalls lists a vault's journalled calls, most recent first.
func (s *SQLiteStorage) GetCalls(ctx context.Context, vaultID uint64, limit int) ([]domain.CallRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT correlation_id, vault_id, kind, status, error, dispatched_at, replied_at
		FROM external_calls
		WHERE vault_id = ?
		ORDER BY dispatched_at DESC
		LIMIT ?`, vaultID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetCalls: query: %w", err)
	}
	defer rows.Close()

	var records []domain.CallRecord
	for rows.Next() {
		var (
			r          domain.CallRecord
			kind       string
			status     string
			errMsg     sql.NullString
			dispatched int64
			replied    sql.NullInt64
		)
		if err := rows.Scan(&r.CorrelationID, &r.VaultID, &kind, &status, &errMsg, &dispatched, &replied); err != nil {
			return nil, fmt.Errorf("storage.GetCalls: scan: %w", err)
		}
		r.Kind = domain.OperationKind(kind)
		r.Status = domain.CallStatus(status)
		r.Error = errMsg.String
		r.DispatchedAt = fromUnixNano(dispatched)
		if replied.Valid {
			t := fromUnixNano(replied.Int64)
			r.RepliedAt = &t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
