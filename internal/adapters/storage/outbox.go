package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

// outboxSchema holds the messages of committed invocations until the host settles them.
// correlation_id is set for calls only.
const outboxSchema = `
CREATE TABLE IF NOT EXISTS outbox (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    vault_id       INTEGER NOT NULL,
    kind           TEXT    NOT NULL,
    correlation_id TEXT,
    data           TEXT    NOT NULL,
    reply          TEXT,
    attempts       INTEGER NOT NULL DEFAULT 0,
    created_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outbox_correlation ON outbox(correlation_id);
`

const (
	outboxTransfer      = "transfer"
	outboxCommunityPool = "community_pool"
	outboxCall          = "call"
)

// AppendOutbox queues a message and returns its outbox id.
func (q *queries) AppendOutbox(ctx context.Context, vaultID uint64, msg domain.Message, at time.Time) (uint64, error) {
	var (
		kind        string
		correlation sql.NullString
	)
	switch m := msg.(type) {
	case domain.Transfer:
		kind = outboxTransfer
	case domain.FundCommunityPool:
		kind = outboxCommunityPool
	case domain.Call:
		kind = outboxCall
		correlation = sql.NullString{String: m.CorrelationID, Valid: true}
		vaultID = m.VaultID
	default:
		return 0, fmt.Errorf("storage.AppendOutbox: %w: unknown message %T", domain.ErrFatal, msg)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("storage.AppendOutbox: encode %s: %w", kind, err)
	}

	var id uint64
	err = q.db.QueryRowContext(ctx, `
		INSERT INTO outbox (vault_id, kind, correlation_id, data, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		vaultID, kind, correlation, string(data), unix(at)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("storage.AppendOutbox: insert %s: %w", kind, err)
	}
	return id, nil
}

// GetOutbox returns unsettled messages in the order they were queued.
func (q *queries) GetOutbox(ctx context.Context, limit int) ([]domain.Envelope, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, vault_id, kind, data, reply, attempts, created_at
		FROM outbox
		ORDER BY id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetOutbox: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Envelope
	for rows.Next() {
		var (
			env   domain.Envelope
			kind  string
			data  string
			reply sql.NullString
			sec   int64
		)
		if err := rows.Scan(&env.ID, &env.VaultID, &kind, &data, &reply, &env.Attempts, &sec); err != nil {
			return nil, fmt.Errorf("storage.GetOutbox: scan: %w", err)
		}
		env.CreatedAt = fromUnix(sec)
		if env.Message, err = decodeMessage(kind, data); err != nil {
			return nil, fmt.Errorf("storage.GetOutbox: decode %d: %w", env.ID, err)
		}
		if reply.Valid {
			var r domain.Reply
			if err := json.Unmarshal([]byte(reply.String), &r); err != nil {
				return nil, fmt.Errorf("storage.GetOutbox: decode reply %d: %w", env.ID, err)
			}
			env.Reply = &r
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func decodeMessage(kind, data string) (domain.Message, error) {
	switch kind {
	case outboxTransfer:
		var m domain.Transfer
		err := json.Unmarshal([]byte(data), &m)
		return m, err
	case outboxCommunityPool:
		var m domain.FundCommunityPool
		err := json.Unmarshal([]byte(data), &m)
		return m, err
	case outboxCall:
		var m domain.Call
		err := json.Unmarshal([]byte(data), &m)
		return m, err
	}
	return nil, fmt.Errorf("unknown outbox kind %q", kind)
}

// SaveOutboxReply stores the answer to a queued call.
func (q *queries) SaveOutboxReply(ctx context.Context, id uint64, reply domain.Reply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("storage.SaveOutboxReply: encode %d: %w", id, err)
	}
	if _, err := q.db.ExecContext(ctx, `UPDATE outbox SET reply = ? WHERE id = ?`, string(data), id); err != nil {
		return fmt.Errorf("storage.SaveOutboxReply: %d: %w", id, err)
	}
	return nil
}

// MarkOutboxAttempt bumps the attempt counter of a message that failed to settle.
func (q *queries) MarkOutboxAttempt(ctx context.Context, id uint64) error {
	if _, err := q.db.ExecContext(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("storage.MarkOutboxAttempt: %d: %w", id, err)
	}
	return nil
}

// DeleteOutbox drops a settled message.
func (q *queries) DeleteOutbox(ctx context.Context, id uint64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("storage.DeleteOutbox: %d: %w", id, err)
	}
	return nil
}

// DeleteOutboxCall drops the queued call with the given correlation id.
func (q *queries) DeleteOutboxCall(ctx context.Context, correlationID string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM outbox WHERE correlation_id = ?`, correlationID); err != nil {
		return fmt.Errorf("storage.DeleteOutboxCall: %s: %w", correlationID, err)
	}
	return nil
}
