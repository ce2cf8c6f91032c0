package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

// SavePending records the awaiting-reply state of a vault's saga, replacing any
// previous record for the same vault.
func (q *queries) SavePending(ctx context.Context, p domain.PendingOperation) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("storage.SavePending: encode %d: %w", p.VaultID, err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO pending_operations (vault_id, kind, correlation_id, created_at, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(vault_id) DO UPDATE SET
			kind           = excluded.kind,
			correlation_id = excluded.correlation_id,
			created_at     = excluded.created_at,
			data           = excluded.data`,
		p.VaultID, string(p.Kind), p.CorrelationID, unix(p.CreatedAt), string(data))
	if err != nil {
		return fmt.Errorf("storage.SavePending: upsert %d: %w", p.VaultID, err)
	}
	return nil
}

// GetPending loads a vault's pending operation, or ErrNotFound.
func (q *queries) GetPending(ctx context.Context, vaultID uint64) (domain.PendingOperation, error) {
	var data string
	err := q.db.QueryRowContext(ctx,
		`SELECT data FROM pending_operations WHERE vault_id = ?`, vaultID).Scan(&data)
	if isNoRows(err) {
		return domain.PendingOperation{}, fmt.Errorf("%w: no pending operation for vault %d", domain.ErrNotFound, vaultID)
	}
	if err != nil {
		return domain.PendingOperation{}, fmt.Errorf("storage.GetPending: query %d: %w", vaultID, err)
	}
	var p domain.PendingOperation
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return domain.PendingOperation{}, fmt.Errorf("storage.GetPending: decode %d: %w", vaultID, err)
	}
	return p, nil
}

// DeletePending clears a vault's pending operation.
func (q *queries) DeletePending(ctx context.Context, vaultID uint64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM pending_operations WHERE vault_id = ?`, vaultID); err != nil {
		return fmt.Errorf("storage.DeletePending: %d: %w", vaultID, err)
	}
	return nil
}

// SaveDisburseEscrowTask schedules (or reschedules) a vault's escrow release.
func (q *queries) SaveDisburseEscrowTask(ctx context.Context, t domain.DisburseEscrowTask) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO disburse_escrow_tasks (vault_id, due) VALUES (?, ?)
		ON CONFLICT(vault_id) DO UPDATE SET due = excluded.due`,
		t.VaultID, unix(t.Due))
	if err != nil {
		return fmt.Errorf("storage.SaveDisburseEscrowTask: %d: %w", t.VaultID, err)
	}
	return nil
}

// GetDueDisburseEscrowTasks returns tasks due at or before the given time, oldest first.
func (q *queries) GetDueDisburseEscrowTasks(ctx context.Context, due time.Time, limit int) ([]domain.DisburseEscrowTask, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT vault_id, due FROM disburse_escrow_tasks
		WHERE due <= ?
		ORDER BY due, vault_id
		LIMIT ?`, unix(due), limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetDueDisburseEscrowTasks: query: %w", err)
	}
	defer rows.Close()

	var tasks []domain.DisburseEscrowTask
	for rows.Next() {
		var (
			t   domain.DisburseEscrowTask
			sec int64
		)
		if err := rows.Scan(&t.VaultID, &sec); err != nil {
			return nil, fmt.Errorf("storage.GetDueDisburseEscrowTasks: scan: %w", err)
		}
		t.Due = fromUnix(sec)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// DeleteDisburseEscrowTask removes a vault's escrow task. Missing tasks are ignored.
func (q *queries) DeleteDisburseEscrowTask(ctx context.Context, vaultID uint64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM disburse_escrow_tasks WHERE vault_id = ?`, vaultID); err != nil {
		return fmt.Errorf("storage.DeleteDisburseEscrowTask: %d: %w", vaultID, err)
	}
	return nil
}
