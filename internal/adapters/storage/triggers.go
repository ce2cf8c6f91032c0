package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

// SaveTrigger upserts a vault's trigger. A time trigger is appended to the bucket for
// its exact second in the due-time index, replacing any previous entry for the vault.
func (q *queries) SaveTrigger(ctx context.Context, t domain.Trigger) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("storage.SaveTrigger: encode %d: %w", t.VaultID, err)
	}
	if _, err := q.db.ExecContext(ctx, `
		INSERT INTO triggers (vault_id, kind, data) VALUES (?, ?, ?)
		ON CONFLICT(vault_id) DO UPDATE SET kind = excluded.kind, data = excluded.data`,
		t.VaultID, string(t.Kind), string(data),
	); err != nil {
		return fmt.Errorf("storage.SaveTrigger: upsert %d: %w", t.VaultID, err)
	}
	if err := q.unindex(ctx, t.VaultID); err != nil {
		return fmt.Errorf("storage.SaveTrigger: %w", err)
	}
	if t.Kind == domain.TriggerTime {
		if _, err := q.db.ExecContext(ctx,
			`INSERT INTO time_trigger_index (target_time, vault_id) VALUES (?, ?)`,
			unix(t.TargetTime), t.VaultID,
		); err != nil {
			return fmt.Errorf("storage.SaveTrigger: index %d: %w", t.VaultID, err)
		}
	}
	return nil
}

// GetTrigger loads the trigger of a vault.
func (q *queries) GetTrigger(ctx context.Context, vaultID uint64) (domain.Trigger, error) {
	var data string
	err := q.db.QueryRowContext(ctx, `SELECT data FROM triggers WHERE vault_id = ?`, vaultID).Scan(&data)
	if isNoRows(err) {
		return domain.Trigger{}, fmt.Errorf("%w: trigger for vault %d", domain.ErrNotFound, vaultID)
	}
	if err != nil {
		return domain.Trigger{}, fmt.Errorf("storage.GetTrigger: query %d: %w", vaultID, err)
	}
	var t domain.Trigger
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return domain.Trigger{}, fmt.Errorf("storage.GetTrigger: decode %d: %w", vaultID, err)
	}
	return t, nil
}

// DeleteTrigger removes the trigger and its index entry. Siblings in the same due-time
// bucket are untouched. Deleting a missing trigger is a no-op.
func (q *queries) DeleteTrigger(ctx context.Context, vaultID uint64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM triggers WHERE vault_id = ?`, vaultID); err != nil {
		return fmt.Errorf("storage.DeleteTrigger: %d: %w", vaultID, err)
	}
	if err := q.unindex(ctx, vaultID); err != nil {
		return fmt.Errorf("storage.DeleteTrigger: %w", err)
	}
	return nil
}

// GetDueTimeTriggers scans the due-time index ascending and flattens the buckets.
func (q *queries) GetDueTimeTriggers(ctx context.Context, before time.Time, limit int) ([]uint64, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT vault_id FROM time_trigger_index
		WHERE target_time <= ?
		ORDER BY target_time, seq
		LIMIT ?`, unix(before), limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetDueTimeTriggers: query: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage.GetDueTimeTriggers: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetLimitOrderTriggers pages through limit-order triggers by vault id.
func (q *queries) GetLimitOrderTriggers(ctx context.Context, startAfter *uint64, limit int) ([]domain.Trigger, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT data FROM triggers
		WHERE kind = ? AND vault_id > ?
		ORDER BY vault_id
		LIMIT ?`, string(domain.TriggerLimitOrder), cursor(startAfter), limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetLimitOrderTriggers: query: %w", err)
	}
	defer rows.Close()

	var triggers []domain.Trigger
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("storage.GetLimitOrderTriggers: scan: %w", err)
		}
		var t domain.Trigger
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("storage.GetLimitOrderTriggers: decode: %w", err)
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

func (q *queries) unindex(ctx context.Context, vaultID uint64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM time_trigger_index WHERE vault_id = ?`, vaultID); err != nil {
		return fmt.Errorf("unindex %d: %w", vaultID, err)
	}
	return nil
}
