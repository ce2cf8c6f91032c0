package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

const vaultCounter = "vault"

// SaveVault persists v, allocating the next id when v.ID is zero.
func (q *queries) SaveVault(ctx context.Context, v domain.Vault) (domain.Vault, error) {
	if v.ID == 0 {
		id, err := q.nextID(ctx, vaultCounter)
		if err != nil {
			return domain.Vault{}, fmt.Errorf("storage.SaveVault: %w", err)
		}
		v.ID = id
	}
	if err := q.putVault(ctx, v); err != nil {
		return domain.Vault{}, fmt.Errorf("storage.SaveVault: %w", err)
	}
	return v, nil
}

// GetVault loads a vault by id.
func (q *queries) GetVault(ctx context.Context, id uint64) (domain.Vault, error) {
	var data string
	err := q.db.QueryRowContext(ctx, `SELECT data FROM vaults WHERE id = ?`, id).Scan(&data)
	if isNoRows(err) {
		return domain.Vault{}, fmt.Errorf("%w: vault %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Vault{}, fmt.Errorf("storage.GetVault: query %d: %w", id, err)
	}
	return decodeVault(data)
}

// UpdateVault loads, transforms and writes back a vault. If fn fails nothing is written.
func (q *queries) UpdateVault(ctx context.Context, id uint64, fn func(domain.Vault) (domain.Vault, error)) (domain.Vault, error) {
	v, err := q.GetVault(ctx, id)
	if err != nil {
		return domain.Vault{}, err
	}
	updated, err := fn(v)
	if err != nil {
		return domain.Vault{}, err
	}
	updated.ID = id
	if err := q.putVault(ctx, updated); err != nil {
		return domain.Vault{}, fmt.Errorf("storage.UpdateVault: %w", err)
	}
	return updated, nil
}

// GetVaults pages through every vault ascending by id.
func (q *queries) GetVaults(ctx context.Context, startAfter *uint64, limit int) ([]domain.Vault, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT data FROM vaults WHERE id > ? ORDER BY id LIMIT ?`, cursor(startAfter), limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetVaults: query: %w", err)
	}
	return scanVaults(rows)
}

// GetVaultsByOwner pages through an owner's vaults, optionally filtered by status.
func (q *queries) GetVaultsByOwner(ctx context.Context, owner string, status *domain.VaultStatus, startAfter *uint64, limit int) ([]domain.Vault, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status != nil {
		rows, err = q.db.QueryContext(ctx,
			`SELECT data FROM vaults WHERE owner = ? AND status = ? AND id > ? ORDER BY id LIMIT ?`,
			owner, string(*status), cursor(startAfter), limit)
	} else {
		rows, err = q.db.QueryContext(ctx,
			`SELECT data FROM vaults WHERE owner = ? AND id > ? ORDER BY id LIMIT ?`,
			owner, cursor(startAfter), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("storage.GetVaultsByOwner: query: %w", err)
	}
	return scanVaults(rows)
}

func (q *queries) putVault(ctx context.Context, v domain.Vault) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode vault %d: %w", v.ID, err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO vaults (id, owner, status, created_at, data) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner  = excluded.owner,
			status = excluded.status,
			data   = excluded.data`,
		v.ID, v.Owner, string(v.Status), unix(v.CreatedAt), string(data))
	if err != nil {
		return fmt.Errorf("upsert vault %d: %w", v.ID, err)
	}
	return nil
}

func scanVaults(rows *sql.Rows) ([]domain.Vault, error) {
	defer rows.Close()
	var vaults []domain.Vault
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("storage: scan vault: %w", err)
		}
		v, err := decodeVault(data)
		if err != nil {
			return nil, err
		}
		vaults = append(vaults, v)
	}
	return vaults, rows.Err()
}

func decodeVault(data string) (domain.Vault, error) {
	var v domain.Vault
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return domain.Vault{}, fmt.Errorf("storage: decode vault: %w", err)
	}
	return v, nil
}
