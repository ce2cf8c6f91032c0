package storage

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

// SetCustomSwapFee overrides the default swap fee for a denom.
func (q *queries) SetCustomSwapFee(ctx context.Context, denom string, rate sdkmath.LegacyDec) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO custom_swap_fees (denom, rate) VALUES (?, ?)
		ON CONFLICT(denom) DO UPDATE SET rate = excluded.rate`,
		denom, rate.String())
	if err != nil {
		return fmt.Errorf("storage.SetCustomSwapFee: %s: %w", denom, err)
	}
	return nil
}

// RemoveCustomSwapFee drops a denom's override.
func (q *queries) RemoveCustomSwapFee(ctx context.Context, denom string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM custom_swap_fees WHERE denom = ?`, denom); err != nil {
		return fmt.Errorf("storage.RemoveCustomSwapFee: %s: %w", denom, err)
	}
	return nil
}

// GetCustomSwapFees returns every override keyed by denom.
func (q *queries) GetCustomSwapFees(ctx context.Context) (map[string]sdkmath.LegacyDec, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT denom, rate FROM custom_swap_fees`)
	if err != nil {
		return nil, fmt.Errorf("storage.GetCustomSwapFees: query: %w", err)
	}
	defer rows.Close()

	fees := make(map[string]sdkmath.LegacyDec)
	for rows.Next() {
		var denom, rate string
		if err := rows.Scan(&denom, &rate); err != nil {
			return nil, fmt.Errorf("storage.GetCustomSwapFees: scan: %w", err)
		}
		dec, err := sdkmath.LegacyNewDecFromStr(rate)
		if err != nil {
			return nil, fmt.Errorf("storage.GetCustomSwapFees: parse %s: %w", denom, err)
		}
		fees[denom] = dec
	}
	return fees, rows.Err()
}

// SaveSwapAdjustment stores the latest multiplier for a position type and model.
func (q *queries) SaveSwapAdjustment(ctx context.Context, a domain.SwapAdjustment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO swap_adjustments (position_type, model_id, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(position_type, model_id) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at`,
		string(a.PositionType), a.ModelID, a.Value.String(), unix(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("storage.SaveSwapAdjustment: %s/%d: %w", a.PositionType, a.ModelID, err)
	}
	return nil
}

// GetSwapAdjustment loads a multiplier, or ErrNotFound when none was ever set.
func (q *queries) GetSwapAdjustment(ctx context.Context, position domain.PositionType, modelID uint8) (domain.SwapAdjustment, error) {
	var (
		value string
		sec   int64
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM swap_adjustments WHERE position_type = ? AND model_id = ?`,
		string(position), modelID).Scan(&value, &sec)
	if isNoRows(err) {
		return domain.SwapAdjustment{}, fmt.Errorf("%w: swap adjustment %s/%d", domain.ErrNotFound, position, modelID)
	}
	if err != nil {
		return domain.SwapAdjustment{}, fmt.Errorf("storage.GetSwapAdjustment: query: %w", err)
	}
	dec, err := sdkmath.LegacyNewDecFromStr(value)
	if err != nil {
		return domain.SwapAdjustment{}, fmt.Errorf("storage.GetSwapAdjustment: parse: %w", err)
	}
	return domain.SwapAdjustment{PositionType: position, ModelID: modelID, Value: dec, UpdatedAt: fromUnix(sec)}, nil
}
