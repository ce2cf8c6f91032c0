package engine

import (
	"context"
	"fmt"
	"log/slog"

	sdkmath "cosmossdk.io/math"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

// CreateCustomSwapFee overrides the default swap fee for a denom.
func (e *Engine) CreateCustomSwapFee(ctx context.Context, sender, denom string, rate sdkmath.LegacyDec) error {
	_, err := e.invoke(ctx, "create_custom_swap_fee", func(tx *txn) error {
		if err := e.requireAdmin(sender); err != nil {
			return err
		}
		if denom == "" {
			return fmt.Errorf("%w: denom is required", domain.ErrInvalidInput)
		}
		if !domain.ValidRate(rate) {
			return fmt.Errorf("%w: swap fee must be in [0, 1]", domain.ErrInvalidInput)
		}
		return tx.st.SetCustomSwapFee(tx.ctx, denom, rate)
	})
	return err
}

// RemoveCustomSwapFee drops a denom's override.
func (e *Engine) RemoveCustomSwapFee(ctx context.Context, sender, denom string) error {
	_, err := e.invoke(ctx, "remove_custom_swap_fee", func(tx *txn) error {
		if err := e.requireAdmin(sender); err != nil {
			return err
		}
		return tx.st.RemoveCustomSwapFee(tx.ctx, denom)
	})
	return err
}

// UpdateSwapAdjustment stores a fresh multiplier for a DCA+ model.
func (e *Engine) UpdateSwapAdjustment(ctx context.Context, sender string, position domain.PositionType, modelID uint8, value sdkmath.LegacyDec) error {
	_, err := e.invoke(ctx, "update_swap_adjustment", func(tx *txn) error {
		if err := e.requireAdmin(sender); err != nil {
			return err
		}
		if position != domain.PositionEnter && position != domain.PositionExit {
			return fmt.Errorf("%w: unknown position type %q", domain.ErrInvalidInput, position)
		}
		if modelID < domain.MinModelID || modelID > domain.MaxModelID {
			return fmt.Errorf("%w: model id %d out of range", domain.ErrInvalidInput, modelID)
		}
		if value.IsNil() || value.IsNegative() {
			return fmt.Errorf("%w: adjustment cannot be negative", domain.ErrInvalidInput)
		}
		return tx.st.SaveSwapAdjustment(tx.ctx, domain.SwapAdjustment{
			PositionType: position,
			ModelID:      modelID,
			Value:        value,
			UpdatedAt:    tx.now,
		})
	})
	return err
}

// SetPaused toggles the pause switch. Cancels and claims keep working while paused.
func (e *Engine) SetPaused(sender string, paused bool) error {
	if err := e.requireAdmin(sender); err != nil {
		return err
	}
	e.paused.Store(paused)
	slog.Warn("engine: pause switch changed", "paused", paused)
	return nil
}
