package engine

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

// Queries read committed state directly and never open a transaction of their own.

func (e *Engine) GetVault(ctx context.Context, id uint64) (domain.Vault, error) {
	return e.store.GetVault(ctx, id)
}

func (e *Engine) GetVaults(ctx context.Context, startAfter *uint64, limit int) ([]domain.Vault, error) {
	return e.store.GetVaults(ctx, startAfter, clampLimit(limit, e.cfg.DefaultPageLimit))
}

func (e *Engine) GetVaultsByOwner(ctx context.Context, owner string, status *domain.VaultStatus, startAfter *uint64, limit int) ([]domain.Vault, error) {
	return e.store.GetVaultsByOwner(ctx, owner, status, startAfter, clampLimit(limit, e.cfg.DefaultPageLimit))
}

func (e *Engine) GetTrigger(ctx context.Context, vaultID uint64) (domain.Trigger, error) {
	return e.store.GetTrigger(ctx, vaultID)
}

// GetDueTimeTriggers lists vault ids whose time trigger is due at or before before.
func (e *Engine) GetDueTimeTriggers(ctx context.Context, before time.Time, limit int) ([]uint64, error) {
	return e.store.GetDueTimeTriggers(ctx, before, clampLimit(limit, e.cfg.DefaultPageLimit))
}

func (e *Engine) GetLimitOrderTriggers(ctx context.Context, startAfter *uint64, limit int) ([]domain.Trigger, error) {
	return e.store.GetLimitOrderTriggers(ctx, startAfter, clampLimit(limit, e.cfg.DefaultPageLimit))
}

func (e *Engine) GetEvents(ctx context.Context, startAfter *uint64, limit int) ([]domain.Event, error) {
	return e.store.GetEvents(ctx, startAfter, clampLimit(limit, e.cfg.DefaultPageLimit))
}

func (e *Engine) GetEventsByResourceID(ctx context.Context, vaultID uint64, startAfter *uint64, limit int) ([]domain.Event, error) {
	return e.store.GetEventsByResourceID(ctx, vaultID, startAfter, clampLimit(limit, e.cfg.DefaultPageLimit))
}

func (e *Engine) GetCustomSwapFees(ctx context.Context) (map[string]sdkmath.LegacyDec, error) {
	return e.store.GetCustomSwapFees(ctx)
}

func (e *Engine) GetDueDisburseEscrowTasks(ctx context.Context, due time.Time, limit int) ([]domain.DisburseEscrowTask, error) {
	return e.store.GetDueDisburseEscrowTasks(ctx, due, clampLimit(limit, e.cfg.DefaultPageLimit))
}

// Now is the engine's notion of the current time.
func (e *Engine) Now() time.Time { return e.clock.Now().UTC() }
