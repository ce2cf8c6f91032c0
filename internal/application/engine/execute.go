package engine

import (
	"context"
	"fmt"
	"log/slog"

	sdkmath "cosmossdk.io/math"

	"github.com/alejandrodnm/dcavault/internal/domain"
	"github.com/alejandrodnm/dcavault/internal/metrics"
)

// ExecuteTrigger fires a vault's trigger. Anyone may call it; eligibility is decided
// entirely by the stored trigger. Time triggers dispatch a swap, limit-order triggers
// dispatch a withdrawal of the filled order. State only advances in the continuation.
func (e *Engine) ExecuteTrigger(ctx context.Context, vaultID uint64) (Response, error) {
	return e.invoke(ctx, "execute_trigger", func(tx *txn) error {
		tx.vaultID = vaultID
		if err := e.requireActive(); err != nil {
			return err
		}
		trigger, err := tx.st.GetTrigger(tx.ctx, vaultID)
		if err != nil {
			return err
		}
		v, err := tx.st.GetVault(tx.ctx, vaultID)
		if err != nil {
			return err
		}
		if v.IsCancelled() {
			return domain.ErrVaultCancelled
		}
		if err := requireIdle(tx, vaultID); err != nil {
			return err
		}

		switch trigger.Kind {
		case domain.TriggerTime:
			return e.executeTimeTrigger(tx, v, trigger)
		case domain.TriggerLimitOrder:
			return e.executeLimitOrderTrigger(tx, v, trigger)
		default:
			return fmt.Errorf("%w: vault %d has trigger of unknown kind %q", domain.ErrFatal, vaultID, trigger.Kind)
		}
	})
}

func (e *Engine) executeTimeTrigger(tx *txn, v domain.Vault, trigger domain.Trigger) error {
	if !trigger.IsDue(tx.now) {
		return fmt.Errorf("vault %d due at %s: %w", v.ID, trigger.TargetTime.Format("2006-01-02T15:04:05Z"), domain.ErrTriggerNotDue)
	}
	if err := tx.event(v.ID, domain.EventData{Type: domain.EventVaultExecutionTriggered}); err != nil {
		return err
	}
	if v.Status == domain.VaultScheduled {
		started := tx.now
		v.Status = domain.VaultActive
		v.StartedAt = &started
	}

	if v.Balance.IsZero() {
		return e.retireEmptyVault(tx, v)
	}
	if v.HasLowFunds() {
		v.Status = domain.VaultInactive
		if err := e.recordSkip(tx, v.ID, domain.TriggerTime, domain.SkipInsufficientFunds, "balance is below the swap amount"); err != nil {
			return err
		}
	}

	offer, err := e.adjustedSwapAmount(tx, v)
	if err != nil {
		return err
	}
	if offer.IsZero() {
		if err := e.saveVault(tx, v); err != nil {
			return err
		}
		if err := e.recordSkip(tx, v.ID, domain.TriggerTime, domain.SkipSwapAmountAdjustedToZero, ""); err != nil {
			return err
		}
		return e.advanceTimeTrigger(tx, trigger)
	}

	req := &domain.SwapRequest{Pair: v.Pair, Offer: offer}
	if v.SlippageTolerance != nil {
		price, err := e.prices.BeliefPrice(tx.ctx, v.Pair, v.SwapDenom())
		if err != nil {
			return fmt.Errorf("%w: belief price for vault %d: %v", domain.ErrExternalFailure, v.ID, err)
		}
		if !price.IsPositive() {
			return fmt.Errorf("%w: belief price for vault %d is not positive", domain.ErrExternalFailure, v.ID)
		}
		tolerance := *v.SlippageTolerance
		expected := sdkmath.LegacyNewDecFromInt(offer.Amount).Quo(price)
		minimum := domain.NewCoinFromInt(v.ReceiveDenom(),
			expected.Mul(sdkmath.LegacyOneDec().Sub(tolerance)).TruncateInt())
		req.BeliefPrice = &price
		req.MaxSpread = &tolerance
		req.MinimumReceive = &minimum
	}

	if err := e.saveVault(tx, v); err != nil {
		return err
	}
	return dispatch(tx, v, domain.Call{Kind: domain.OpSwap, Swap: req}, nil)
}

// adjustedSwapAmount is min(balance, swap_amount), scaled for DCA+ vaults by the
// swap adjustment of their model while it is fresh.
func (e *Engine) adjustedSwapAmount(tx *txn, v domain.Vault) (domain.Coin, error) {
	if v.DcaPlus == nil {
		return v.NextSwapAmount(), nil
	}
	adj, err := tx.st.GetSwapAdjustment(tx.ctx, v.PositionType, v.DcaPlus.ModelID)
	if err != nil && !domain.IsNotFound(err) {
		return domain.Coin{}, fmt.Errorf("swap adjustment: %w", err)
	}
	factor := adj.ActiveAt(tx.now, e.cfg.SwapAdjustmentTTL)
	return v.Balance.Min(domain.ApplyRate(v.SwapAmount, factor)), nil
}

// retireEmptyVault handles a due trigger on a vault with nothing left to swap.
func (e *Engine) retireEmptyVault(tx *txn, v domain.Vault) error {
	v.Status = domain.VaultInactive
	if err := e.saveVault(tx, v); err != nil {
		return err
	}
	if err := tx.st.DeleteTrigger(tx.ctx, v.ID); err != nil {
		return fmt.Errorf("retire vault %d: %w", v.ID, err)
	}
	if err := e.recordSkip(tx, v.ID, domain.TriggerTime, domain.SkipInsufficientFunds, "vault balance is empty"); err != nil {
		return err
	}
	return e.queueEscrowDisbursement(tx, v)
}

func (e *Engine) executeLimitOrderTrigger(tx *txn, v domain.Vault, trigger domain.Trigger) error {
	handle, err := trigger.Handle()
	if err != nil {
		return err
	}
	details, err := e.prices.OrderDetails(tx.ctx, v.Pair, handle)
	if err != nil {
		return fmt.Errorf("%w: order details for vault %d: %v", domain.ErrExternalFailure, v.ID, err)
	}
	if !details.OfferAmount.IsZero() {
		return fmt.Errorf("vault %d has %s left on the book: %w", v.ID, details.OfferAmount, domain.ErrOrderNotFullyFilled)
	}
	if err := tx.event(v.ID, domain.EventData{Type: domain.EventVaultExecutionTriggered}); err != nil {
		return err
	}
	cache := &domain.LimitOrderCache{
		OfferAmount:         details.OfferAmount,
		OriginalOfferAmount: details.OriginalOfferAmount,
		Filled:              details.FilledAmount,
	}
	return dispatch(tx, v, domain.Call{Kind: domain.OpWithdrawOrder, Handle: handle}, cache)
}

// advanceTimeTrigger moves a time trigger to its next whole-interval step after now.
// Vaults without a time trigger are left alone.
func (e *Engine) advanceTimeTrigger(tx *txn, trigger domain.Trigger) error {
	if trigger.Kind != domain.TriggerTime {
		return nil
	}
	v, err := tx.st.GetVault(tx.ctx, trigger.VaultID)
	if err != nil {
		return err
	}
	next := v.TimeInterval.NextAfter(trigger.TargetTime, tx.now)
	if err := tx.st.SaveTrigger(tx.ctx, domain.NewTimeTrigger(trigger.VaultID, next)); err != nil {
		return fmt.Errorf("advance trigger %d: %w", trigger.VaultID, err)
	}
	slog.Debug("engine: trigger advanced", "vault_id", trigger.VaultID, "target_time", next)
	return nil
}

func (e *Engine) recordSkip(tx *txn, vaultID uint64, kind domain.TriggerKind, reason domain.SkipReason, msg string) error {
	tx.onCommit(func() {
		metrics.ExecutionSkipped(kind, reason)
		slog.Info("engine: execution skipped", "vault_id", vaultID, "reason", reason, "message", msg)
	})
	return tx.event(vaultID, domain.EventData{Type: domain.EventExecutionSkipped, Reason: reason, Message: msg})
}

func (e *Engine) saveVault(tx *txn, v domain.Vault) error {
	if _, err := tx.st.UpdateVault(tx.ctx, v.ID, func(domain.Vault) (domain.Vault, error) { return v, nil }); err != nil {
		return fmt.Errorf("save vault %d: %w", v.ID, err)
	}
	return nil
}
