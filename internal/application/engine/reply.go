package engine

import (
	"context"
	"fmt"
	"log/slog"

	sdkmath "cosmossdk.io/math"

	"github.com/alejandrodnm/dcavault/internal/domain"
	"github.com/alejandrodnm/dcavault/internal/metrics"
)

// HandleReply is the continuation of every dispatched call. Venue failures are recovered
// locally: the saga records a skip and moves on. A reply that does not match the vault's
// pending record is a sequencing bug and aborts the invocation with ErrFatal.
func (e *Engine) HandleReply(ctx context.Context, reply domain.Reply) (Response, error) {
	return e.invoke(ctx, "reply_"+string(reply.Kind), func(tx *txn) error {
		tx.vaultID = reply.VaultID
		if err := tx.st.DeleteOutboxCall(tx.ctx, reply.CorrelationID); err != nil {
			return fmt.Errorf("engine.HandleReply: %w", err)
		}
		if reply.Kind == domain.OpAutomation {
			return e.onAutomation(tx, reply)
		}

		pending, err := tx.st.GetPending(tx.ctx, reply.VaultID)
		if domain.IsNotFound(err) {
			return fmt.Errorf("%w: %s reply for vault %d has no pending operation", domain.ErrFatal, reply.Kind, reply.VaultID)
		}
		if err != nil {
			return err
		}
		if pending.CorrelationID != reply.CorrelationID || pending.Kind != reply.Kind {
			return fmt.Errorf("%w: vault %d awaits %s/%s, got %s/%s", domain.ErrFatal, reply.VaultID,
				pending.Kind, pending.CorrelationID, reply.Kind, reply.CorrelationID)
		}
		if err := tx.st.DeletePending(tx.ctx, reply.VaultID); err != nil {
			return fmt.Errorf("engine.HandleReply: %w", err)
		}

		v, err := tx.st.GetVault(tx.ctx, reply.VaultID)
		if err != nil {
			return err
		}

		switch reply.Kind {
		case domain.OpSwap:
			return e.onSwap(tx, v, reply)
		case domain.OpSubmitOrder:
			return e.onSubmitOrder(tx, v, reply)
		case domain.OpWithdrawOrder:
			return e.onWithdrawOrder(tx, v, pending, reply)
		case domain.OpRetractOrder:
			return e.onRetractOrder(tx, v, pending, reply)
		case domain.OpWithdrawRetracted:
			return e.onWithdrawRetracted(tx, v, pending, reply)
		default:
			return fmt.Errorf("%w: unknown reply kind %q", domain.ErrFatal, reply.Kind)
		}
	})
}

func (e *Engine) onSwap(tx *txn, v domain.Vault, reply domain.Reply) error {
	trigger, err := tx.st.GetTrigger(tx.ctx, v.ID)
	if err != nil {
		return fmt.Errorf("%w: swap reply for vault %d without trigger: %v", domain.ErrFatal, v.ID, err)
	}

	if !reply.Succeeded() {
		if err := e.recordSkip(tx, v.ID, domain.TriggerTime, reply.Err.Reason, reply.Err.Message); err != nil {
			return err
		}
		return e.advanceTimeTrigger(tx, trigger)
	}
	if reply.Swap == nil {
		return fmt.Errorf("%w: swap reply for vault %d carries no result", domain.ErrFatal, v.ID)
	}

	sent, received := reply.Swap.Sent, reply.Swap.Received
	if err := e.completeExecution(tx, &v, domain.TriggerTime, sent, received); err != nil {
		return err
	}
	return e.advanceTimeTrigger(tx, trigger)
}

func (e *Engine) onSubmitOrder(tx *txn, v domain.Vault, reply domain.Reply) error {
	if !reply.Succeeded() {
		// a rejected order means the vault never started: refund and retire it
		if err := e.recordSkip(tx, v.ID, domain.TriggerLimitOrder, reply.Err.Reason, reply.Err.Message); err != nil {
			return err
		}
		return e.finalizeCancel(tx, v)
	}
	if reply.OrderHandle == nil {
		return fmt.Errorf("%w: submit reply for vault %d carries no order handle", domain.ErrFatal, v.ID)
	}
	trigger, err := tx.st.GetTrigger(tx.ctx, v.ID)
	if err != nil {
		return fmt.Errorf("%w: submit reply for vault %d without trigger: %v", domain.ErrFatal, v.ID, err)
	}
	if trigger.Kind != domain.TriggerLimitOrder {
		return fmt.Errorf("%w: submit reply for vault %d with %s trigger", domain.ErrFatal, v.ID, trigger.Kind)
	}
	handle := *reply.OrderHandle
	trigger.OrderHandle = &handle
	if err := tx.st.SaveTrigger(tx.ctx, trigger); err != nil {
		return fmt.Errorf("engine.onSubmitOrder: %w", err)
	}
	return tx.event(v.ID, domain.EventData{Type: domain.EventLimitOrderPlaced, OrderHandle: &handle})
}

// onWithdrawOrder completes a filled limit order: the offer leaves the balance, the
// withdrawn proceeds are disbursed and the vault switches to time scheduling.
func (e *Engine) onWithdrawOrder(tx *txn, v domain.Vault, pending domain.PendingOperation, reply domain.Reply) error {
	if !reply.Succeeded() {
		return e.recordSkip(tx, v.ID, domain.TriggerLimitOrder, reply.Err.Reason, reply.Err.Message)
	}
	if pending.LimitOrder == nil || reply.Amount == nil {
		return fmt.Errorf("%w: withdraw reply for vault %d lacks order figures", domain.ErrFatal, v.ID)
	}

	sent := v.Balance.Min(pending.LimitOrder.OriginalOfferAmount)
	received := domain.NewCoinFromInt(v.ReceiveDenom(), *reply.Amount)
	if v.Status == domain.VaultScheduled {
		started := tx.now
		v.Status = domain.VaultActive
		v.StartedAt = &started
	}
	if err := e.completeExecution(tx, &v, domain.TriggerLimitOrder, sent, received); err != nil {
		return err
	}
	next := v.TimeInterval.Step(tx.now)
	if err := tx.st.SaveTrigger(tx.ctx, domain.NewTimeTrigger(v.ID, next)); err != nil {
		return fmt.Errorf("engine.onWithdrawOrder: %w", err)
	}
	return nil
}

// completeExecution books a swap that moved funds: balance and lifetime totals, the DCA+
// shadow ledger, escrow and the disbursement of what remains. v is saved and left updated.
func (e *Engine) completeExecution(tx *txn, v *domain.Vault, kind domain.TriggerKind, sent, received domain.Coin) error {
	if err := v.RecordSwap(sent, received); err != nil {
		return fmt.Errorf("%w: vault %d: %v", domain.ErrFatal, v.ID, err)
	}
	if v.DcaPlus != nil {
		v.DcaPlus.RecordStandardSwap(v.SwapAmount, sent, received)
	}
	if v.Balance.IsZero() || v.HasLowFunds() {
		v.Status = domain.VaultInactive
	}

	proceeds, err := e.disburse(tx, v, received)
	if err != nil {
		return err
	}
	if err := e.saveVault(tx, *v); err != nil {
		return err
	}

	fee := domain.CoinPtr(received.Denom, proceeds.SwapFee.Add(proceeds.AutomationFee))
	data := domain.EventData{Type: domain.EventVaultExecutionCompleted, Sent: &sent, Received: &received, Fee: fee}
	if v.DcaPlus != nil {
		data.Escrowed = domain.CoinPtr(received.Denom, proceeds.Escrowed)
	}
	tx.onCommit(func() {
		metrics.ExecutionCompleted(kind)
		slog.Info("engine: execution completed", "vault_id", v.ID, "sent", sent.String(), "received", received.String())
	})
	return tx.event(v.ID, data)
}

// startRetract begins unwinding a vault that has an order on the book. If the order has
// nothing left to retract the unwind proceeds straight to the withdrawal step.
func (e *Engine) startRetract(tx *txn, v domain.Vault, handle domain.OrderHandle) error {
	details, err := e.prices.OrderDetails(tx.ctx, v.Pair, handle)
	if err != nil {
		return fmt.Errorf("%w: order details for vault %d: %v", domain.ErrExternalFailure, v.ID, err)
	}
	cache := &domain.LimitOrderCache{
		OfferAmount:         details.OfferAmount,
		OriginalOfferAmount: details.OriginalOfferAmount,
		Filled:              details.FilledAmount,
	}
	if details.OfferAmount.IsZero() {
		return e.unwindLimitOrder(tx, v, handle, cache, sdkmath.ZeroInt())
	}
	return dispatch(tx, v, domain.Call{Kind: domain.OpRetractOrder, Handle: handle}, cache)
}

func (e *Engine) onRetractOrder(tx *txn, v domain.Vault, pending domain.PendingOperation, reply domain.Reply) error {
	if !reply.Succeeded() {
		return tx.event(v.ID, domain.EventData{
			Type:    domain.EventExecutionSkipped,
			Reason:  reply.Err.Reason,
			Message: "retract order: " + reply.Err.Message,
		})
	}
	if pending.LimitOrder == nil || reply.Amount == nil {
		return fmt.Errorf("%w: retract reply for vault %d lacks order figures", domain.ErrFatal, v.ID)
	}
	trigger, err := tx.st.GetTrigger(tx.ctx, v.ID)
	if err != nil {
		return fmt.Errorf("%w: retract reply for vault %d without trigger: %v", domain.ErrFatal, v.ID, err)
	}
	handle, err := trigger.Handle()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFatal, err)
	}
	return e.unwindLimitOrder(tx, v, handle, pending.LimitOrder, *reply.Amount)
}

// unwindLimitOrder splits a cancelled order's funds. The unswapped principal
// (balance + retracted - original offer) is refunded at once in the swap denom. The
// matched part of the offer stays in the balance until a second withdraw call releases
// its proceeds in the receive denom. With nothing matched the vault is finalized here.
func (e *Engine) unwindLimitOrder(tx *txn, v domain.Vault, handle domain.OrderHandle, cache *domain.LimitOrderCache, retracted sdkmath.Int) error {
	unswapped := domain.NewCoinFromInt(v.Balance.Denom, v.Balance.Amount.Add(retracted)).
		SaturatingSub(domain.NewCoinFromInt(v.Balance.Denom, cache.OriginalOfferAmount))
	if !unswapped.IsZero() {
		tx.send(domain.Transfer{To: v.Owner, Coin: unswapped})
	}
	balance, err := v.Balance.Sub(unswapped)
	if err != nil {
		return fmt.Errorf("%w: vault %d: %v", domain.ErrFatal, v.ID, err)
	}
	v.Balance = balance
	if v.Balance.IsZero() {
		return e.finalizeCancel(tx, v)
	}

	if err := e.saveVault(tx, v); err != nil {
		return err
	}
	matched := &domain.LimitOrderCache{
		OfferAmount:         cache.OfferAmount,
		OriginalOfferAmount: cache.OriginalOfferAmount,
		Filled:              v.Balance.Amount,
	}
	return dispatch(tx, v, domain.Call{Kind: domain.OpWithdrawRetracted, Handle: handle}, matched)
}

// onWithdrawRetracted books the matched part of a cancelled order like any execution
// (escrow, fees and destinations) and retires the vault. On failure the vault keeps the
// matched balance and its order, so cancelling again retries the withdrawal.
func (e *Engine) onWithdrawRetracted(tx *txn, v domain.Vault, pending domain.PendingOperation, reply domain.Reply) error {
	if !reply.Succeeded() {
		return tx.event(v.ID, domain.EventData{
			Type:    domain.EventExecutionSkipped,
			Reason:  reply.Err.Reason,
			Message: "withdraw retracted order: " + reply.Err.Message,
		})
	}
	if pending.LimitOrder == nil || reply.Amount == nil {
		return fmt.Errorf("%w: withdraw reply for vault %d lacks order figures", domain.ErrFatal, v.ID)
	}
	sent := domain.NewCoinFromInt(v.Balance.Denom, pending.LimitOrder.Filled)
	received := domain.NewCoinFromInt(v.ReceiveDenom(), *reply.Amount)
	if err := e.completeExecution(tx, &v, domain.TriggerLimitOrder, sent, received); err != nil {
		return err
	}
	return e.finalizeCancel(tx, v)
}

// onAutomation records the outcome of a best-effort post action. Funds were delivered
// before the call was made, so nothing is moved or rolled back here.
func (e *Engine) onAutomation(tx *txn, reply domain.Reply) error {
	if reply.Succeeded() {
		return tx.event(reply.VaultID, domain.EventData{Type: domain.EventAutomationSucceeded})
	}
	tx.onCommit(func() {
		slog.Warn("engine: automation failed", "vault_id", reply.VaultID, "correlation_id", reply.CorrelationID, "err", reply.Err)
	})
	return tx.event(reply.VaultID, domain.EventData{
		Type:    domain.EventAutomationFailed,
		Reason:  reply.Err.Reason,
		Message: reply.Err.Message,
	})
}
