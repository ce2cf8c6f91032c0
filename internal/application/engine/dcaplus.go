package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/dcavault/internal/domain"
	"github.com/alejandrodnm/dcavault/internal/metrics"
)

// escrowRetryDelay is how long a sweep waits before retrying a task it could not price.
const escrowRetryDelay = time.Hour

// queueEscrowDisbursement schedules the escrow release of a DCA+ vault that has stopped
// executing, due when the slower of the real and standard schedules would finish.
func (e *Engine) queueEscrowDisbursement(tx *txn, v domain.Vault) error {
	if v.DcaPlus == nil {
		return nil
	}
	due := domain.ExpectedCompletion(v, tx.now)
	task := domain.DisburseEscrowTask{VaultID: v.ID, Due: due}
	if err := tx.st.SaveDisburseEscrowTask(tx.ctx, task); err != nil {
		return fmt.Errorf("queue escrow disbursement %d: %w", v.ID, err)
	}
	return tx.event(v.ID, domain.EventData{Type: domain.EventEscrowDisbursementQueued, Due: &due})
}

// DisburseEscrow releases a DCA+ vault's escrow now, charging the performance fee. Admin only.
func (e *Engine) DisburseEscrow(ctx context.Context, sender string, vaultID uint64) (Response, error) {
	return e.invoke(ctx, "disburse_escrow", func(tx *txn) error {
		tx.vaultID = vaultID
		if err := e.requireAdmin(sender); err != nil {
			return err
		}
		v, err := tx.st.GetVault(tx.ctx, vaultID)
		if err != nil {
			return err
		}
		return e.disburseEscrow(tx, v)
	})
}

// ClaimEscrowedFunds lets the owner release the escrow of a vault that is no longer
// executing.
func (e *Engine) ClaimEscrowedFunds(ctx context.Context, sender string, vaultID uint64) (Response, error) {
	return e.invoke(ctx, "claim_escrowed_funds", func(tx *txn) error {
		tx.vaultID = vaultID
		v, err := tx.st.GetVault(tx.ctx, vaultID)
		if err != nil {
			return err
		}
		if v.Owner != sender {
			return fmt.Errorf("%w: only the owner can claim escrow of vault %d", domain.ErrUnauthorized, vaultID)
		}
		if v.Status != domain.VaultInactive && v.Status != domain.VaultCancelled {
			return fmt.Errorf("%w: vault %d must be inactive or cancelled to claim escrow", domain.ErrPreconditionNotMet, vaultID)
		}
		return e.disburseEscrow(tx, v)
	})
}

// SweepDisburseEscrowTasks disburses every task due by now, oldest first, up to limit.
// A task whose vault cannot be priced is pushed back by escrowRetryDelay and the sweep
// moves on; the response counts the tasks that were completed.
func (e *Engine) SweepDisburseEscrowTasks(ctx context.Context, sender string, limit int) (Response, error) {
	return e.invoke(ctx, "sweep_disburse_escrow_tasks", func(tx *txn) error {
		if err := e.requireAdmin(sender); err != nil {
			return err
		}
		tasks, err := tx.st.GetDueDisburseEscrowTasks(tx.ctx, tx.now, clampLimit(limit, e.cfg.DefaultPageLimit))
		if err != nil {
			return fmt.Errorf("engine.SweepDisburseEscrowTasks: %w", err)
		}
		for _, task := range tasks {
			v, err := tx.st.GetVault(tx.ctx, task.VaultID)
			if err != nil {
				return fmt.Errorf("engine.SweepDisburseEscrowTasks: %w", err)
			}
			err = e.disburseEscrow(tx, v)
			switch {
			case err == nil:
				tx.count++
			case errors.Is(err, domain.ErrExternalFailure):
				if err := e.deferEscrowDisbursement(tx, task, err); err != nil {
					return err
				}
			default:
				return fmt.Errorf("engine.SweepDisburseEscrowTasks: vault %d: %w", task.VaultID, err)
			}
		}
		return nil
	})
}

// deferEscrowDisbursement reschedules a task that could not be disbursed. disburseEscrow
// writes nothing before its price check, so the vault is untouched.
func (e *Engine) deferEscrowDisbursement(tx *txn, task domain.DisburseEscrowTask, cause error) error {
	due := tx.now.Add(escrowRetryDelay)
	if err := tx.st.SaveDisburseEscrowTask(tx.ctx, domain.DisburseEscrowTask{VaultID: task.VaultID, Due: due}); err != nil {
		return fmt.Errorf("defer escrow disbursement %d: %w", task.VaultID, err)
	}
	tx.onCommit(func() {
		slog.Warn("engine: escrow disbursement deferred", "vault_id", task.VaultID, "due", due, "err", cause)
	})
	return tx.event(task.VaultID, domain.EventData{
		Type:    domain.EventEscrowDisbursementDeferred,
		Message: cause.Error(),
		Due:     &due,
	})
}

// disburseEscrow pays the performance fee to the collectors and the rest of the escrow
// to the owner, then clears the escrow and its task.
func (e *Engine) disburseEscrow(tx *txn, v domain.Vault) error {
	if v.DcaPlus == nil {
		return fmt.Errorf("%w: vault %d is not a DCA+ vault", domain.ErrInvalidInput, v.ID)
	}
	escrowed := v.DcaPlus.EscrowedBalance
	if escrowed.IsZero() {
		if err := tx.st.DeleteDisburseEscrowTask(tx.ctx, v.ID); err != nil {
			return fmt.Errorf("disburse escrow %d: %w", v.ID, err)
		}
		return nil
	}

	price, err := e.prices.BeliefPrice(tx.ctx, v.Pair, v.SwapDenom())
	if err != nil {
		return fmt.Errorf("%w: belief price for vault %d: %v", domain.ErrExternalFailure, v.ID, err)
	}
	if err := tx.st.DeleteDisburseEscrowTask(tx.ctx, v.ID); err != nil {
		return fmt.Errorf("disburse escrow %d: %w", v.ID, err)
	}
	perf := domain.ComputePerformance(v, price)
	release := escrowed.SaturatingSub(perf.Fee)

	e.payFees(tx, feeKindPerf, perf.Fee)
	if !release.IsZero() {
		tx.send(domain.Transfer{To: v.Owner, Coin: release})
	}
	v.DcaPlus.EscrowedBalance = domain.ZeroCoin(escrowed.Denom)
	if err := e.saveVault(tx, v); err != nil {
		return err
	}
	tx.onCommit(func() {
		metrics.EscrowDisbursed(release)
		slog.Info("engine: escrow disbursed", "vault_id", v.ID, "released", release.String(), "performance_fee", perf.Fee.String())
	})
	return tx.event(v.ID, domain.EventData{
		Type:           domain.EventEscrowDisbursed,
		Amount:         &release,
		PerformanceFee: &perf.Fee,
	})
}

// GetDcaPlusPerformance benchmarks a DCA+ vault at the current belief price.
func (e *Engine) GetDcaPlusPerformance(ctx context.Context, vaultID uint64) (domain.Performance, error) {
	v, err := e.store.GetVault(ctx, vaultID)
	if err != nil {
		return domain.Performance{}, err
	}
	if v.DcaPlus == nil {
		return domain.Performance{}, fmt.Errorf("%w: vault %d is not a DCA+ vault", domain.ErrInvalidInput, vaultID)
	}
	price, err := e.prices.BeliefPrice(ctx, v.Pair, v.SwapDenom())
	if err != nil {
		return domain.Performance{}, fmt.Errorf("%w: belief price for vault %d: %v", domain.ErrExternalFailure, vaultID, err)
	}
	return domain.ComputePerformance(v, price), nil
}
