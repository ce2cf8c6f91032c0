package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

// CreateVaultRequest carries everything a user chooses when opening a vault.
type CreateVaultRequest struct {
	Owner             string // defaults to the sender
	Label             string
	Deposit           domain.Coin
	Pair              domain.Pair
	SwapAmount        sdkmath.Int
	SlippageTolerance *sdkmath.LegacyDec
	TimeInterval      domain.TimeInterval
	Destinations      []domain.Destination // defaults to sending everything to the owner
	TargetStartTime   *time.Time
	TargetPrice       *sdkmath.LegacyDec
	DcaPlus           bool
}

func (r CreateVaultRequest) validate(now time.Time) error {
	if len(r.Label) > maxLabelLength {
		return fmt.Errorf("%w: label cannot be longer than %d characters", domain.ErrInvalidInput, maxLabelLength)
	}
	if err := r.Pair.Validate(); err != nil {
		return err
	}
	if r.SwapAmount.IsNil() || !r.SwapAmount.IsPositive() {
		return fmt.Errorf("%w: swap amount must be greater than zero", domain.ErrInvalidInput)
	}
	if r.Deposit.Amount.IsNil() || r.Deposit.Amount.IsNegative() {
		return fmt.Errorf("%w: deposit amount cannot be negative", domain.ErrInvalidInput)
	}
	if r.SlippageTolerance != nil && !domain.ValidRate(*r.SlippageTolerance) {
		return fmt.Errorf("%w: slippage tolerance must be in [0, 1]", domain.ErrInvalidInput)
	}
	if err := r.TimeInterval.Validate(); err != nil {
		return err
	}
	if r.TargetStartTime != nil && r.TargetPrice != nil {
		return fmt.Errorf("%w: cannot provide both a target start time and a target price", domain.ErrInvalidInput)
	}
	if r.TargetStartTime != nil && !r.TargetStartTime.After(now) {
		return fmt.Errorf("%w: target start time must be in the future", domain.ErrInvalidInput)
	}
	if r.TargetPrice != nil && !r.TargetPrice.IsPositive() {
		return fmt.Errorf("%w: target price must be greater than zero", domain.ErrInvalidInput)
	}
	return domain.ValidateDestinations(r.Destinations)
}

// CreateVault opens a vault funded with the attached deposit and schedules its first
// execution. With a target price the first execution is a resting limit order, placed
// through a submit-order saga.
func (e *Engine) CreateVault(ctx context.Context, sender string, req CreateVaultRequest) (Response, error) {
	return e.invoke(ctx, "create_vault", func(tx *txn) error {
		if err := e.requireActive(); err != nil {
			return err
		}
		if req.Owner == "" {
			req.Owner = sender
		}
		if len(req.Destinations) == 0 {
			req.Destinations = []domain.Destination{{
				Address:    req.Owner,
				Allocation: sdkmath.LegacyOneDec(),
				Action:     domain.ActionSend,
			}}
		}
		if err := req.validate(tx.now); err != nil {
			return err
		}
		position, err := domain.DerivePositionType(req.Pair, req.Deposit.Denom)
		if err != nil {
			return err
		}
		receiveDenom := req.Pair.OtherDenom(req.Deposit.Denom)

		scheduled := req.TargetStartTime != nil || req.TargetPrice != nil
		v := domain.Vault{
			Owner:             req.Owner,
			Label:             req.Label,
			CreatedAt:         tx.now,
			Status:            domain.DeriveStatus(req.Deposit, scheduled),
			Balance:           req.Deposit,
			Pair:              req.Pair,
			SwapAmount:        req.SwapAmount,
			PositionType:      position,
			SlippageTolerance: req.SlippageTolerance,
			TimeInterval:      req.TimeInterval,
			SwappedAmount:     domain.ZeroCoin(req.Deposit.Denom),
			ReceivedAmount:    domain.ZeroCoin(receiveDenom),
			Destinations:      req.Destinations,
		}
		if req.DcaPlus {
			cfg := domain.NewDcaPlusConfig(e.cfg.DcaPlusEscrowLevel, req.Deposit, req.SwapAmount, receiveDenom)
			v.DcaPlus = &cfg
		}

		v, err = tx.st.SaveVault(tx.ctx, v)
		if err != nil {
			return fmt.Errorf("engine.CreateVault: %w", err)
		}
		tx.vaultID = v.ID

		if err := tx.event(v.ID, domain.EventData{Type: domain.EventVaultCreated}); err != nil {
			return err
		}
		if !req.Deposit.IsZero() {
			if err := tx.event(v.ID, domain.EventData{Type: domain.EventFundsDeposited, Amount: &req.Deposit}); err != nil {
				return err
			}
		}

		switch {
		case v.Balance.IsZero():
			// Inactive until the first deposit.
		case req.TargetPrice != nil:
			if err := tx.st.SaveTrigger(tx.ctx, domain.NewLimitOrderTrigger(v.ID, *req.TargetPrice)); err != nil {
				return fmt.Errorf("engine.CreateVault: %w", err)
			}
			call := domain.Call{
				Kind: domain.OpSubmitOrder,
				LimitOrder: &domain.LimitOrderRequest{
					Pair:  v.Pair,
					Offer: v.NextSwapAmount(),
					Price: *req.TargetPrice,
				},
			}
			if err := dispatch(tx, v, call, nil); err != nil {
				return fmt.Errorf("engine.CreateVault: %w", err)
			}
		case req.TargetStartTime != nil:
			if err := tx.st.SaveTrigger(tx.ctx, domain.NewTimeTrigger(v.ID, *req.TargetStartTime)); err != nil {
				return fmt.Errorf("engine.CreateVault: %w", err)
			}
		default:
			if err := tx.st.SaveTrigger(tx.ctx, domain.NewTimeTrigger(v.ID, tx.now)); err != nil {
				return fmt.Errorf("engine.CreateVault: %w", err)
			}
		}

		tx.onCommit(func() {
			slog.Info("engine: vault created", "vault_id", v.ID, "owner", v.Owner, "status", v.Status, "balance", v.Balance.String())
		})
		return nil
	})
}

// Deposit tops up a vault. An inactive vault is reactivated and, if it has no trigger,
// scheduled to execute immediately.
func (e *Engine) Deposit(ctx context.Context, sender string, vaultID uint64, coin domain.Coin) (Response, error) {
	return e.invoke(ctx, "deposit", func(tx *txn) error {
		tx.vaultID = vaultID
		if err := e.requireActive(); err != nil {
			return err
		}
		if coin.IsZero() {
			return fmt.Errorf("%w: deposit must be greater than zero", domain.ErrInvalidInput)
		}

		var reactivated bool
		v, err := tx.st.UpdateVault(tx.ctx, vaultID, func(v domain.Vault) (domain.Vault, error) {
			if v.Owner != sender {
				return v, fmt.Errorf("%w: only the owner can deposit into vault %d", domain.ErrUnauthorized, vaultID)
			}
			if v.IsCancelled() {
				return v, domain.ErrVaultCancelled
			}
			balance, err := v.Balance.Add(coin)
			if err != nil {
				return v, fmt.Errorf("%w: vault %d only accepts %s", domain.ErrInvalidInput, vaultID, v.Balance.Denom)
			}
			v.Balance = balance
			if v.DcaPlus != nil {
				if err := v.DcaPlus.RecordDeposit(coin); err != nil {
					return v, err
				}
				v.DcaPlus.ModelID = domain.ModelIDFor(v.DcaPlus.TotalDeposit.Amount, v.SwapAmount)
			}
			if v.Status == domain.VaultInactive {
				v.Status = domain.VaultActive
				reactivated = true
			}
			return v, nil
		})
		if err != nil {
			return err
		}

		if reactivated {
			if _, err := tx.st.GetTrigger(tx.ctx, vaultID); domain.IsNotFound(err) {
				if err := tx.st.SaveTrigger(tx.ctx, domain.NewTimeTrigger(vaultID, tx.now)); err != nil {
					return fmt.Errorf("engine.Deposit: %w", err)
				}
			} else if err != nil {
				return fmt.Errorf("engine.Deposit: %w", err)
			}
			if v.DcaPlus != nil {
				if err := tx.st.DeleteDisburseEscrowTask(tx.ctx, vaultID); err != nil {
					return fmt.Errorf("engine.Deposit: %w", err)
				}
			}
		}
		return tx.event(vaultID, domain.EventData{Type: domain.EventFundsDeposited, Amount: &coin})
	})
}

// UpdateVault lets the owner relabel a vault.
func (e *Engine) UpdateVault(ctx context.Context, sender string, vaultID uint64, label string) (Response, error) {
	return e.invoke(ctx, "update_vault", func(tx *txn) error {
		tx.vaultID = vaultID
		if len(label) > maxLabelLength {
			return fmt.Errorf("%w: label cannot be longer than %d characters", domain.ErrInvalidInput, maxLabelLength)
		}
		_, err := tx.st.UpdateVault(tx.ctx, vaultID, func(v domain.Vault) (domain.Vault, error) {
			if v.Owner != sender {
				return v, fmt.Errorf("%w: only the owner can update vault %d", domain.ErrUnauthorized, vaultID)
			}
			v.Label = label
			return v, nil
		})
		if err != nil {
			return err
		}
		return tx.event(vaultID, domain.EventData{Type: domain.EventVaultUpdated, Message: label})
	})
}

// CancelVault refunds the remaining balance and retires the vault. A vault resting in
// the order book is unwound through a retract saga instead, and only finalized once
// its continuation runs.
func (e *Engine) CancelVault(ctx context.Context, sender string, vaultID uint64) (Response, error) {
	return e.invoke(ctx, "cancel_vault", func(tx *txn) error {
		tx.vaultID = vaultID
		v, err := tx.st.GetVault(tx.ctx, vaultID)
		if err != nil {
			return err
		}
		if sender != v.Owner && sender != e.cfg.Admin {
			return fmt.Errorf("%w: only the owner or admin can cancel vault %d", domain.ErrUnauthorized, vaultID)
		}
		if v.IsCancelled() {
			return domain.ErrVaultCancelled
		}
		if err := requireIdle(tx, vaultID); err != nil {
			return err
		}

		trigger, err := tx.st.GetTrigger(tx.ctx, vaultID)
		switch {
		case domain.IsNotFound(err):
		case err != nil:
			return fmt.Errorf("engine.CancelVault: %w", err)
		case trigger.Kind == domain.TriggerLimitOrder && trigger.OrderHandle != nil:
			return e.startRetract(tx, v, *trigger.OrderHandle)
		}

		return e.finalizeCancel(tx, v)
	})
}

// finalizeCancel refunds whatever balance is left, zeroes the vault, removes its trigger
// and, for DCA+ vaults, queues the escrow disbursement.
func (e *Engine) finalizeCancel(tx *txn, v domain.Vault) error {
	refunded := v.Balance
	if !refunded.IsZero() {
		tx.send(domain.Transfer{To: v.Owner, Coin: refunded})
	}
	v.Balance = domain.ZeroCoin(v.Balance.Denom)
	v.Status = domain.VaultCancelled
	if err := e.saveVault(tx, v); err != nil {
		return err
	}
	if err := tx.st.DeleteTrigger(tx.ctx, v.ID); err != nil {
		return fmt.Errorf("cancel vault %d: %w", v.ID, err)
	}
	if err := tx.event(v.ID, domain.EventData{Type: domain.EventVaultCancelled, Amount: &refunded}); err != nil {
		return err
	}
	if err := e.queueEscrowDisbursement(tx, v); err != nil {
		return err
	}
	tx.onCommit(func() {
		slog.Info("engine: vault cancelled", "vault_id", v.ID, "refunded", refunded.String())
	})
	return nil
}
