package engine

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/alejandrodnm/dcavault/internal/domain"
	"github.com/alejandrodnm/dcavault/internal/metrics"
)

// disburse splits an execution's proceeds: DCA+ escrow is withheld into the vault,
// fees go to the collectors and the net is fanned out across the destinations.
func (e *Engine) disburse(tx *txn, v *domain.Vault, received domain.Coin) (domain.Proceeds, error) {
	custom, err := tx.st.GetCustomSwapFees(tx.ctx)
	if err != nil {
		return domain.Proceeds{}, fmt.Errorf("disburse vault %d: %w", v.ID, err)
	}
	var escrowLevel sdkmath.LegacyDec
	if v.DcaPlus != nil {
		escrowLevel = v.DcaPlus.EscrowLevel
	}
	p := domain.SplitProceeds(
		received.Amount,
		escrowLevel,
		domain.SwapFeeRate(*v, e.cfg.DefaultSwapFee, custom),
		domain.AutomationFeeRate(*v, e.cfg.DelegationFee),
	)
	if v.DcaPlus != nil {
		v.DcaPlus.Escrow(p.Escrowed)
	}

	e.payFees(tx, feeKindSwap, domain.NewCoinFromInt(received.Denom, p.SwapFee))
	e.payFees(tx, feeKindAutomation, domain.NewCoinFromInt(received.Denom, p.AutomationFee))

	weights := make([]sdkmath.LegacyDec, len(v.Destinations))
	for i, d := range v.Destinations {
		weights[i] = d.Allocation
	}
	for _, share := range domain.SplitByAllocation(p.Net, weights) {
		if share.Amount.IsZero() {
			continue
		}
		coin := domain.NewCoinFromInt(received.Denom, share.Amount)
		e.deliver(tx, *v, v.Destinations[share.Index], coin)
	}
	return p, nil
}

// deliver transfers a destination's share and, for automated actions, follows up with a
// best-effort call. The transfer is queued first so the funds are delivered whatever the
// automation outcome. Delegations are made on behalf of the owner, who receives the funds.
func (e *Engine) deliver(tx *txn, v domain.Vault, d domain.Destination, coin domain.Coin) {
	switch d.Action {
	case domain.ActionDelegate:
		tx.send(domain.Transfer{To: v.Owner, Coin: coin})
		tx.send(automationCall(v, d, v.Owner, coin))
	case domain.ActionProvideLiquidity:
		tx.send(domain.Transfer{To: d.Address, Coin: coin})
		tx.send(automationCall(v, d, d.Address, coin))
	default:
		tx.send(domain.Transfer{To: d.Address, Coin: coin})
	}
}

// automationCall is fire-and-forget: it carries a correlation id for its reply event but
// never opens a pending record on the vault.
func automationCall(v domain.Vault, d domain.Destination, owner string, coin domain.Coin) domain.Call {
	return domain.Call{
		CorrelationID: newCorrelationID(),
		VaultID:       v.ID,
		Kind:          domain.OpAutomation,
		Pair:          v.Pair,
		Automation: &domain.AutomationRequest{
			Action:      d.Action,
			Owner:       owner,
			Destination: d.Address,
			Coin:        coin,
			Pool:        d.Pool,
			Duration:    d.Duration,
		},
	}
}

// payFees splits a fee across the collectors. The community pool collector is funded
// through its own message; zero shares are dropped.
func (e *Engine) payFees(tx *txn, kind string, fee domain.Coin) {
	if fee.IsZero() {
		return
	}
	weights := make([]sdkmath.LegacyDec, len(e.cfg.FeeCollectors))
	for i, c := range e.cfg.FeeCollectors {
		weights[i] = c.Allocation
	}
	for _, share := range domain.SplitByAllocation(fee.Amount, weights) {
		if share.Amount.IsZero() {
			continue
		}
		coin := domain.NewCoinFromInt(fee.Denom, share.Amount)
		collector := e.cfg.FeeCollectors[share.Index]
		if collector.Address == domain.CommunityPoolAddress {
			tx.send(domain.FundCommunityPool{Coin: coin})
		} else {
			tx.send(domain.Transfer{To: collector.Address, Coin: coin})
		}
	}
	tx.onCommit(func() { metrics.FeeCollected(kind, fee) })
}
