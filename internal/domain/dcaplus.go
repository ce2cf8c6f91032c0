package domain

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

const (
	MinModelID = 30
	MaxModelID = 90
)

// PerformanceFeeRate is the share of outperformance charged on escrow release.
var PerformanceFeeRate = sdkmath.LegacyNewDecWithPrec(2, 1)

// DcaPlusConfig is the enhanced-mode block of a vault. The standard_* fields are a
// shadow ledger of what a plain fixed-size schedule would have done.
type DcaPlusConfig struct {
	EscrowLevel               sdkmath.LegacyDec `json:"escrow_level"`
	ModelID                   uint8             `json:"model_id"`
	TotalDeposit              Coin              `json:"total_deposit"`
	StandardDcaSwappedAmount  Coin              `json:"standard_dca_swapped_amount"`
	StandardDcaReceivedAmount Coin              `json:"standard_dca_received_amount"`
	EscrowedBalance           Coin              `json:"escrowed_balance"`
}

// NewDcaPlusConfig starts a shadow ledger for a fresh vault.
func NewDcaPlusConfig(escrowLevel sdkmath.LegacyDec, deposit Coin, swapAmount sdkmath.Int, receiveDenom string) DcaPlusConfig {
	return DcaPlusConfig{
		EscrowLevel:               escrowLevel,
		ModelID:                   ModelIDFor(deposit.Amount, swapAmount),
		TotalDeposit:              deposit,
		StandardDcaSwappedAmount:  ZeroCoin(deposit.Denom),
		StandardDcaReceivedAmount: ZeroCoin(receiveDenom),
		EscrowedBalance:           ZeroCoin(receiveDenom),
	}
}

// ModelIDFor picks the risk curve from the expected number of swaps, rounded to the
// nearest five and clamped to [30, 90].
func ModelIDFor(totalDeposit, swapAmount sdkmath.Int) uint8 {
	if swapAmount.IsNil() || !swapAmount.IsPositive() || totalDeposit.IsNil() {
		return MinModelID
	}
	swaps := totalDeposit.Quo(swapAmount)
	if swaps.GT(sdkmath.NewInt(MaxModelID)) {
		return MaxModelID
	}
	n := (swaps.Int64() + 2) / 5 * 5
	switch {
	case n < MinModelID:
		return MinModelID
	case n > MaxModelID:
		return MaxModelID
	}
	return uint8(n)
}

// StandardRemaining is the principal the shadow schedule has not swapped yet.
func (c DcaPlusConfig) StandardRemaining() Coin {
	return c.TotalDeposit.SaturatingSub(c.StandardDcaSwappedAmount)
}

// IsStandardFinished reports whether the shadow schedule has spent the whole deposit.
func (c DcaPlusConfig) IsStandardFinished() bool {
	return c.StandardRemaining().IsZero()
}

// RecordDeposit grows the principal both ledgers are measured against.
func (c *DcaPlusConfig) RecordDeposit(amount Coin) error {
	total, err := c.TotalDeposit.Add(amount)
	if err != nil {
		return err
	}
	c.TotalDeposit = total
	return nil
}

// RecordStandardSwap advances the shadow ledger by one fixed-size swap, priced at the
// rate the real vault obtained this cycle. The real swap's size does not matter.
func (c *DcaPlusConfig) RecordStandardSwap(swapAmount sdkmath.Int, sent, received Coin) {
	if sent.IsZero() {
		return
	}
	standard := c.StandardRemaining().Min(swapAmount)
	if standard.IsZero() {
		return
	}
	got := received.Amount.Mul(standard.Amount).Quo(sent.Amount)
	c.StandardDcaSwappedAmount.Amount = c.StandardDcaSwappedAmount.Amount.Add(standard.Amount)
	c.StandardDcaReceivedAmount.Amount = c.StandardDcaReceivedAmount.Amount.Add(got)
}

// Escrow withholds amount from the proceeds.
func (c *DcaPlusConfig) Escrow(amount sdkmath.Int) {
	c.EscrowedBalance.Amount = c.EscrowedBalance.Amount.Add(amount)
}

// Performance is the result of benchmarking a DCA+ vault against its shadow ledger.
type Performance struct {
	Fee    Coin              `json:"fee"`
	Factor sdkmath.LegacyDec `json:"factor"`
}

// ComputePerformance values both ledgers at price (swap denom per receive denom) and
// charges a share of the outperformance, capped at the escrowed balance. Underperformance
// is never charged.
func ComputePerformance(v Vault, price sdkmath.LegacyDec) Performance {
	c := v.DcaPlus
	zero := Performance{Fee: ZeroCoin(v.ReceiveDenom()), Factor: sdkmath.LegacyOneDec()}
	if c == nil || price.IsNil() || !price.IsPositive() {
		return zero
	}
	deposit := sdkmath.LegacyNewDecFromInt(c.TotalDeposit.Amount)

	realValue := deposit.
		Sub(sdkmath.LegacyNewDecFromInt(v.SwappedAmount.Amount)).
		Add(sdkmath.LegacyNewDecFromInt(v.ReceivedAmount.Amount).Mul(price))
	standardValue := deposit.
		Sub(sdkmath.LegacyNewDecFromInt(c.StandardDcaSwappedAmount.Amount)).
		Add(sdkmath.LegacyNewDecFromInt(c.StandardDcaReceivedAmount.Amount).Mul(price))

	perf := zero
	if standardValue.IsPositive() {
		perf.Factor = realValue.Quo(standardValue)
	}
	if standardValue.GTE(realValue) {
		return perf
	}
	fee := realValue.Sub(standardValue).Quo(price).Mul(PerformanceFeeRate).TruncateInt()
	perf.Fee = NewCoinFromInt(v.ReceiveDenom(), sdkmath.MinInt(fee, c.EscrowedBalance.Amount))
	return perf
}

// ExpectedCompletion projects when the slower of the real and shadow schedules will have
// spent its principal.
func ExpectedCompletion(v Vault, now time.Time) time.Time {
	if v.DcaPlus == nil || v.SwapAmount.IsNil() || !v.SwapAmount.IsPositive() {
		return now
	}
	remaining := sdkmath.MaxInt(v.Balance.Amount, v.DcaPlus.StandardRemaining().Amount)
	swaps := remaining.Add(v.SwapAmount).SubRaw(1).Quo(v.SwapAmount)
	return now.Add(time.Duration(swaps.Int64()) * v.TimeInterval.Duration())
}
