package domain

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// CommunityPoolAddress is the fee collector address that routes to the community pool
// instead of a plain transfer.
const CommunityPoolAddress = "community_pool"

// FeeCollector receives a share of every fee.
type FeeCollector struct {
	Address    string            `yaml:"address" json:"address"`
	Allocation sdkmath.LegacyDec `yaml:"-" json:"allocation"`
}

// ValidateFeeCollectors requires allocations in (0, 1] summing to 1.
func ValidateFeeCollectors(collectors []FeeCollector) error {
	if len(collectors) == 0 {
		return fmt.Errorf("%w: at least one fee collector is required", ErrInvalidInput)
	}
	total := sdkmath.LegacyZeroDec()
	for _, c := range collectors {
		if c.Address == "" || c.Allocation.IsNil() || !c.Allocation.IsPositive() {
			return fmt.Errorf("%w: invalid fee collector %q", ErrInvalidInput, c.Address)
		}
		total = total.Add(c.Allocation)
	}
	if !total.Equal(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: fee collector allocations must add up to 1, got %s", ErrInvalidInput, total)
	}
	return nil
}

// SwapFeeRate picks the lower custom rate of the two denoms, falling back to the
// default when neither denom has one. DCA+ vaults pay no swap fee.
func SwapFeeRate(v Vault, defaultRate sdkmath.LegacyDec, custom map[string]sdkmath.LegacyDec) sdkmath.LegacyDec {
	if v.DcaPlus != nil {
		return sdkmath.LegacyZeroDec()
	}
	swapFee, swapOK := custom[v.SwapDenom()]
	receiveFee, receiveOK := custom[v.ReceiveDenom()]
	switch {
	case swapOK && receiveOK:
		return sdkmath.LegacyMinDec(swapFee, receiveFee)
	case swapOK:
		return swapFee
	case receiveOK:
		return receiveFee
	default:
		return defaultRate
	}
}

// AutomationFeeRate scales the delegation fee by the share of proceeds being delegated.
func AutomationFeeRate(v Vault, delegationFee sdkmath.LegacyDec) sdkmath.LegacyDec {
	return delegationFee.Mul(DelegatedAllocation(v.Destinations))
}

// Proceeds is the breakdown of one execution's received amount.
type Proceeds struct {
	Received      sdkmath.Int
	Escrowed      sdkmath.Int
	SwapFee       sdkmath.Int
	AutomationFee sdkmath.Int
	Net           sdkmath.Int
}

// SplitProceeds withholds escrow, then charges the swap fee on what remains and the
// automation fee on the post-swap-fee amount. All products are floored and
// Escrowed + SwapFee + AutomationFee + Net == Received.
func SplitProceeds(received sdkmath.Int, escrowLevel, swapFeeRate, automationFeeRate sdkmath.LegacyDec) Proceeds {
	p := Proceeds{Received: received, Escrowed: sdkmath.ZeroInt()}
	if !escrowLevel.IsNil() {
		p.Escrowed = ApplyRate(received, escrowLevel)
	}
	disbursable := received.Sub(p.Escrowed)
	p.SwapFee = ApplyRate(disbursable, swapFeeRate)
	p.AutomationFee = ApplyRate(disbursable.Sub(p.SwapFee), automationFeeRate)
	p.Net = disbursable.Sub(p.SwapFee).Sub(p.AutomationFee)
	return p
}
