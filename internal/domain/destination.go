package domain

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// MaxDestinations caps the fan-out of a single vault.
const MaxDestinations = 10

// PostAction is what happens to a destination's share after it is transferred.
type PostAction string

const (
	ActionSend             PostAction = "send"
	ActionDelegate         PostAction = "delegate"
	ActionProvideLiquidity PostAction = "provide_liquidity"
)

// Destination receives a share of every execution's proceeds.
//
// For ActionDelegate, Address is the validator and the share is delegated on behalf
// of the vault owner. For ActionProvideLiquidity the share goes to Address, which then
// bonds it into Pool for Duration.
type Destination struct {
	Address    string            `json:"address"`
	Allocation sdkmath.LegacyDec `json:"allocation"`
	Action     PostAction        `json:"action"`
	Pool       string            `json:"pool,omitempty"`
	Duration   string            `json:"duration,omitempty"`
}

// ValidateDestinations enforces count, allocation range and the exact-sum rule.
func ValidateDestinations(dests []Destination) error {
	if len(dests) == 0 {
		return fmt.Errorf("%w: at least one destination is required", ErrInvalidInput)
	}
	if len(dests) > MaxDestinations {
		return fmt.Errorf("%w: no more than %d destinations can be provided", ErrInvalidInput, MaxDestinations)
	}
	total := sdkmath.LegacyZeroDec()
	for i, d := range dests {
		if d.Address == "" {
			return fmt.Errorf("%w: destination %d has no address", ErrInvalidInput, i)
		}
		if d.Allocation.IsNil() || !d.Allocation.IsPositive() || d.Allocation.GT(sdkmath.LegacyOneDec()) {
			return fmt.Errorf("%w: destination %d allocation must be in (0, 1]", ErrInvalidInput, i)
		}
		switch d.Action {
		case ActionSend, ActionDelegate:
		case ActionProvideLiquidity:
			if d.Pool == "" {
				return fmt.Errorf("%w: destination %d must name a pool", ErrInvalidInput, i)
			}
		default:
			return fmt.Errorf("%w: destination %d has unknown action %q", ErrInvalidInput, i, d.Action)
		}
		total = total.Add(d.Allocation)
	}
	if !total.Equal(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: destination allocations must add up to 1, got %s", ErrInvalidInput, total)
	}
	return nil
}

// DelegatedAllocation sums the allocations whose post action is a delegation.
func DelegatedAllocation(dests []Destination) sdkmath.LegacyDec {
	total := sdkmath.LegacyZeroDec()
	for _, d := range dests {
		if d.Action == ActionDelegate {
			total = total.Add(d.Allocation)
		}
	}
	return total
}

// Share is one slice of a split amount.
type Share struct {
	Index  int
	Amount sdkmath.Int
}

// SplitByAllocation divides total across weights with floor rounding. The rounding
// remainder is credited to the last weight, so the shares always sum to total.
func SplitByAllocation(total sdkmath.Int, weights []sdkmath.LegacyDec) []Share {
	if len(weights) == 0 || total.IsNil() || !total.IsPositive() {
		return nil
	}
	shares := make([]Share, len(weights))
	allocated := sdkmath.ZeroInt()
	for i, w := range weights {
		amount := ApplyRate(total, w)
		if i == len(weights)-1 {
			amount = total.Sub(allocated)
		}
		shares[i] = Share{Index: i, Amount: amount}
		allocated = allocated.Add(amount)
	}
	return shares
}
