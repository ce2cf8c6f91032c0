package domain

import (
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// Coin is an amount of a single denom. Amounts are never negative.
type Coin struct {
	Denom  string      `json:"denom"`
	Amount sdkmath.Int `json:"amount"`
}

// NewCoin builds a coin from an int64 amount.
func NewCoin(denom string, amount int64) Coin {
	return Coin{Denom: denom, Amount: sdkmath.NewInt(amount)}
}

// NewCoinFromInt builds a coin from an arbitrary precision amount.
func NewCoinFromInt(denom string, amount sdkmath.Int) Coin {
	if amount.IsNil() {
		amount = sdkmath.ZeroInt()
	}
	return Coin{Denom: denom, Amount: amount}
}

// ParseCoin reads a coin written as amount followed by denom, e.g. "1500uatom".
func ParseCoin(s string) (Coin, error) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if i <= 0 || i == len(s) || !isLetter(s[i]) {
		return Coin{}, fmt.Errorf("%w: invalid coin %q", ErrInvalidInput, s)
	}
	amount, ok := sdkmath.NewIntFromString(s[:i])
	if !ok {
		return Coin{}, fmt.Errorf("%w: invalid coin amount %q", ErrInvalidInput, s[:i])
	}
	return Coin{Denom: s[i:], Amount: amount}, nil
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// ZeroCoin returns an empty coin of the given denom.
func ZeroCoin(denom string) Coin {
	return Coin{Denom: denom, Amount: sdkmath.ZeroInt()}
}

// IsZero reports whether the coin carries no value. A nil amount counts as zero.
func (c Coin) IsZero() bool {
	return c.Amount.IsNil() || c.Amount.IsZero()
}

// Add sums two coins of the same denom.
func (c Coin) Add(other Coin) (Coin, error) {
	if c.Denom != other.Denom {
		return Coin{}, fmt.Errorf("%w: cannot add %s to %s", ErrInvalidInput, other.Denom, c.Denom)
	}
	return Coin{Denom: c.Denom, Amount: c.amount().Add(other.amount())}, nil
}

// Sub subtracts other from c and fails if the result would be negative.
func (c Coin) Sub(other Coin) (Coin, error) {
	if c.Denom != other.Denom {
		return Coin{}, fmt.Errorf("%w: cannot subtract %s from %s", ErrInvalidInput, other.Denom, c.Denom)
	}
	if c.amount().LT(other.amount()) {
		return Coin{}, fmt.Errorf("%w: %s is less than %s", ErrPreconditionNotMet, c, other)
	}
	return Coin{Denom: c.Denom, Amount: c.amount().Sub(other.amount())}, nil
}

// SaturatingSub subtracts other from c, flooring the result at zero.
func (c Coin) SaturatingSub(other Coin) Coin {
	if c.amount().LTE(other.amount()) {
		return ZeroCoin(c.Denom)
	}
	return Coin{Denom: c.Denom, Amount: c.amount().Sub(other.amount())}
}

// Min returns the smaller of the two amounts, keeping c's denom.
func (c Coin) Min(amount sdkmath.Int) Coin {
	return Coin{Denom: c.Denom, Amount: sdkmath.MinInt(c.amount(), amount)}
}

// MulRate applies rate to the coin with floor rounding.
func (c Coin) MulRate(rate sdkmath.LegacyDec) Coin {
	return Coin{Denom: c.Denom, Amount: ApplyRate(c.amount(), rate)}
}

func (c Coin) String() string {
	return c.amount().String() + c.Denom
}

func (c Coin) amount() sdkmath.Int {
	if c.Amount.IsNil() {
		return sdkmath.ZeroInt()
	}
	return c.Amount
}

// ApplyRate multiplies amount by a fixed-point rate and floors the result.
func ApplyRate(amount sdkmath.Int, rate sdkmath.LegacyDec) sdkmath.Int {
	if amount.IsNil() || rate.IsNil() || amount.IsZero() || !rate.IsPositive() {
		return sdkmath.ZeroInt()
	}
	return rate.MulInt(amount).TruncateInt()
}

// ValidRate reports whether rate lies in [0, 1].
func ValidRate(rate sdkmath.LegacyDec) bool {
	return !rate.IsNil() && !rate.IsNegative() && rate.LTE(sdkmath.LegacyOneDec())
}
