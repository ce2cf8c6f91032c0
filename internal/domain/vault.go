package domain

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

// VaultStatus is the lifecycle state of a vault.
type VaultStatus string

const (
	VaultScheduled VaultStatus = "scheduled"
	VaultActive    VaultStatus = "active"
	VaultInactive  VaultStatus = "inactive"
	VaultCancelled VaultStatus = "cancelled"
)

// ParseVaultStatus validates a status string.
func ParseVaultStatus(s string) (VaultStatus, error) {
	switch st := VaultStatus(s); st {
	case VaultScheduled, VaultActive, VaultInactive, VaultCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown vault status %q", ErrInvalidInput, s)
}

// PositionType says which side of the pair the vault is spending.
type PositionType string

const (
	// PositionEnter spends the quote denom to acquire the base denom.
	PositionEnter PositionType = "enter"
	// PositionExit spends the base denom to acquire the quote denom.
	PositionExit PositionType = "exit"
)

// Pair identifies a venue market and the route used to reach it.
type Pair struct {
	Address    string   `json:"address"`
	BaseDenom  string   `json:"base_denom"`
	QuoteDenom string   `json:"quote_denom"`
	Route      []string `json:"route,omitempty"`
}

// Denoms returns both sides of the pair.
func (p Pair) Denoms() [2]string {
	return [2]string{p.BaseDenom, p.QuoteDenom}
}

// OtherDenom returns the side of the pair that is not denom.
func (p Pair) OtherDenom(denom string) string {
	if denom == p.BaseDenom {
		return p.QuoteDenom
	}
	return p.BaseDenom
}

// Validate rejects malformed pairs and duplicate route hops.
func (p Pair) Validate() error {
	if p.Address == "" {
		return fmt.Errorf("%w: pair address is required", ErrInvalidInput)
	}
	if p.BaseDenom == "" || p.QuoteDenom == "" || p.BaseDenom == p.QuoteDenom {
		return fmt.Errorf("%w: pair must have two distinct denoms", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(p.Route))
	for _, hop := range p.Route {
		if hop == "" {
			return fmt.Errorf("%w: empty route entry", ErrInvalidInput)
		}
		if seen[hop] {
			return fmt.Errorf("%w: duplicate route entry %q", ErrInvalidInput, hop)
		}
		seen[hop] = true
	}
	return nil
}

// Vault is a user's recurring-conversion position and its custody balance.
type Vault struct {
	ID                uint64             `json:"id"`
	Owner             string             `json:"owner"`
	Label             string             `json:"label,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	StartedAt         *time.Time         `json:"started_at,omitempty"`
	Status            VaultStatus        `json:"status"`
	Balance           Coin               `json:"balance"`
	Pair              Pair               `json:"pair"`
	SwapAmount        sdkmath.Int        `json:"swap_amount"`
	PositionType      PositionType       `json:"position_type"`
	SlippageTolerance *sdkmath.LegacyDec `json:"slippage_tolerance,omitempty"`
	TimeInterval      TimeInterval       `json:"time_interval"`
	SwappedAmount     Coin               `json:"swapped_amount"`
	ReceivedAmount    Coin               `json:"received_amount"`
	Destinations      []Destination      `json:"destinations"`
	DcaPlus           *DcaPlusConfig     `json:"dca_plus_config,omitempty"`
}

// SwapDenom is the denom the vault spends.
func (v Vault) SwapDenom() string { return v.Balance.Denom }

// ReceiveDenom is the denom the vault acquires.
func (v Vault) ReceiveDenom() string { return v.Pair.OtherDenom(v.Balance.Denom) }

// IsCancelled reports the terminal state.
func (v Vault) IsCancelled() bool { return v.Status == VaultCancelled }

// HasLowFunds reports whether the balance cannot cover a full swap.
func (v Vault) HasLowFunds() bool { return v.Balance.Amount.LT(v.SwapAmount) }

// NextSwapAmount is min(balance, swap_amount) before any adjustment.
func (v Vault) NextSwapAmount() Coin {
	return v.Balance.Min(v.SwapAmount)
}

// DeriveStatus picks the creation status for a vault.
func DeriveStatus(balance Coin, scheduled bool) VaultStatus {
	switch {
	case balance.IsZero():
		return VaultInactive
	case scheduled:
		return VaultScheduled
	default:
		return VaultActive
	}
}

// DerivePositionType maps the deposit denom onto the side of the pair being spent.
func DerivePositionType(pair Pair, swapDenom string) (PositionType, error) {
	switch swapDenom {
	case pair.QuoteDenom:
		return PositionEnter, nil
	case pair.BaseDenom:
		return PositionExit, nil
	}
	return "", fmt.Errorf("%w: denom %s is not part of pair %s", ErrInvalidInput, swapDenom, pair.Address)
}

// RecordSwap applies a completed swap to the vault's balance and lifetime totals.
// The venue's reported figures are authoritative.
func (v *Vault) RecordSwap(sent, received Coin) error {
	balance, err := v.Balance.Sub(sent)
	if err != nil {
		return fmt.Errorf("deduct balance: %w", err)
	}
	swapped, err := v.SwappedAmount.Add(sent)
	if err != nil {
		return fmt.Errorf("add swapped: %w", err)
	}
	got, err := v.ReceivedAmount.Add(received)
	if err != nil {
		return fmt.Errorf("add received: %w", err)
	}
	v.Balance, v.SwappedAmount, v.ReceivedAmount = balance, swapped, got
	return nil
}
