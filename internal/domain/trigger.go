package domain

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

// TriggerKind distinguishes time and limit-order activation.
type TriggerKind string

const (
	TriggerTime       TriggerKind = "time"
	TriggerLimitOrder TriggerKind = "limit_order"
)

// OrderHandle is the venue's identifier for a resting limit order.
type OrderHandle string

// Trigger is the activation condition of a vault, keyed 1:1 by vault id.
type Trigger struct {
	VaultID     uint64             `json:"vault_id"`
	Kind        TriggerKind        `json:"kind"`
	TargetTime  time.Time          `json:"target_time,omitempty"`
	TargetPrice *sdkmath.LegacyDec `json:"target_price,omitempty"`
	OrderHandle *OrderHandle       `json:"order_handle,omitempty"`
}

// NewTimeTrigger builds a trigger firing at target, truncated to the second.
func NewTimeTrigger(vaultID uint64, target time.Time) Trigger {
	return Trigger{VaultID: vaultID, Kind: TriggerTime, TargetTime: target.UTC().Truncate(time.Second)}
}

// NewLimitOrderTrigger builds a trigger that waits for a resting order to fill.
// The order handle is filled in once the venue confirms placement.
func NewLimitOrderTrigger(vaultID uint64, price sdkmath.LegacyDec) Trigger {
	return Trigger{VaultID: vaultID, Kind: TriggerLimitOrder, TargetPrice: &price}
}

// IsDue reports whether a time trigger may fire at now.
func (t Trigger) IsDue(now time.Time) bool {
	return t.Kind == TriggerTime && !now.Before(t.TargetTime)
}

// Handle returns the order handle, failing when the order has not been placed yet.
func (t Trigger) Handle() (OrderHandle, error) {
	if t.Kind != TriggerLimitOrder {
		return "", fmt.Errorf("%w: trigger for vault %d is not a limit order", ErrFatal, t.VaultID)
	}
	if t.OrderHandle == nil {
		return "", fmt.Errorf("%w: limit order for vault %d has not been placed yet", ErrPreconditionNotMet, t.VaultID)
	}
	return *t.OrderHandle, nil
}

// OrderDetails is the venue's view of a resting limit order.
type OrderDetails struct {
	OfferAmount         sdkmath.Int `json:"offer_amount"`
	OriginalOfferAmount sdkmath.Int `json:"original_offer_amount"`
	FilledAmount        sdkmath.Int `json:"filled_amount"`
}

// DisburseEscrowTask reminds the engine to release a DCA+ vault's escrow.
type DisburseEscrowTask struct {
	VaultID uint64    `json:"vault_id"`
	Due     time.Time `json:"due"`
}

// SwapAdjustment is a risk-weighted multiplier for DCA+ swap sizes.
type SwapAdjustment struct {
	PositionType PositionType      `json:"position_type"`
	ModelID      uint8             `json:"model_id"`
	Value        sdkmath.LegacyDec `json:"value"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ActiveAt returns the multiplier if it was refreshed within ttl of now, else one.
func (a SwapAdjustment) ActiveAt(now time.Time, ttl time.Duration) sdkmath.LegacyDec {
	if a.Value.IsNil() || now.Sub(a.UpdatedAt) >= ttl {
		return sdkmath.LegacyOneDec()
	}
	return a.Value
}
