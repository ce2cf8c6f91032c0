package domain

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// EventType names an audit event.
type EventType string

const (
	EventVaultCreated               EventType = "vault_created"
	EventFundsDeposited             EventType = "funds_deposited"
	EventVaultUpdated               EventType = "vault_updated"
	EventVaultExecutionTriggered    EventType = "vault_execution_triggered"
	EventVaultExecutionCompleted    EventType = "vault_execution_completed"
	EventExecutionSkipped           EventType = "execution_skipped"
	EventLimitOrderPlaced           EventType = "limit_order_placed"
	EventVaultCancelled             EventType = "vault_cancelled"
	EventEscrowDisbursementQueued   EventType = "escrow_disbursement_queued"
	EventEscrowDisbursed            EventType = "escrow_disbursed"
	EventEscrowDisbursementDeferred EventType = "escrow_disbursement_deferred"
	EventAutomationSucceeded        EventType = "automation_succeeded"
	EventAutomationFailed           EventType = "automation_failed"
)

// EventData is the payload of an event. Only the fields relevant to Type are set.
type EventData struct {
	Type           EventType    `json:"type"`
	Amount         *Coin        `json:"amount,omitempty"`
	Sent           *Coin        `json:"sent,omitempty"`
	Received       *Coin        `json:"received,omitempty"`
	Fee            *Coin        `json:"fee,omitempty"`
	Escrowed       *Coin        `json:"escrowed,omitempty"`
	PerformanceFee *Coin        `json:"performance_fee,omitempty"`
	Reason         SkipReason   `json:"reason,omitempty"`
	Message        string       `json:"message,omitempty"`
	OrderHandle    *OrderHandle `json:"order_handle,omitempty"`
	Destination    string       `json:"destination,omitempty"`
	Due            *time.Time   `json:"due,omitempty"`
}

// Event is an append-only audit record. The engine never reads events back.
type Event struct {
	ID         uint64    `json:"id"`
	ResourceID uint64    `json:"resource_id"`
	Timestamp  time.Time `json:"timestamp"`
	Data       EventData `json:"data"`
}

// NewEvent stamps data for a vault at now.
func NewEvent(vaultID uint64, now time.Time, data EventData) Event {
	return Event{ResourceID: vaultID, Timestamp: now.UTC(), Data: data}
}

// CoinPtr is a convenience for optional coin fields.
func CoinPtr(denom string, amount sdkmath.Int) *Coin {
	c := NewCoinFromInt(denom, amount)
	return &c
}
