package domain

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// OperationKind names an external call the engine can dispatch.
type OperationKind string

const (
	OpSwap              OperationKind = "swap"
	OpSubmitOrder       OperationKind = "submit_order"
	OpWithdrawOrder     OperationKind = "withdraw_order"
	OpRetractOrder      OperationKind = "retract_order"
	OpWithdrawRetracted OperationKind = "withdraw_retracted"
	OpAutomation        OperationKind = "automation"
)

// LimitOrderCache carries the order figures observed before a withdraw.
type LimitOrderCache struct {
	OfferAmount         sdkmath.Int `json:"offer_amount"`
	OriginalOfferAmount sdkmath.Int `json:"original_offer_amount"`
	Filled              sdkmath.Int `json:"filled"`
}

// PendingOperation is the awaiting-reply record of a vault's in-flight saga.
// At most one exists per vault.
type PendingOperation struct {
	VaultID       uint64           `json:"vault_id"`
	Kind          OperationKind    `json:"kind"`
	CorrelationID string           `json:"correlation_id"`
	Owner         string           `json:"owner"`
	LimitOrder    *LimitOrderCache `json:"limit_order,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Message is an effect queued by an invocation. Messages are only executed after the
// invocation's state changes commit, in order.
type Message interface {
	isMessage()
}

// Transfer moves coins out of engine custody.
type Transfer struct {
	To   string
	Coin Coin
}

// FundCommunityPool sends coins to the community pool sink.
type FundCommunityPool struct {
	Coin Coin
}

// Call is an external asynchronous call whose outcome comes back as a Reply.
type Call struct {
	CorrelationID string
	VaultID       uint64
	Kind          OperationKind
	Pair          Pair
	Handle        OrderHandle
	Swap          *SwapRequest
	LimitOrder    *LimitOrderRequest
	Automation    *AutomationRequest
}

// Envelope is a committed message waiting in the outbox until the host settles it.
// Reply is set once a call was answered but the answer not yet handled, so a retry
// redelivers it instead of calling again. ID zero means the message was never queued.
type Envelope struct {
	ID        uint64
	VaultID   uint64
	Message   Message
	Reply     *Reply
	Attempts  int
	CreatedAt time.Time
}

func (Transfer) isMessage()          {}
func (FundCommunityPool) isMessage() {}
func (Call) isMessage()              {}

// SwapRequest asks the venue to swap Offer along Pair. BeliefPrice and MaxSpread
// bound slippage when set; MinimumReceive is the floor they imply.
type SwapRequest struct {
	Pair           Pair               `json:"pair"`
	Offer          Coin               `json:"offer"`
	BeliefPrice    *sdkmath.LegacyDec `json:"belief_price,omitempty"`
	MaxSpread      *sdkmath.LegacyDec `json:"max_spread,omitempty"`
	MinimumReceive *Coin              `json:"minimum_receive,omitempty"`
}

// LimitOrderRequest places Offer on the book at Price.
type LimitOrderRequest struct {
	Pair  Pair              `json:"pair"`
	Offer Coin              `json:"offer"`
	Price sdkmath.LegacyDec `json:"price"`
}

// AutomationRequest is a best-effort post action on already-delivered funds.
type AutomationRequest struct {
	Action      PostAction `json:"action"`
	Owner       string     `json:"owner"`
	Destination string     `json:"destination"`
	Coin        Coin       `json:"coin"`
	Pool        string     `json:"pool,omitempty"`
	Duration    string     `json:"duration,omitempty"`
}

// SwapResult is what the venue reports a swap actually did.
type SwapResult struct {
	Sent     Coin `json:"sent"`
	Received Coin `json:"received"`
}

// Reply is the outcome of a Call, delivered exactly once.
type Reply struct {
	CorrelationID string
	VaultID       uint64
	Kind          OperationKind
	Swap          *SwapResult
	OrderHandle   *OrderHandle
	Amount        *sdkmath.Int // retracted or withdrawn amount
	Err           *VenueError
}

// Succeeded reports whether the call completed without a venue error.
func (r Reply) Succeeded() bool { return r.Err == nil }

// CallStatus tracks a dispatched call in the host journal.
type CallStatus string

const (
	CallDispatched CallStatus = "dispatched"
	CallSucceeded  CallStatus = "succeeded"
	CallFailed     CallStatus = "failed"
)

// CallRecord is the host's journal entry for one external call.
type CallRecord struct {
	CorrelationID string        `json:"correlation_id"`
	VaultID       uint64        `json:"vault_id"`
	Kind          OperationKind `json:"kind"`
	Status        CallStatus    `json:"status"`
	Error         string        `json:"error,omitempty"`
	DispatchedAt  time.Time     `json:"dispatched_at"`
	RepliedAt     *time.Time    `json:"replied_at,omitempty"`
}
