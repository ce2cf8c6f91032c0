package domain

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// PaperOrderStatus is the lifecycle of a simulated limit order.
type PaperOrderStatus string

const (
	PaperOrderOpen      PaperOrderStatus = "open"
	PaperOrderFilled    PaperOrderStatus = "filled"
	PaperOrderRetracted PaperOrderStatus = "retracted"
	PaperOrderWithdrawn PaperOrderStatus = "withdrawn"
)

// PaperOrder is a limit order resting on the simulated book. Price is in units of the
// offer denom per unit of the receive denom, like a belief price.
type PaperOrder struct {
	Handle        OrderHandle       `json:"handle"`
	PairAddress   string            `json:"pair_address"`
	OfferDenom    string            `json:"offer_denom"`
	ReceiveDenom  string            `json:"receive_denom"`
	Price         sdkmath.LegacyDec `json:"price"`
	OriginalOffer sdkmath.Int       `json:"original_offer"`
	Offer         sdkmath.Int       `json:"offer"`  // still resting
	Filled        sdkmath.Int       `json:"filled"` // matched, in the receive denom
	Status        PaperOrderStatus  `json:"status"`
	PlacedAt      time.Time         `json:"placed_at"`
}

// Details is the venue view of the order.
func (o PaperOrder) Details() OrderDetails {
	return OrderDetails{OfferAmount: o.Offer, OriginalOfferAmount: o.OriginalOffer, FilledAmount: o.Filled}
}

// PaperTransferKind distinguishes plain sends from community pool funding.
type PaperTransferKind string

const (
	PaperTransferSend          PaperTransferKind = "send"
	PaperTransferCommunityPool PaperTransferKind = "community_pool"
)

// PaperTransfer is one coin movement out of engine custody on the simulated bank.
type PaperTransfer struct {
	ID        int64             `json:"id"`
	Recipient string            `json:"recipient"`
	Coin      Coin              `json:"coin"`
	Kind      PaperTransferKind `json:"kind"`
	At        time.Time         `json:"at"`
}
