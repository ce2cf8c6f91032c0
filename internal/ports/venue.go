package ports

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

// PriceQuoter answers synchronous price and order-book queries.
type PriceQuoter interface {
	// BeliefPrice is the current price of the receive denom in units of swapDenom.
	BeliefPrice(ctx context.Context, pair domain.Pair, swapDenom string) (sdkmath.LegacyDec, error)
	OrderDetails(ctx context.Context, pair domain.Pair, handle domain.OrderHandle) (domain.OrderDetails, error)
}

// SwapVenue executes the external calls behind the engine's sagas. Failures are
// reported as *domain.VenueError.
type SwapVenue interface {
	Swap(ctx context.Context, req domain.SwapRequest) (domain.SwapResult, error)
	SubmitLimitOrder(ctx context.Context, req domain.LimitOrderRequest) (domain.OrderHandle, error)
	// RetractOrder returns the unfilled offer handed back by the venue.
	RetractOrder(ctx context.Context, pair domain.Pair, handle domain.OrderHandle) (sdkmath.Int, error)
	// WithdrawOrder returns the filled amount released by the venue.
	WithdrawOrder(ctx context.Context, pair domain.Pair, handle domain.OrderHandle) (sdkmath.Int, error)
}

// Bank moves coins out of engine custody.
type Bank interface {
	Send(ctx context.Context, to string, coin domain.Coin) error
	FundCommunityPool(ctx context.Context, coin domain.Coin) error
}

// Automation runs best-effort post actions (delegation, liquidity provision).
type Automation interface {
	Automate(ctx context.Context, req domain.AutomationRequest) error
}
