// Package paper simulates the swap venue, bank and automation services against a
// local SQLite ledger, so the engine can run end to end without touching a chain.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/alejandrodnm/dcavault/internal/domain"
	"github.com/alejandrodnm/dcavault/internal/ports"
)

// Venue is a simulated order book and AMM. Prices are quoted per pair as units of the
// quote denom per unit of the base denom; swaps fill at that price minus Spread.
type Venue struct {
	store ports.PaperStorage
	clock ports.Clock

	mu       sync.Mutex
	prices   map[string]sdkmath.LegacyDec
	spread   sdkmath.LegacyDec
	failures map[domain.OperationKind]*domain.VenueError
}

var (
	_ ports.PriceQuoter = (*Venue)(nil)
	_ ports.SwapVenue   = (*Venue)(nil)
	_ ports.Bank        = (*Venue)(nil)
	_ ports.Automation  = (*Venue)(nil)
)

// NewVenue creates a simulated venue over store. spread is the share of every swap lost
// to simulated slippage.
func NewVenue(store ports.PaperStorage, clock ports.Clock, spread sdkmath.LegacyDec) *Venue {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if spread.IsNil() {
		spread = sdkmath.LegacyZeroDec()
	}
	return &Venue{
		store:    store,
		clock:    clock,
		prices:   make(map[string]sdkmath.LegacyDec),
		spread:   spread,
		failures: make(map[domain.OperationKind]*domain.VenueError),
	}
}

// SetPrice quotes a pair in quote per base.
func (v *Venue) SetPrice(pairAddress string, quotePerBase sdkmath.LegacyDec) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prices[pairAddress] = quotePerBase
}

// FailNext makes the next call of kind fail with err.
func (v *Venue) FailNext(kind domain.OperationKind, err *domain.VenueError) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures[kind] = err
}

func (v *Venue) takeFailure(kind domain.OperationKind) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err, ok := v.failures[kind]; ok {
		delete(v.failures, kind)
		return err
	}
	return nil
}

// BeliefPrice returns the price of the receive denom in units of swapDenom.
func (v *Venue) BeliefPrice(_ context.Context, pair domain.Pair, swapDenom string) (sdkmath.LegacyDec, error) {
	v.mu.Lock()
	quote, ok := v.prices[pair.Address]
	v.mu.Unlock()
	if !ok || !quote.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: no price for pair %s", domain.ErrNotFound, pair.Address)
	}
	switch swapDenom {
	case pair.QuoteDenom:
		return quote, nil
	case pair.BaseDenom:
		return sdkmath.LegacyOneDec().Quo(quote), nil
	}
	return sdkmath.LegacyDec{}, fmt.Errorf("%w: denom %s is not part of pair %s", domain.ErrInvalidInput, swapDenom, pair.Address)
}

// Swap fills the offer at the current price less the spread.
func (v *Venue) Swap(ctx context.Context, req domain.SwapRequest) (domain.SwapResult, error) {
	if err := v.takeFailure(domain.OpSwap); err != nil {
		return domain.SwapResult{}, err
	}
	if req.Offer.IsZero() {
		return domain.SwapResult{}, &domain.VenueError{Reason: domain.SkipUnknownFailure, Message: "cannot swap zero"}
	}
	price, err := v.BeliefPrice(ctx, req.Pair, req.Offer.Denom)
	if err != nil {
		return domain.SwapResult{}, &domain.VenueError{Reason: domain.SkipUnknownFailure, Message: err.Error()}
	}
	receiveDenom := req.Pair.OtherDenom(req.Offer.Denom)
	out := sdkmath.LegacyNewDecFromInt(req.Offer.Amount).
		Quo(price).
		Mul(sdkmath.LegacyOneDec().Sub(v.spread)).
		TruncateInt()
	if req.MinimumReceive != nil && out.LT(req.MinimumReceive.Amount) {
		return domain.SwapResult{}, &domain.VenueError{
			Reason:  domain.SkipSlippageToleranceExceeded,
			Message: fmt.Sprintf("expected at least %s, would receive %s", req.MinimumReceive, out),
		}
	}
	return domain.SwapResult{Sent: req.Offer, Received: domain.NewCoinFromInt(receiveDenom, out)}, nil
}

// SubmitLimitOrder rests the offer on the book. Orders already crossed by the current
// price fill immediately.
func (v *Venue) SubmitLimitOrder(ctx context.Context, req domain.LimitOrderRequest) (domain.OrderHandle, error) {
	if err := v.takeFailure(domain.OpSubmitOrder); err != nil {
		return "", err
	}
	if req.Offer.IsZero() || !req.Price.IsPositive() {
		return "", &domain.VenueError{Reason: domain.SkipUnknownFailure, Message: "invalid limit order"}
	}
	order := domain.PaperOrder{
		Handle:        domain.OrderHandle(uuid.NewString()),
		PairAddress:   req.Pair.Address,
		OfferDenom:    req.Offer.Denom,
		ReceiveDenom:  req.Pair.OtherDenom(req.Offer.Denom),
		Price:         req.Price,
		OriginalOffer: req.Offer.Amount,
		Offer:         req.Offer.Amount,
		Filled:        sdkmath.ZeroInt(),
		Status:        domain.PaperOrderOpen,
		PlacedAt:      v.clock.Now(),
	}
	if err := v.store.SavePaperOrder(ctx, order); err != nil {
		return "", err
	}
	if _, err := v.match(ctx, req.Pair, order); err != nil {
		return "", err
	}
	slog.Debug("paper: limit order placed", "handle", order.Handle, "offer", req.Offer.String(), "price", req.Price)
	return order.Handle, nil
}

// OrderDetails matches the order against the current price before reporting it.
func (v *Venue) OrderDetails(ctx context.Context, pair domain.Pair, handle domain.OrderHandle) (domain.OrderDetails, error) {
	order, err := v.store.GetPaperOrder(ctx, handle)
	if err != nil {
		return domain.OrderDetails{}, err
	}
	order, err = v.match(ctx, pair, order)
	if err != nil {
		return domain.OrderDetails{}, err
	}
	return order.Details(), nil
}

// Fill matches share of the order's original offer at the order price, regardless of
// the quoted price.
func (v *Venue) Fill(ctx context.Context, handle domain.OrderHandle, share sdkmath.LegacyDec) (domain.PaperOrder, error) {
	order, err := v.store.GetPaperOrder(ctx, handle)
	if err != nil {
		return domain.PaperOrder{}, err
	}
	if order.Status != domain.PaperOrderOpen {
		return order, fmt.Errorf("%w: order %s is %s", domain.ErrPreconditionNotMet, handle, order.Status)
	}
	amount := sdkmath.MinInt(domain.ApplyRate(order.OriginalOffer, share), order.Offer)
	fillOrder(&order, amount)
	return order, v.store.SavePaperOrder(ctx, order)
}

// RetractOrder pulls the unfilled offer off the book and returns it.
func (v *Venue) RetractOrder(ctx context.Context, _ domain.Pair, handle domain.OrderHandle) (sdkmath.Int, error) {
	if err := v.takeFailure(domain.OpRetractOrder); err != nil {
		return sdkmath.Int{}, err
	}
	order, err := v.store.GetPaperOrder(ctx, handle)
	if err != nil {
		return sdkmath.Int{}, &domain.VenueError{Reason: domain.SkipUnknownFailure, Message: err.Error()}
	}
	if order.Status != domain.PaperOrderOpen {
		return sdkmath.Int{}, &domain.VenueError{Reason: domain.SkipUnknownFailure, Message: fmt.Sprintf("order %s is %s", handle, order.Status)}
	}
	retracted := order.Offer
	order.Offer = sdkmath.ZeroInt()
	order.Status = domain.PaperOrderRetracted
	if err := v.store.SavePaperOrder(ctx, order); err != nil {
		return sdkmath.Int{}, err
	}
	return retracted, nil
}

// WithdrawOrder releases the matched proceeds of an order once.
func (v *Venue) WithdrawOrder(ctx context.Context, _ domain.Pair, handle domain.OrderHandle) (sdkmath.Int, error) {
	if err := v.takeFailure(domain.OpWithdrawOrder); err != nil {
		return sdkmath.Int{}, err
	}
	order, err := v.store.GetPaperOrder(ctx, handle)
	if err != nil {
		return sdkmath.Int{}, &domain.VenueError{Reason: domain.SkipUnknownFailure, Message: err.Error()}
	}
	if order.Status == domain.PaperOrderWithdrawn {
		return sdkmath.Int{}, &domain.VenueError{Reason: domain.SkipUnknownFailure, Message: fmt.Sprintf("order %s already withdrawn", handle)}
	}
	filled := order.Filled
	order.Status = domain.PaperOrderWithdrawn
	if err := v.store.SavePaperOrder(ctx, order); err != nil {
		return sdkmath.Int{}, err
	}
	return filled, nil
}

// Send books a transfer on the paper ledger.
func (v *Venue) Send(ctx context.Context, to string, coin domain.Coin) error {
	_, err := v.store.SavePaperTransfer(ctx, domain.PaperTransfer{
		Recipient: to, Coin: coin, Kind: domain.PaperTransferSend, At: v.clock.Now(),
	})
	return err
}

// FundCommunityPool books a transfer to the community pool.
func (v *Venue) FundCommunityPool(ctx context.Context, coin domain.Coin) error {
	_, err := v.store.SavePaperTransfer(ctx, domain.PaperTransfer{
		Recipient: domain.CommunityPoolAddress, Coin: coin, Kind: domain.PaperTransferCommunityPool, At: v.clock.Now(),
	})
	return err
}

// Automate pretends to delegate or bond; it only fails when told to.
func (v *Venue) Automate(_ context.Context, req domain.AutomationRequest) error {
	if err := v.takeFailure(domain.OpAutomation); err != nil {
		return err
	}
	slog.Debug("paper: automation", "action", req.Action, "owner", req.Owner, "destination", req.Destination, "coin", req.Coin.String())
	return nil
}

// match fully fills an open order when the quoted price has reached the order price.
func (v *Venue) match(ctx context.Context, pair domain.Pair, order domain.PaperOrder) (domain.PaperOrder, error) {
	if order.Status != domain.PaperOrderOpen || order.Offer.IsZero() {
		return order, nil
	}
	price, err := v.BeliefPrice(ctx, pair, order.OfferDenom)
	if err != nil || price.GT(order.Price) {
		return order, nil
	}
	fillOrder(&order, order.Offer)
	if err := v.store.SavePaperOrder(ctx, order); err != nil {
		return order, err
	}
	return order, nil
}

func fillOrder(o *domain.PaperOrder, amount sdkmath.Int) {
	got := sdkmath.LegacyNewDecFromInt(amount).Quo(o.Price).TruncateInt()
	o.Offer = o.Offer.Sub(amount)
	o.Filled = o.Filled.Add(got)
	if o.Offer.IsZero() {
		o.Status = domain.PaperOrderFilled
	}
}
