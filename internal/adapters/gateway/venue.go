package gateway

import (
	"context"
	"fmt"
	"net/url"

	sdkmath "cosmossdk.io/math"

	"github.com/alejandrodnm/dcavault/internal/domain"
	"github.com/alejandrodnm/dcavault/internal/ports"
)

var (
	_ ports.PriceQuoter = (*Client)(nil)
	_ ports.SwapVenue   = (*Client)(nil)
	_ ports.Bank        = (*Client)(nil)
	_ ports.Automation  = (*Client)(nil)
)

type priceResponse struct {
	Price sdkmath.LegacyDec `json:"price"`
}

type handleResponse struct {
	Handle domain.OrderHandle `json:"handle"`
}

type amountResponse struct {
	Amount sdkmath.Int `json:"amount"`
}

type sendRequest struct {
	To   string      `json:"to"`
	Coin domain.Coin `json:"coin"`
}

type fundRequest struct {
	Coin domain.Coin `json:"coin"`
}

type orderRequest struct {
	Pair domain.Pair `json:"pair"`
}

// BeliefPrice fetches the price of the receive denom in units of swapDenom.
func (c *Client) BeliefPrice(ctx context.Context, pair domain.Pair, swapDenom string) (sdkmath.LegacyDec, error) {
	var out priceResponse
	path := fmt.Sprintf("/v1/pairs/%s/price?swap_denom=%s", url.PathEscape(pair.Address), url.QueryEscape(swapDenom))
	if err := c.get(ctx, path, &out); err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("gateway.BeliefPrice: %w", err)
	}
	if out.Price.IsNil() || !out.Price.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("gateway.BeliefPrice: %w: non-positive price for %s", domain.ErrExternalFailure, pair.Address)
	}
	return out.Price, nil
}

// OrderDetails fetches a resting order.
func (c *Client) OrderDetails(ctx context.Context, pair domain.Pair, handle domain.OrderHandle) (domain.OrderDetails, error) {
	var out domain.OrderDetails
	path := fmt.Sprintf("/v1/pairs/%s/orders/%s", url.PathEscape(pair.Address), url.PathEscape(string(handle)))
	if err := c.get(ctx, path, &out); err != nil {
		return domain.OrderDetails{}, fmt.Errorf("gateway.OrderDetails: %w", err)
	}
	return out, nil
}

// Swap submits a market swap.
func (c *Client) Swap(ctx context.Context, req domain.SwapRequest) (domain.SwapResult, error) {
	var out domain.SwapResult
	if err := c.post(ctx, "/v1/swap", req, &out); err != nil {
		return domain.SwapResult{}, err
	}
	return out, nil
}

// SubmitLimitOrder places an order and returns its handle.
func (c *Client) SubmitLimitOrder(ctx context.Context, req domain.LimitOrderRequest) (domain.OrderHandle, error) {
	var out handleResponse
	if err := c.post(ctx, "/v1/orders", req, &out); err != nil {
		return "", err
	}
	if out.Handle == "" {
		return "", &domain.VenueError{Reason: domain.SkipUnknownFailure, Message: "gateway returned no order handle"}
	}
	return out.Handle, nil
}

// RetractOrder pulls the unfilled part of an order.
func (c *Client) RetractOrder(ctx context.Context, pair domain.Pair, handle domain.OrderHandle) (sdkmath.Int, error) {
	return c.orderAction(ctx, pair, handle, "retract")
}

// WithdrawOrder claims the filled part of an order.
func (c *Client) WithdrawOrder(ctx context.Context, pair domain.Pair, handle domain.OrderHandle) (sdkmath.Int, error) {
	return c.orderAction(ctx, pair, handle, "withdraw")
}

func (c *Client) orderAction(ctx context.Context, pair domain.Pair, handle domain.OrderHandle, action string) (sdkmath.Int, error) {
	var out amountResponse
	path := fmt.Sprintf("/v1/orders/%s/%s", url.PathEscape(string(handle)), action)
	if err := c.post(ctx, path, orderRequest{Pair: pair}, &out); err != nil {
		return sdkmath.Int{}, err
	}
	if out.Amount.IsNil() {
		return sdkmath.ZeroInt(), nil
	}
	return out.Amount, nil
}

// Send transfers coin to an address.
func (c *Client) Send(ctx context.Context, to string, coin domain.Coin) error {
	if err := c.post(ctx, "/v1/bank/send", sendRequest{To: to, Coin: coin}, nil); err != nil {
		return fmt.Errorf("gateway.Send: %w", err)
	}
	return nil
}

// FundCommunityPool transfers coin to the community pool.
func (c *Client) FundCommunityPool(ctx context.Context, coin domain.Coin) error {
	if err := c.post(ctx, "/v1/bank/community-pool", fundRequest{Coin: coin}, nil); err != nil {
		return fmt.Errorf("gateway.FundCommunityPool: %w", err)
	}
	return nil
}

// Automate runs a delegation or liquidity post action.
func (c *Client) Automate(ctx context.Context, req domain.AutomationRequest) error {
	return c.post(ctx, "/v1/automation", req, nil)
}
