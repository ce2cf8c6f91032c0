package engine_test

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/dcavault/internal/application/engine"
	"github.com/alejandrodnm/dcavault/internal/domain"
	"github.com/alejandrodnm/dcavault/internal/testutil"
)

// newLimitVault rests a 10uusd order at 1 uusd per uosmo while the pair trades at 2, so
// nothing fills until the test says so.
func newLimitVault(t *testing.T, h *testutil.Harness) (uint64, domain.OrderHandle) {
	t.Helper()
	h.Venue.SetPrice(OsmoUSD.Address, sdkmath.LegacyNewDec(2))

	price := sdkmath.LegacyOneDec()
	id := create(t, h, engine.CreateVaultRequest{
		Deposit:     domain.NewCoin("uusd", 100),
		Pair:        OsmoUSD,
		SwapAmount:  sdkmath.NewInt(10),
		TargetPrice: &price,
	})

	trigger, err := h.Engine.GetTrigger(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, domain.TriggerLimitOrder, trigger.Kind)
	require.NotNil(t, trigger.OrderHandle, "submit reply stores the handle")
	return id, *trigger.OrderHandle
}

func TestLimitOrder_PlacedOnCreate(t *testing.T) {
	h := newHarness(t)
	id, _ := newLimitVault(t, h)

	v := h.Vault(t, id)
	assert.Equal(t, domain.VaultScheduled, v.Status)
	intEq(t, 100, v.Balance.Amount, "the offer stays in the balance until it fills")
	assert.Contains(t, h.EventTypes(t, id), domain.EventLimitOrderPlaced)

	_, err := h.Host.ExecuteTrigger(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrOrderNotFullyFilled)
}

func TestLimitOrder_FilledSwitchesToTimeSchedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, handle := newLimitVault(t, h)

	_, err := h.Venue.Fill(ctx, handle, sdkmath.LegacyOneDec())
	require.NoError(t, err)

	_, err = h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)

	v := h.Vault(t, id)
	assert.Equal(t, domain.VaultActive, v.Status)
	require.NotNil(t, v.StartedAt)
	intEq(t, 90, v.Balance.Amount)
	intEq(t, 10, v.SwappedAmount.Amount)
	intEq(t, 10, v.ReceivedAmount.Amount)
	intEq(t, 10, h.Received(t, testutil.Owner, "uosmo"))

	trigger, err := h.Engine.GetTrigger(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TriggerTime, trigger.Kind)
	assert.True(t, trigger.TargetTime.After(h.Clock.Now()))

	limits, err := h.Engine.GetLimitOrderTriggers(ctx, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, limits)
}

func TestLimitOrder_WithdrawFailureIsRetried(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, handle := newLimitVault(t, h)

	_, err := h.Venue.Fill(ctx, handle, sdkmath.LegacyOneDec())
	require.NoError(t, err)
	h.Venue.FailNext(domain.OpWithdrawOrder, &domain.VenueError{Reason: domain.SkipUnknownFailure, Message: "node timeout"})

	_, err = h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)
	intEq(t, 100, h.Vault(t, id).Balance.Amount)

	trigger, err := h.Engine.GetTrigger(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TriggerLimitOrder, trigger.Kind, "still waiting on the filled order")

	_, err = h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)
	intEq(t, 90, h.Vault(t, id).Balance.Amount)
}

func TestLimitOrder_SubmitFailureRefunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.Venue.FailNext(domain.OpSubmitOrder, &domain.VenueError{Reason: domain.SkipUnknownFailure, Message: "pair halted"})
	price := sdkmath.LegacyOneDec()
	report, err := h.Host.CreateVault(ctx, testutil.Owner, engine.CreateVaultRequest{
		Deposit:      domain.NewCoin("uusd", 100),
		Pair:         OsmoUSD,
		SwapAmount:   sdkmath.NewInt(10),
		TimeInterval: domain.TimeInterval{Kind: domain.IntervalDaily},
		TargetPrice:  &price,
	})
	require.NoError(t, err)

	v := h.Vault(t, report.VaultID)
	assert.Equal(t, domain.VaultCancelled, v.Status)
	assert.True(t, v.Balance.IsZero())
	intEq(t, 100, h.Received(t, testutil.Owner, "uusd"))

	_, err = h.Engine.GetTrigger(ctx, report.VaultID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLimitOrder_CancelPartiallyFilled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, handle := newLimitVault(t, h)

	// Half of the 10uusd offer matches at 1: 5 retractable, 5uosmo filled.
	order, err := h.Venue.Fill(ctx, handle, sdkmath.LegacyNewDecWithPrec(5, 1))
	require.NoError(t, err)
	intEq(t, 5, order.Offer)
	intEq(t, 5, order.Filled)

	report, err := h.Host.CancelVault(ctx, testutil.Owner, id)
	require.NoError(t, err)

	kinds := make([]domain.OperationKind, 0, len(report.Replies))
	for _, r := range report.Replies {
		assert.True(t, r.Succeeded())
		kinds = append(kinds, r.Kind)
	}
	assert.Equal(t, []domain.OperationKind{domain.OpRetractOrder, domain.OpWithdrawRetracted}, kinds)

	// Unswapped principal first, in the swap denom; then the matched proceeds.
	require.Len(t, report.Transfers, 2)
	assert.Equal(t, testutil.Owner, report.Transfers[0].To)
	assert.Equal(t, domain.NewCoin("uusd", 95).String(), report.Transfers[0].Coin.String())
	assert.Equal(t, domain.NewCoin("uosmo", 5).String(), report.Transfers[1].Coin.String())
	intEq(t, 95, h.Received(t, testutil.Owner, "uusd"))
	intEq(t, 5, h.Received(t, testutil.Owner, "uosmo"))

	v := h.Vault(t, id)
	assert.Equal(t, domain.VaultCancelled, v.Status)
	assert.True(t, v.Balance.IsZero())
	intEq(t, 5, v.SwappedAmount.Amount)
	intEq(t, 5, v.ReceivedAmount.Amount)

	_, err = h.Engine.GetTrigger(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	types := h.EventTypes(t, id)
	assert.Equal(t, domain.EventVaultCancelled, types[len(types)-1])
}

func TestLimitOrder_CancelUnfilled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, _ := newLimitVault(t, h)

	report, err := h.Host.CancelVault(ctx, testutil.Owner, id)
	require.NoError(t, err)

	require.Len(t, report.Replies, 1, "nothing matched, so no second withdraw")
	assert.Equal(t, domain.OpRetractOrder, report.Replies[0].Kind)
	intEq(t, 100, h.Received(t, testutil.Owner, "uusd"))
	intEq(t, 0, h.Received(t, testutil.Owner, "uosmo"))

	v := h.Vault(t, id)
	assert.Equal(t, domain.VaultCancelled, v.Status)
	assert.True(t, v.SwappedAmount.IsZero())
}

func TestLimitOrder_CancelFullyFilledBeforeExecution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, handle := newLimitVault(t, h)

	_, err := h.Venue.Fill(ctx, handle, sdkmath.LegacyOneDec())
	require.NoError(t, err)

	report, err := h.Host.CancelVault(ctx, testutil.Owner, id)
	require.NoError(t, err)

	require.Len(t, report.Replies, 1, "no retract call with an empty offer")
	assert.Equal(t, domain.OpWithdrawRetracted, report.Replies[0].Kind)
	intEq(t, 90, h.Received(t, testutil.Owner, "uusd"))
	intEq(t, 10, h.Received(t, testutil.Owner, "uosmo"))
	assert.Equal(t, domain.VaultCancelled, h.Vault(t, id).Status)
}

func TestLimitOrder_CancelChargesFeesOnMatchedProceeds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.Venue.SetPrice(OsmoUSD.Address, sdkmath.LegacyNewDec(2))

	price := sdkmath.LegacyOneDec()
	id := create(t, h, engine.CreateVaultRequest{
		Deposit:     domain.NewCoin("uusd", 10000),
		Pair:        OsmoUSD,
		SwapAmount:  sdkmath.NewInt(1000),
		TargetPrice: &price,
	})
	trigger, err := h.Engine.GetTrigger(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, trigger.OrderHandle)
	_, err = h.Venue.Fill(ctx, *trigger.OrderHandle, sdkmath.LegacyOneDec())
	require.NoError(t, err)

	_, err = h.Host.CancelVault(ctx, testutil.Owner, id)
	require.NoError(t, err)

	// 1000uosmo matched: 1% to the collector like any execution, the rest to the owner.
	intEq(t, 9000, h.Received(t, testutil.Owner, "uusd"))
	intEq(t, 10, h.Received(t, testutil.Collector, "uosmo"))
	intEq(t, 990, h.Received(t, testutil.Owner, "uosmo"))

	v := h.Vault(t, id)
	assert.Equal(t, domain.VaultCancelled, v.Status)
	intEq(t, 1000, v.SwappedAmount.Amount)
	intEq(t, 1000, v.ReceivedAmount.Amount)

	types := h.EventTypes(t, id)
	require.GreaterOrEqual(t, len(types), 2)
	assert.Equal(t, domain.EventVaultExecutionCompleted, types[len(types)-2])
	assert.Equal(t, domain.EventVaultCancelled, types[len(types)-1])
}

func TestLimitOrder_RetractFailureKeepsOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, _ := newLimitVault(t, h)

	h.Venue.FailNext(domain.OpRetractOrder, &domain.VenueError{Reason: domain.SkipUnknownFailure, Message: "busy"})
	_, err := h.Host.CancelVault(ctx, testutil.Owner, id)
	require.NoError(t, err)

	v := h.Vault(t, id)
	assert.Equal(t, domain.VaultScheduled, v.Status)
	intEq(t, 100, v.Balance.Amount)

	// A second cancel goes through.
	_, err = h.Host.CancelVault(ctx, testutil.Owner, id)
	require.NoError(t, err)
	assert.Equal(t, domain.VaultCancelled, h.Vault(t, id).Status)
	intEq(t, 100, h.Received(t, testutil.Owner, "uusd"))
}
