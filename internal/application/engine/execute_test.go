package engine_test

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/dcavault/internal/application/engine"
	"github.com/alejandrodnm/dcavault/internal/domain"
	"github.com/alejandrodnm/dcavault/internal/testutil"
)

// OsmoUSD trades one to one unless a test says otherwise.
var OsmoUSD = domain.Pair{Address: "pair-osmo-usd", BaseDenom: "uosmo", QuoteDenom: "uusd", Route: []string{"pool-2"}}

func newHarness(t *testing.T) *testutil.Harness {
	t.Helper()
	h := testutil.NewHarness(t, nil)
	h.Venue.SetPrice(OsmoUSD.Address, sdkmath.LegacyOneDec())
	return h
}

func create(t *testing.T, h *testutil.Harness, req engine.CreateVaultRequest) uint64 {
	t.Helper()
	if req.TimeInterval.Kind == "" {
		req.TimeInterval = domain.TimeInterval{Kind: domain.IntervalDaily}
	}
	report, err := h.Host.CreateVault(context.Background(), testutil.Owner, req)
	require.NoError(t, err)
	require.NotZero(t, report.VaultID)
	return report.VaultID
}

func intEq(t *testing.T, want int64, got sdkmath.Int, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, sdkmath.NewInt(want).String(), got.String(), msgAndArgs...)
}

func sumTransfers(transfers []domain.Transfer, denom string) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, tr := range transfers {
		if tr.Coin.Denom == denom {
			total = total.Add(tr.Coin.Amount)
		}
	}
	return total
}

func TestExecuteTrigger_SwapsOneInterval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := create(t, h, engine.CreateVaultRequest{
		Deposit:    domain.NewCoin("uusd", 100),
		Pair:       OsmoUSD,
		SwapAmount: sdkmath.NewInt(10),
	})
	before, err := h.Engine.GetTrigger(ctx, id)
	require.NoError(t, err)

	report, err := h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)
	require.Len(t, report.Replies, 1)
	assert.True(t, report.Replies[0].Succeeded())

	v := h.Vault(t, id)
	intEq(t, 90, v.Balance.Amount)
	intEq(t, 10, v.SwappedAmount.Amount)
	intEq(t, 10, v.ReceivedAmount.Amount)
	assert.Equal(t, "uosmo", v.ReceivedAmount.Denom)
	assert.Equal(t, domain.VaultActive, v.Status)

	after, err := h.Engine.GetTrigger(ctx, id)
	require.NoError(t, err)
	assert.True(t, after.TargetTime.Equal(before.TargetTime.Add(24*time.Hour)), "next target %s", after.TargetTime)

	// 1% of 10 floors to zero, so the owner receives everything.
	intEq(t, 10, h.Received(t, testutil.Owner, "uosmo"))
	assert.Equal(t, []domain.EventType{
		domain.EventVaultCreated,
		domain.EventFundsDeposited,
		domain.EventVaultExecutionTriggered,
		domain.EventVaultExecutionCompleted,
	}, h.EventTypes(t, id))
}

func TestExecuteTrigger_SlippageFailureSkipsAndAdvances(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tolerance := sdkmath.LegacyNewDecWithPrec(1, 2)
	id := create(t, h, engine.CreateVaultRequest{
		Deposit:           domain.NewCoin("uusd", 100),
		Pair:              OsmoUSD,
		SwapAmount:        sdkmath.NewInt(10),
		SlippageTolerance: &tolerance,
	})
	h.Venue.FailNext(domain.OpSwap, &domain.VenueError{
		Reason:  domain.SkipSlippageToleranceExceeded,
		Message: "max spread assertion",
	})

	report, err := h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err, "venue failures are recovered in the continuation")
	require.Len(t, report.Replies, 1)
	assert.False(t, report.Replies[0].Succeeded())
	assert.Empty(t, report.Transfers)

	v := h.Vault(t, id)
	intEq(t, 100, v.Balance.Amount)
	assert.True(t, v.SwappedAmount.IsZero())

	events := h.Events(t, id)
	last := events[len(events)-1].Data
	assert.Equal(t, domain.EventExecutionSkipped, last.Type)
	assert.Equal(t, domain.SkipSlippageToleranceExceeded, last.Reason)

	trigger, err := h.Engine.GetTrigger(ctx, id)
	require.NoError(t, err)
	assert.True(t, trigger.TargetTime.Equal(testutil.Epoch.Add(24*time.Hour)))

	// The saga is closed: the next cycle runs normally.
	h.Clock.Advance(24 * time.Hour)
	_, err = h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)
	intEq(t, 90, h.Vault(t, id).Balance.Amount)
}

func TestExecuteTrigger_NotDue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	start := testutil.Epoch.Add(time.Hour)
	id := create(t, h, engine.CreateVaultRequest{
		Deposit:         domain.NewCoin("uusd", 100),
		Pair:            OsmoUSD,
		SwapAmount:      sdkmath.NewInt(10),
		TargetStartTime: &start,
	})
	assert.Equal(t, domain.VaultScheduled, h.Vault(t, id).Status)
	eventsBefore := len(h.Events(t, id))

	_, err := h.Host.ExecuteTrigger(ctx, id)
	require.ErrorIs(t, err, domain.ErrTriggerNotDue)
	assert.ErrorIs(t, err, domain.ErrPreconditionNotMet)
	assert.Len(t, h.Events(t, id), eventsBefore, "a rejected invocation leaves no trace")

	h.Clock.Set(start)
	_, err = h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)

	v := h.Vault(t, id)
	assert.Equal(t, domain.VaultActive, v.Status)
	require.NotNil(t, v.StartedAt)
	assert.True(t, v.StartedAt.Equal(start))
}

func TestExecuteTrigger_ScheduleNeverGoesRetroactive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := create(t, h, engine.CreateVaultRequest{
		Deposit:    domain.NewCoin("uusd", 100),
		Pair:       OsmoUSD,
		SwapAmount: sdkmath.NewInt(10),
	})

	// The keeper was down for three and a half days.
	now := h.Clock.Advance(84 * time.Hour)
	_, err := h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)

	trigger, err := h.Engine.GetTrigger(ctx, id)
	require.NoError(t, err)
	assert.True(t, trigger.TargetTime.After(now))
	assert.True(t, trigger.TargetTime.Equal(testutil.Epoch.Add(96*time.Hour)))
	assert.Zero(t, trigger.TargetTime.Sub(testutil.Epoch)%(24*time.Hour))

	// Only one swap happened for the whole outage.
	intEq(t, 90, h.Vault(t, id).Balance.Amount)
}

func TestExecuteTrigger_LowFundsSwapsRemainderThenRetires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := create(t, h, engine.CreateVaultRequest{
		Deposit:    domain.NewCoin("uusd", 150),
		Pair:       OsmoUSD,
		SwapAmount: sdkmath.NewInt(100),
	})

	_, err := h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)
	v := h.Vault(t, id)
	intEq(t, 50, v.Balance.Amount)
	assert.Equal(t, domain.VaultInactive, v.Status, "balance no longer covers a full swap")

	h.Clock.Advance(24 * time.Hour)
	_, err = h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)
	v = h.Vault(t, id)
	assert.True(t, v.Balance.IsZero(), "the remainder is swapped anyway")
	intEq(t, 150, v.SwappedAmount.Amount)
	assert.Contains(t, h.EventTypes(t, id), domain.EventExecutionSkipped)

	h.Clock.Advance(24 * time.Hour)
	_, err = h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)
	_, err = h.Engine.GetTrigger(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound, "an empty vault has nothing left to schedule")

	events := h.Events(t, id)
	last := events[len(events)-1].Data
	assert.Equal(t, domain.EventExecutionSkipped, last.Type)
	assert.Equal(t, domain.SkipInsufficientFunds, last.Reason)
}

func TestExecuteTrigger_ChargesSwapFee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := create(t, h, engine.CreateVaultRequest{
		Deposit:    domain.NewCoin("uusd", 10000),
		Pair:       testutil.AtomUSD,
		SwapAmount: sdkmath.NewInt(1000),
	})

	_, err := h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)

	intEq(t, 100, h.Vault(t, id).ReceivedAmount.Amount)
	intEq(t, 1, h.Received(t, testutil.Collector, "uatom"))
	intEq(t, 99, h.Received(t, testutil.Owner, "uatom"))

	events := h.Events(t, id)
	completed := events[len(events)-1].Data
	require.NotNil(t, completed.Fee)
	intEq(t, 1, completed.Fee.Amount)
	assert.Nil(t, completed.Escrowed)
}

func TestExecuteTrigger_CustomSwapFee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.Engine.CreateCustomSwapFee(ctx, testutil.Owner, "uatom", sdkmath.LegacyZeroDec())
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, h.Engine.CreateCustomSwapFee(ctx, testutil.Admin, "uatom", sdkmath.LegacyZeroDec()))
	fees, err := h.Engine.GetCustomSwapFees(ctx)
	require.NoError(t, err)
	assert.Contains(t, fees, "uatom")

	id := create(t, h, engine.CreateVaultRequest{
		Deposit:    domain.NewCoin("uusd", 10000),
		Pair:       testutil.AtomUSD,
		SwapAmount: sdkmath.NewInt(1000),
	})
	_, err = h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)
	intEq(t, 100, h.Received(t, testutil.Owner, "uatom"))
	intEq(t, 0, h.Received(t, testutil.Collector, "uatom"))

	require.NoError(t, h.Engine.RemoveCustomSwapFee(ctx, testutil.Admin, "uatom"))
	h.Clock.Advance(24 * time.Hour)
	_, err = h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)
	intEq(t, 1, h.Received(t, testutil.Collector, "uatom"))
}

func TestExecuteTrigger_FansOutWithDelegation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := create(t, h, engine.CreateVaultRequest{
		Deposit:    domain.NewCoin("uusd", 200000),
		Pair:       testutil.AtomUSD,
		SwapAmount: sdkmath.NewInt(100000),
		Destinations: []domain.Destination{
			{Address: "validator-1", Allocation: sdkmath.LegacyNewDecWithPrec(5, 1), Action: domain.ActionDelegate},
			{Address: "bob", Allocation: sdkmath.LegacyNewDecWithPrec(5, 1), Action: domain.ActionSend},
		},
	})

	report, err := h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)

	// received 10000: swap fee 100, automation fee floor(9900 * 0.0025) = 24, net 9876.
	intEq(t, 124, h.Received(t, testutil.Collector, "uatom"))
	intEq(t, 4938, h.Received(t, testutil.Owner, "uatom"), "delegated share is held by the owner")
	intEq(t, 4938, h.Received(t, "bob", "uatom"))
	intEq(t, 0, h.Received(t, "validator-1", "uatom"))
	intEq(t, 10000, sumTransfers(report.Transfers, "uatom"))

	require.Len(t, report.Replies, 2, "swap plus one automation call")
	assert.Equal(t, domain.OpAutomation, report.Replies[1].Kind)
	assert.Contains(t, h.EventTypes(t, id), domain.EventAutomationSucceeded)
}

func TestExecuteTrigger_AutomationFailureKeepsFunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := create(t, h, engine.CreateVaultRequest{
		Deposit:    domain.NewCoin("uusd", 200000),
		Pair:       testutil.AtomUSD,
		SwapAmount: sdkmath.NewInt(100000),
		Destinations: []domain.Destination{
			{Address: "validator-1", Allocation: sdkmath.LegacyOneDec(), Action: domain.ActionDelegate},
		},
	})
	h.Venue.FailNext(domain.OpAutomation, &domain.VenueError{Reason: domain.SkipUnknownFailure, Message: "validator jailed"})

	_, err := h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)

	// automation fee floor(9900 * 0.005) = 49
	intEq(t, 149, h.Received(t, testutil.Collector, "uatom"))
	intEq(t, 9851, h.Received(t, testutil.Owner, "uatom"))

	events := h.Events(t, id)
	last := events[len(events)-1].Data
	assert.Equal(t, domain.EventAutomationFailed, last.Type)
	assert.Equal(t, "validator jailed", last.Message)
	intEq(t, 100000, h.Vault(t, id).Balance.Amount)
}

func TestExecuteTrigger_AllocationConservation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := create(t, h, engine.CreateVaultRequest{
		Deposit:    domain.NewCoin("uusd", 100000),
		Pair:       testutil.AtomUSD,
		SwapAmount: sdkmath.NewInt(1234),
		Destinations: []domain.Destination{
			{Address: "a", Allocation: sdkmath.LegacyNewDecWithPrec(3, 1), Action: domain.ActionSend},
			{Address: "b", Allocation: sdkmath.LegacyNewDecWithPrec(3, 1), Action: domain.ActionSend},
			{Address: "c", Allocation: sdkmath.LegacyNewDecWithPrec(4, 1), Action: domain.ActionSend},
		},
	})

	for i := 0; i < 5; i++ {
		before := h.Vault(t, id)
		report, err := h.Host.ExecuteTrigger(ctx, id)
		require.NoError(t, err)
		after := h.Vault(t, id)

		received := after.ReceivedAmount.Amount.Sub(before.ReceivedAmount.Amount)
		sent := before.Balance.Amount.Sub(after.Balance.Amount)
		assert.True(t, sumTransfers(report.Transfers, "uatom").Equal(received), "cycle %d", i)
		assert.True(t, after.SwappedAmount.Amount.Sub(before.SwappedAmount.Amount).Equal(sent), "cycle %d", i)
		h.Clock.Advance(24 * time.Hour)
	}

	// 123 received per cycle: fee 1, then 36/36/50 with the dust on the last destination.
	intEq(t, 5*36, h.Received(t, "a", "uatom"))
	intEq(t, 5*50, h.Received(t, "c", "uatom"))
}

func TestExecuteTrigger_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.Host.ExecuteTrigger(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	id := create(t, h, engine.CreateVaultRequest{
		Deposit:    domain.NewCoin("uusd", 100),
		Pair:       OsmoUSD,
		SwapAmount: sdkmath.NewInt(10),
	})
	require.NoError(t, h.Engine.SetPaused(testutil.Admin, true))
	_, err = h.Host.ExecuteTrigger(ctx, id)
	assert.ErrorIs(t, err, domain.ErrPaused)

	require.NoError(t, h.Engine.SetPaused(testutil.Admin, false))
	_, err = h.Host.ExecuteTrigger(ctx, id)
	assert.NoError(t, err)
}
