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

func createDcaPlus(t *testing.T, h *testutil.Harness) uint64 {
	t.Helper()
	return create(t, h, engine.CreateVaultRequest{
		Deposit:    domain.NewCoin("uusd", 10000),
		Pair:       testutil.AtomUSD,
		SwapAmount: sdkmath.NewInt(1000),
		DcaPlus:    true,
	})
}

func TestDcaPlus_WithholdsEscrow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := createDcaPlus(t, h)

	v := h.Vault(t, id)
	require.NotNil(t, v.DcaPlus)
	assert.Equal(t, uint8(domain.MinModelID), v.DcaPlus.ModelID, "ten swaps clamps to the shortest model")
	assert.True(t, v.DcaPlus.EscrowLevel.Equal(sdkmath.LegacyNewDecWithPrec(5, 2)))

	_, err := h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)

	// received 100: 5 escrowed, no swap fee, 95 disbursed.
	v = h.Vault(t, id)
	intEq(t, 100, v.ReceivedAmount.Amount)
	intEq(t, 5, v.DcaPlus.EscrowedBalance.Amount)
	intEq(t, 1000, v.DcaPlus.StandardDcaSwappedAmount.Amount)
	intEq(t, 100, v.DcaPlus.StandardDcaReceivedAmount.Amount)
	intEq(t, 95, h.Received(t, testutil.Owner, "uatom"))
	intEq(t, 0, h.Received(t, testutil.Collector, "uatom"))

	events := h.Events(t, id)
	completed := events[len(events)-1].Data
	require.NotNil(t, completed.Escrowed)
	intEq(t, 5, completed.Escrowed.Amount)
}

func TestDcaPlus_DepositRecomputesModel(t *testing.T) {
	h := newHarness(t)
	id := createDcaPlus(t, h)

	_, err := h.Host.Deposit(context.Background(), testutil.Owner, id, domain.NewCoin("uusd", 40000))
	require.NoError(t, err)

	v := h.Vault(t, id)
	intEq(t, 50000, v.DcaPlus.TotalDeposit.Amount)
	assert.Equal(t, uint8(50), v.DcaPlus.ModelID)
}

func TestDcaPlus_SwapAdjustment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := createDcaPlus(t, h)

	err := h.Engine.UpdateSwapAdjustment(ctx, testutil.Owner, domain.PositionEnter, 30, sdkmath.LegacyNewDecWithPrec(5, 1))
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	err = h.Engine.UpdateSwapAdjustment(ctx, testutil.Admin, domain.PositionEnter, 25, sdkmath.LegacyNewDecWithPrec(5, 1))
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	require.NoError(t, h.Engine.UpdateSwapAdjustment(ctx, testutil.Admin, domain.PositionEnter, 30, sdkmath.LegacyNewDecWithPrec(5, 1)))
	_, err = h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)

	// Half the swap, but the shadow ledger still books a full one at the same rate.
	v := h.Vault(t, id)
	intEq(t, 500, v.SwappedAmount.Amount)
	intEq(t, 50, v.ReceivedAmount.Amount)
	intEq(t, 1000, v.DcaPlus.StandardDcaSwappedAmount.Amount)
	intEq(t, 100, v.DcaPlus.StandardDcaReceivedAmount.Amount)

	// A day later the adjustment has gone stale.
	h.Clock.Advance(24 * time.Hour)
	_, err = h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)
	intEq(t, 1500, h.Vault(t, id).SwappedAmount.Amount)
}

func TestDcaPlus_PerformanceFeeIsCappedByEscrow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := createDcaPlus(t, h)

	_, err := h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)

	h.Clock.Advance(24 * time.Hour)
	require.NoError(t, h.Engine.UpdateSwapAdjustment(ctx, testutil.Admin, domain.PositionEnter, 30, sdkmath.LegacyNewDecWithPrec(5, 1)))
	_, err = h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)

	v := h.Vault(t, id)
	intEq(t, 1500, v.SwappedAmount.Amount)
	intEq(t, 150, v.ReceivedAmount.Amount)
	intEq(t, 7, v.DcaPlus.EscrowedBalance.Amount, "5 + floor(2.5)")

	perf, err := h.Engine.GetDcaPlusPerformance(ctx, id)
	require.NoError(t, err)
	assert.True(t, perf.Fee.IsZero(), "same price as every swap: no outperformance")

	// uatom halves: holding more uusd beat the standard schedule by 250uusd = 50uatom,
	// a 10uatom fee that the 7uatom escrow caps.
	h.Venue.SetPrice(testutil.AtomUSD.Address, sdkmath.LegacyNewDec(5))
	perf, err = h.Engine.GetDcaPlusPerformance(ctx, id)
	require.NoError(t, err)
	intEq(t, 7, perf.Fee.Amount)
	assert.True(t, perf.Factor.GT(sdkmath.LegacyOneDec()))

	_, err = h.Host.ClaimEscrowedFunds(ctx, testutil.Owner, id)
	require.ErrorIs(t, err, domain.ErrPreconditionNotMet, "still executing")

	_, err = h.Host.CancelVault(ctx, testutil.Owner, id)
	require.NoError(t, err)
	intEq(t, 8500, h.Received(t, testutil.Owner, "uusd"))

	report, err := h.Host.ClaimEscrowedFunds(ctx, testutil.Owner, id)
	require.NoError(t, err)
	intEq(t, 7, sumTransfers(report.Transfers, "uatom"))

	v = h.Vault(t, id)
	assert.True(t, v.DcaPlus.EscrowedBalance.IsZero())
	intEq(t, 7, h.Received(t, testutil.Collector, "uatom"))
	intEq(t, 95+48, h.Received(t, testutil.Owner, "uatom"))

	events := h.Events(t, id)
	last := events[len(events)-1].Data
	assert.Equal(t, domain.EventEscrowDisbursed, last.Type)
	require.NotNil(t, last.PerformanceFee)
	intEq(t, 7, last.PerformanceFee.Amount)
	assert.True(t, last.Amount.IsZero())

	tasks, err := h.Engine.GetDueDisburseEscrowTasks(ctx, h.Clock.Now().Add(365*24*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, tasks, "claiming clears the queued disbursement")
}

func TestDcaPlus_CancelQueuesDisbursement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := createDcaPlus(t, h)

	_, err := h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)
	_, err = h.Host.CancelVault(ctx, testutil.Owner, id)
	require.NoError(t, err)

	// 9000 of the standard principal left at 1000 a day.
	tasks, err := h.Engine.GetDueDisburseEscrowTasks(ctx, h.Clock.Now().Add(365*24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].Due.Equal(testutil.Epoch.Add(9*24*time.Hour)))

	_, err = h.Host.DisburseEscrow(ctx, testutil.Owner, id)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = h.Host.SweepDisburseEscrowTasks(ctx, testutil.Admin, 10)
	require.NoError(t, err)
	intEq(t, 5, h.Vault(t, id).DcaPlus.EscrowedBalance.Amount, "not due yet")

	_, err = h.Host.DisburseEscrow(ctx, testutil.Admin, id)
	require.NoError(t, err)
	assert.True(t, h.Vault(t, id).DcaPlus.EscrowedBalance.IsZero())
	intEq(t, 100, h.Received(t, testutil.Owner, "uatom"))
}

func TestDcaPlus_SweepDefersUnpricedVault(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	healthy := createDcaPlus(t, h)
	unpriced := create(t, h, engine.CreateVaultRequest{
		Deposit:    domain.NewCoin("uusd", 10000),
		Pair:       OsmoUSD,
		SwapAmount: sdkmath.NewInt(1000),
		DcaPlus:    true,
	})
	for _, id := range []uint64{healthy, unpriced} {
		_, err := h.Host.ExecuteTrigger(ctx, id)
		require.NoError(t, err)
		_, err = h.Host.CancelVault(ctx, testutil.Owner, id)
		require.NoError(t, err)
	}
	intEq(t, 5, h.Vault(t, healthy).DcaPlus.EscrowedBalance.Amount)
	intEq(t, 50, h.Vault(t, unpriced).DcaPlus.EscrowedBalance.Amount)

	h.Venue.SetPrice(OsmoUSD.Address, sdkmath.LegacyZeroDec())
	now := h.Clock.Advance(30 * 24 * time.Hour)

	report, err := h.Host.SweepDisburseEscrowTasks(ctx, testutil.Admin, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Disbursed)
	assert.True(t, h.Vault(t, healthy).DcaPlus.EscrowedBalance.IsZero())
	intEq(t, 100, h.Received(t, testutil.Owner, "uatom"))
	intEq(t, 50, h.Vault(t, unpriced).DcaPlus.EscrowedBalance.Amount, "left for a later sweep")

	events := h.Events(t, unpriced)
	last := events[len(events)-1].Data
	assert.Equal(t, domain.EventEscrowDisbursementDeferred, last.Type)
	assert.Contains(t, last.Message, OsmoUSD.Address)
	require.NotNil(t, last.Due)
	assert.True(t, last.Due.Equal(now.Add(time.Hour)))

	tasks, err := h.Engine.GetDueDisburseEscrowTasks(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks, "pushed back, not due again yet")

	h.Venue.SetPrice(OsmoUSD.Address, sdkmath.LegacyOneDec())
	h.Clock.Advance(time.Hour)
	report, err = h.Host.SweepDisburseEscrowTasks(ctx, testutil.Admin, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Disbursed)
	assert.True(t, h.Vault(t, unpriced).DcaPlus.EscrowedBalance.IsZero())
	intEq(t, 1000, h.Received(t, testutil.Owner, "uosmo"))
}

func TestDcaPlus_NotADcaPlusVault(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := create(t, h, validRequest())

	_, err := h.Engine.GetDcaPlusPerformance(ctx, id)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.Host.DisburseEscrow(ctx, testutil.Admin, id)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
