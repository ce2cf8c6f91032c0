package engine_test

import (
	"context"
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/dcavault/internal/application/engine"
	"github.com/alejandrodnm/dcavault/internal/domain"
	"github.com/alejandrodnm/dcavault/internal/testutil"
)

func validRequest() engine.CreateVaultRequest {
	return engine.CreateVaultRequest{
		Deposit:      domain.NewCoin("uusd", 100),
		Pair:         OsmoUSD,
		SwapAmount:   sdkmath.NewInt(10),
		TimeInterval: domain.TimeInterval{Kind: domain.IntervalDaily},
	}
}

func TestCreateVault_Validation(t *testing.T) {
	past := testutil.Epoch.Add(-time.Hour)
	future := testutil.Epoch.Add(time.Hour)
	price := sdkmath.LegacyOneDec()
	tooMuchSlippage := sdkmath.LegacyNewDecWithPrec(15, 1)
	half := sdkmath.LegacyNewDecWithPrec(5, 1)

	tests := []struct {
		name   string
		mutate func(*engine.CreateVaultRequest)
	}{
		{"zero swap amount", func(r *engine.CreateVaultRequest) { r.SwapAmount = sdkmath.ZeroInt() }},
		{"long label", func(r *engine.CreateVaultRequest) { r.Label = strings.Repeat("x", 101) }},
		{"deposit outside pair", func(r *engine.CreateVaultRequest) { r.Deposit = domain.NewCoin("uatom", 100) }},
		{"duplicate route", func(r *engine.CreateVaultRequest) { r.Pair.Route = []string{"pool-2", "pool-2"} }},
		{"short custom interval", func(r *engine.CreateVaultRequest) { r.TimeInterval = domain.Custom(30) }},
		{"unknown interval", func(r *engine.CreateVaultRequest) { r.TimeInterval = domain.TimeInterval{Kind: "yearly"} }},
		{"slippage above one", func(r *engine.CreateVaultRequest) { r.SlippageTolerance = &tooMuchSlippage }},
		{"start time in the past", func(r *engine.CreateVaultRequest) { r.TargetStartTime = &past }},
		{"start time and price", func(r *engine.CreateVaultRequest) {
			r.TargetStartTime = &future
			r.TargetPrice = &price
		}},
		{"allocations short of one", func(r *engine.CreateVaultRequest) {
			r.Destinations = []domain.Destination{{Address: "bob", Allocation: half, Action: domain.ActionSend}}
		}},
		{"too many destinations", func(r *engine.CreateVaultRequest) {
			for i := 0; i < 11; i++ {
				r.Destinations = append(r.Destinations, domain.Destination{
					Address: "bob", Allocation: sdkmath.LegacyNewDecWithPrec(1, 1), Action: domain.ActionSend,
				})
			}
		}},
		{"liquidity without pool", func(r *engine.CreateVaultRequest) {
			r.Destinations = []domain.Destination{{Address: "bob", Allocation: price, Action: domain.ActionProvideLiquidity}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := validRequest()
			tt.mutate(&req)

			_, err := h.Host.CreateVault(context.Background(), testutil.Owner, req)
			require.ErrorIs(t, err, domain.ErrInvalidInput)

			vaults, err := h.Engine.GetVaults(context.Background(), nil, 10)
			require.NoError(t, err)
			assert.Empty(t, vaults, "nothing persisted")
		})
	}
}

func TestCreateVault_Defaults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := create(t, h, validRequest())
	v := h.Vault(t, id)

	assert.Equal(t, testutil.Owner, v.Owner)
	assert.Equal(t, domain.VaultActive, v.Status)
	assert.Equal(t, domain.PositionEnter, v.PositionType)
	require.Len(t, v.Destinations, 1)
	assert.Equal(t, testutil.Owner, v.Destinations[0].Address)
	assert.Equal(t, domain.ActionSend, v.Destinations[0].Action)
	assert.Nil(t, v.DcaPlus)

	trigger, err := h.Engine.GetTrigger(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TriggerTime, trigger.Kind)
	assert.True(t, trigger.TargetTime.Equal(testutil.Epoch), "due immediately")

	due, err := h.Engine.GetDueTimeTriggers(ctx, testutil.Epoch, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{id}, due)
}

func TestCreateVault_ExitPositionForOtherOwner(t *testing.T) {
	h := newHarness(t)

	req := validRequest()
	req.Owner = "bob"
	req.Deposit = domain.NewCoin("uosmo", 100)
	id := create(t, h, req)

	v := h.Vault(t, id)
	assert.Equal(t, "bob", v.Owner)
	assert.Equal(t, domain.PositionExit, v.PositionType)
	assert.Equal(t, "uusd", v.ReceiveDenom())

	status := domain.VaultActive
	owned, err := h.Engine.GetVaultsByOwner(context.Background(), "bob", &status, nil, 10)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, id, owned[0].ID)
}

func TestCreateVault_ZeroDepositIsInactive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := validRequest()
	req.Deposit = domain.NewCoin("uusd", 0)
	id := create(t, h, req)

	assert.Equal(t, domain.VaultInactive, h.Vault(t, id).Status)
	_, err := h.Engine.GetTrigger(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, []domain.EventType{domain.EventVaultCreated}, h.EventTypes(t, id))

	// The first deposit activates it, due now.
	_, err = h.Host.Deposit(ctx, testutil.Owner, id, domain.NewCoin("uusd", 50))
	require.NoError(t, err)

	v := h.Vault(t, id)
	assert.Equal(t, domain.VaultActive, v.Status)
	intEq(t, 50, v.Balance.Amount)
	trigger, err := h.Engine.GetTrigger(ctx, id)
	require.NoError(t, err)
	assert.True(t, trigger.IsDue(h.Clock.Now()))
}

func TestDeposit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := create(t, h, validRequest())

	_, err := h.Host.Deposit(ctx, "mallory", id, domain.NewCoin("uusd", 10))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = h.Host.Deposit(ctx, testutil.Owner, id, domain.NewCoin("uosmo", 10))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.Host.Deposit(ctx, testutil.Owner, id, domain.NewCoin("uusd", 0))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.Host.Deposit(ctx, testutil.Owner, 999, domain.NewCoin("uusd", 10))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.Host.Deposit(ctx, testutil.Owner, id, domain.NewCoin("uusd", 25))
	require.NoError(t, err)
	intEq(t, 125, h.Vault(t, id).Balance.Amount)

	events := h.Events(t, id)
	last := events[len(events)-1].Data
	assert.Equal(t, domain.EventFundsDeposited, last.Type)
	require.NotNil(t, last.Amount)
	intEq(t, 25, last.Amount.Amount)
}

func TestDeposit_ReactivatesRetiredVault(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := validRequest()
	req.Deposit = domain.NewCoin("uusd", 10)
	id := create(t, h, req)

	_, err := h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)
	h.Clock.Advance(24 * time.Hour)
	_, err = h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)
	_, err = h.Engine.GetTrigger(ctx, id)
	require.ErrorIs(t, err, domain.ErrNotFound, "retired after running dry")

	_, err = h.Host.Deposit(ctx, testutil.Owner, id, domain.NewCoin("uusd", 20))
	require.NoError(t, err)
	assert.Equal(t, domain.VaultActive, h.Vault(t, id).Status)

	_, err = h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)
	intEq(t, 10, h.Vault(t, id).Balance.Amount)
}

func TestUpdateVault(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := create(t, h, validRequest())

	_, err := h.Engine.UpdateVault(ctx, "mallory", id, "mine now")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = h.Engine.UpdateVault(ctx, testutil.Owner, id, strings.Repeat("x", 101))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.Engine.UpdateVault(ctx, testutil.Owner, id, "weekly osmo")
	require.NoError(t, err)
	assert.Equal(t, "weekly osmo", h.Vault(t, id).Label)
}

func TestCancelVault(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := create(t, h, validRequest())

	_, err := h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)

	_, err = h.Host.CancelVault(ctx, "mallory", id)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	report, err := h.Host.CancelVault(ctx, testutil.Owner, id)
	require.NoError(t, err)
	require.Len(t, report.Transfers, 1)
	assert.Equal(t, domain.NewCoin("uusd", 90).String(), report.Transfers[0].Coin.String())
	intEq(t, 90, h.Received(t, testutil.Owner, "uusd"))

	v := h.Vault(t, id)
	assert.Equal(t, domain.VaultCancelled, v.Status, "cancelled vaults stay queryable")
	assert.True(t, v.Balance.IsZero())
	intEq(t, 10, v.SwappedAmount.Amount)

	_, err = h.Engine.GetTrigger(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	due, err := h.Engine.GetDueTimeTriggers(ctx, h.Clock.Now().Add(365*24*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestCancelVault_IsNotRepeatable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := create(t, h, validRequest())

	_, err := h.Host.CancelVault(ctx, testutil.Admin, id)
	require.NoError(t, err, "the admin may cancel any vault")

	before := h.Vault(t, id)
	eventsBefore := len(h.Events(t, id))

	report, err := h.Host.CancelVault(ctx, testutil.Owner, id)
	require.ErrorIs(t, err, domain.ErrVaultCancelled)
	assert.ErrorIs(t, err, domain.ErrPreconditionNotMet)
	assert.Empty(t, report.Transfers)

	assert.Equal(t, before, h.Vault(t, id))
	assert.Len(t, h.Events(t, id), eventsBefore)
	intEq(t, 100, h.Received(t, testutil.Owner, "uusd"))

	_, err = h.Host.ExecuteTrigger(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound, "no trigger left")
	_, err = h.Host.Deposit(ctx, testutil.Owner, id, domain.NewCoin("uusd", 10))
	assert.ErrorIs(t, err, domain.ErrVaultCancelled)
}

func TestPause(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := create(t, h, validRequest())

	assert.ErrorIs(t, h.Engine.SetPaused(testutil.Owner, true), domain.ErrUnauthorized)
	require.NoError(t, h.Engine.SetPaused(testutil.Admin, true))
	assert.True(t, h.Engine.Paused())

	_, err := h.Host.CreateVault(ctx, testutil.Owner, validRequest())
	assert.ErrorIs(t, err, domain.ErrPaused)
	_, err = h.Host.Deposit(ctx, testutil.Owner, id, domain.NewCoin("uusd", 10))
	assert.ErrorIs(t, err, domain.ErrPaused)

	_, err = h.Host.CancelVault(ctx, testutil.Owner, id)
	assert.NoError(t, err, "cancel still works while paused")
}

func TestQueries_Pagination(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var ids []uint64
	for i := 0; i < 5; i++ {
		ids = append(ids, create(t, h, validRequest()))
	}

	page, err := h.Engine.GetVaults(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[0], page[0].ID)

	last := page[1].ID
	page, err = h.Engine.GetVaults(ctx, &last, 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, ids[2], page[0].ID)

	events, err := h.Engine.GetEvents(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, events, 10, "created and deposited per vault")
}
