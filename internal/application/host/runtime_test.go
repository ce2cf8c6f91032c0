package host_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/dcavault/internal/application/engine"
	"github.com/alejandrodnm/dcavault/internal/application/host"
	"github.com/alejandrodnm/dcavault/internal/domain"
	"github.com/alejandrodnm/dcavault/internal/ports"
	"github.com/alejandrodnm/dcavault/internal/testutil"
)

func createVault(t *testing.T, h *testutil.Harness) uint64 {
	t.Helper()
	report, err := h.Host.CreateVault(context.Background(), testutil.Owner, engine.CreateVaultRequest{
		Deposit:      domain.NewCoin("uusd", 100000),
		Pair:         testutil.AtomUSD,
		SwapAmount:   sdkmath.NewInt(10000),
		TimeInterval: domain.TimeInterval{Kind: domain.IntervalDaily},
	})
	require.NoError(t, err)
	return report.VaultID
}

func TestRuntime_FundsCommunityPool(t *testing.T) {
	h := testutil.NewHarness(t, func(cfg *engine.Config) {
		cfg.FeeCollectors = []domain.FeeCollector{
			{Address: testutil.Collector, Allocation: sdkmath.LegacyNewDecWithPrec(5, 1)},
			{Address: domain.CommunityPoolAddress, Allocation: sdkmath.LegacyNewDecWithPrec(5, 1)},
		}
	})
	id := createVault(t, h)

	report, err := h.Host.ExecuteTrigger(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, report.VaultID)

	// received 1000uatom, 10uatom fee split in half
	require.Len(t, report.Funded, 1)
	assert.Equal(t, "5uatom", report.Funded[0].String())
	assert.Equal(t, "5", h.Received(t, testutil.Collector, "uatom").String())
	assert.Equal(t, "5", h.Received(t, domain.CommunityPoolAddress, "uatom").String())
	assert.Equal(t, "990", h.Received(t, testutil.Owner, "uatom").String())
}

func TestRuntime_JournalsCalls(t *testing.T) {
	h := testutil.NewHarness(t, nil)
	ctx := context.Background()
	id := createVault(t, h)

	_, err := h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)

	h.Clock.Advance(24 * time.Hour)
	h.Venue.FailNext(domain.OpSwap, &domain.VenueError{Reason: domain.SkipInsufficientFunds, Message: "pool drained"})
	_, err = h.Host.ExecuteTrigger(ctx, id)
	require.NoError(t, err)

	calls, err := h.Store.GetCalls(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, calls, 2)

	assert.Equal(t, domain.CallFailed, calls[0].Status, "most recent first")
	assert.Contains(t, calls[0].Error, "pool drained")
	assert.Equal(t, domain.CallSucceeded, calls[1].Status)
	for _, c := range calls {
		assert.Equal(t, domain.OpSwap, c.Kind)
		assert.NotNil(t, c.RepliedAt)
	}
}

func TestRuntime_SerializesInvocations(t *testing.T) {
	h := testutil.NewHarness(t, nil)
	id := createVault(t, h)

	const callers = 5
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Host.ExecuteTrigger(context.Background(), id)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrTriggerNotDue)
	}
	assert.Equal(t, 1, ok, "one swap per due trigger")
	assert.Equal(t, "90000", h.Vault(t, id).Balance.Amount.String())
}

func TestRuntime_RejectedInvocationSettlesNothing(t *testing.T) {
	h := testutil.NewHarness(t, nil)
	ctx := context.Background()

	boom := errors.New("boom")
	report, err := h.Host.Invoke(ctx, func(context.Context, *engine.Engine) (engine.Response, error) {
		return engine.Response{Messages: []domain.Message{domain.Transfer{To: "bob", Coin: domain.NewCoin("uusd", 1)}}}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, report.Transfers)
	assert.True(t, h.Received(t, "bob", "uusd").IsZero())
}

type brokenBank struct{}

func (brokenBank) Send(context.Context, string, domain.Coin) error {
	return errors.New("bank offline")
}

func (brokenBank) FundCommunityPool(context.Context, domain.Coin) error {
	return errors.New("bank offline")
}

func TestRuntime_SettlementFailureSurfaces(t *testing.T) {
	h := testutil.NewHarness(t, nil)
	ctx := context.Background()
	id := createVault(t, h)

	rt := host.New(h.Engine, h.Venue, brokenBank{}, h.Venue, nil, h.Clock)
	report, err := rt.ExecuteTrigger(ctx, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bank offline")
	require.Len(t, report.Replies, 1, "the swap itself went through")
	assert.True(t, report.Replies[0].Succeeded())

	pending, err := h.Engine.Outbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2, "fee and proceeds stay queued")
	for _, env := range pending {
		assert.Equal(t, id, env.VaultID)
		assert.Equal(t, 1, env.Attempts)
	}

	report, err = h.Host.Settle(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Transfers, 2)
	assert.Equal(t, "990", h.Received(t, testutil.Owner, "uatom").String())
	assert.Equal(t, "10", h.Received(t, testutil.Collector, "uatom").String())

	pending, err = h.Engine.Outbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// flakyBank fails the first failures sends and forwards the rest.
type flakyBank struct {
	ports.Bank
	failures int
}

func (b *flakyBank) Send(ctx context.Context, to string, coin domain.Coin) error {
	if b.failures > 0 {
		b.failures--
		return errors.New("bank hiccup")
	}
	return b.Bank.Send(ctx, to, coin)
}

func TestRuntime_FailedRefundIsRetried(t *testing.T) {
	h := testutil.NewHarness(t, nil)
	ctx := context.Background()

	// Rests at 1 uusd per uatom while the pair trades at 10.
	price := sdkmath.LegacyOneDec()
	created, err := h.Host.CreateVault(ctx, testutil.Owner, engine.CreateVaultRequest{
		Deposit:      domain.NewCoin("uusd", 100),
		Pair:         testutil.AtomUSD,
		SwapAmount:   sdkmath.NewInt(10),
		TimeInterval: domain.TimeInterval{Kind: domain.IntervalDaily},
		TargetPrice:  &price,
	})
	require.NoError(t, err)
	id := created.VaultID

	trigger, err := h.Engine.GetTrigger(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, trigger.OrderHandle)
	_, err = h.Venue.Fill(ctx, *trigger.OrderHandle, sdkmath.LegacyNewDecWithPrec(5, 1))
	require.NoError(t, err)

	rt := host.New(h.Engine, h.Venue, &flakyBank{Bank: h.Venue, failures: 1}, h.Venue, nil, h.Clock)
	report, err := rt.CancelVault(ctx, testutil.Owner, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bank hiccup")

	// The refund bounced but the withdraw queued with it still went out.
	kinds := make([]domain.OperationKind, 0, len(report.Replies))
	for _, r := range report.Replies {
		kinds = append(kinds, r.Kind)
	}
	assert.Equal(t, []domain.OperationKind{domain.OpRetractOrder, domain.OpWithdrawRetracted}, kinds)
	assert.Equal(t, "5", h.Received(t, testutil.Owner, "uatom").String())
	assert.True(t, h.Received(t, testutil.Owner, "uusd").IsZero())

	assert.Equal(t, domain.VaultCancelled, h.Vault(t, id).Status)
	_, err = h.Store.GetPending(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound, "no saga left behind")

	pending, err := h.Engine.Outbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	refund, ok := pending[0].Message.(domain.Transfer)
	require.True(t, ok)
	assert.Equal(t, testutil.Owner, refund.To)
	assert.Equal(t, "95uusd", refund.Coin.String())

	settled, err := h.Host.Settle(ctx)
	require.NoError(t, err)
	require.Len(t, settled.Transfers, 1)
	assert.Equal(t, "95", h.Received(t, testutil.Owner, "uusd").String())

	pending, err = h.Engine.Outbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRuntime_InvokeDrainsLeftovers(t *testing.T) {
	h := testutil.NewHarness(t, nil)
	ctx := context.Background()
	id := createVault(t, h)

	rt := host.New(h.Engine, h.Venue, &flakyBank{Bank: h.Venue, failures: 2}, h.Venue, nil, h.Clock)
	_, err := rt.ExecuteTrigger(ctx, id)
	require.Error(t, err)
	assert.True(t, h.Received(t, testutil.Owner, "uatom").IsZero())

	// Any later invocation settles what is still queued before its own work.
	_, err = h.Host.Invoke(ctx, func(context.Context, *engine.Engine) (engine.Response, error) {
		return engine.Response{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "990", h.Received(t, testutil.Owner, "uatom").String())
	assert.Equal(t, "10", h.Received(t, testutil.Collector, "uatom").String())
}

func TestRuntime_UnknownMessage(t *testing.T) {
	h := testutil.NewHarness(t, nil)

	_, err := h.Host.Invoke(context.Background(), func(context.Context, *engine.Engine) (engine.Response, error) {
		return engine.Response{Messages: []domain.Message{nil}}, nil
	})
	assert.ErrorIs(t, err, domain.ErrFatal)
}
