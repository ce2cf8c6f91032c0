package testutil

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/dcavault/internal/adapters/paper"
	"github.com/alejandrodnm/dcavault/internal/adapters/storage"
	"github.com/alejandrodnm/dcavault/internal/application/engine"
	"github.com/alejandrodnm/dcavault/internal/application/host"
	"github.com/alejandrodnm/dcavault/internal/domain"
)

const (
	Admin     = "admin"
	Owner     = "alice"
	Collector = "fee-collector"
)

// Epoch is where every harness clock starts.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// AtomUSD is a pair quoted at 10 uusd per uatom by default.
var AtomUSD = domain.Pair{Address: "pair-atom-usd", BaseDenom: "uatom", QuoteDenom: "uusd", Route: []string{"pool-1"}}

// Harness wires an engine to in-memory storage, the paper venue and a host runtime.
type Harness struct {
	Store      *storage.SQLiteStorage
	PaperStore *storage.SQLiteStorage
	Venue      *paper.Venue
	Engine     *engine.Engine
	Host       *host.Runtime
	Clock      *FakeClock
}

// DefaultEngineConfig charges a 1% swap fee and 0.5% delegation fee to a single collector.
func DefaultEngineConfig() engine.Config {
	return engine.Config{
		Admin:              Admin,
		DefaultSwapFee:     sdkmath.LegacyNewDecWithPrec(1, 2),
		DelegationFee:      sdkmath.LegacyNewDecWithPrec(5, 3),
		FeeCollectors:      []domain.FeeCollector{{Address: Collector, Allocation: sdkmath.LegacyOneDec()}},
		DcaPlusEscrowLevel: sdkmath.LegacyNewDecWithPrec(5, 2),
	}
}

// NewHarness builds a harness. mutate may adjust the engine config before wiring.
func NewHarness(t *testing.T, mutate func(*engine.Config)) *Harness {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// The venue is queried from inside engine transactions, so it needs its own connection.
	paperStore, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { paperStore.Close() })
	require.NoError(t, paperStore.ApplyPaperSchema(context.Background()))

	clock := NewFakeClock(Epoch)
	venue := paper.NewVenue(paperStore, clock, sdkmath.LegacyZeroDec())
	venue.SetPrice(AtomUSD.Address, sdkmath.LegacyNewDec(10))

	cfg := DefaultEngineConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	eng, err := engine.New(store, venue, clock, cfg)
	require.NoError(t, err)

	return &Harness{
		Store:      store,
		PaperStore: paperStore,
		Venue:      venue,
		Engine:     eng,
		Host:       host.New(eng, venue, venue, venue, store, clock),
		Clock:      clock,
	}
}

// Received sums what addr has been sent of denom on the paper bank.
func (h *Harness) Received(t *testing.T, addr, denom string) sdkmath.Int {
	t.Helper()
	coins, err := h.PaperStore.GetPaperBalances(context.Background(), addr)
	require.NoError(t, err)
	for _, c := range coins {
		if c.Denom == denom {
			return c.Amount
		}
	}
	return sdkmath.ZeroInt()
}

// Vault reloads a vault.
func (h *Harness) Vault(t *testing.T, id uint64) domain.Vault {
	t.Helper()
	v, err := h.Engine.GetVault(context.Background(), id)
	require.NoError(t, err)
	return v
}

// Events returns every event of a vault, oldest first.
func (h *Harness) Events(t *testing.T, id uint64) []domain.Event {
	t.Helper()
	events, err := h.Engine.GetEventsByResourceID(context.Background(), id, nil, 1000)
	require.NoError(t, err)
	return events
}

// EventTypes lists the types of a vault's events, oldest first.
func (h *Harness) EventTypes(t *testing.T, id uint64) []domain.EventType {
	t.Helper()
	var types []domain.EventType
	for _, e := range h.Events(t, id) {
		types = append(types, e.Data.Type)
	}
	return types
}
