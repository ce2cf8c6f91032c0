package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/dcavault/internal/adapters/notify"
	"github.com/alejandrodnm/dcavault/internal/domain"
)

func TestConsole_NotifyCycle(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	err := n.NotifyCycle(context.Background(), domain.KeeperCycle{
		At:           time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		TimeExecuted: 3,
		Failed:       1,
		Errors:       []string{"execute_time vault 7: boom"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "time:3")
	assert.Contains(t, out, "failed:1")
	assert.Contains(t, out, "vault 7: boom")
}

func TestConsole_NotifyCycle_QuietWhenIdle(t *testing.T) {
	var buf bytes.Buffer
	idle := domain.KeeperCycle{At: time.Now(), Waiting: 2}

	require.NoError(t, notify.NewConsoleWriter(&buf, false).NotifyCycle(context.Background(), idle))
	assert.Empty(t, buf.String())

	require.NoError(t, notify.NewConsoleWriter(&buf, true).NotifyCycle(context.Background(), idle))
	assert.Contains(t, buf.String(), "waiting:2")
}

func TestConsole_PrintVaults(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	n.PrintVaults([]domain.Vault{{
		ID:             4,
		Owner:          "alice",
		Label:          "weekly atom",
		Status:         domain.VaultActive,
		Balance:        domain.NewCoin("uusd", 900),
		SwapAmount:     sdkmath.NewInt(100),
		TimeInterval:   domain.TimeInterval{Kind: domain.IntervalWeekly},
		SwappedAmount:  domain.NewCoin("uusd", 100),
		ReceivedAmount: domain.NewCoin("uatom", 10),
	}})

	out := buf.String()
	assert.Contains(t, out, "weekly atom")
	assert.Contains(t, out, "900uusd")
	assert.Contains(t, out, "active")
}

func TestConsole_PrintEvents(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	fee := domain.NewCoin("uatom", 1)
	n.PrintEvents([]domain.Event{{
		ID:         1,
		ResourceID: 4,
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:       domain.EventData{Type: domain.EventVaultExecutionCompleted, Fee: &fee},
	}})

	out := buf.String()
	assert.Contains(t, out, "vault_execution_completed")
	assert.Contains(t, out, "fee=1uatom")
}

func TestConsole_EmptyTables(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	n.PrintVaults(nil)
	n.PrintEvents(nil)
	n.PrintCalls(nil)

	out := buf.String()
	assert.Contains(t, out, "No vaults found")
	assert.Contains(t, out, "No events found")
	assert.Contains(t, out, "No external calls recorded")
}

func TestConsole_PrintFees(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	n.PrintFees("0.0165", map[string]sdkmath.LegacyDec{
		"uosmo": sdkmath.LegacyNewDecWithPrec(1, 3),
		"uatom": sdkmath.LegacyNewDecWithPrec(5, 3),
	})

	out := buf.String()
	assert.Contains(t, out, "default swap fee: 0.0165")
	assert.Contains(t, out, "0.005000000000000000")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("uatom")), bytes.Index(buf.Bytes(), []byte("uosmo")), "sorted by denom")

	buf.Reset()
	n.PrintFees("0.0165", nil)
	assert.Contains(t, buf.String(), "No custom swap fees")
}

func TestConsole_PrintOrders(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	n.PrintOrders([]domain.PaperOrder{{
		Handle:        "order-1",
		PairAddress:   "pair-1",
		OfferDenom:    "uusd",
		ReceiveDenom:  "uatom",
		Price:         sdkmath.LegacyNewDec(10),
		OriginalOffer: sdkmath.NewInt(100),
		Offer:         sdkmath.NewInt(50),
		Filled:        sdkmath.NewInt(5),
		Status:        domain.PaperOrderOpen,
		PlacedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}})

	out := buf.String()
	assert.Contains(t, out, "order-1")
	assert.Contains(t, out, "50uusd")
	assert.Contains(t, out, "5uatom")

	buf.Reset()
	n.PrintOrders(nil)
	assert.Contains(t, buf.String(), "No open orders")
}
