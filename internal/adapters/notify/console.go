package notify

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/alejandrodnm/dcavault/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implements ports.Notifier and renders operator tables.
type Console struct {
	out     io.Writer
	verbose bool // also print idle cycles
}

// NewConsole creates a notifier writing to stdout.
func NewConsole(verbose bool) *Console {
	return &Console{out: os.Stdout, verbose: verbose}
}

// NewConsoleWriter creates a notifier writing to w.
func NewConsoleWriter(w io.Writer, verbose bool) *Console {
	return &Console{out: w, verbose: verbose}
}

// NotifyCycle prints a one-line summary of a keeper cycle, plus its errors.
func (c *Console) NotifyCycle(_ context.Context, cycle domain.KeeperCycle) error {
	if cycle.Idle() && !c.verbose {
		return nil
	}
	fmt.Fprintf(c.out, "[%s] time:%d limit:%d waiting:%d escrow:%d failed:%d (%s)\n",
		cycle.At.Format("15:04:05"),
		cycle.TimeExecuted, cycle.LimitExecuted, cycle.Waiting, cycle.EscrowSwept, cycle.Failed,
		cycle.Duration.Round(time.Millisecond),
	)
	for _, e := range cycle.Errors {
		fmt.Fprintf(c.out, "  ! %s\n", e)
	}
	return nil
}

// PrintVaults renders vaults as a table.
func (c *Console) PrintVaults(vaults []domain.Vault) {
	if len(vaults) == 0 {
		fmt.Fprintln(c.out, "No vaults found")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Owner", "Label", "Status", "Balance", "Swap", "Every", "Swapped", "Received", "DCA+")

	for _, v := range vaults {
		dcaPlus := "-"
		if v.DcaPlus != nil {
			dcaPlus = fmt.Sprintf("m%d esc %s", v.DcaPlus.ModelID, v.DcaPlus.EscrowedBalance)
		}
		table.Append(
			fmt.Sprintf("%d", v.ID),
			shorten(v.Owner, 16),
			shorten(v.Label, 24),
			string(v.Status),
			v.Balance.String(),
			v.SwapAmount.String(),
			v.TimeInterval.String(),
			v.SwappedAmount.String(),
			v.ReceivedAmount.String(),
			dcaPlus,
		)
	}
	table.Render()
}

// PrintEvents renders audit events as a table.
func (c *Console) PrintEvents(events []domain.Event) {
	if len(events) == 0 {
		fmt.Fprintln(c.out, "No events found")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Vault", "Time", "Type", "Detail")

	for _, e := range events {
		table.Append(
			fmt.Sprintf("%d", e.ID),
			fmt.Sprintf("%d", e.ResourceID),
			e.Timestamp.Format(time.RFC3339),
			string(e.Data.Type),
			eventDetail(e.Data),
		)
	}
	table.Render()
}

// PrintCalls renders the host's external call journal.
func (c *Console) PrintCalls(calls []domain.CallRecord) {
	if len(calls) == 0 {
		fmt.Fprintln(c.out, "No external calls recorded")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Correlation", "Vault", "Kind", "Status", "Dispatched", "Error")

	for _, r := range calls {
		table.Append(
			shorten(r.CorrelationID, 13),
			fmt.Sprintf("%d", r.VaultID),
			string(r.Kind),
			string(r.Status),
			r.DispatchedAt.Format(time.RFC3339),
			shorten(r.Error, 40),
		)
	}
	table.Render()
}

// PrintFees renders the custom swap fees, sorted by denom, under the default rate.
func (c *Console) PrintFees(defaultRate string, fees map[string]sdkmath.LegacyDec) {
	fmt.Fprintf(c.out, "default swap fee: %s\n", defaultRate)
	if len(fees) == 0 {
		fmt.Fprintln(c.out, "No custom swap fees")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Denom", "Rate")
	for _, denom := range slices.Sorted(maps.Keys(fees)) {
		table.Append(denom, fees[denom].String())
	}
	table.Render()
}

// PrintOrders renders resting limit orders on the simulated book.
func (c *Console) PrintOrders(orders []domain.PaperOrder) {
	if len(orders) == 0 {
		fmt.Fprintln(c.out, "No open orders")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Handle", "Pair", "Offer", "Price", "Resting", "Filled", "Placed")
	for _, o := range orders {
		table.Append(
			string(o.Handle),
			o.PairAddress,
			o.OriginalOffer.String()+o.OfferDenom,
			o.Price.String(),
			o.Offer.String()+o.OfferDenom,
			o.Filled.String()+o.ReceiveDenom,
			o.PlacedAt.Format(time.RFC3339),
		)
	}
	table.Render()
}

// PrintBalances renders what an address has received on the paper ledger.
func (c *Console) PrintBalances(address string, coins []domain.Coin) {
	parts := make([]string, 0, len(coins))
	for _, coin := range coins {
		parts = append(parts, coin.String())
	}
	if len(parts) == 0 {
		parts = append(parts, "nothing")
	}
	fmt.Fprintf(c.out, "%s received: %s\n", address, strings.Join(parts, ", "))
}

func eventDetail(d domain.EventData) string {
	var parts []string
	add := func(name string, coin *domain.Coin) {
		if coin != nil {
			parts = append(parts, name+"="+coin.String())
		}
	}
	add("amount", d.Amount)
	add("sent", d.Sent)
	add("received", d.Received)
	add("fee", d.Fee)
	add("escrowed", d.Escrowed)
	add("perf_fee", d.PerformanceFee)
	if d.Reason != "" {
		parts = append(parts, "reason="+string(d.Reason))
	}
	if d.OrderHandle != nil {
		parts = append(parts, "order="+shorten(string(*d.OrderHandle), 13))
	}
	if d.Destination != "" {
		parts = append(parts, "dest="+shorten(d.Destination, 16))
	}
	if d.Due != nil {
		parts = append(parts, "due="+d.Due.Format(time.RFC3339))
	}
	if d.Message != "" {
		parts = append(parts, shorten(d.Message, 40))
	}
	return strings.Join(parts, " ")
}

// shorten truncates s to max runes with an ellipsis.
func shorten(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
