package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/alejandrodnm/dcavault/config"
	"github.com/alejandrodnm/dcavault/internal/adapters/gateway"
	"github.com/alejandrodnm/dcavault/internal/adapters/notify"
	"github.com/alejandrodnm/dcavault/internal/adapters/paper"
	"github.com/alejandrodnm/dcavault/internal/adapters/storage"
	"github.com/alejandrodnm/dcavault/internal/application/engine"
	"github.com/alejandrodnm/dcavault/internal/application/host"
	"github.com/alejandrodnm/dcavault/internal/ports"
)

// app is the wired service: storage, venue, engine and host.
type app struct {
	cfg     *config.Config
	store   *storage.SQLiteStorage
	paper   *paper.Venue // nil unless the paper venue is selected
	ledger  *storage.SQLiteStorage
	engine  *engine.Engine
	host    *host.Runtime
	console *notify.Console
}

func openApp(ctx context.Context, opts *rootOptions, out io.Writer) (*app, error) {
	cfg := opts.cfg
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a := &app{cfg: cfg, store: store, console: notify.NewConsoleWriter(out, opts.Verbose)}

	var (
		prices     ports.PriceQuoter
		venue      ports.SwapVenue
		bank       ports.Bank
		automation ports.Automation
		clock      = ports.SystemClock{}
	)
	switch cfg.Venue {
	case config.VenuePaper:
		// The venue reads its ledger while engine transactions are open, so it gets
		// its own database.
		a.ledger, err = storage.NewSQLiteStorage(cfg.Storage.PaperDSN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open paper ledger: %w", err)
		}
		if err := a.ledger.ApplyPaperSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
		spread, err := cfg.Paper.ParseSpread()
		if err != nil {
			a.Close()
			return nil, err
		}
		quotes, err := cfg.Paper.ParsePrices()
		if err != nil {
			a.Close()
			return nil, err
		}
		a.paper = paper.NewVenue(a.ledger, clock, spread)
		for pair, price := range quotes {
			a.paper.SetPrice(pair, price)
		}
		prices, venue, bank, automation = a.paper, a.paper, a.paper, a.paper
		slog.Debug("venue: paper", "ledger", cfg.Storage.PaperDSN, "pairs", len(quotes))
	case config.VenueGateway:
		client := gateway.NewClient(cfg.Gateway.BaseURL,
			gateway.WithRateLimit(cfg.Gateway.QueryRatePerSec, cfg.Gateway.TxRatePerSec))
		prices, venue, bank, automation = client, client, client, client
		slog.Debug("venue: gateway", "base_url", cfg.Gateway.BaseURL)
	}

	a.engine, err = engine.New(store, prices, clock, engineCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.host = host.New(a.engine, venue, bank, automation, store, clock)
	return a, nil
}

// Close releases both databases.
func (a *app) Close() {
	if a.ledger != nil {
		a.ledger.Close()
	}
	a.store.Close()
}

// requirePaper fails for commands that only make sense against the simulated venue.
func (a *app) requirePaper() error {
	if a.paper == nil {
		return fmt.Errorf("this command needs venue: %s (configured: %s)", config.VenuePaper, a.cfg.Venue)
	}
	return nil
}

// printReport summarizes the settled effects of one invocation.
func printReport(w io.Writer, report host.Report) {
	if report.VaultID != 0 {
		fmt.Fprintf(w, "vault %d\n", report.VaultID)
	}
	for _, t := range report.Transfers {
		fmt.Fprintf(w, "  sent %s to %s\n", t.Coin, t.To)
	}
	for _, c := range report.Funded {
		fmt.Fprintf(w, "  funded community pool with %s\n", c)
	}
	for _, r := range report.Replies {
		status := "ok"
		if !r.Succeeded() {
			status = "failed: " + r.Err.Error()
		}
		fmt.Fprintf(w, "  %s %s\n", r.Kind, status)
	}
	if report.Disbursed > 0 {
		fmt.Fprintf(w, "  disbursed %d escrow tasks\n", report.Disbursed)
	}
	if report.VaultID == 0 && len(report.Transfers)+len(report.Funded)+len(report.Replies)+report.Disbursed == 0 {
		fmt.Fprintln(w, "ok")
	}
}
