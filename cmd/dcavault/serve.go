package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/alejandrodnm/dcavault/internal/application/keeper"
	"github.com/alejandrodnm/dcavault/internal/metrics"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the keeper loop and the metrics endpoint",
		Long: `Run the keeper: every poll it fires due time triggers, withdraws filled
limit orders and sweeps due DCA+ escrow disbursements. Metrics are served on
metrics.addr when set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := openApp(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			registry := prometheus.NewRegistry()
			if err := metrics.Register(registry); err != nil {
				return err
			}
			if addr := a.cfg.Metrics.Addr; addr != "" && !once {
				srv := metrics.NewServer(addr, registry)
				go func() {
					if err := srv.Run(ctx); err != nil {
						slog.Error("metrics server failed", "err", err)
						cancel()
					}
				}()
			}

			slog.Info("dcavault starting",
				"config", opts.ConfigPath,
				"venue", a.cfg.Venue,
				"storage", a.cfg.Storage.DSN,
				"once", once,
			)

			k := keeper.New(a.cfg.KeeperConfig(once), a.host, a.engine, a.console)
			if err := k.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}

			slog.Info("dcavault stopped cleanly")
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run one keeper cycle and exit")
	return cmd
}

// background is the context for one-shot commands.
func background(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
