package main

import (
	"context"
	"fmt"
	"strconv"

	sdkmath "cosmossdk.io/math"
	"github.com/spf13/cobra"

	"github.com/alejandrodnm/dcavault/internal/application/engine"
	"github.com/alejandrodnm/dcavault/internal/application/host"
	"github.com/alejandrodnm/dcavault/internal/domain"
)

func newFeesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fees",
		Short: "List custom swap fees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := background(cmd)
			a, err := openApp(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			fees, err := a.engine.GetCustomSwapFees(ctx)
			if err != nil {
				return err
			}
			a.console.PrintFees(a.cfg.Engine.DefaultSwapFee, fees)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <denom> <rate>",
		Short: "Set a custom swap fee for a denom (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := sdkmath.LegacyNewDecFromStr(args[1])
			if err != nil {
				return fmt.Errorf("rate: %w", err)
			}
			return runAdmin(cmd, opts, func(ctx context.Context, e *engine.Engine) error {
				return e.CreateCustomSwapFee(ctx, opts.admin(), args[0], rate)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <denom>",
		Short: "Remove a custom swap fee (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(cmd, opts, func(ctx context.Context, e *engine.Engine) error {
				return e.RemoveCustomSwapFee(ctx, opts.admin(), args[0])
			})
		},
	})
	return cmd
}

func newAdjustCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "adjust <enter|exit> <model-id> <value>",
		Short: "Set a DCA+ swap adjustment (admin)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			position := domain.PositionType(args[0])
			model, err := strconv.ParseUint(args[1], 10, 8)
			if err != nil {
				return fmt.Errorf("model id: %w", err)
			}
			value, err := sdkmath.LegacyNewDecFromStr(args[2])
			if err != nil {
				return fmt.Errorf("value: %w", err)
			}
			return runAdmin(cmd, opts, func(ctx context.Context, e *engine.Engine) error {
				return e.UpdateSwapAdjustment(ctx, opts.admin(), position, uint8(model), value)
			})
		},
	}
}

// runAdmin runs a settings change through the host so it is serialized with every
// other invocation.
func runAdmin(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *engine.Engine) error) error {
	return runTx(cmd, opts, func(ctx context.Context, a *app) (host.Report, error) {
		return a.host.Invoke(ctx, func(ctx context.Context, e *engine.Engine) (engine.Response, error) {
			return engine.Response{}, fn(ctx, e)
		})
	})
}
