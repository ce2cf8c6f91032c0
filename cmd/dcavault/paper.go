package main

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/spf13/cobra"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

func newPaperCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paper",
		Short: "Inspect and drive the simulated venue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "orders <pair-address>",
		Short: "List resting limit orders of a pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := background(cmd)
			a, err := openApp(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requirePaper(); err != nil {
				return err
			}

			orders, err := a.ledger.GetOpenPaperOrders(ctx, args[0])
			if err != nil {
				return err
			}
			a.console.PrintOrders(orders)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "fill <order-handle> <share>",
		Short: "Match a share (0..1] of a resting order's original offer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			share, err := sdkmath.LegacyNewDecFromStr(args[1])
			if err != nil || !share.IsPositive() || share.GT(sdkmath.LegacyOneDec()) {
				return fmt.Errorf("share must be in (0, 1], got %q", args[1])
			}
			ctx := background(cmd)
			a, err := openApp(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requirePaper(); err != nil {
				return err
			}

			order, err := a.paper.Fill(ctx, domain.OrderHandle(args[0]), share)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "order %s %s: filled %s%s, resting %s%s\n",
				order.Handle, order.Status, order.Filled, order.ReceiveDenom, order.Offer, order.OfferDenom)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "balances <address>",
		Short: "Show what an address has received on the simulated bank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := background(cmd)
			a, err := openApp(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requirePaper(); err != nil {
				return err
			}

			coins, err := a.ledger.GetPaperBalances(ctx, args[0])
			if err != nil {
				return err
			}
			a.console.PrintBalances(args[0], coins)
			return nil
		},
	})

	return cmd
}
