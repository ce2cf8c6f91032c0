package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

type pageOptions struct {
	StartAfter uint64
	Limit      int
}

func (p *pageOptions) bind(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&p.StartAfter, "start-after", 0, "page cursor (exclusive)")
	cmd.Flags().IntVar(&p.Limit, "limit", 0, "page size (0 uses the configured default)")
}

func (p *pageOptions) cursor() *uint64 {
	if p.StartAfter == 0 {
		return nil
	}
	return &p.StartAfter
}

func newVaultsCommand(opts *rootOptions) *cobra.Command {
	var (
		page   pageOptions
		owner  string
		status string
	)

	cmd := &cobra.Command{
		Use:   "vaults",
		Short: "List vaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := background(cmd)
			a, err := openApp(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			var vaults []domain.Vault
			if owner == "" {
				if status != "" {
					return fmt.Errorf("--status needs --owner")
				}
				vaults, err = a.engine.GetVaults(ctx, page.cursor(), page.Limit)
			} else {
				var filter *domain.VaultStatus
				if status != "" {
					s, err := domain.ParseVaultStatus(status)
					if err != nil {
						return err
					}
					filter = &s
				}
				vaults, err = a.engine.GetVaultsByOwner(ctx, owner, filter, page.cursor(), page.Limit)
			}
			if err != nil {
				return err
			}
			a.console.PrintVaults(vaults)
			return nil
		},
	}

	page.bind(cmd)
	cmd.Flags().StringVar(&owner, "owner", "", "only vaults of this owner")
	cmd.Flags().StringVar(&status, "status", "", "scheduled|active|inactive|cancelled (with --owner)")
	return cmd
}

func newEventsCommand(opts *rootOptions) *cobra.Command {
	var (
		page    pageOptions
		vaultID uint64
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List audit events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := background(cmd)
			a, err := openApp(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			var events []domain.Event
			if vaultID != 0 {
				events, err = a.engine.GetEventsByResourceID(ctx, vaultID, page.cursor(), page.Limit)
			} else {
				events, err = a.engine.GetEvents(ctx, page.cursor(), page.Limit)
			}
			if err != nil {
				return err
			}
			a.console.PrintEvents(events)
			return nil
		},
	}

	page.bind(cmd)
	cmd.Flags().Uint64Var(&vaultID, "vault", 0, "only events of this vault")
	return cmd
}

func newCallsCommand(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "calls <vault-id>",
		Short: "Show the external calls dispatched for a vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseVaultID(args[0])
			if err != nil {
				return err
			}
			ctx := background(cmd)
			a, err := openApp(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			calls, err := a.store.GetCalls(ctx, id, limit)
			if err != nil {
				return err
			}
			a.console.PrintCalls(calls)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "most recent calls to show")
	return cmd
}

func newPerformanceCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "performance <vault-id>",
		Short: "Show the DCA+ performance fee a vault would pay now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseVaultID(args[0])
			if err != nil {
				return err
			}
			ctx := background(cmd)
			a, err := openApp(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			perf, err := a.engine.GetDcaPlusPerformance(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "vault %d: factor %s, fee %s\n", id, perf.Factor, perf.Fee)
			return nil
		},
	}
}
