package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/spf13/cobra"

	"github.com/alejandrodnm/dcavault/internal/application/engine"
	"github.com/alejandrodnm/dcavault/internal/application/host"
	"github.com/alejandrodnm/dcavault/internal/domain"
)

// createOptions holds flags for the create command.
type createOptions struct {
	Owner        string
	Label        string
	Deposit      string
	PairAddress  string
	BaseDenom    string
	QuoteDenom   string
	Route        []string
	SwapAmount   string
	Slippage     string
	Every        string
	EverySeconds int64
	StartAt      string
	TargetPrice  string
	DcaPlus      bool
	Destinations []string
}

func (o *createOptions) request() (engine.CreateVaultRequest, error) {
	deposit, err := domain.ParseCoin(o.Deposit)
	if err != nil {
		return engine.CreateVaultRequest{}, fmt.Errorf("--deposit: %w", err)
	}
	swap, ok := sdkmath.NewIntFromString(o.SwapAmount)
	if !ok {
		return engine.CreateVaultRequest{}, fmt.Errorf("--swap-amount: %q is not an integer", o.SwapAmount)
	}
	req := engine.CreateVaultRequest{
		Owner:   o.Owner,
		Label:   o.Label,
		Deposit: deposit,
		Pair: domain.Pair{
			Address:    o.PairAddress,
			BaseDenom:  o.BaseDenom,
			QuoteDenom: o.QuoteDenom,
			Route:      o.Route,
		},
		SwapAmount:   swap,
		TimeInterval: domain.TimeInterval{Kind: domain.IntervalKind(o.Every)},
		DcaPlus:      o.DcaPlus,
	}
	if o.EverySeconds > 0 {
		req.TimeInterval = domain.Custom(o.EverySeconds)
	}
	if o.Slippage != "" {
		d, err := sdkmath.LegacyNewDecFromStr(o.Slippage)
		if err != nil {
			return engine.CreateVaultRequest{}, fmt.Errorf("--slippage: %w", err)
		}
		req.SlippageTolerance = &d
	}
	if o.TargetPrice != "" {
		d, err := sdkmath.LegacyNewDecFromStr(o.TargetPrice)
		if err != nil {
			return engine.CreateVaultRequest{}, fmt.Errorf("--target-price: %w", err)
		}
		req.TargetPrice = &d
	}
	if o.StartAt != "" {
		t, err := time.Parse(time.RFC3339, o.StartAt)
		if err != nil {
			return engine.CreateVaultRequest{}, fmt.Errorf("--start-at: %w", err)
		}
		req.TargetStartTime = &t
	}
	for _, raw := range o.Destinations {
		d, err := parseDestination(raw)
		if err != nil {
			return engine.CreateVaultRequest{}, err
		}
		req.Destinations = append(req.Destinations, d)
	}
	return req, nil
}

// parseDestination reads address:allocation[:action[:pool:duration]].
func parseDestination(raw string) (domain.Destination, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) == 4 || len(parts) > 5 {
		return domain.Destination{}, fmt.Errorf("--destination %q: want address:allocation[:action[:pool:duration]]", raw)
	}
	alloc, err := sdkmath.LegacyNewDecFromStr(parts[1])
	if err != nil {
		return domain.Destination{}, fmt.Errorf("--destination %q: %w", raw, err)
	}
	d := domain.Destination{Address: parts[0], Allocation: alloc, Action: domain.ActionSend}
	if len(parts) >= 3 {
		d.Action = domain.PostAction(parts[2])
	}
	if len(parts) == 5 {
		d.Pool, d.Duration = parts[3], parts[4]
	}
	return d, nil
}

func newCreateCommand(opts *rootOptions) *cobra.Command {
	co := &createOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a vault and deposit into it",
		Long: `Create a vault and deposit into it.

Example:
  dcavault create --sender alice --deposit 1000000uusd --pair pair-atom-usd \
    --base uatom --quote uusd --swap-amount 100000 --every daily \
    --destination alice:0.5 --destination valoper1xyz:0.5:delegate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sender, err := opts.sender()
			if err != nil {
				return err
			}
			req, err := co.request()
			if err != nil {
				return err
			}
			return runTx(cmd, opts, func(ctx context.Context, a *app) (host.Report, error) {
				return a.host.CreateVault(ctx, sender, req)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&co.Owner, "owner", "", "vault owner (defaults to the sender)")
	f.StringVar(&co.Label, "label", "", "free text label")
	f.StringVar(&co.Deposit, "deposit", "", "initial deposit, e.g. 1000000uusd")
	f.StringVar(&co.PairAddress, "pair", "", "venue pair address")
	f.StringVar(&co.BaseDenom, "base", "", "pair base denom")
	f.StringVar(&co.QuoteDenom, "quote", "", "pair quote denom")
	f.StringSliceVar(&co.Route, "route", nil, "intermediate denoms of a multi-hop route")
	f.StringVar(&co.SwapAmount, "swap-amount", "", "amount swapped per execution")
	f.StringVar(&co.Slippage, "slippage", "", "max slippage, e.g. 0.01")
	f.StringVar(&co.Every, "every", string(domain.IntervalDaily), "interval: every_minute|half_hourly|hourly|half_daily|daily|weekly|fortnightly|monthly")
	f.Int64Var(&co.EverySeconds, "every-seconds", 0, "custom interval in seconds (overrides --every)")
	f.StringVar(&co.StartAt, "start-at", "", "first execution time (RFC3339)")
	f.StringVar(&co.TargetPrice, "target-price", "", "start with a limit order at this price")
	f.BoolVar(&co.DcaPlus, "dca-plus", false, "withhold an escrow and charge a performance fee instead of the swap fee")
	f.StringArrayVar(&co.Destinations, "destination", nil, "address:allocation[:action[:pool:duration]] (repeatable)")
	for _, name := range []string{"deposit", "pair", "base", "quote", "swap-amount"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newDepositCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <vault-id> <coin>",
		Short: "Top up a vault",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sender, err := opts.sender()
			if err != nil {
				return err
			}
			id, err := parseVaultID(args[0])
			if err != nil {
				return err
			}
			coin, err := domain.ParseCoin(args[1])
			if err != nil {
				return err
			}
			return runTx(cmd, opts, func(ctx context.Context, a *app) (host.Report, error) {
				return a.host.Deposit(ctx, sender, id, coin)
			})
		},
	}
}

func newUpdateCommand(opts *rootOptions) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "update <vault-id>",
		Short: "Change a vault's label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sender, err := opts.sender()
			if err != nil {
				return err
			}
			id, err := parseVaultID(args[0])
			if err != nil {
				return err
			}
			return runTx(cmd, opts, func(ctx context.Context, a *app) (host.Report, error) {
				return a.host.Invoke(ctx, func(ctx context.Context, e *engine.Engine) (engine.Response, error) {
					return e.UpdateVault(ctx, sender, id, label)
				})
			})
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "new label")
	return cmd
}

func newCancelCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <vault-id>",
		Short: "Cancel a vault and refund its balance",
		Args:  cobra.ExactArgs(1),
		RunE: vaultTx(opts, true, func(ctx context.Context, a *app, sender string, id uint64) (host.Report, error) {
			return a.host.CancelVault(ctx, sender, id)
		}),
	}
}

func newClaimCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <vault-id>",
		Short: "Claim the DCA+ escrow of a finished vault",
		Args:  cobra.ExactArgs(1),
		RunE: vaultTx(opts, true, func(ctx context.Context, a *app, sender string, id uint64) (host.Report, error) {
			return a.host.ClaimEscrowedFunds(ctx, sender, id)
		}),
	}
}

func newExecuteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "execute <vault-id>",
		Short: "Fire a vault's trigger now, if it is due",
		Args:  cobra.ExactArgs(1),
		RunE: vaultTx(opts, false, func(ctx context.Context, a *app, _ string, id uint64) (host.Report, error) {
			return a.host.ExecuteTrigger(ctx, id)
		}),
	}
}

func newDisburseCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disburse <vault-id>",
		Short: "Release a vault's DCA+ escrow (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: vaultTx(opts, false, func(ctx context.Context, a *app, _ string, id uint64) (host.Report, error) {
			return a.host.DisburseEscrow(ctx, opts.admin(), id)
		}),
	}
}

func newSweepCommand(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Release every due DCA+ escrow (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTx(cmd, opts, func(ctx context.Context, a *app) (host.Report, error) {
				return a.host.SweepDisburseEscrowTasks(ctx, opts.admin(), limit)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 30, "max tasks to release")
	return cmd
}

// vaultTx builds the RunE of a command taking a single vault id.
func vaultTx(opts *rootOptions, needSender bool, fn func(context.Context, *app, string, uint64) (host.Report, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var sender string
		if needSender {
			s, err := opts.sender()
			if err != nil {
				return err
			}
			sender = s
		}
		id, err := parseVaultID(args[0])
		if err != nil {
			return err
		}
		return runTx(cmd, opts, func(ctx context.Context, a *app) (host.Report, error) {
			return fn(ctx, a, sender, id)
		})
	}
}

// runTx opens the app, runs one invocation and prints what it settled.
func runTx(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *app) (host.Report, error)) error {
	ctx := background(cmd)
	a, err := openApp(ctx, opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := fn(ctx, a)
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}
