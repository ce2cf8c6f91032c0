package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/dcavault/config"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // log format, overrides config
	Sender     string

	cfg *config.Config
}

var validFormats = []string{"", "text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "dcavault",
		Short:         "Dollar-cost averaging vaults",
		Long:          "Creates and runs DCA vaults: scheduled swaps, limit-order starts, fee routing and DCA+ escrow.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be text or json", opts.Format)
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.Verbose {
				cfg.Log.Level = "debug"
			}
			if opts.Format != "" {
				cfg.Log.Format = opts.Format
			}
			setupLogger(cfg.Log)
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "config/config.yaml", "path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "set log level to debug")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "", "log format: text|json (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Sender, "sender", "", "address signing the command (admin commands default to the configured admin)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newVaultsCommand(opts))
	cmd.AddCommand(newEventsCommand(opts))
	cmd.AddCommand(newCallsCommand(opts))
	cmd.AddCommand(newPerformanceCommand(opts))
	cmd.AddCommand(newCreateCommand(opts))
	cmd.AddCommand(newDepositCommand(opts))
	cmd.AddCommand(newUpdateCommand(opts))
	cmd.AddCommand(newCancelCommand(opts))
	cmd.AddCommand(newClaimCommand(opts))
	cmd.AddCommand(newExecuteCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newDisburseCommand(opts))
	cmd.AddCommand(newFeesCommand(opts))
	cmd.AddCommand(newAdjustCommand(opts))
	cmd.AddCommand(newPaperCommand(opts))

	return cmd
}

// sender returns --sender, failing when it is required and missing.
func (o *rootOptions) sender() (string, error) {
	if o.Sender == "" {
		return "", fmt.Errorf("--sender is required")
	}
	return o.Sender, nil
}

// admin returns --sender, or the configured admin.
func (o *rootOptions) admin() string {
	if o.Sender != "" {
		return o.Sender
	}
	return o.cfg.Engine.Admin
}

func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}

func parseVaultID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid vault id %q", s)
	}
	return id, nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
