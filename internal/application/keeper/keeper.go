// Package keeper is the bot that pokes the engine: it retries unsettled messages, fires due
// time triggers, withdraws filled limit orders and sweeps due DCA+ escrow disbursements,
// one invocation at a time.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/dcavault/internal/application/host"
	"github.com/alejandrodnm/dcavault/internal/domain"
	"github.com/alejandrodnm/dcavault/internal/metrics"
	"github.com/alejandrodnm/dcavault/internal/ports"
)

const (
	actionExecuteTime  = "execute_time"
	actionExecuteLimit = "execute_limit_order"
	actionSweep        = "sweep"
	actionSettle       = "settle"
)

// Config holds the keeper settings.
type Config struct {
	PollInterval     time.Duration
	BatchLimit       int
	IterationTimeout time.Duration
	// Admin signs escrow sweeps. Sweeping is skipped when empty.
	Admin  string
	DryRun bool // run a single cycle and return
}

// Runner executes engine invocations through the host.
type Runner interface {
	// Settle retries messages earlier invocations could not settle.
	Settle(ctx context.Context) (host.Report, error)
	ExecuteTrigger(ctx context.Context, vaultID uint64) (host.Report, error)
	SweepDisburseEscrowTasks(ctx context.Context, sender string, limit int) (host.Report, error)
}

// Queries finds the work due.
type Queries interface {
	GetDueTimeTriggers(ctx context.Context, before time.Time, limit int) ([]uint64, error)
	GetLimitOrderTriggers(ctx context.Context, startAfter *uint64, limit int) ([]domain.Trigger, error)
	GetDueDisburseEscrowTasks(ctx context.Context, due time.Time, limit int) ([]domain.DisburseEscrowTask, error)
	Now() time.Time
}

// Keeper is the polling loop.
type Keeper struct {
	cfg      Config
	runner   Runner
	queries  Queries
	notifier ports.Notifier
}

// New creates a Keeper. notifier may be nil.
func New(cfg Config, runner Runner, queries Queries, notifier ports.Notifier) *Keeper {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 30
	}
	if cfg.IterationTimeout <= 0 {
		cfg.IterationTimeout = time.Minute
	}
	return &Keeper{cfg: cfg, runner: runner, queries: queries, notifier: notifier}
}

// Run polls until ctx is cancelled. With DryRun set it runs one cycle only.
func (k *Keeper) Run(ctx context.Context) error {
	slog.Info("keeper: starting",
		"interval", k.cfg.PollInterval,
		"batch_limit", k.cfg.BatchLimit,
		"dry_run", k.cfg.DryRun,
	)

	if _, err := k.runCycle(ctx); err != nil {
		slog.Error("keeper: cycle failed", "err", err)
		if k.cfg.DryRun {
			return err
		}
	}
	if k.cfg.DryRun {
		return nil
	}

	ticker := time.NewTicker(k.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("keeper: stopped")
			return nil
		case <-ticker.C:
			if _, err := k.runCycle(ctx); err != nil {
				slog.Error("keeper: cycle failed", "err", err)
			}
		}
	}
}

// RunOnce runs exactly one cycle and returns its summary.
func (k *Keeper) RunOnce(ctx context.Context) (domain.KeeperCycle, error) {
	return k.runCycle(ctx)
}

func (k *Keeper) runCycle(ctx context.Context) (domain.KeeperCycle, error) {
	ctx, cancel := context.WithTimeout(ctx, k.cfg.IterationTimeout)
	defer cancel()

	start := time.Now()
	cycle := domain.KeeperCycle{At: k.queries.Now()}

	_, err := k.runner.Settle(ctx)
	k.record(&cycle, actionSettle, 0, err)

	if err := k.executeTimeTriggers(ctx, &cycle); err != nil {
		return cycle, err
	}
	if err := k.executeLimitOrders(ctx, &cycle); err != nil {
		return cycle, err
	}
	if err := k.sweepEscrow(ctx, &cycle); err != nil {
		return cycle, err
	}

	cycle.Duration = time.Since(start)
	metrics.KeeperCycleDone(cycle.At)

	if k.notifier != nil {
		if err := k.notifier.NotifyCycle(ctx, cycle); err != nil {
			slog.Warn("keeper: notifier error", "err", err)
		}
	}
	slog.Info("keeper: cycle complete",
		"time_executed", cycle.TimeExecuted,
		"limit_executed", cycle.LimitExecuted,
		"waiting", cycle.Waiting,
		"failed", cycle.Failed,
		"escrow_swept", cycle.EscrowSwept,
		"duration", cycle.Duration.Round(time.Millisecond),
	)
	return cycle, nil
}

// executeTimeTriggers fires one batch of due time triggers, oldest first.
func (k *Keeper) executeTimeTriggers(ctx context.Context, cycle *domain.KeeperCycle) error {
	ids, err := k.queries.GetDueTimeTriggers(ctx, cycle.At, k.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("keeper.executeTimeTriggers: %w", err)
	}
	for _, id := range ids {
		_, err := k.runner.ExecuteTrigger(ctx, id)
		if k.record(cycle, actionExecuteTime, id, err) {
			cycle.TimeExecuted++
		}
	}
	return nil
}

// executeLimitOrders pages through every placed limit order and withdraws the filled ones.
func (k *Keeper) executeLimitOrders(ctx context.Context, cycle *domain.KeeperCycle) error {
	var startAfter *uint64
	for {
		triggers, err := k.queries.GetLimitOrderTriggers(ctx, startAfter, k.cfg.BatchLimit)
		if err != nil {
			return fmt.Errorf("keeper.executeLimitOrders: %w", err)
		}
		for _, t := range triggers {
			if t.OrderHandle == nil {
				continue
			}
			_, err := k.runner.ExecuteTrigger(ctx, t.VaultID)
			if k.record(cycle, actionExecuteLimit, t.VaultID, err) {
				cycle.LimitExecuted++
			}
		}
		if len(triggers) < k.cfg.BatchLimit {
			return nil
		}
		last := triggers[len(triggers)-1].VaultID
		startAfter = &last
	}
}

// sweepEscrow releases every DCA+ escrow whose disbursement is due.
func (k *Keeper) sweepEscrow(ctx context.Context, cycle *domain.KeeperCycle) error {
	if k.cfg.Admin == "" {
		return nil
	}
	tasks, err := k.queries.GetDueDisburseEscrowTasks(ctx, cycle.At, k.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("keeper.sweepEscrow: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}
	report, err := k.runner.SweepDisburseEscrowTasks(ctx, k.cfg.Admin, k.cfg.BatchLimit)
	if k.record(cycle, actionSweep, 0, err) {
		cycle.EscrowSwept += report.Disbursed
	}
	return nil
}

// record classifies one invocation outcome and reports whether it went through.
func (k *Keeper) record(cycle *domain.KeeperCycle, action string, vaultID uint64, err error) bool {
	metrics.KeeperAction(action, err)
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrPreconditionNotMet):
		cycle.Waiting++
		slog.Debug("keeper: not ready", "action", action, "vault_id", vaultID, "reason", err)
	default:
		cycle.Failed++
		cycle.Errors = append(cycle.Errors, fmt.Sprintf("%s vault %d: %v", action, vaultID, err))
		slog.Error("keeper: action failed", "action", action, "vault_id", vaultID, "err", err)
	}
	return false
}
