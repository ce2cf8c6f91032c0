package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/dcavault/internal/application/engine"
	"github.com/alejandrodnm/dcavault/internal/domain"
	"github.com/alejandrodnm/dcavault/internal/metrics"
	"github.com/alejandrodnm/dcavault/internal/ports"
)

const (
	maxReplyDepth = 8
	outboxBatch   = 100
)

// Report is everything one invocation caused once its messages were settled.
type Report struct {
	VaultID   uint64
	Transfers []domain.Transfer
	Funded    []domain.Coin // community pool
	Replies   []domain.Reply
	Disbursed int
}

// Runtime plays the host: it runs one engine invocation at a time, settles the ordered
// messages of every committed response and delivers each external call's reply back to
// the engine before anything else runs. Messages come from the engine's outbox and are
// only removed from it once settled, so a failed transfer is retried by the next
// invocation or Settle.
type Runtime struct {
	mu         sync.Mutex
	engine     *engine.Engine
	venue      ports.SwapVenue
	bank       ports.Bank
	automation ports.Automation
	journal    ports.CallJournal
	clock      ports.Clock
}

// New creates a runtime. journal may be nil.
func New(eng *engine.Engine, venue ports.SwapVenue, bank ports.Bank, automation ports.Automation, journal ports.CallJournal, clock ports.Clock) *Runtime {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Runtime{
		engine:     eng,
		venue:      venue,
		bank:       bank,
		automation: automation,
		journal:    journal,
		clock:      clock,
	}
}

// Engine exposes the wrapped engine for queries.
func (r *Runtime) Engine() *engine.Engine { return r.engine }

// Invoke runs fn exclusively and settles its response. Messages left unsettled by earlier
// invocations are retried first; their failures are logged, not returned. If fn fails
// nothing was committed and nothing is settled.
func (r *Runtime) Invoke(ctx context.Context, fn func(ctx context.Context, e *engine.Engine) (engine.Response, error)) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.resume(ctx); err != nil {
		slog.Warn("host: outbox retry incomplete", "err", err)
	}

	resp, err := fn(ctx, r.engine)
	if err != nil {
		return Report{}, err
	}
	report := Report{VaultID: resp.VaultID, Disbursed: resp.Disbursed}
	if err := r.settle(ctx, resp.Envelopes(), &report, 0); err != nil {
		return report, err
	}
	return report, nil
}

// Settle retries the messages earlier invocations left in the outbox.
func (r *Runtime) Settle(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resume(ctx)
}

func (r *Runtime) resume(ctx context.Context) (Report, error) {
	var report Report
	envs, err := r.engine.Outbox(ctx, outboxBatch)
	if err != nil {
		return report, fmt.Errorf("host: load outbox: %w", err)
	}
	if len(envs) > 0 {
		slog.Info("host: retrying unsettled messages", "count", len(envs))
	}
	return report, r.settle(ctx, envs, &report, 0)
}

// ExecuteTrigger fires one vault's trigger.
func (r *Runtime) ExecuteTrigger(ctx context.Context, vaultID uint64) (Report, error) {
	return r.Invoke(ctx, func(ctx context.Context, e *engine.Engine) (engine.Response, error) {
		return e.ExecuteTrigger(ctx, vaultID)
	})
}

// CreateVault opens a vault.
func (r *Runtime) CreateVault(ctx context.Context, sender string, req engine.CreateVaultRequest) (Report, error) {
	return r.Invoke(ctx, func(ctx context.Context, e *engine.Engine) (engine.Response, error) {
		return e.CreateVault(ctx, sender, req)
	})
}

// Deposit tops up a vault.
func (r *Runtime) Deposit(ctx context.Context, sender string, vaultID uint64, coin domain.Coin) (Report, error) {
	return r.Invoke(ctx, func(ctx context.Context, e *engine.Engine) (engine.Response, error) {
		return e.Deposit(ctx, sender, vaultID, coin)
	})
}

// CancelVault cancels a vault.
func (r *Runtime) CancelVault(ctx context.Context, sender string, vaultID uint64) (Report, error) {
	return r.Invoke(ctx, func(ctx context.Context, e *engine.Engine) (engine.Response, error) {
		return e.CancelVault(ctx, sender, vaultID)
	})
}

// ClaimEscrowedFunds releases an owner's DCA+ escrow.
func (r *Runtime) ClaimEscrowedFunds(ctx context.Context, sender string, vaultID uint64) (Report, error) {
	return r.Invoke(ctx, func(ctx context.Context, e *engine.Engine) (engine.Response, error) {
		return e.ClaimEscrowedFunds(ctx, sender, vaultID)
	})
}

// DisburseEscrow releases a DCA+ vault's escrow on the admin's behalf.
func (r *Runtime) DisburseEscrow(ctx context.Context, sender string, vaultID uint64) (Report, error) {
	return r.Invoke(ctx, func(ctx context.Context, e *engine.Engine) (engine.Response, error) {
		return e.DisburseEscrow(ctx, sender, vaultID)
	})
}

// SweepDisburseEscrowTasks fires every due escrow disbursement.
func (r *Runtime) SweepDisburseEscrowTasks(ctx context.Context, sender string, limit int) (Report, error) {
	return r.Invoke(ctx, func(ctx context.Context, e *engine.Engine) (engine.Response, error) {
		return e.SweepDisburseEscrowTasks(ctx, sender, limit)
	})
}

// settle executes messages in order. A call's reply, and everything the reply queues, is
// settled before the next sibling message. A message that fails stays queued and does
// not stop its siblings.
func (r *Runtime) settle(ctx context.Context, envs []domain.Envelope, report *Report, depth int) error {
	if depth > maxReplyDepth {
		return fmt.Errorf("%w: reply chain deeper than %d", domain.ErrFatal, maxReplyDepth)
	}
	var errs []error
	for _, env := range envs {
		if err := r.deliver(ctx, env, report, depth); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) deliver(ctx context.Context, env domain.Envelope, report *Report, depth int) error {
	switch m := env.Message.(type) {
	case domain.Transfer:
		err := r.bank.Send(ctx, m.To, m.Coin)
		metrics.MessageSettled("transfer", err)
		if err != nil {
			r.nack(ctx, env)
			return fmt.Errorf("host: send %s to %s: %w", m.Coin, m.To, err)
		}
		report.Transfers = append(report.Transfers, m)
		return r.ack(ctx, env)

	case domain.FundCommunityPool:
		err := r.bank.FundCommunityPool(ctx, m.Coin)
		metrics.MessageSettled("community_pool", err)
		if err != nil {
			r.nack(ctx, env)
			return fmt.Errorf("host: fund community pool %s: %w", m.Coin, err)
		}
		report.Funded = append(report.Funded, m.Coin)
		return r.ack(ctx, env)

	case domain.Call:
		reply := env.Reply
		if reply == nil {
			r.journalCall(ctx, m)
			got := r.call(ctx, m)
			metrics.MessageSettled("call_"+string(m.Kind), replyErr(got))
			r.journalReply(ctx, got)
			if env.ID != 0 {
				if err := r.engine.RecordReply(ctx, env.ID, got); err != nil {
					slog.Warn("host: keep reply", "correlation_id", m.CorrelationID, "err", err)
				}
			}
			reply = &got
		}
		report.Replies = append(report.Replies, *reply)

		// HandleReply removes the call from the outbox when it commits.
		resp, err := r.engine.HandleReply(ctx, *reply)
		if err != nil {
			slog.Error("host: reply rejected", "vault_id", m.VaultID, "kind", m.Kind, "correlation_id", m.CorrelationID, "err", err)
			if errors.Is(err, domain.ErrFatal) {
				// it will never be accepted
				_ = r.ack(ctx, env)
			} else {
				r.nack(ctx, env)
			}
			return fmt.Errorf("host: %s reply for vault %d: %w", m.Kind, m.VaultID, err)
		}
		return r.settle(ctx, resp.Envelopes(), report, depth+1)

	default:
		return fmt.Errorf("%w: unknown message %T", domain.ErrFatal, env.Message)
	}
}

func (r *Runtime) ack(ctx context.Context, env domain.Envelope) error {
	if env.ID == 0 {
		return nil
	}
	if err := r.engine.AckMessage(ctx, env.ID); err != nil {
		slog.Error("host: settled message left in outbox", "outbox_id", env.ID, "err", err)
		return fmt.Errorf("host: ack %d: %w", env.ID, err)
	}
	return nil
}

func (r *Runtime) nack(ctx context.Context, env domain.Envelope) {
	if env.ID == 0 {
		return
	}
	if err := r.engine.NackMessage(ctx, env.ID); err != nil {
		slog.Warn("host: count settlement attempt", "outbox_id", env.ID, "err", err)
	}
}

// call performs an external call and turns its outcome into a reply.
func (r *Runtime) call(ctx context.Context, c domain.Call) domain.Reply {
	reply := domain.Reply{CorrelationID: c.CorrelationID, VaultID: c.VaultID, Kind: c.Kind}
	var err error
	switch c.Kind {
	case domain.OpSwap:
		if c.Swap == nil {
			err = fmt.Errorf("swap call without request")
			break
		}
		var res domain.SwapResult
		if res, err = r.venue.Swap(ctx, *c.Swap); err == nil {
			reply.Swap = &res
		}
	case domain.OpSubmitOrder:
		if c.LimitOrder == nil {
			err = fmt.Errorf("submit call without request")
			break
		}
		var handle domain.OrderHandle
		if handle, err = r.venue.SubmitLimitOrder(ctx, *c.LimitOrder); err == nil {
			reply.OrderHandle = &handle
		}
	case domain.OpRetractOrder:
		amount, callErr := r.venue.RetractOrder(ctx, c.Pair, c.Handle)
		if err = callErr; err == nil {
			reply.Amount = &amount
		}
	case domain.OpWithdrawOrder, domain.OpWithdrawRetracted:
		amount, callErr := r.venue.WithdrawOrder(ctx, c.Pair, c.Handle)
		if err = callErr; err == nil {
			reply.Amount = &amount
		}
	case domain.OpAutomation:
		if c.Automation == nil {
			err = fmt.Errorf("automation call without request")
			break
		}
		err = r.automation.Automate(ctx, *c.Automation)
	default:
		err = fmt.Errorf("unknown call kind %q", c.Kind)
	}
	if err != nil {
		reply.Err = domain.AsVenueError(err)
		slog.Warn("host: call failed", "vault_id", c.VaultID, "kind", c.Kind, "reason", reply.Err.Reason, "err", err)
	}
	return reply
}

func (r *Runtime) journalCall(ctx context.Context, c domain.Call) {
	if r.journal == nil {
		return
	}
	if err := r.journal.RecordCall(ctx, c, r.clock.Now()); err != nil {
		slog.Warn("host: journal call", "correlation_id", c.CorrelationID, "err", err)
	}
}

func (r *Runtime) journalReply(ctx context.Context, reply domain.Reply) {
	if r.journal == nil {
		return
	}
	if err := r.journal.RecordReply(ctx, reply, r.clock.Now()); err != nil {
		slog.Warn("host: journal reply", "correlation_id", reply.CorrelationID, "err", err)
	}
}

func replyErr(reply domain.Reply) error {
	if reply.Err == nil {
		return nil
	}
	return reply.Err
}
