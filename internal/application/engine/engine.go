package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/alejandrodnm/dcavault/internal/domain"
	"github.com/alejandrodnm/dcavault/internal/metrics"
	"github.com/alejandrodnm/dcavault/internal/ports"
)

const (
	defaultPageLimit  = 30
	maxPageLimit      = 1000
	maxLabelLength    = 100
	defaultAdjustTTL  = 24 * time.Hour
	feeKindSwap       = "swap"
	feeKindAutomation = "automation"
	feeKindPerf       = "performance"
)

// Config is the engine's explicitly passed configuration.
type Config struct {
	Admin              string
	Paused             bool
	DefaultSwapFee     sdkmath.LegacyDec
	DelegationFee      sdkmath.LegacyDec
	FeeCollectors      []domain.FeeCollector
	DcaPlusEscrowLevel sdkmath.LegacyDec
	SwapAdjustmentTTL  time.Duration
	DefaultPageLimit   int
}

// Validate checks the rates and collector split.
func (c Config) Validate() error {
	if c.Admin == "" {
		return fmt.Errorf("%w: admin is required", domain.ErrInvalidInput)
	}
	for name, rate := range map[string]sdkmath.LegacyDec{
		"default swap fee":      c.DefaultSwapFee,
		"delegation fee":        c.DelegationFee,
		"dca plus escrow level": c.DcaPlusEscrowLevel,
	} {
		if !domain.ValidRate(rate) {
			return fmt.Errorf("%w: %s must be in [0, 1]", domain.ErrInvalidInput, name)
		}
	}
	return domain.ValidateFeeCollectors(c.FeeCollectors)
}

// Response is what a committed invocation hands back to the host: the id of the vault it
// touched (if any) and the messages to settle, in order. Outbox holds the outbox id of
// each message; the messages were queued in the same transaction as the state change.
type Response struct {
	VaultID   uint64
	Messages  []domain.Message
	Outbox    []uint64
	Disbursed int // escrow tasks released by a sweep
}

// Envelopes pairs each message with its outbox id. A message without one was never
// queued and is settled without acknowledgement.
func (r Response) Envelopes() []domain.Envelope {
	envs := make([]domain.Envelope, len(r.Messages))
	for i, msg := range r.Messages {
		envs[i] = domain.Envelope{VaultID: r.VaultID, Message: msg}
		if i < len(r.Outbox) {
			envs[i].ID = r.Outbox[i]
		}
	}
	return envs
}

// Engine runs the vault trigger-and-execution state machine. Every entry point runs in
// one storage transaction and either commits with its messages or leaves no trace.
type Engine struct {
	store  ports.Store
	prices ports.PriceQuoter
	clock  ports.Clock
	cfg    Config
	paused atomic.Bool
}

// New creates an engine. A nil clock uses the system clock.
func New(store ports.Store, prices ports.PriceQuoter, clock ports.Clock, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine.New: %w", err)
	}
	if cfg.SwapAdjustmentTTL <= 0 {
		cfg.SwapAdjustmentTTL = defaultAdjustTTL
	}
	if cfg.DefaultPageLimit <= 0 {
		cfg.DefaultPageLimit = defaultPageLimit
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	e := &Engine{store: store, prices: prices, clock: clock, cfg: cfg}
	e.paused.Store(cfg.Paused)
	return e, nil
}

// Paused reports whether create, deposit and execute are currently rejected.
func (e *Engine) Paused() bool { return e.paused.Load() }

// txn is the scope of one invocation: the transactional state, the invocation time,
// queued messages and the side effects to run once the transaction commits.
type txn struct {
	ctx     context.Context
	st      ports.State
	now     time.Time
	vaultID uint64
	msgs    []domain.Message
	queued  []uint64
	count   int
	after   []func()
}

func (t *txn) send(msgs ...domain.Message) {
	t.msgs = append(t.msgs, msgs...)
}

// enqueue writes the queued messages to the outbox as part of the transaction.
func (t *txn) enqueue() error {
	for _, msg := range t.msgs {
		id, err := t.st.AppendOutbox(t.ctx, t.vaultID, msg, t.now)
		if err != nil {
			return err
		}
		t.queued = append(t.queued, id)
	}
	return nil
}

func (t *txn) onCommit(fn func()) {
	t.after = append(t.after, fn)
}

func (t *txn) event(vaultID uint64, data domain.EventData) error {
	if _, err := t.st.CreateEvent(t.ctx, domain.NewEvent(vaultID, t.now, data)); err != nil {
		return fmt.Errorf("record %s: %w", data.Type, err)
	}
	return nil
}

// invoke runs fn in one transaction together with the outbox writes of its messages.
// Metrics and post-commit hooks only fire on commit.
func (e *Engine) invoke(ctx context.Context, op string, fn func(*txn) error) (Response, error) {
	start := time.Now()
	var tx *txn
	err := e.store.Atomic(ctx, func(st ports.State) error {
		tx = &txn{ctx: ctx, st: st, now: e.clock.Now().UTC()}
		if err := fn(tx); err != nil {
			return err
		}
		return tx.enqueue()
	})
	metrics.ObserveInvocation(op, err, time.Since(start))
	if err != nil {
		slog.Debug("engine: invocation rejected", "op", op, "err", err)
		return Response{}, err
	}
	for _, f := range tx.after {
		f()
	}
	return Response{VaultID: tx.vaultID, Messages: tx.msgs, Outbox: tx.queued, Disbursed: tx.count}, nil
}

func (e *Engine) requireActive() error {
	if e.paused.Load() {
		return domain.ErrPaused
	}
	return nil
}

func (e *Engine) requireAdmin(sender string) error {
	if sender != e.cfg.Admin {
		return fmt.Errorf("%w: %s is not the admin", domain.ErrUnauthorized, sender)
	}
	return nil
}

// requireIdle fails when the vault already has a saga awaiting a reply.
func requireIdle(tx *txn, vaultID uint64) error {
	_, err := tx.st.GetPending(tx.ctx, vaultID)
	switch {
	case err == nil:
		return fmt.Errorf("vault %d: %w", vaultID, domain.ErrSagaInFlight)
	case domain.IsNotFound(err):
		return nil
	default:
		return err
	}
}

// dispatch records the awaiting-reply state and queues the call it correlates with.
// The pending record is always written before the call is queued.
func dispatch(tx *txn, v domain.Vault, call domain.Call, cache *domain.LimitOrderCache) error {
	call.CorrelationID = newCorrelationID()
	call.VaultID = v.ID
	call.Pair = v.Pair
	pending := domain.PendingOperation{
		VaultID:       v.ID,
		Kind:          call.Kind,
		CorrelationID: call.CorrelationID,
		Owner:         v.Owner,
		LimitOrder:    cache,
		CreatedAt:     tx.now,
	}
	if err := tx.st.SavePending(tx.ctx, pending); err != nil {
		return fmt.Errorf("save pending %s: %w", call.Kind, err)
	}
	tx.send(call)
	slog.Debug("engine: dispatched", "vault_id", v.ID, "kind", call.Kind, "correlation_id", call.CorrelationID)
	return nil
}

func newCorrelationID() string { return uuid.NewString() }

func clampLimit(limit, def int) int {
	switch {
	case limit <= 0:
		return def
	case limit > maxPageLimit:
		return maxPageLimit
	}
	return limit
}
