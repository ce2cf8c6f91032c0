package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

const namespace = "dcavault"

var (
	engineInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "invocations_total",
			Help:      "Engine entry point invocations by operation and status",
		},
		[]string{"operation", "status"}, // status: ok, rejected, failed
	)

	engineInvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "invocation_duration_seconds",
			Help:      "Duration of engine entry points including the storage transaction",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	engineExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Vault executions by trigger kind and outcome",
		},
		[]string{"trigger", "outcome"}, // outcome: completed, skipped
	)

	engineSkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "execution_skips_total",
			Help:      "Skipped executions by reason",
		},
		[]string{"reason"},
	)

	engineFeesCollected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "fees_collected_total",
			Help:      "Fees sent to the fee collectors, in base units of denom",
		},
		[]string{"kind", "denom"}, // kind: swap, automation, performance
	)

	engineEscrowDisbursed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "escrow_disbursed_total",
			Help:      "DCA+ escrow released to vault owners, in base units of denom",
		},
		[]string{"denom"},
	)

	hostMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "messages_total",
			Help:      "Settled messages by type and status",
		},
		[]string{"type", "status"},
	)

	keeperActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "actions_total",
			Help:      "Keeper actions by kind and status",
		},
		[]string{"action", "status"}, // action: execute_time, execute_limit_order, sweep
	)

	keeperLastCycleTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "last_cycle_timestamp",
			Help:      "Unix timestamp of the last completed keeper cycle",
		},
	)
)

// Register adds every collector, plus the Go and process collectors, to registry.
func Register(registry *prometheus.Registry) error {
	all := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		engineInvocationsTotal,
		engineInvocationDuration,
		engineExecutionsTotal,
		engineSkipsTotal,
		engineFeesCollected,
		engineEscrowDisbursed,
		hostMessagesTotal,
		keeperActionsTotal,
		keeperLastCycleTimestamp,
	}
	for _, c := range all {
		if err := registry.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}

// ObserveInvocation records one engine entry point. Precondition and input errors
// count as rejected, anything else as failed.
func ObserveInvocation(operation string, err error, elapsed time.Duration) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrPreconditionNotMet),
		errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrNotFound):
		status = "rejected"
	default:
		status = "failed"
	}
	engineInvocationsTotal.WithLabelValues(operation, status).Inc()
	engineInvocationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ExecutionCompleted counts a swap or limit-order withdrawal that moved funds.
func ExecutionCompleted(trigger domain.TriggerKind) {
	engineExecutionsTotal.WithLabelValues(string(trigger), "completed").Inc()
}

// ExecutionSkipped counts an execution that did not move funds.
func ExecutionSkipped(trigger domain.TriggerKind, reason domain.SkipReason) {
	engineExecutionsTotal.WithLabelValues(string(trigger), "skipped").Inc()
	engineSkipsTotal.WithLabelValues(string(reason)).Inc()
}

// FeeCollected adds a fee payment. Amounts beyond float64 precision are approximated.
func FeeCollected(kind string, coin domain.Coin) {
	if coin.IsZero() {
		return
	}
	engineFeesCollected.WithLabelValues(kind, coin.Denom).Add(approx(coin))
}

// EscrowDisbursed adds an escrow release to the owner.
func EscrowDisbursed(coin domain.Coin) {
	if coin.IsZero() {
		return
	}
	engineEscrowDisbursed.WithLabelValues(coin.Denom).Add(approx(coin))
}

// MessageSettled counts one host message settlement.
func MessageSettled(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	hostMessagesTotal.WithLabelValues(kind, status).Inc()
}

// KeeperAction counts one keeper invocation. Unmet preconditions count as waiting.
func KeeperAction(action string, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPreconditionNotMet):
		status = "waiting"
	default:
		status = "error"
	}
	keeperActionsTotal.WithLabelValues(action, status).Inc()
}

// KeeperCycleDone stamps the end of a keeper cycle.
func KeeperCycleDone(at time.Time) {
	keeperLastCycleTimestamp.Set(float64(at.Unix()))
}

func approx(c domain.Coin) float64 {
	f, _ := c.Amount.ToLegacyDec().Float64()
	return f
}
