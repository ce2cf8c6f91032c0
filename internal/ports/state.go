package ports

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

// VaultStore persists vaults under monotonic ids.
type VaultStore interface {
	// SaveVault allocates the next id when v.ID is zero and persists the vault.
	SaveVault(ctx context.Context, v domain.Vault) (domain.Vault, error)
	GetVault(ctx context.Context, id uint64) (domain.Vault, error)
	// UpdateVault is a read-modify-write. Nothing is written if fn fails.
	UpdateVault(ctx context.Context, id uint64, fn func(domain.Vault) (domain.Vault, error)) (domain.Vault, error)
	// GetVaults and GetVaultsByOwner page ascending by id; startAfter is exclusive.
	GetVaults(ctx context.Context, startAfter *uint64, limit int) ([]domain.Vault, error)
	GetVaultsByOwner(ctx context.Context, owner string, status *domain.VaultStatus, startAfter *uint64, limit int) ([]domain.Vault, error)
}

// TriggerStore persists the 1:1 trigger of each vault and the due-time index.
type TriggerStore interface {
	SaveTrigger(ctx context.Context, t domain.Trigger) error
	GetTrigger(ctx context.Context, vaultID uint64) (domain.Trigger, error)
	DeleteTrigger(ctx context.Context, vaultID uint64) error
	// GetDueTimeTriggers returns vault ids whose time trigger is at or before the given
	// time, ascending by target time, ties in insertion order.
	GetDueTimeTriggers(ctx context.Context, before time.Time, limit int) ([]uint64, error)
	GetLimitOrderTriggers(ctx context.Context, startAfter *uint64, limit int) ([]domain.Trigger, error)
}

// EventStore is the append-only audit log.
type EventStore interface {
	CreateEvent(ctx context.Context, e domain.Event) (uint64, error)
	GetEvents(ctx context.Context, startAfter *uint64, limit int) ([]domain.Event, error)
	GetEventsByResourceID(ctx context.Context, resourceID uint64, startAfter *uint64, limit int) ([]domain.Event, error)
}

// PendingStore holds the awaiting-reply record of each vault's in-flight saga.
type PendingStore interface {
	SavePending(ctx context.Context, p domain.PendingOperation) error
	GetPending(ctx context.Context, vaultID uint64) (domain.PendingOperation, error)
	DeletePending(ctx context.Context, vaultID uint64) error
}

// EscrowTaskStore schedules DCA+ escrow disbursements.
type EscrowTaskStore interface {
	SaveDisburseEscrowTask(ctx context.Context, t domain.DisburseEscrowTask) error
	GetDueDisburseEscrowTasks(ctx context.Context, due time.Time, limit int) ([]domain.DisburseEscrowTask, error)
	DeleteDisburseEscrowTask(ctx context.Context, vaultID uint64) error
}

// FeeStore holds admin-managed fee and swap adjustment settings.
type FeeStore interface {
	SetCustomSwapFee(ctx context.Context, denom string, rate sdkmath.LegacyDec) error
	RemoveCustomSwapFee(ctx context.Context, denom string) error
	GetCustomSwapFees(ctx context.Context) (map[string]sdkmath.LegacyDec, error)
	SaveSwapAdjustment(ctx context.Context, a domain.SwapAdjustment) error
	GetSwapAdjustment(ctx context.Context, position domain.PositionType, modelID uint8) (domain.SwapAdjustment, error)
}

// OutboxStore keeps the messages of committed invocations until the host settles them.
type OutboxStore interface {
	AppendOutbox(ctx context.Context, vaultID uint64, msg domain.Message, at time.Time) (uint64, error)
	// GetOutbox returns unsettled messages, oldest first.
	GetOutbox(ctx context.Context, limit int) ([]domain.Envelope, error)
	SaveOutboxReply(ctx context.Context, id uint64, reply domain.Reply) error
	// MarkOutboxAttempt counts a failed settlement attempt.
	MarkOutboxAttempt(ctx context.Context, id uint64) error
	DeleteOutbox(ctx context.Context, id uint64) error
	// DeleteOutboxCall drops the call a reply answers. Unknown ids are ignored.
	DeleteOutboxCall(ctx context.Context, correlationID string) error
}

// State is everything one invocation may read or write.
type State interface {
	VaultStore
	TriggerStore
	EventStore
	PendingStore
	EscrowTaskStore
	FeeStore
	OutboxStore
}

// Store is the durable state backend. Atomic runs fn in one transaction: either every
// write made through the State handed to fn commits, or none does.
type Store interface {
	State
	Atomic(ctx context.Context, fn func(State) error) error
	Close() error
}
