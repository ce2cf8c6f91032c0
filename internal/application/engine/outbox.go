package engine

import (
	"context"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

// Outbox lists messages of committed invocations that were not settled yet, oldest first.
func (e *Engine) Outbox(ctx context.Context, limit int) ([]domain.Envelope, error) {
	return e.store.GetOutbox(ctx, clampLimit(limit, e.cfg.DefaultPageLimit))
}

// AckMessage drops a settled message from the outbox.
func (e *Engine) AckMessage(ctx context.Context, id uint64) error {
	return e.store.DeleteOutbox(ctx, id)
}

// NackMessage records a failed settlement attempt; the message stays queued.
func (e *Engine) NackMessage(ctx context.Context, id uint64) error {
	return e.store.MarkOutboxAttempt(ctx, id)
}

// RecordReply keeps a call's answer with the queued call until HandleReply consumes
// both, so a retried settlement redelivers the answer instead of calling again.
func (e *Engine) RecordReply(ctx context.Context, id uint64, reply domain.Reply) error {
	return e.store.SaveOutboxReply(ctx, id, reply)
}
