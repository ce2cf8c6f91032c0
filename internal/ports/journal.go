package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

// CallJournal keeps an audit trail of every external call the host settles.
type CallJournal interface {
	RecordCall(ctx context.Context, call domain.Call, at time.Time) error
	RecordReply(ctx context.Context, reply domain.Reply, at time.Time) error
	GetCalls(ctx context.Context, vaultID uint64, limit int) ([]domain.CallRecord, error)
}
