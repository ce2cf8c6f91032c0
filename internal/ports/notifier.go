package ports

import (
	"context"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

// Notifier presents keeper activity to an operator.
type Notifier interface {
	NotifyCycle(ctx context.Context, cycle domain.KeeperCycle) error
}
