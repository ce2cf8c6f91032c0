package ports

import (
	"context"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

// PaperStorage persists the simulated venue's order book and bank ledger.
type PaperStorage interface {
	ApplyPaperSchema(ctx context.Context) error

	SavePaperOrder(ctx context.Context, order domain.PaperOrder) error
	GetPaperOrder(ctx context.Context, handle domain.OrderHandle) (domain.PaperOrder, error)
	GetOpenPaperOrders(ctx context.Context, pairAddress string) ([]domain.PaperOrder, error)

	SavePaperTransfer(ctx context.Context, t domain.PaperTransfer) (int64, error)
	GetPaperTransfers(ctx context.Context, recipient string) ([]domain.PaperTransfer, error)
	// GetPaperBalances sums everything sent to recipient, by denom.
	GetPaperBalances(ctx context.Context, recipient string) ([]domain.Coin, error)
}
