package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/alejandrodnm/dcavault/internal/domain"
	"github.com/alejandrodnm/dcavault/internal/ports"
)

const paperSchema = `
CREATE TABLE IF NOT EXISTS paper_orders (
    handle       TEXT PRIMARY KEY,
    pair_address TEXT    NOT NULL,
    status       TEXT    NOT NULL,
    placed_at    INTEGER NOT NULL,
    data         TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS paper_transfers (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    recipient TEXT    NOT NULL,
    denom     TEXT    NOT NULL,
    amount    TEXT    NOT NULL,
    kind      TEXT    NOT NULL,
    at        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_paper_orders_pair      ON paper_orders(pair_address, status);
CREATE INDEX IF NOT EXISTS idx_paper_transfers_recipient ON paper_transfers(recipient, id);
`

var _ ports.PaperStorage = (*SQLiteStorage)(nil)

// ApplyPaperSchema creates the simulated venue tables if they don't exist.
func (s *SQLiteStorage) ApplyPaperSchema(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, paperSchema); err != nil {
		return fmt.Errorf("storage.ApplyPaperSchema: %w", err)
	}
	return nil
}

// SavePaperOrder upserts a simulated limit order.
func (s *SQLiteStorage) SavePaperOrder(ctx context.Context, o domain.PaperOrder) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("storage.SavePaperOrder: encode %s: %w", o.Handle, err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO paper_orders (handle, pair_address, status, placed_at, data) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET status = excluded.status, data = excluded.data`,
		string(o.Handle), o.PairAddress, string(o.Status), unix(o.PlacedAt), string(data))
	if err != nil {
		return fmt.Errorf("storage.SavePaperOrder: %s: %w", o.Handle, err)
	}
	return nil
}

// GetPaperOrder loads a simulated order, or ErrNotFound.
func (s *SQLiteStorage) GetPaperOrder(ctx context.Context, handle domain.OrderHandle) (domain.PaperOrder, error) {
	var data string
	err := s.conn.QueryRowContext(ctx, `SELECT data FROM paper_orders WHERE handle = ?`, string(handle)).Scan(&data)
	if isNoRows(err) {
		return domain.PaperOrder{}, fmt.Errorf("%w: paper order %s", domain.ErrNotFound, handle)
	}
	if err != nil {
		return domain.PaperOrder{}, fmt.Errorf("storage.GetPaperOrder: %s: %w", handle, err)
	}
	var o domain.PaperOrder
	if err := json.Unmarshal([]byte(data), &o); err != nil {
		return domain.PaperOrder{}, fmt.Errorf("storage.GetPaperOrder: decode %s: %w", handle, err)
	}
	return o, nil
}

// GetOpenPaperOrders returns a pair's resting orders, oldest first.
func (s *SQLiteStorage) GetOpenPaperOrders(ctx context.Context, pairAddress string) ([]domain.PaperOrder, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT data FROM paper_orders
		WHERE pair_address = ? AND status = ?
		ORDER BY placed_at, handle`, pairAddress, string(domain.PaperOrderOpen))
	if err != nil {
		return nil, fmt.Errorf("storage.GetOpenPaperOrders: query: %w", err)
	}
	defer rows.Close()

	var orders []domain.PaperOrder
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("storage.GetOpenPaperOrders: scan: %w", err)
		}
		var o domain.PaperOrder
		if err := json.Unmarshal([]byte(data), &o); err != nil {
			return nil, fmt.Errorf("storage.GetOpenPaperOrders: decode: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// SavePaperTransfer appends to the simulated bank ledger.
func (s *SQLiteStorage) SavePaperTransfer(ctx context.Context, t domain.PaperTransfer) (int64, error) {
	var id int64
	err := s.conn.QueryRowContext(ctx, `
		INSERT INTO paper_transfers (recipient, denom, amount, kind, at) VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		t.Recipient, t.Coin.Denom, t.Coin.Amount.String(), string(t.Kind), t.At.UTC().UnixNano(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("storage.SavePaperTransfer: %w", err)
	}
	return id, nil
}

// GetPaperTransfers lists a recipient's transfers in ledger order.
func (s *SQLiteStorage) GetPaperTransfers(ctx context.Context, recipient string) ([]domain.PaperTransfer, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, recipient, denom, amount, kind, at FROM paper_transfers
		WHERE recipient = ?
		ORDER BY id`, recipient)
	if err != nil {
		return nil, fmt.Errorf("storage.GetPaperTransfers: query: %w", err)
	}
	defer rows.Close()

	var out []domain.PaperTransfer
	for rows.Next() {
		t, err := scanPaperTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.GetPaperTransfers: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetPaperBalances sums a recipient's transfers per denom. Amounts are summed in Go
// because they may exceed SQLite's integer range.
func (s *SQLiteStorage) GetPaperBalances(ctx context.Context, recipient string) ([]domain.Coin, error) {
	transfers, err := s.GetPaperTransfers(ctx, recipient)
	if err != nil {
		return nil, err
	}
	var (
		order  []string
		totals = make(map[string]sdkmath.Int)
	)
	for _, t := range transfers {
		sum, ok := totals[t.Coin.Denom]
		if !ok {
			order = append(order, t.Coin.Denom)
			sum = sdkmath.ZeroInt()
		}
		totals[t.Coin.Denom] = sum.Add(t.Coin.Amount)
	}
	coins := make([]domain.Coin, 0, len(order))
	for _, denom := range order {
		coins = append(coins, domain.NewCoinFromInt(denom, totals[denom]))
	}
	return coins, nil
}

func scanPaperTransfer(rows *sql.Rows) (domain.PaperTransfer, error) {
	var (
		t      domain.PaperTransfer
		denom  string
		amount string
		kind   string
		at     int64
	)
	if err := rows.Scan(&t.ID, &t.Recipient, &denom, &amount, &kind, &at); err != nil {
		return t, fmt.Errorf("scan transfer: %w", err)
	}
	amt, ok := sdkmath.NewIntFromString(amount)
	if !ok {
		return t, fmt.Errorf("transfer %d: bad amount %q", t.ID, amount)
	}
	t.Coin = domain.NewCoinFromInt(denom, amt)
	t.Kind = domain.PaperTransferKind(kind)
	t.At = fromUnixNano(at)
	return t, nil
}
