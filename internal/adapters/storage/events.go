package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

// CreateEvent appends an event and returns its id.
func (q *queries) CreateEvent(ctx context.Context, e domain.Event) (uint64, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return 0, fmt.Errorf("storage.CreateEvent: encode: %w", err)
	}
	var id uint64
	err = q.db.QueryRowContext(ctx,
		`INSERT INTO events (resource_id, timestamp, data) VALUES (?, ?, ?) RETURNING id`,
		e.ResourceID, e.Timestamp.UTC().UnixNano(), string(data),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("storage.CreateEvent: insert: %w", err)
	}
	return id, nil
}

// GetEvents pages through the whole log ascending by id.
func (q *queries) GetEvents(ctx context.Context, startAfter *uint64, limit int) ([]domain.Event, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, resource_id, timestamp, data FROM events WHERE id > ? ORDER BY id LIMIT ?`,
		cursor(startAfter), limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetEvents: query: %w", err)
	}
	return scanEvents(rows)
}

// GetEventsByResourceID pages through one vault's events ascending by id.
func (q *queries) GetEventsByResourceID(ctx context.Context, resourceID uint64, startAfter *uint64, limit int) ([]domain.Event, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, resource_id, timestamp, data FROM events
		WHERE resource_id = ? AND id > ?
		ORDER BY id
		LIMIT ?`, resourceID, cursor(startAfter), limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetEventsByResourceID: query: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var events []domain.Event
	for rows.Next() {
		var (
			e    domain.Event
			ts   int64
			data string
		)
		if err := rows.Scan(&e.ID, &e.ResourceID, &ts, &data); err != nil {
			return nil, fmt.Errorf("storage: scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("storage: decode event %d: %w", e.ID, err)
		}
		e.Timestamp = fromUnixNano(ts)
		events = append(events, e)
	}
	return events, rows.Err()
}
