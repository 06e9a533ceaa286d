package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PublishEventTx persists a realtime fan-out event and issues pg_notify on
// the given channel in the same transaction as the write that produced it,
// so a listener reconnecting after a dropped notification can replay from
// the events table starting at the last id it saw.
func PublishEventTx(ctx context.Context, tx pgx.Tx, botID, channel string, payload []byte) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO events (bot_id, channel, payload) VALUES ($1,$2,$3) RETURNING id`,
		botID, channel, payload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2::text)`, channel, id); err != nil {
		return 0, fmt.Errorf("failed to notify channel: %w", err)
	}
	return id, nil
}

// EventRow is one row replayed from the events catchup log.
type EventRow struct {
	ID      int64
	BotID   string
	Channel string
	Payload []byte
}

// EventsSince returns every event on channel with id > afterID, for
// catchup replay after a listener reconnects.
func (s *Store) EventsSince(ctx context.Context, channel string, afterID int64, limit int) ([]EventRow, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, bot_id, channel, payload FROM events
		WHERE channel = $1 AND id > $2
		ORDER BY id
		LIMIT $3`, channel, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events since: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(&e.ID, &e.BotID, &e.Channel, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
