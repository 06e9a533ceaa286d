package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meetingbot/core/internal/store"
)

// Publisher persists and broadcasts domain events within the caller's
// transaction, so the write and the NOTIFY commit or roll back together.
type Publisher struct{}

// NewPublisher builds a Publisher. It is stateless — every call carries its
// own transaction — and exists mainly to give Publish a typed home next to
// Listener and Manager.
func NewPublisher() *Publisher { return &Publisher{} }

// Publish marshals data into an Envelope, persists it to the events table,
// and issues pg_notify on the bot's channel, all inside tx, so a subscriber
// never observes an event for a write that later rolled back. No code in
// this module calls Publish. The NOTIFY payload is only the row id —
// Manager re-reads the full row via store.EventsSince, which sidesteps
// PostgreSQL's 8000-byte
// NOTIFY payload limit for a long transcript utterance or chat message.
func (p *Publisher) Publish(ctx context.Context, tx pgx.Tx, botID, eventType string, data any) error {
	env := Envelope{Type: eventType, BotID: botID, Data: data}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	_, err = store.PublishEventTx(ctx, tx, botID, BotChannel(botID), payload)
	return err
}
