package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/statemachine"
)

// CreateBot inserts a new Bot row in SCHEDULED or READY state. If a
// non-terminal Bot with the same (project, deduplication_key) already
// exists, the existing row is returned instead and no new row is created.
func (s *Store) CreateBot(ctx context.Context, b *models.Bot) (*models.Bot, error) {
	settingsJSON, err := json.Marshal(b.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	metadataJSON, err := json.Marshal(b.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var out models.Bot
	err = s.WithTx(ctx, func(tx pgx.Tx) error {
		if b.DeduplicationKey != nil {
			existing, err := getBotByDedupTx(ctx, tx, b.ProjectID, *b.DeduplicationKey)
			if err == nil {
				out = *existing
				return nil
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO bots (id, project_id, kind, object_id, meeting_url, platform, name,
			                   state, sub_state, join_at, deduplication_key, settings, metadata,
			                   file_name, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14, now(), now())
			RETURNING created_at, updated_at`,
			b.ID, b.ProjectID, b.Kind, b.ObjectID, b.MeetingURL, b.Platform, b.Name,
			b.State, b.SubState, b.JoinAt, b.DeduplicationKey, settingsJSON, metadataJSON, b.FileName,
		)
		var createdAt, updatedAt time.Time
		if err := row.Scan(&createdAt, &updatedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrAlreadyExists
			}
			return fmt.Errorf("failed to insert bot: %w", err)
		}
		out = *b
		out.CreatedAt = createdAt
		out.UpdatedAt = updatedAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func getBotByDedupTx(ctx context.Context, tx pgx.Tx, projectID, dedupKey string) (*models.Bot, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, project_id, kind, object_id, meeting_url, platform, name, state, sub_state,
		       join_at, deduplication_key, settings, metadata, file_name, heartbeat_at, created_at, updated_at
		FROM bots
		WHERE project_id = $1 AND deduplication_key = $2 AND state NOT IN ('ENDED', 'FATAL_ERROR')
		LIMIT 1`, projectID, dedupKey)
	return scanBot(row)
}

// GetBot loads a Bot by ID.
func (s *Store) GetBot(ctx context.Context, id string) (*models.Bot, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, project_id, kind, object_id, meeting_url, platform, name, state, sub_state,
		       join_at, deduplication_key, settings, metadata, file_name, heartbeat_at, created_at, updated_at
		FROM bots WHERE id = $1`, id)
	return scanBot(row)
}

func scanBot(row pgx.Row) (*models.Bot, error) {
	var b models.Bot
	var settingsJSON, metadataJSON []byte
	err := row.Scan(&b.ID, &b.ProjectID, &b.Kind, &b.ObjectID, &b.MeetingURL, &b.Platform, &b.Name,
		&b.State, &b.SubState, &b.JoinAt, &b.DeduplicationKey, &settingsJSON, &metadataJSON,
		&b.FileName, &b.HeartbeatAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan bot: %w", err)
	}
	if err := json.Unmarshal(settingsJSON, &b.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if err := json.Unmarshal(metadataJSON, &b.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &b, nil
}

// Transition applies a state-machine event to a Bot under a row lock:
// SELECT ... FOR UPDATE, validate against the transition table, UPDATE the
// row, and INSERT the bot_events row — all in one transaction. Every
// transition writes a BotEvent atomically with the state update under a
// row-level lock on the Bot; concurrent transition attempts are
// serialized, and a transition from a non-source state is rejected
// silently.
//
// extra is merged into the BotEvent metadata (diagnostic payload for
// FATAL_ERROR sub-states, etc). A string "reason" key in extra also
// overrides the table's default sub_state, since the same edge (most
// commonly unrecoverable_error) is reached for several distinct causes
// that the caller is better positioned to name than the transition table
// is. debit, if non-nil, is invoked in the same transaction immediately
// before commit so credit debiting stays atomic with the terminal
// transition.
func (s *Store) Transition(ctx context.Context, botID string, ev statemachine.Event, extra map[string]any, debit func(tx pgx.Tx, bot *models.Bot) error) (*models.Bot, bool, error) {
	var result *models.Bot
	var applied bool

	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT id, project_id, kind, object_id, meeting_url, platform, name, state, sub_state,
			       join_at, deduplication_key, settings, metadata, file_name, heartbeat_at, created_at, updated_at
			FROM bots WHERE id = $1 FOR UPDATE`, botID)
		bot, err := scanBot(row)
		if err != nil {
			return err
		}

		to, subState, ok := statemachine.Validate(bot.State, ev)
		if !ok {
			// Rejected silently: no error, no mutation, applied stays false.
			result = bot
			return nil
		}
		if reason, ok := extra["reason"].(string); ok && reason != "" {
			subState = reason
		}

		var seq int64
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(sequence),0)+1 FROM bot_events WHERE bot_id=$1`, botID).Scan(&seq); err != nil {
			return fmt.Errorf("failed to allocate event sequence: %w", err)
		}

		oldState := bot.State
		bot.State = to
		bot.SubState = subState

		_, err = tx.Exec(ctx, `UPDATE bots SET state=$1, sub_state=$2, updated_at=now() WHERE id=$3`, to, subState, botID)
		if err != nil {
			return fmt.Errorf("failed to update bot state: %w", err)
		}

		metaJSON, err := json.Marshal(extra)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO bot_events (bot_id, old_state, new_state, event_type, sub_type, metadata, sequence)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			botID, oldState, to, string(ev), subState, metaJSON, seq)
		if err != nil {
			return fmt.Errorf("failed to insert bot event: %w", err)
		}

		if debit != nil {
			if err := debit(tx, bot); err != nil {
				return err
			}
		}

		result = bot
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, applied, nil
}

// ClaimDueScheduled returns every SCHEDULED bot whose join_at has arrived
// (net of pre-roll), for the dispatcher to transition to READY.
func (s *Store) ClaimDueScheduled(ctx context.Context, preRoll time.Duration) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id FROM bots
		WHERE state = $1 AND join_at IS NOT NULL AND join_at <= now() + $2
		FOR UPDATE SKIP LOCKED`, models.StateScheduled, preRoll)
	if err != nil {
		return nil, fmt.Errorf("failed to select due scheduled bots: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimReady atomically claims up to limit READY bots, returning their
// ids. The caller transitions each to STAGED and invokes the launcher.
func (s *Store) ClaimReady(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id FROM bots WHERE state = $1
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT $2`, models.StateReady, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select ready bots: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StaleHeartbeats returns bots in JOINING..LEAVING whose heartbeat_at is
// older than timeout, for the janitor's heartbeat-timeout sweep into
// FATAL_ERROR.
func (s *Store) StaleHeartbeats(ctx context.Context, timeout time.Duration) ([]string, error) {
	states := make([]string, 0, len(statemachine.JoinedStates))
	for _, st := range statemachine.JoinedStates {
		states = append(states, string(st))
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id FROM bots
		WHERE state = ANY($1) AND heartbeat_at IS NOT NULL AND heartbeat_at < now() - $2`,
		states, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to select stale heartbeats: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Heartbeat writes heartbeat_at = now() on the Bot row.
func (s *Store) Heartbeat(ctx context.Context, botID string) error {
	_, err := s.Pool.Exec(ctx, `UPDATE bots SET heartbeat_at = now() WHERE id = $1`, botID)
	if err != nil {
		return fmt.Errorf("failed to write heartbeat: %w", err)
	}
	return nil
}

// RuntimeSeconds derives a Bot's elapsed recording runtime from its
// BotEvent history, measuring from the first JOINED_* transition to now
// (or to the terminal transition if already ended).
func (s *Store) RuntimeSeconds(ctx context.Context, botID string) (float64, error) {
	var startedAt, endedAt *time.Time
	err := s.Pool.QueryRow(ctx, `
		SELECT
			(SELECT created_at FROM bot_events WHERE bot_id=$1 AND new_state IN ('JOINED_NOT_RECORDING','JOINED_RECORDING') ORDER BY sequence LIMIT 1),
			(SELECT created_at FROM bot_events WHERE bot_id=$1 AND new_state IN ('ENDED','FATAL_ERROR') ORDER BY sequence DESC LIMIT 1)
	`, botID).Scan(&startedAt, &endedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to derive runtime: %w", err)
	}
	if startedAt == nil {
		return 0, nil
	}
	end := time.Now()
	if endedAt != nil {
		end = *endedAt
	}
	d := end.Sub(*startedAt).Seconds()
	if d < 0 {
		return 0, nil
	}
	return d, nil
}
