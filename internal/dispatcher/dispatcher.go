// Package dispatcher runs the tick loop that advances Bots through the
// claim-driven part of their lifecycle: SCHEDULED -> READY when join_at
// arrives, READY -> STAGED plus a worker launch, and the heartbeat sweep
// that drives a silently-dead worker to FATAL_ERROR.
package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meetingbot/core/internal/credit"
	"github.com/meetingbot/core/internal/launcher"
	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/statemachine"
	"github.com/meetingbot/core/internal/store"
)

// Config controls tick cadence and sharding.
type Config struct {
	TickInterval      time.Duration
	PreRoll           time.Duration
	HeartbeatTimeout  time.Duration
	LaunchRetryWindow time.Duration
	ShardCount        int
}

// dispatcherStore is the narrow slice of *internal/store.Store a
// Dispatcher needs, so the heartbeat sweep's credit-debit decision can be
// unit-tested against an in-memory fake instead of a live Postgres
// connection.
type dispatcherStore interface {
	TryAdvisoryLock(ctx context.Context, shardKey int64) (release func(), acquired bool, err error)
	ClaimDueScheduled(ctx context.Context, preRoll time.Duration) ([]string, error)
	ClaimReady(ctx context.Context, limit int) ([]string, error)
	StaleHeartbeats(ctx context.Context, timeout time.Duration) ([]string, error)
	Transition(ctx context.Context, botID string, ev statemachine.Event, extra map[string]any, debit func(tx pgx.Tx, bot *models.Bot) error) (*models.Bot, bool, error)
	GetBot(ctx context.Context, id string) (*models.Bot, error)
	GetProject(ctx context.Context, id string) (*models.Project, error)
	GetPrimaryRecording(ctx context.Context, botID string) (*models.Recording, error)
	RuntimeSeconds(ctx context.Context, botID string) (float64, error)
}

// creditDebiter is the narrow slice of *internal/credit.Accounting a
// Dispatcher needs at heartbeat-timeout.
type creditDebiter interface {
	Debit(ctx context.Context, orgID string, durationSeconds float64, recordingType models.RecordingType, result *credit.DebitResult) func(tx pgx.Tx, bot *models.Bot) error
}

// Dispatcher is one tick loop. Each tick it tries every shard's Postgres
// advisory lock and, for each shard it wins, runs the claim steps; those
// steps do not filter bots by shard, so each won shard runs them over all
// bots. Running several Dispatcher processes against the same database
// does not launch a bot twice: a worker is launched only by the caller
// whose READY -> STAGED transition applied.
type Dispatcher struct {
	store      dispatcherStore
	launcher   launcher.Launcher
	accounting creditDebiter
	cfg        Config
	log        *slog.Logger
}

// New builds a Dispatcher.
func New(s *store.Store, l launcher.Launcher, accounting *credit.Accounting, cfg Config, log *slog.Logger) *Dispatcher {
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = 1
	}
	return &Dispatcher{store: s, launcher: l, accounting: accounting, cfg: cfg, log: log}
}

// Run ticks every cfg.TickInterval until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick attempts every shard's advisory lock and, for each one this process
// wins, runs the three claim steps. Shards this process doesn't win were
// claimed by a sibling dispatcher and are skipped this round.
func (d *Dispatcher) tick(ctx context.Context) {
	for shard := int64(0); shard < int64(d.cfg.ShardCount); shard++ {
		release, acquired, err := d.store.TryAdvisoryLock(ctx, shard)
		if err != nil {
			d.log.Error("failed to try shard advisory lock", "shard", shard, "error", err)
			continue
		}
		if !acquired {
			continue
		}
		d.runShard(ctx, shard)
		release()
	}
}

func (d *Dispatcher) runShard(ctx context.Context, shard int64) {
	d.claimDueScheduled(ctx)
	d.claimReady(ctx)
	d.sweepStaleHeartbeats(ctx)
}

// claimDueScheduled advances every SCHEDULED bot whose join_at has arrived
// (net of pre-roll) to READY.
func (d *Dispatcher) claimDueScheduled(ctx context.Context) {
	ids, err := d.store.ClaimDueScheduled(ctx, d.cfg.PreRoll)
	if err != nil {
		d.log.Error("failed to claim due scheduled bots", "error", err)
		return
	}
	for _, id := range ids {
		if _, _, err := d.store.Transition(ctx, id, statemachine.EventJoinAtReached, nil, nil); err != nil {
			d.log.Error("failed to transition bot to READY", "bot_id", id, "error", err)
		}
	}
}

// claimReady advances READY bots to STAGED and launches their worker. If
// the launcher has no capacity, the Bot is left in READY (no transition
// applied) and retried on a later tick.
func (d *Dispatcher) claimReady(ctx context.Context) {
	ids, err := d.store.ClaimReady(ctx, 20)
	if err != nil {
		d.log.Error("failed to claim ready bots", "error", err)
		return
	}
	for _, id := range ids {
		bot, applied, err := d.store.Transition(ctx, id, statemachine.EventLaunch, nil, nil)
		if err != nil {
			d.log.Error("failed to transition bot to STAGED", "bot_id", id, "error", err)
			continue
		}
		if !applied {
			continue // another caller already moved this bot out of READY
		}
		if _, err := d.launcher.Launch(ctx, bot); err != nil {
			if err == launcher.ErrCapacity {
				d.log.Warn("launcher at capacity, bot remains staged for retry", "bot_id", id)
				continue
			}
			d.log.Error("failed to launch worker", "bot_id", id, "error", err)
			if _, _, tErr := d.store.Transition(ctx, id, statemachine.EventUnrecoverableError, map[string]any{"reason": "launch_failed"}, nil); tErr != nil {
				d.log.Error("failed to transition bot to FATAL_ERROR after launch failure", "bot_id", id, "error", tErr)
			}
		}
	}
}

// sweepStaleHeartbeats drives every non-terminal Bot whose worker has
// stopped heartbeating to FATAL_ERROR and asks the launcher to reclaim it.
func (d *Dispatcher) sweepStaleHeartbeats(ctx context.Context) {
	ids, err := d.store.StaleHeartbeats(ctx, d.cfg.HeartbeatTimeout)
	if err != nil {
		d.log.Error("failed to sweep stale heartbeats", "error", err)
		return
	}
	for _, id := range ids {
		debit := d.debitFunc(ctx, id)
		if _, _, err := d.store.Transition(ctx, id, statemachine.EventUnrecoverableError,
			map[string]any{"reason": statemachine.HeartbeatTimeoutSubState}, debit); err != nil {
			d.log.Error("failed to transition stale bot to FATAL_ERROR", "bot_id", id, "error", err)
			continue
		}
		if err := d.launcher.Stop(ctx, id); err != nil {
			d.log.Warn("failed to stop worker for stale bot", "bot_id", id, "error", err)
		}
	}
}

// debitFunc builds the credit debit closure for a bot whose worker went
// silent, crediting it for whatever runtime it accrued before the
// heartbeat timeout — the same accounting a graceful shutdown performs.
// Returns nil (no debit) if the bot never got far enough to have a
// primary recording, logging the cause rather than blocking the
// transition on it.
func (d *Dispatcher) debitFunc(ctx context.Context, botID string) func(tx pgx.Tx, bot *models.Bot) error {
	rec, err := d.store.GetPrimaryRecording(ctx, botID)
	if err != nil {
		d.log.Info("no primary recording at heartbeat timeout, skipping credit debit", "bot_id", botID, "error", err)
		return nil
	}
	runtime, err := d.store.RuntimeSeconds(ctx, botID)
	if err != nil {
		d.log.Error("failed to derive runtime for heartbeat-timeout debit", "bot_id", botID, "error", err)
		return nil
	}
	project, err := func() (*models.Project, error) {
		bot, err := d.store.GetBot(ctx, botID)
		if err != nil {
			return nil, err
		}
		return d.store.GetProject(ctx, bot.ProjectID)
	}()
	if err != nil {
		d.log.Error("failed to load project for heartbeat-timeout debit", "bot_id", botID, "error", err)
		return nil
	}
	return d.accounting.Debit(ctx, project.OrganizationID, runtime, rec.RecordingType, &credit.DebitResult{})
}
