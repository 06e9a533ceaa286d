// Package controller runs one Bot's worker process: it joins the meeting
// through a platform Adapter, drives the media pipeline and transcription
// coordinator, applies auto-leave policy, and carries the Bot through its
// lifecycle from STAGED to ENDED or FATAL_ERROR. Exactly one Controller
// runs per Bot, in its own worker process launched by internal/launcher.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meetingbot/core/internal/adapter"
	"github.com/meetingbot/core/internal/config"
	"github.com/meetingbot/core/internal/credit"
	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/pipeline"
	"github.com/meetingbot/core/internal/statemachine"
	"github.com/meetingbot/core/internal/transcription"
)

// botStore is the narrow slice of *internal/store.Store a Controller
// needs, so its event-loop decisions can be unit-tested against an
// in-memory fake instead of a live Postgres connection.
type botStore interface {
	GetBot(ctx context.Context, id string) (*models.Bot, error)
	GetProject(ctx context.Context, id string) (*models.Project, error)
	Transition(ctx context.Context, botID string, ev statemachine.Event, extra map[string]any, debit func(tx pgx.Tx, bot *models.Bot) error) (*models.Bot, bool, error)
	Heartbeat(ctx context.Context, botID string) error
	RuntimeSeconds(ctx context.Context, botID string) (float64, error)
	CreateRecording(ctx context.Context, r *models.Recording) error
	GetPrimaryRecording(ctx context.Context, botID string) (*models.Recording, error)
	FinalizeRecording(ctx context.Context, recordingID string, state models.RecordingState, storageKey string, bytesUploaded, durationMS int64, failureReason *string) error
	IncrementFramesDropped(ctx context.Context, recordingID string, n int64) error
	UpsertParticipant(ctx context.Context, p *models.Participant) (*models.Participant, error)
	InsertParticipantEvent(ctx context.Context, e *models.ParticipantEvent) error
	InsertChatMessage(ctx context.Context, m *models.ChatMessage) error
	CountNonBotParticipantsPresent(ctx context.Context, botID string) (int, error)
	LastSpeechAt(ctx context.Context, botID string) (*time.Time, error)
	InsertUtterance(ctx context.Context, u *models.Utterance) error
	FinalizeRecordingTranscription(ctx context.Context, recordingID string, state models.TranscriptionState, failureData map[string]any) error
}

// credentialGetter is the narrow slice of *services.CredentialService a
// Controller needs to fetch a platform's decrypted secret.
type credentialGetter interface {
	GetCredential(ctx context.Context, projectID string, provider models.Provider) (string, error)
}

// creditDebiter is the narrow slice of *credit.Accounting a Controller
// needs at shutdown.
type creditDebiter interface {
	Debit(ctx context.Context, orgID string, durationSeconds float64, recordingType models.RecordingType, result *credit.DebitResult) func(tx pgx.Tx, bot *models.Bot) error
}

// webhookFirer is the narrow slice of *webhook.Engine a Controller needs
// to trigger deliveries.
type webhookFirer interface {
	Fire(ctx context.Context, projectID, botID string, trigger models.TriggerType, discriminator string, data any) error
}

// adapterFactory is the narrow slice of *adapter.Factory a Controller
// needs to pick an Adapter by platform.
type adapterFactory interface {
	New(platform models.Platform) (adapter.Adapter, error)
}

// Uploader pushes a finished recording artifact to durable object storage,
// implemented by internal/storage.
type Uploader interface {
	Put(ctx context.Context, objectKey, localPath string) (bytesUploaded int64, err error)
}

// Config controls timing thresholds that are not overridable per-Bot.
type Config struct {
	HeartbeatInterval      time.Duration
	FlushTimeout           time.Duration
	AdapterLeaveDeadline   time.Duration
	AutoLeave              config.AutoLeaveDefaults // used when a Bot's own settings carry none
	AutoLeaveCheckInterval time.Duration            // how often auto-leave thresholds are evaluated; default 5s
	CommandPollInterval    time.Duration            // how often the worker re-fetches its Bot row to notice an operator-requested pause/resume; default 2s
	ScratchDir             string
}

// Controller owns one Bot's entire worker lifecycle.
type Controller struct {
	store       botStore
	credentials credentialGetter
	accounting  creditDebiter
	webhooks    webhookFirer
	adapters    adapterFactory
	uploader    Uploader
	transcriptionProviders TranscriptionProviders
	cfg         Config
	log         *slog.Logger
}

// New builds a Controller.
func New(store botStore, credentials credentialGetter, accounting creditDebiter, webhooks webhookFirer, adapters adapterFactory, uploader Uploader, transcriptionProviders TranscriptionProviders, cfg Config, log *slog.Logger) *Controller {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 30 * time.Second
	}
	if cfg.AdapterLeaveDeadline <= 0 {
		cfg.AdapterLeaveDeadline = adapter.LeaveDeadline
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	if cfg.AutoLeaveCheckInterval <= 0 {
		cfg.AutoLeaveCheckInterval = 5 * time.Second
	}
	if cfg.CommandPollInterval <= 0 {
		cfg.CommandPollInterval = 2 * time.Second
	}
	return &Controller{
		store: store, credentials: credentials, accounting: accounting,
		webhooks: webhooks, adapters: adapters, uploader: uploader,
		transcriptionProviders: transcriptionProviders, cfg: cfg, log: log,
	}
}

// credentialProviderFor returns the Provider a platform's Adapter needs a
// decrypted secret for, and false when the platform joins without one
// (browser automation against a public meeting URL).
func credentialProviderFor(p models.Platform) (models.Provider, bool) {
	switch p {
	case models.PlatformZoomNative, models.PlatformZoomRTMS:
		return models.ProviderZoomOAuth, true
	default:
		return "", false
	}
}

// Run drives botID from STAGED through to ENDED or FATAL_ERROR. It returns
// once the Bot has reached a terminal state, or ctx is canceled.
func (c *Controller) Run(ctx context.Context, botID string) error {
	log := c.log.With("bot_id", botID)

	bot, err := c.store.GetBot(ctx, botID)
	if err != nil {
		return fmt.Errorf("failed to load bot: %w", err)
	}
	if bot.State != models.StateStaged {
		log.Warn("worker invoked for bot not in STAGED state, exiting", "state", bot.State)
		return nil
	}

	bot, applied, err := c.store.Transition(ctx, botID, statemachine.EventWorkerUp, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to transition to JOINING: %w", err)
	}
	if !applied {
		log.Warn("worker_up transition rejected, another worker already owns this bot")
		return nil
	}

	a, creds, err := c.openAdapter(ctx, bot)
	if err != nil {
		log.Error("failed to open adapter", "error", err)
		c.fail(ctx, botID, "adapter_open_failed", err)
		return err
	}

	events, ctrls, err := a.Open(ctx, bot.MeetingURL, creds, bot.Settings)
	if err != nil {
		log.Error("adapter open rejected", "error", err)
		c.fail(ctx, botID, "adapter_open_failed", err)
		return err
	}

	sess, err := c.startSession(ctx, bot)
	if err != nil {
		log.Error("failed to start session", "error", err)
		c.fail(ctx, botID, "session_start_failed", err)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go sess.pipeline.Run(runCtx)
	if sess.transcription != nil {
		go sess.transcription.RunIdleSweep(runCtx)
	}

	hb := time.NewTicker(c.cfg.HeartbeatInterval)
	defer hb.Stop()
	autoLeave := time.NewTicker(c.cfg.AutoLeaveCheckInterval)
	defer autoLeave.Stop()
	commandPoll := time.NewTicker(c.cfg.CommandPollInterval)
	defer commandPoll.Stop()

	l := &loop{c: c, bot: bot, sess: sess, ctrls: ctrls, log: log}
	reason := l.run(ctx, events, hb.C, autoLeave.C, commandPoll.C)

	// Stop the pipeline's tick loop before shutdown tries to flush it;
	// runShutdown's finalizeArtifacts blocks on the muxer having already
	// stopped accepting ticks, not on this deferred cancel firing at Run's
	// very end.
	cancel()
	return c.runShutdown(ctx, l.bot, sess, ctrls, events, reason)
}

// openAdapter resolves the platform Adapter and its decrypted credential.
func (c *Controller) openAdapter(ctx context.Context, bot *models.Bot) (adapter.Adapter, adapter.Credentials, error) {
	a, err := c.adapters.New(bot.Platform)
	if err != nil {
		return nil, adapter.Credentials{}, err
	}

	creds := adapter.Credentials{}
	if provider, needed := credentialProviderFor(bot.Platform); needed {
		secret, err := c.credentials.GetCredential(ctx, bot.ProjectID, provider)
		if err != nil {
			return nil, adapter.Credentials{}, fmt.Errorf("failed to load credential for %s: %w", provider, err)
		}
		creds = adapter.Credentials{Provider: provider, Secret: secret}
	}
	return a, creds, nil
}

// fail transitions botID to FATAL_ERROR with a diagnostic sub-state.
func (c *Controller) fail(ctx context.Context, botID, reason string, cause error) {
	extra := map[string]any{"reason": reason}
	if cause != nil {
		extra["error"] = cause.Error()
	}
	if _, _, err := c.store.Transition(ctx, botID, statemachine.EventUnrecoverableError, extra, nil); err != nil {
		c.log.Error("failed to transition bot to FATAL_ERROR", "bot_id", botID, "error", err)
	}
}

// session bundles one Bot's media pipeline and transcription coordinator,
// built once a Recording row exists.
type session struct {
	recording     *models.Recording
	muxer         *pipeline.FileMuxer
	pipeline      *pipeline.Pipeline
	transcription *transcription.Coordinator
	outputPath    string // set by finalizeArtifacts once the pipeline flushes
}
