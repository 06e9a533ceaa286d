package dispatcher

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meetingbot/core/internal/credit"
	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/statemachine"
	"github.com/meetingbot/core/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDispatcherStore is an in-memory dispatcherStore driving a single Bot
// through the heartbeat sweep without a live Postgres connection.
type fakeDispatcherStore struct {
	bot       *models.Bot
	project   *models.Project
	recording *models.Recording
	runtime   float64
	stale     []string

	transitions []statemachine.Event
}

func (f *fakeDispatcherStore) TryAdvisoryLock(ctx context.Context, shardKey int64) (func(), bool, error) {
	return func() {}, true, nil
}

func (f *fakeDispatcherStore) ClaimDueScheduled(ctx context.Context, preRoll time.Duration) ([]string, error) {
	return nil, nil
}

func (f *fakeDispatcherStore) ClaimReady(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}

func (f *fakeDispatcherStore) StaleHeartbeats(ctx context.Context, timeout time.Duration) ([]string, error) {
	return f.stale, nil
}

func (f *fakeDispatcherStore) Transition(ctx context.Context, botID string, ev statemachine.Event, extra map[string]any, debit func(tx pgx.Tx, bot *models.Bot) error) (*models.Bot, bool, error) {
	to, subState, ok := statemachine.Validate(f.bot.State, ev)
	if !ok {
		return f.bot, false, nil
	}
	if reason, ok := extra["reason"].(string); ok && reason != "" {
		subState = reason
	}
	f.transitions = append(f.transitions, ev)
	f.bot.State = to
	f.bot.SubState = subState
	if debit != nil {
		if err := debit(nil, f.bot); err != nil {
			return f.bot, false, err
		}
	}
	return f.bot, true, nil
}

func (f *fakeDispatcherStore) GetBot(ctx context.Context, id string) (*models.Bot, error) {
	return f.bot, nil
}

func (f *fakeDispatcherStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	return f.project, nil
}

func (f *fakeDispatcherStore) GetPrimaryRecording(ctx context.Context, botID string) (*models.Recording, error) {
	if f.recording == nil {
		return nil, store.ErrNotFound
	}
	return f.recording, nil
}

func (f *fakeDispatcherStore) RuntimeSeconds(ctx context.Context, botID string) (float64, error) {
	return f.runtime, nil
}

// fakeLauncher records Stop calls; Launch is never exercised by the
// heartbeat sweep.
type fakeLauncher struct {
	stopped []string
}

func (f *fakeLauncher) Launch(ctx context.Context, bot *models.Bot) (string, error) {
	return "", nil
}

func (f *fakeLauncher) Stop(ctx context.Context, botID string) error {
	f.stopped = append(f.stopped, botID)
	return nil
}

// fakeCreditDebiter records the debit a heartbeat timeout triggers without
// touching the real per-minute rate table or a transaction.
type fakeCreditDebiter struct {
	calls []fakeDebitCall
}

type fakeDebitCall struct {
	orgID    string
	duration float64
}

func (f *fakeCreditDebiter) Debit(ctx context.Context, orgID string, durationSeconds float64, recordingType models.RecordingType, result *credit.DebitResult) func(tx pgx.Tx, bot *models.Bot) error {
	return func(tx pgx.Tx, bot *models.Bot) error {
		f.calls = append(f.calls, fakeDebitCall{orgID: orgID, duration: durationSeconds})
		if result != nil {
			result.Consumed = durationSeconds / 60.0
		}
		return nil
	}
}

// Scenario 6: a worker goes silent at t=20 while JOINED_RECORDING. The
// heartbeat sweep must drive it to FATAL_ERROR.heartbeat_timeout and debit
// credits for the 20 s of runtime it accrued.
func TestSweepStaleHeartbeatsTransitionsAndDebitsRuntime(t *testing.T) {
	bot := &models.Bot{ID: "bot-1", ProjectID: "proj-1", Platform: models.PlatformZoomNative, State: models.StateJoinedRecording}
	st := &fakeDispatcherStore{
		bot:       bot,
		project:   &models.Project{ID: "proj-1", OrganizationID: "org-1"},
		recording: &models.Recording{ID: "rec-1", BotID: "bot-1", RecordingType: models.RecordingAudioVideo},
		runtime:   20,
		stale:     []string{"bot-1"},
	}
	launch := &fakeLauncher{}
	debiter := &fakeCreditDebiter{}

	d := &Dispatcher{
		store:      st,
		launcher:   launch,
		accounting: debiter,
		cfg:        Config{HeartbeatTimeout: 120 * time.Second},
		log:        discardLogger(),
	}

	d.sweepStaleHeartbeats(context.Background())

	if bot.State != models.StateFatalError {
		t.Fatalf("expected bot to reach FATAL_ERROR, got %s", bot.State)
	}
	if bot.SubState != statemachine.HeartbeatTimeoutSubState {
		t.Fatalf("expected sub_state %q, got %q", statemachine.HeartbeatTimeoutSubState, bot.SubState)
	}
	if len(launch.stopped) != 1 || launch.stopped[0] != "bot-1" {
		t.Fatalf("expected launcher.Stop to be called for bot-1, got %v", launch.stopped)
	}
	if len(debiter.calls) != 1 {
		t.Fatalf("expected exactly one debit call, got %d", len(debiter.calls))
	}
	if debiter.calls[0].orgID != "org-1" || debiter.calls[0].duration != 20 {
		t.Fatalf("unexpected debit call: %+v", debiter.calls[0])
	}
}

// A bot that never created a Recording (died before joining produced any
// output) skips the debit silently instead of failing the transition.
func TestSweepStaleHeartbeatsSkipsDebitWithoutRecording(t *testing.T) {
	bot := &models.Bot{ID: "bot-2", ProjectID: "proj-1", State: models.StateJoining}
	st := &fakeDispatcherStore{
		bot:     bot,
		project: &models.Project{ID: "proj-1", OrganizationID: "org-1"},
		stale:   []string{"bot-2"},
	}
	debiter := &fakeCreditDebiter{}
	d := &Dispatcher{
		store:      st,
		launcher:   &fakeLauncher{},
		accounting: debiter,
		cfg:        Config{HeartbeatTimeout: 120 * time.Second},
		log:        discardLogger(),
	}

	d.sweepStaleHeartbeats(context.Background())

	if bot.State != models.StateFatalError {
		t.Fatalf("expected bot to reach FATAL_ERROR, got %s", bot.State)
	}
	if len(debiter.calls) != 0 {
		t.Fatalf("expected no debit call, got %d", len(debiter.calls))
	}
}
