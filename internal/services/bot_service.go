package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meetingbot/core/internal/adapter"
	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/statemachine"
	"github.com/meetingbot/core/internal/store"
)

// botServiceStore is the slice of *store.Store BotService needs, narrowed
// to an interface so CreateBot/LeaveBot's validation and credit-gate logic
// can be unit-tested without a live Postgres connection.
type botServiceStore interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
	CanLaunch(ctx context.Context, organizationID string) (bool, error)
	CreateBot(ctx context.Context, b *models.Bot) (*models.Bot, error)
	GetBot(ctx context.Context, id string) (*models.Bot, error)
	Transition(ctx context.Context, botID string, ev statemachine.Event, extra map[string]any, debit func(tx pgx.Tx, bot *models.Bot) error) (*models.Bot, bool, error)
}

// BotService is the validated entry point for creating and inspecting
// Bots. It enforces the credit gate at creation time only; the dispatcher
// does not check the balance again before launching a Bot.
type BotService struct {
	store botServiceStore
}

// NewBotService builds a BotService over s.
func NewBotService(s botServiceStore) *BotService {
	return &BotService{store: s}
}

// CreateBotRequest is the validated input to CreateBot.
type CreateBotRequest struct {
	ProjectID        string
	MeetingURL       string
	Platform         models.Platform
	Name             string
	JoinAt           *time.Time
	DeduplicationKey *string
	Settings         models.BotSettings
	Metadata         map[string]any
}

// CreateBot validates req, checks the owning Organization can still afford
// to launch, and inserts a new Bot in SCHEDULED (or READY, if JoinAt is
// unset).
func (s *BotService) CreateBot(ctx context.Context, req CreateBotRequest) (*models.Bot, error) {
	if req.ProjectID == "" {
		return nil, NewValidationError("project_id", "required")
	}
	if req.MeetingURL == "" {
		return nil, NewValidationError("meeting_url", "required")
	}
	platform := req.Platform
	if platform == "" {
		detected, err := adapter.DetectPlatform(req.MeetingURL)
		if err != nil {
			return nil, NewValidationError("platform", "could not be detected from meeting_url; specify it explicitly")
		}
		platform = detected
	}

	project, err := s.store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	canLaunch, err := s.store.CanLaunch(ctx, project.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to check credit balance: %w", err)
	}
	if !canLaunch {
		return nil, ErrInsufficientCredits
	}

	// ClaimDueScheduled only ever looks at SCHEDULED bots with a non-nil
	// join_at; a bot meant to join immediately skips straight to READY so
	// the dispatcher's claim query picks it up on its very next tick.
	state := models.StateScheduled
	if req.JoinAt == nil {
		state = models.StateReady
	}

	bot := &models.Bot{
		ID:               uuid.NewString(),
		ProjectID:        req.ProjectID,
		Kind:             models.KindBot,
		ObjectID:         uuid.NewString(),
		MeetingURL:       req.MeetingURL,
		Platform:         platform,
		Name:             req.Name,
		State:            state,
		JoinAt:           req.JoinAt,
		DeduplicationKey: req.DeduplicationKey,
		Settings:         req.Settings,
		Metadata:         req.Metadata,
	}
	created, err := s.store.CreateBot(ctx, bot)
	if err != nil {
		if err == store.ErrAlreadyExists {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return created, nil
}

// GetBot loads a Bot by ID.
func (s *BotService) GetBot(ctx context.Context, id string) (*models.Bot, error) {
	bot, err := s.store.GetBot(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return bot, nil
}

// LeaveBot requests that a running Bot leave its meeting. It is a no-op
// (not an error) if the Bot has already reached a terminal state or is
// already on its way out; the statemachine's transition table rejects the
// event from those states and Transition reports applied=false.
func (s *BotService) LeaveBot(ctx context.Context, id string) (*models.Bot, error) {
	bot, _, err := s.store.Transition(ctx, id, statemachine.EventLeaveCmd, map[string]any{"reason": "api_requested"}, nil)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return bot, nil
}

// PauseBot requests that a running Bot's recording pause. Like LeaveBot,
// this only flips the Bot row's state; the Bot's own worker process
// notices the mismatch on its next command poll and drives the adapter's
// Controls.PauseRecording accordingly. A no-op (not an error) outside
// JOINED_RECORDING, since the transition table rejects the event and
// Transition reports applied=false.
func (s *BotService) PauseBot(ctx context.Context, id string) (*models.Bot, error) {
	bot, _, err := s.store.Transition(ctx, id, statemachine.EventPause, map[string]any{"reason": "api_requested"}, nil)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return bot, nil
}

// ResumeBot requests that a paused Bot's recording resume. See PauseBot.
func (s *BotService) ResumeBot(ctx context.Context, id string) (*models.Bot, error) {
	bot, _, err := s.store.Transition(ctx, id, statemachine.EventResume, map[string]any{"reason": "api_requested"}, nil)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return bot, nil
}
