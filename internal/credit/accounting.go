// Package credit meters and debits an Organization's credit balance in
// proportion to Bot runtime, and gates new launches when a balance is
// exhausted.
package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/store"
)

// ErrInsufficientCredits describes an Organization whose balance blocks a
// new launch (CanLaunch reporting false). Nothing in this package returns
// it; the launch gate in internal/services returns its own sentinel.
var ErrInsufficientCredits = errors.New("organization has insufficient credits")

// defaultRates gives the per-minute credit cost for each recording_type
// absent an organization-specific override; the default rate does not
// vary by platform.
var defaultRates = map[models.RecordingType]float64{
	models.RecordingAudioVideo: 1.0,
	models.RecordingAudioOnly:  0.5,
	models.RecordingNone:      0.1,
}

// Accounting meters Bot runtime against an Organization's credit balance.
type Accounting struct {
	store *store.Store
}

// New builds an Accounting backed by the given relational store.
func New(s *store.Store) *Accounting {
	return &Accounting{store: s}
}

// CanLaunch reports whether org may launch a new Bot: its balance must be
// positive unless it has opted into running negative.
func (a *Accounting) CanLaunch(ctx context.Context, orgID string) (bool, error) {
	return a.store.CanLaunch(ctx, orgID)
}

// Rate returns the per-minute credit cost for platform/recordingType,
// preferring an organization-specific override keyed by platform.
func Rate(org *models.Organization, platform models.Platform, recordingType models.RecordingType) float64 {
	if org.CreditRateOverrides != nil {
		if r, ok := org.CreditRateOverrides[string(platform)]; ok {
			return r
		}
	}
	if r, ok := defaultRates[recordingType]; ok {
		return r
	}
	return defaultRates[models.RecordingAudioVideo]
}

// DebitResult reports the outcome of a Debit call, populated in-place
// since store.Transition's debit callback signature has no return value.
type DebitResult struct {
	Balance      float64
	CrossedLow   bool
	Consumed     float64
}

// Debit returns a closure matching store.Transition's debit callback
// signature: it computes credits_consumed = rate x duration_minutes and
// atomically updates the organization's balance inside the same
// transaction as the terminal BotEvent insert. The outcome is written to
// result so the caller can decide whether to emit the credits_low
// webhook once the enclosing transaction commits.
func (a *Accounting) Debit(ctx context.Context, orgID string, durationSeconds float64, recordingType models.RecordingType, result *DebitResult) func(tx pgx.Tx, bot *models.Bot) error {
	return func(tx pgx.Tx, bot *models.Bot) error {
		org, err := a.store.GetOrganization(ctx, orgID)
		if err != nil {
			return fmt.Errorf("failed to load organization for debit: %w", err)
		}

		rate := Rate(org, bot.Platform, recordingType)
		consumed := rate * (durationSeconds / 60.0)

		balance, crossedLow, err := store.DebitCreditsTx(ctx, tx, orgID, consumed)
		if err != nil {
			return err
		}
		if result != nil {
			result.Balance = balance
			result.CrossedLow = crossedLow
			result.Consumed = consumed
		}
		return nil
	}
}
