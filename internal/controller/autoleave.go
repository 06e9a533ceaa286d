package controller

import (
	"context"
	"time"

	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/statemachine"
)

// checkAutoLeave evaluates every independently configurable auto-leave
// threshold and returns the reason to leave as soon as one trips. Each
// threshold is the Bot's own override if set, else the worker's
// configured default.
func (l *loop) checkAutoLeave(ctx context.Context) (leaveReason, bool) {
	if l.bot.State == models.StateJoining {
		waitingRoom := resolveThreshold(l.bot.Settings.AutoLeave.WaitingRoomSeconds, l.c.cfg.AutoLeave.WaitingRoom)
		if waitingRoom > 0 && time.Since(l.joiningSince) > waitingRoom {
			return leaveReason{event: statemachine.EventAutoLeave, extra: map[string]any{"reason": "waiting_room_timeout"}}, true
		}
		return leaveReason{}, false
	}

	if !statemachine.InRange(l.bot.State) || l.bot.State == models.StateLeaving {
		return leaveReason{}, false
	}

	if r, ok := l.checkOnlyParticipant(ctx); ok {
		return r, true
	}
	if r, ok := l.checkSilence(ctx); ok {
		return r, true
	}
	if r, ok := l.checkMaxDuration(ctx); ok {
		return r, true
	}
	return leaveReason{}, false
}

func (l *loop) checkOnlyParticipant(ctx context.Context) (leaveReason, bool) {
	threshold := resolveThreshold(l.bot.Settings.AutoLeave.OnlyParticipantSeconds, l.c.cfg.AutoLeave.OnlyParticipant)
	if threshold <= 0 {
		return leaveReason{}, false
	}

	count, err := l.c.store.CountNonBotParticipantsPresent(ctx, l.bot.ID)
	if err != nil {
		l.log.Error("failed to count present participants for auto-leave", "error", err)
		return leaveReason{}, false
	}
	if count > 0 {
		l.onlyParticipantSince = time.Time{}
		return leaveReason{}, false
	}
	if l.onlyParticipantSince.IsZero() {
		l.onlyParticipantSince = time.Now()
		return leaveReason{}, false
	}
	if time.Since(l.onlyParticipantSince) > threshold {
		return leaveReason{event: statemachine.EventAutoLeave, extra: map[string]any{"reason": "only_participant"}}, true
	}
	return leaveReason{}, false
}

func (l *loop) checkSilence(ctx context.Context) (leaveReason, bool) {
	threshold := resolveThreshold(l.bot.Settings.AutoLeave.SilenceSeconds, l.c.cfg.AutoLeave.Silence)
	if threshold <= 0 {
		return leaveReason{}, false
	}

	lastSpeech, err := l.c.store.LastSpeechAt(ctx, l.bot.ID)
	if err != nil {
		l.log.Error("failed to query last speech for auto-leave", "error", err)
		return leaveReason{}, false
	}
	since := l.joiningSince
	if lastSpeech != nil {
		since = *lastSpeech
	}
	if time.Since(since) > threshold {
		return leaveReason{event: statemachine.EventAutoLeave, extra: map[string]any{"reason": "silence"}}, true
	}
	return leaveReason{}, false
}

func (l *loop) checkMaxDuration(ctx context.Context) (leaveReason, bool) {
	threshold := resolveThreshold(l.bot.Settings.AutoLeave.MaxDurationSeconds, l.c.cfg.AutoLeave.MaxDuration)
	if threshold <= 0 {
		return leaveReason{}, false
	}

	runtime, err := l.c.store.RuntimeSeconds(ctx, l.bot.ID)
	if err != nil {
		l.log.Error("failed to query runtime for auto-leave", "error", err)
		return leaveReason{}, false
	}
	if time.Duration(runtime*float64(time.Second)) > threshold {
		return leaveReason{event: statemachine.EventAutoLeave, extra: map[string]any{"reason": "max_duration"}}, true
	}
	return leaveReason{}, false
}

// resolveThreshold prefers a Bot-level override (seconds, 0 meaning
// unset) over the worker's configured default.
func resolveThreshold(overrideSeconds int, def time.Duration) time.Duration {
	if overrideSeconds > 0 {
		return time.Duration(overrideSeconds) * time.Second
	}
	return def
}
