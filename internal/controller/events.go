package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meetingbot/core/internal/adapter"
	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/statemachine"
)

// leaveReason names why the event loop exited, so shutdown can pick the
// right BotEvent sub-state. alreadyTerminal is true when the adapter
// itself already delivered the terminal event that caused this
// (EventMeetingEnded/EventFatalError), so shutdown doesn't need to wait
// for one after calling Leave.
type leaveReason struct {
	event           statemachine.Event
	extra           map[string]any
	alreadyTerminal bool
}

// loop holds the per-run mutable state the event-driven decisions need:
// the current Bot row (state mutates as transitions are applied) and the
// auto-leave policy's running counters.
type loop struct {
	c     *Controller
	bot   *models.Bot
	sess  *session
	ctrls adapter.Controls
	log   *slog.Logger

	onlyParticipantSince time.Time
	joiningSince         time.Time
}

// run consumes the adapter's event stream plus the heartbeat and
// auto-leave tickers until a terminal adapter event arrives or an
// auto-leave/ctx-cancellation decision fires. It returns the event that
// takes the Bot out of its joined state: a LEAVING edge, or
// EventUnrecoverableError when the Bot goes straight to FATAL_ERROR.
func (l *loop) run(ctx context.Context, events <-chan adapter.Event, heartbeat, autoLeave, commandPoll <-chan time.Time) leaveReason {
	l.joiningSince = time.Now()
	for {
		select {
		case <-ctx.Done():
			// Every non-terminal state has an unrecoverable_error edge, so
			// this is the only transition guaranteed to apply regardless of
			// which state the Bot was in when the process was asked to stop.
			return leaveReason{event: statemachine.EventUnrecoverableError, extra: map[string]any{"reason": "worker_shutdown"}}

		case <-heartbeat:
			if err := l.c.store.Heartbeat(ctx, l.bot.ID); err != nil {
				l.log.Error("failed to write heartbeat", "error", err)
			}

		case <-autoLeave:
			if r, ok := l.checkAutoLeave(ctx); ok {
				return r
			}

		case <-commandPoll:
			l.reconcilePauseState(ctx)

		case ev, open := <-events:
			if !open {
				// The contract requires a terminal event before the stream
				// closes; a bare close without one is itself a fault.
				return leaveReason{event: statemachine.EventUnrecoverableError, extra: map[string]any{"reason": "adapter_crash", "detail": "event stream closed without a terminal event"}}
			}
			if terminal, r := l.handleEvent(ctx, ev); terminal {
				return r
			}
		}
	}
}

// handleEvent applies one Adapter event. terminal is true once the event
// stream has reached (or should be driven to) a terminal outcome.
func (l *loop) handleEvent(ctx context.Context, ev adapter.Event) (terminal bool, reason leaveReason) {
	switch ev.Type {
	case adapter.EventAdmitted:
		bot, applied, err := l.c.store.Transition(ctx, l.bot.ID, statemachine.EventAdmit, nil, nil)
		if err != nil {
			l.log.Error("failed to transition on admit", "error", err)
			return true, leaveReason{event: statemachine.EventUnrecoverableError, extra: map[string]any{"reason": "admit_transition_failed"}}
		}
		if applied {
			l.bot = bot
			l.fireStateChange(ctx)
		}
		if l.bot.Settings.AutoRecord {
			l.startRecording(ctx)
		}

	case adapter.EventRejected:
		l.log.Info("adapter rejected meeting entry", "reason", ev.Reason)
		return true, leaveReason{event: statemachine.EventAutoLeave, extra: map[string]any{"reason": "rejected", "detail": ev.Reason}}

	case adapter.EventParticipant:
		l.handleParticipantEvent(ctx, ev.Participant)

	case adapter.EventAudioFrame:
		l.handleAudio(ctx, ev.Audio)

	case adapter.EventVideoFrame:
		if l.sess.pipeline != nil && ev.Video != nil {
			l.sess.pipeline.IngestVideo(time.Now(), ev.Video.ParticipantID, ev.Video.Data)
		}

	case adapter.EventChatMessage:
		l.handleChat(ctx, ev.Chat)

	case adapter.EventMeetingEnded:
		return true, leaveReason{event: statemachine.EventMeetingEnd, extra: map[string]any{"reason": "meeting_ended"}, alreadyTerminal: true}

	case adapter.EventFatalError:
		l.log.Error("adapter reported fatal error", "reason", ev.Reason)
		return true, leaveReason{event: statemachine.EventUnrecoverableError, extra: map[string]any{"reason": "adapter_crash", "detail": ev.Reason}, alreadyTerminal: true}
	}
	return false, leaveReason{}
}

func (l *loop) startRecording(ctx context.Context) {
	bot, applied, err := l.c.store.Transition(ctx, l.bot.ID, statemachine.EventStartRecording, nil, nil)
	if err != nil {
		l.log.Error("failed to transition to JOINED_RECORDING", "error", err)
		return
	}
	if !applied {
		return
	}
	l.bot = bot
	l.fireStateChange(ctx)
	if err := l.ctrls.StartRecording(ctx); err != nil {
		l.log.Warn("adapter StartRecording failed", "error", err)
	}
}

// reconcilePauseState re-reads the Bot row and drives the adapter's
// Controls.PauseRecording/ResumeRecording if an operator called
// BotService.PauseBot/ResumeBot since the last poll. Those service methods
// only flip the Bot row's state; this is the only place that actually
// touches the live adapter for a pause/resume requested through the API.
func (l *loop) reconcilePauseState(ctx context.Context) {
	if l.bot.State != models.StateJoinedRecording && l.bot.State != models.StatePaused {
		return
	}
	bot, err := l.c.store.GetBot(ctx, l.bot.ID)
	if err != nil {
		l.log.Error("failed to poll bot state for pause/resume reconciliation", "error", err)
		return
	}
	switch {
	case l.bot.State == models.StateJoinedRecording && bot.State == models.StatePaused:
		if err := l.ctrls.PauseRecording(ctx); err != nil {
			l.log.Warn("adapter PauseRecording failed", "error", err)
		}
		if l.sess.pipeline != nil {
			l.sess.pipeline.Pause()
		}
	case l.bot.State == models.StatePaused && bot.State == models.StateJoinedRecording:
		if err := l.ctrls.ResumeRecording(ctx); err != nil {
			l.log.Warn("adapter ResumeRecording failed", "error", err)
		}
		if l.sess.pipeline != nil {
			l.sess.pipeline.Resume()
		}
	default:
		return
	}
	l.bot = bot
	l.fireStateChange(ctx)
}

func (l *loop) handleParticipantEvent(ctx context.Context, pe *models.ParticipantEvent) {
	if pe == nil {
		return
	}
	participant, err := l.c.store.UpsertParticipant(ctx, &models.Participant{
		ID:    uuid.NewString(),
		BotID: l.bot.ID,
		UUID:  pe.ParticipantID,
	})
	if err != nil {
		l.log.Error("failed to upsert participant", "error", err)
		return
	}
	pe.ID = uuid.NewString()
	pe.ParticipantID = participant.ID
	pe.BotID = l.bot.ID
	if err := l.c.store.InsertParticipantEvent(ctx, pe); err != nil {
		l.log.Error("failed to insert participant event", "error", err)
		return
	}

	if pe.Type == models.ParticipantLeave {
		l.sess.pipeline.RemoveParticipant(participant.ID)
	}

	trigger, ok := participantTrigger(pe.Type)
	if !ok {
		return
	}
	if err := l.c.webhooks.Fire(ctx, l.bot.ProjectID, l.bot.ID, trigger, pe.ID, pe); err != nil {
		l.log.Error("failed to fire participant webhook", "error", err)
	}
}

func participantTrigger(t models.ParticipantEventType) (models.TriggerType, bool) {
	switch t {
	case models.ParticipantJoin:
		return models.TriggerParticipantEventsJoin, true
	case models.ParticipantLeave:
		return models.TriggerParticipantEventsLeave, true
	case models.ParticipantSpeechStart, models.ParticipantSpeechStop:
		return models.TriggerParticipantEventsSpeech, true
	case models.ParticipantScreenshareStart, models.ParticipantScreenshareStop:
		return models.TriggerParticipantEventsScreenshare, true
	default:
		return "", false
	}
}

func (l *loop) handleAudio(ctx context.Context, frame *adapter.AudioFrame) {
	if frame == nil || l.sess.pipeline == nil {
		return
	}
	samples := pcm16ToFloat32(frame.PCM)
	l.sess.pipeline.IngestAudio(time.Now(), frame.ParticipantID, samples)
	if l.sess.transcription != nil {
		l.sess.transcription.Feed(ctx, frame.ParticipantID, frame.PCM, frame.TimestampMS)
	}
}

func (l *loop) handleChat(ctx context.Context, msg *models.ChatMessage) {
	if msg == nil {
		return
	}
	msg.ID = uuid.NewString()
	msg.BotID = l.bot.ID
	if err := l.c.store.InsertChatMessage(ctx, msg); err != nil {
		l.log.Error("failed to insert chat message", "error", err)
		return
	}
	if err := l.c.webhooks.Fire(ctx, l.bot.ProjectID, l.bot.ID, models.TriggerChatMessagesUpdate, msg.ID, msg); err != nil {
		l.log.Error("failed to fire chat webhook", "error", err)
	}
}

func (l *loop) fireStateChange(ctx context.Context) {
	if err := l.c.webhooks.Fire(ctx, l.bot.ProjectID, l.bot.ID, models.TriggerBotStateChange, string(l.bot.State), l.bot); err != nil {
		l.log.Error("failed to fire state-change webhook", "error", err)
	}
}

// pcm16ToFloat32 converts little-endian signed 16-bit PCM to the mixer's
// normalized float32 samples.
func pcm16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = float32(v) / 32768.0
	}
	return out
}
