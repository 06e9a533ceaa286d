package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meetingbot/core/internal/adapter"
	"github.com/meetingbot/core/internal/credit"
	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/statemachine"
	"github.com/meetingbot/core/internal/storage"
)

// runShutdown drives bot from wherever the event loop left it through to
// its terminal state, finalizing the recording, invoking the Uploader,
// and debiting credits in the same transaction as the terminal BotEvent.
func (c *Controller) runShutdown(ctx context.Context, bot *models.Bot, sess *session, ctrls adapter.Controls, events <-chan adapter.Event, reason leaveReason) error {
	log := c.log.With("bot_id", bot.ID)
	// Shutdown always runs to completion even if ctx was the reason the
	// event loop exited.
	bg := context.Background()

	if reason.event == statemachine.EventUnrecoverableError {
		c.finalizeArtifacts(bg, bot, sess)
		debit, result := c.debitFunc(bot, sess)
		_, _, err := c.store.Transition(bg, bot.ID, statemachine.EventUnrecoverableError, reason.extra, debit)
		if err != nil {
			log.Error("failed to transition to FATAL_ERROR", "error", err)
		}
		c.maybeFireCreditsLow(bg, bot, result)
		return err
	}

	bot, applied, err := c.store.Transition(bg, bot.ID, reason.event, reason.extra, nil)
	if err != nil {
		log.Error("failed to transition to LEAVING", "error", err)
	}
	if applied {
		c.fireStateChangeBg(bg, bot)
	}

	if err := ctrls.Leave(bg); err != nil {
		log.Warn("adapter Leave failed", "error", err)
	}
	if !reason.alreadyTerminal {
		waitForTerminal(events, c.cfg.AdapterLeaveDeadline, log)
	}

	c.finalizeArtifacts(bg, bot, sess)

	bot, applied, err = c.store.Transition(bg, bot.ID, statemachine.EventAdapterClosed, nil, nil)
	if err != nil {
		log.Error("failed to transition to POST_PROCESSING", "error", err)
		return err
	}
	if applied {
		c.fireStateChangeBg(bg, bot)
	}

	c.uploadAndFinalize(bg, bot, sess, log)

	debit, result := c.debitFunc(bot, sess)
	bot, applied, err = c.store.Transition(bg, bot.ID, statemachine.EventArtifactFinalized, nil, debit)
	if err != nil {
		log.Error("failed to transition to ENDED", "error", err)
		return err
	}
	if applied {
		c.fireStateChangeBg(bg, bot)
	}
	c.maybeFireCreditsLow(bg, bot, result)
	return nil
}

// maybeFireCreditsLow fires the organization.credits_low webhook once per
// threshold crossing, outside the transaction that performed the debit.
func (c *Controller) maybeFireCreditsLow(ctx context.Context, bot *models.Bot, result *credit.DebitResult) {
	if result == nil || !result.CrossedLow {
		return
	}
	if err := c.webhooks.Fire(ctx, bot.ProjectID, bot.ID, models.TriggerOrganizationCreditsLow, bot.ID, result); err != nil {
		c.log.Error("failed to fire credits_low webhook", "bot_id", bot.ID, "error", err)
	}
}

// waitForTerminal drains events, discarding everything except a terminal
// type, until one arrives or deadline elapses. Adapter.Leave's contract
// promises a terminal event within LeaveDeadline; this is the controller
// half of honoring that promise without blocking shutdown forever if the
// adapter misbehaves.
func waitForTerminal(events <-chan adapter.Event, deadline time.Duration, log *slog.Logger) {
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			if ev.Type == adapter.EventMeetingEnded || ev.Type == adapter.EventFatalError {
				return
			}
		case <-timer.C:
			log.Warn("adapter did not deliver a terminal event within the leave deadline")
			return
		}
	}
}

// finalizeArtifacts flushes the pipeline and transcription coordinator.
// Safe to call once regardless of which path led to shutdown; a recording
// with zero frames captured still gets a FAILED finalize via
// store.FinalizeRecording's own invariant enforcement.
func (c *Controller) finalizeArtifacts(ctx context.Context, bot *models.Bot, sess *session) {
	if sess.transcription != nil {
		sess.transcription.Flush(c.cfg.FlushTimeout)
	}
	if sess.pipeline != nil {
		outputPath, _, err := sess.pipeline.Flush(c.cfg.FlushTimeout)
		if err != nil {
			c.log.Error("failed to flush media pipeline", "bot_id", bot.ID, "error", err)
			return
		}
		sess.outputPath = outputPath
		if dropped := sess.pipeline.FramesDropped(); dropped > 0 {
			if err := c.store.IncrementFramesDropped(ctx, sess.recording.ID, dropped); err != nil {
				c.log.Error("failed to record dropped frames", "bot_id", bot.ID, "error", err)
			}
		}
	}
}

// uploadAndFinalize uploads the pipeline's output artifact and writes the
// recording's terminal muxing state.
func (c *Controller) uploadAndFinalize(ctx context.Context, bot *models.Bot, sess *session, log *slog.Logger) {
	if sess.outputPath == "" {
		reason := "no output artifact produced"
		if err := c.store.FinalizeRecording(ctx, sess.recording.ID, models.RecordingStateFailed, "", 0, 0, &reason); err != nil {
			log.Error("failed to finalize empty recording", "error", err)
		}
		return
	}

	objectKey := storage.RecordingObjectKey(bot, sess.recording)
	bytesUploaded, err := c.uploader.Put(ctx, objectKey, sess.outputPath)
	if err != nil {
		reason := fmt.Sprintf("upload failed: %v", err)
		if ferr := c.store.FinalizeRecording(ctx, sess.recording.ID, models.RecordingStateFailed, "", 0, 0, &reason); ferr != nil {
			log.Error("failed to finalize failed-upload recording", "error", ferr)
		}
		return
	}

	durationMS := int64(0)
	if runtime, err := c.store.RuntimeSeconds(ctx, bot.ID); err == nil {
		durationMS = int64(runtime * 1000)
	}
	if err := c.store.FinalizeRecording(ctx, sess.recording.ID, models.RecordingStateComplete, objectKey, bytesUploaded, durationMS, nil); err != nil {
		log.Error("failed to finalize recording", "error", err)
	}
}

// debitFunc builds the store.Transition debit callback for bot's terminal
// transition, computing runtime and organization from the Bot's project.
// The returned result is populated once the enclosing Transition commits;
// callers check result.CrossedLow afterward to decide whether to fire the
// credits_low webhook, since that should happen outside the transaction.
// Returns a nil func (no debit) if either lookup fails, logging the cause
// — credit accounting should never block a Bot from reaching its terminal
// state.
func (c *Controller) debitFunc(bot *models.Bot, sess *session) (func(tx pgx.Tx, b *models.Bot) error, *credit.DebitResult) {
	result := &credit.DebitResult{}
	runtime, err := c.store.RuntimeSeconds(context.Background(), bot.ID)
	if err != nil {
		c.log.Error("failed to derive runtime for credit debit", "bot_id", bot.ID, "error", err)
		return nil, result
	}
	project, err := c.store.GetProject(context.Background(), bot.ProjectID)
	if err != nil {
		c.log.Error("failed to load project for credit debit", "bot_id", bot.ID, "error", err)
		return nil, result
	}
	return c.accounting.Debit(context.Background(), project.OrganizationID, runtime, sess.recording.RecordingType, result), result
}

func (c *Controller) fireStateChangeBg(ctx context.Context, bot *models.Bot) {
	if err := c.webhooks.Fire(ctx, bot.ProjectID, bot.ID, models.TriggerBotStateChange, string(bot.State), bot); err != nil {
		c.log.Error("failed to fire state-change webhook", "bot_id", bot.ID, "error", err)
	}
}
