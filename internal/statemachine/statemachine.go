// Package statemachine implements the Bot lifecycle transition table: a
// closed set of states and the events that move a Bot between them. It is
// intentionally pure — no I/O, no locking — so that internal/store can
// wrap it in a "SELECT ... FOR UPDATE + transition + bot_events insert"
// transaction and internal/controller and internal/dispatcher can
// unit-test their decisions against it directly.
package statemachine

import (
	"fmt"

	"github.com/meetingbot/core/internal/models"
)

// Event is one of the named transition triggers.
type Event string

const (
	EventJoinAtReached      Event = "join_at_reached"
	EventLaunch             Event = "launch"
	EventWorkerUp           Event = "worker_up"
	EventAdmit              Event = "admit"
	EventStartRecording     Event = "start_recording"
	EventPause              Event = "pause"
	EventResume             Event = "resume"
	EventLeaveCmd           Event = "leave_cmd"
	EventAutoLeave          Event = "auto_leave"
	EventMeetingEnd         Event = "meeting_end"
	EventKicked             Event = "kicked"
	EventAdapterClosed      Event = "adapter_closed"
	EventArtifactFinalized  Event = "artifact_finalized"
	EventUnrecoverableError Event = "unrecoverable_error"
)

// edge is one entry in the transition table: from a state, on an event, to
// a state with a diagnostic sub-state suffix.
type edge struct {
	to       models.BotState
	subState string
}

// table maps (from, event) -> edge. Any (from, event) pair absent from the
// table is an invalid transition and is rejected by Validate.
var table = map[models.BotState]map[Event]edge{
	models.StateScheduled: {
		EventJoinAtReached: {models.StateReady, ""},
	},
	models.StateReady: {
		EventLaunch: {models.StateStaged, ""},
	},
	models.StateStaged: {
		EventWorkerUp: {models.StateJoining, ""},
	},
	models.StateJoining: {
		EventAdmit:               {models.StateJoinedNotRecording, ""},
		EventAutoLeave:           {models.StateLeaving, "waiting_room_timeout"},
		EventUnrecoverableError:  {models.StateFatalError, "adapter_crash"},
	},
	models.StateJoinedNotRecording: {
		EventStartRecording:     {models.StateJoinedRecording, ""},
		EventLeaveCmd:           {models.StateLeaving, "operator_requested"},
		EventAutoLeave:          {models.StateLeaving, "auto_leave"},
		EventMeetingEnd:         {models.StateLeaving, "meeting_ended"},
		EventKicked:             {models.StateLeaving, "kicked"},
		EventUnrecoverableError: {models.StateFatalError, "adapter_crash"},
	},
	models.StateJoinedRecording: {
		EventPause:              {models.StatePaused, ""},
		EventLeaveCmd:           {models.StateLeaving, "operator_requested"},
		EventAutoLeave:          {models.StateLeaving, "auto_leave"},
		EventMeetingEnd:         {models.StateLeaving, "meeting_ended"},
		EventKicked:             {models.StateLeaving, "kicked"},
		EventUnrecoverableError: {models.StateFatalError, "adapter_crash"},
	},
	models.StatePaused: {
		EventResume:             {models.StateJoinedRecording, ""},
		EventLeaveCmd:           {models.StateLeaving, "operator_requested"},
		EventAutoLeave:          {models.StateLeaving, "auto_leave"},
		EventMeetingEnd:         {models.StateLeaving, "meeting_ended"},
		EventKicked:             {models.StateLeaving, "kicked"},
		EventUnrecoverableError: {models.StateFatalError, "adapter_crash"},
	},
	models.StateLeaving: {
		EventAdapterClosed:      {models.StatePostProcessing, ""},
		EventUnrecoverableError: {models.StateFatalError, "adapter_crash"},
	},
	models.StatePostProcessing: {
		EventArtifactFinalized:  {models.StateEnded, ""},
		EventUnrecoverableError: {models.StateFatalError, "finalize_failed"},
	},
}

// nonTerminalStates is every state from which unrecoverable_error is
// reachable regardless of the edges listed above.
var nonTerminalStates = []models.BotState{
	models.StateScheduled, models.StateReady, models.StateStaged, models.StateJoining,
	models.StateJoinedNotRecording, models.StateJoinedRecording, models.StatePaused,
	models.StateLeaving, models.StatePostProcessing,
}

func init() {
	for _, s := range nonTerminalStates {
		if _, ok := table[s]; !ok {
			table[s] = map[Event]edge{}
		}
		if _, ok := table[s][EventUnrecoverableError]; !ok {
			table[s][EventUnrecoverableError] = edge{models.StateFatalError, "unrecoverable_error"}
		}
	}
}

// ErrInvalidTransition names the case where (from, event) has no edge in
// the table. Validate reports that case as ok=false rather than returning
// this error, and the caller (internal/store) rejects such an attempt
// silently, not as a user error.
var ErrInvalidTransition = fmt.Errorf("invalid bot state transition")

// Validate looks up the transition for (from, event). ok is false if the
// pair has no edge; callers must treat that as a no-op, not an error path.
func Validate(from models.BotState, ev Event) (to models.BotState, subState string, ok bool) {
	if from.Terminal() {
		return "", "", false
	}
	edges, ok := table[from]
	if !ok {
		return "", "", false
	}
	e, ok := edges[ev]
	if !ok {
		return "", "", false
	}
	return e.to, e.subState, true
}

// HeartbeatTimeoutSubState is the diagnostic sub-state the dispatcher's
// janitor writes on a heartbeat-timeout FATAL_ERROR transition.
const HeartbeatTimeoutSubState = "heartbeat_timeout"

// LaunchFailedSubState is written when capacity errors exhaust the
// dispatcher's launch-retry window.
const LaunchFailedSubState = "launch_failed"

// ConfigInvalidSubState is the sub-state name for configuration errors; no
// code in this module writes it.
const ConfigInvalidSubState = "config_invalid"

// JoinedStates lists the states in which auto-leave policies and heartbeat
// sweeps apply.
var JoinedStates = []models.BotState{
	models.StateJoining,
	models.StateJoinedNotRecording,
	models.StateJoinedRecording,
	models.StatePaused,
	models.StateLeaving,
}

// InRange reports whether s is one of JoinedStates.
func InRange(s models.BotState) bool {
	for _, j := range JoinedStates {
		if j == s {
			return true
		}
	}
	return false
}
