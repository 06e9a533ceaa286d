package models

import "time"

// TriggerType enumerates the webhook trigger classes.
type TriggerType string

const (
	TriggerBotStateChange        TriggerType = "bot.state_change"
	TriggerTranscriptUpdate      TriggerType = "transcript.update"
	TriggerChatMessagesUpdate    TriggerType = "chat_messages.update"
	TriggerParticipantEventsJoin TriggerType = "participant_events.join"
	TriggerParticipantEventsLeave TriggerType = "participant_events.leave"
	TriggerParticipantEventsSpeech TriggerType = "participant_events.speech"
	TriggerParticipantEventsScreenshare TriggerType = "participant_events.screenshare"
	TriggerOrganizationCreditsLow TriggerType = "organization.credits_low"
)

// WebhookSubscription is a project-scoped delivery target.
type WebhookSubscription struct {
	ID        string
	ProjectID string
	URL       string
	Triggers  []TriggerType
	Secret    string
	IsActive  bool
	CreatedAt time.Time
}

// Matches reports whether this subscription is active and subscribed to
// the given trigger.
func (s *WebhookSubscription) Matches(trigger TriggerType) bool {
	if !s.IsActive {
		return false
	}
	for _, t := range s.Triggers {
		if t == trigger {
			return true
		}
	}
	return false
}

// DeliveryStatus is the terminal/pending state of a WebhookDeliveryAttempt.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "PENDING"
	DeliverySuccess DeliveryStatus = "SUCCESS"
	DeliveryFailure DeliveryStatus = "FAILURE"
)

// MaxDeliveryAttempts bounds retries (offsets
// {0,30,120,600,3600}s — five attempts total).
const MaxDeliveryAttempts = 5

// RetryOffsets is the fixed retry schedule applied after each failed
// delivery attempt.
var RetryOffsets = []time.Duration{
	0, 30 * time.Second, 120 * time.Second, 600 * time.Second, 3600 * time.Second,
}

// WebhookDeliveryAttempt records one subscription's delivery history for one
// triggered payload.
type WebhookDeliveryAttempt struct {
	ID               string
	SubscriptionID   string
	BotID            string
	TriggerType      TriggerType
	IdempotencyKey   string
	Payload          []byte
	AttemptCount     int
	LastAttemptAt    *time.Time
	NextAttemptAt    time.Time
	Status           DeliveryStatus
	ResponseBodyList []string
	SucceededAt      *time.Time
	CreatedAt        time.Time
}

// Exhausted reports whether no further attempts are permitted.
func (a *WebhookDeliveryAttempt) Exhausted() bool {
	return a.AttemptCount >= MaxDeliveryAttempts
}
