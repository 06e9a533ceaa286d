package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/meetingbot/core/internal/models"
)

// Payload is the envelope delivered to a subscriber for every trigger.
type Payload struct {
	Trigger   models.TriggerType `json:"trigger"`
	BotID     string             `json:"bot_id"`
	Data      any                `json:"data"`
	CreatedAt string             `json:"created_at"`
}

// BuildPayload marshals a Payload envelope for the given trigger.
func BuildPayload(trigger models.TriggerType, botID string, data any, createdAtRFC3339 string) ([]byte, error) {
	p := Payload{Trigger: trigger, BotID: botID, Data: data, CreatedAt: createdAtRFC3339}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}
	return b, nil
}

// IdempotencyKey derives a stable per-delivery key so re-enqueuing the
// same logical event never creates a duplicate attempt row.
func IdempotencyKey(trigger models.TriggerType, botID string, discriminator string) string {
	return fmt.Sprintf("%s:%s:%s", trigger, botID, discriminator)
}
