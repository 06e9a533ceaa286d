package storage

import (
	"fmt"

	"github.com/meetingbot/core/internal/models"
)

// RecordingObjectKey lays out a primary recording's storage key:
// recordings/{bot_object_id}.{ext}. A legacy file_name set directly on
// the Bot overrides the derived key, since some pre-existing bots were
// created before the object key was computed from recording metadata.
func RecordingObjectKey(bot *models.Bot, rec *models.Recording) string {
	if bot.FileName != nil && *bot.FileName != "" {
		return fmt.Sprintf("recordings/%s", *bot.FileName)
	}
	return fmt.Sprintf("recordings/%s.%s", bot.ObjectID, extForFormat(rec.Format))
}

func extForFormat(f models.RecordingFormat) string {
	switch f {
	case models.FormatMP3:
		return "mp3"
	case models.FormatWebM:
		return "webm"
	case models.FormatNone:
		return "no_output"
	default:
		return "mp4"
	}
}
