package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meetingbot/core/internal/models"
)

func TestRecordingObjectKeyDerivesFromFormat(t *testing.T) {
	cases := []struct {
		format models.RecordingFormat
		want   string
	}{
		{models.FormatMP4, "recordings/obj-1.mp4"},
		{models.FormatMP3, "recordings/obj-1.mp3"},
		{models.FormatWebM, "recordings/obj-1.webm"},
		{models.FormatNone, "recordings/obj-1.no_output"},
	}
	for _, c := range cases {
		bot := &models.Bot{ObjectID: "obj-1"}
		rec := &models.Recording{Format: c.format}
		assert.Equal(t, c.want, RecordingObjectKey(bot, rec))
	}
}

func TestRecordingObjectKeyHonorsLegacyFileNameOverride(t *testing.T) {
	legacy := "archive/2024/call.mp4"
	bot := &models.Bot{ObjectID: "obj-1", FileName: &legacy}
	rec := &models.Recording{Format: models.FormatMP4}
	assert.Equal(t, "recordings/archive/2024/call.mp4", RecordingObjectKey(bot, rec))
}
