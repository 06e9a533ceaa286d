package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetingbot/core/internal/models"
)

func TestDetectPlatform(t *testing.T) {
	cases := []struct {
		url      string
		platform models.Platform
	}{
		{"https://zoom.us/j/1234567890", models.PlatformZoomWeb},
		{"https://us02web.zoom.us/j/1234567890?pwd=abc", models.PlatformZoomWeb},
		{"https://meet.google.com/abc-defg-hij", models.PlatformGoogleMeet},
		{"https://teams.microsoft.com/l/meetup-join/abc", models.PlatformTeams},
	}
	for _, c := range cases {
		got, err := DetectPlatform(c.url)
		require.NoError(t, err)
		assert.Equal(t, c.platform, got)
	}
}

func TestDetectPlatformUnrecognizedHost(t *testing.T) {
	_, err := DetectPlatform("https://example.com/meeting/1")
	assert.Error(t, err)
}

func TestFactoryNewCoversEveryPlatform(t *testing.T) {
	f := NewFactory()
	for _, p := range []models.Platform{
		models.PlatformZoomNative,
		models.PlatformZoomWeb,
		models.PlatformGoogleMeet,
		models.PlatformTeams,
		models.PlatformZoomRTMS,
	} {
		a, err := f.New(p)
		require.NoError(t, err)
		assert.NotNil(t, a)
	}
}

func TestFactoryNewUnknownPlatform(t *testing.T) {
	f := NewFactory()
	_, err := f.New(models.Platform("carrier_pigeon"))
	assert.Error(t, err)
}
