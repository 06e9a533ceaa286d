package adapter

import (
	"context"

	"github.com/meetingbot/core/internal/models"
)

// zoomWebAdapter joins a Zoom meeting through the web client, the same
// browser-automation path used by GoogleMeet and Teams. It needs no
// standing credential: admission is whatever the meeting URL itself
// grants (a waiting room or passcode prompt is handled by the browser
// layer, not here).
func newZoomWebAdapter() Adapter {
	return &baseAdapter{
		platform: models.PlatformZoomWeb,
		admit:    browserAdmit,
	}
}

func browserAdmit(ctx context.Context, meetingURL string, creds Credentials) (string, error) {
	// Browser session launch, waiting-room polling, and passcode entry
	// live below this interface.
	return "", nil
}
