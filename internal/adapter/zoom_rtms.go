package adapter

import (
	"context"

	"github.com/meetingbot/core/internal/models"
)

// zoomRTMSAdapter backs an App Session: it never joins a participant into
// the meeting, only consumes a Zoom-pushed real-time media stream, so it
// has no waiting room to wait in: the only admission check is that a
// stream credential is present (it reports Rejected when the credential
// is empty), and Leave simply stops consuming rather than departing a
// meeting.
func newZoomRTMSAdapter() Adapter {
	return &baseAdapter{
		platform: models.PlatformZoomRTMS,
		admit:    rtmsAdmit,
	}
}

func rtmsAdmit(ctx context.Context, meetingURL string, creds Credentials) (string, error) {
	if creds.Secret == "" {
		return "missing grpc_asr or zoom RTMS stream credential", nil
	}
	// Subscribing to the pushed media stream and demuxing it into
	// per-participant audio/video frames lives below this interface.
	return "", nil
}
