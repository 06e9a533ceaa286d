package adapter

import (
	"context"

	"github.com/meetingbot/core/internal/models"
)

// zoomNativeAdapter joins via the Zoom Meeting SDK rather than a browser,
// which is why it needs an OAuth credential (ProviderZoomOAuth) up front:
// the native SDK authenticates before it ever reaches the waiting room,
// unlike the browser-driven variants below.
func newZoomNativeAdapter() Adapter {
	return &baseAdapter{
		platform: models.PlatformZoomNative,
		admit:    zoomNativeAdmit,
	}
}

func zoomNativeAdmit(ctx context.Context, meetingURL string, creds Credentials) (string, error) {
	if creds.Secret == "" {
		return "missing zoom_oauth credential", nil
	}
	// Native SDK session join, waiting-room handling, and meeting-password
	// prompts live below this interface.
	return "", nil
}
