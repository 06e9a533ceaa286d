package adapter

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/meetingbot/core/internal/models"
)

// DetectPlatform maps a meeting URL's host to the Bot Adapter variant that
// handles it. A caller that already knows the platform (the RTMS webhook
// path, which never sees a browsable URL) should skip this and set
// Bot.Platform directly.
func DetectPlatform(meetingURL string) (models.Platform, error) {
	u, err := url.Parse(meetingURL)
	if err != nil {
		return "", fmt.Errorf("invalid meeting url: %w", err)
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case strings.HasSuffix(host, "zoom.us"):
		return models.PlatformZoomWeb, nil
	case strings.Contains(host, "meet.google.com"):
		return models.PlatformGoogleMeet, nil
	case strings.Contains(host, "teams.microsoft.com") || strings.Contains(host, "teams.live.com"):
		return models.PlatformTeams, nil
	default:
		return "", fmt.Errorf("unrecognized meeting url host %q", host)
	}
}

// Factory builds the Adapter for a Bot's platform. A single Factory is
// shared by every worker process; New is cheap and stateless per call.
type Factory struct{}

// NewFactory builds a Factory.
func NewFactory() *Factory {
	return &Factory{}
}

// New returns the Adapter implementation for platform.
func (f *Factory) New(platform models.Platform) (Adapter, error) {
	switch platform {
	case models.PlatformZoomNative:
		return newZoomNativeAdapter(), nil
	case models.PlatformZoomWeb:
		return newZoomWebAdapter(), nil
	case models.PlatformGoogleMeet:
		return newGoogleMeetAdapter(), nil
	case models.PlatformTeams:
		return newTeamsAdapter(), nil
	case models.PlatformZoomRTMS:
		return newZoomRTMSAdapter(), nil
	default:
		return nil, fmt.Errorf("no adapter registered for platform %q", platform)
	}
}
