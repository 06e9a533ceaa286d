package adapter

import "github.com/meetingbot/core/internal/models"

// googleMeetAdapter joins via the same browser-automation path as
// zoomWebAdapter; Google Meet has no admission credential of its own, so
// it shares browserAdmit rather than defining a redundant variant.
func newGoogleMeetAdapter() Adapter {
	return &baseAdapter{
		platform: models.PlatformGoogleMeet,
		admit:    browserAdmit,
	}
}
