package adapter

import "github.com/meetingbot/core/internal/models"

// teamsAdapter joins via browser automation like zoomWebAdapter and
// googleMeetAdapter. Teams' lobby behaves like a waiting room from the
// bot's perspective, so no platform-specific handshake is needed here.
func newTeamsAdapter() Adapter {
	return &baseAdapter{
		platform: models.PlatformTeams,
		admit:    browserAdmit,
	}
}
