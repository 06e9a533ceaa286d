// Package launcher starts and stops the OS-level worker process (or
// container) that runs a single Bot's internal/controller.
package launcher

import (
	"context"
	"errors"

	"github.com/meetingbot/core/internal/models"
)

// ErrCapacity is returned when the underlying launch mechanism (a local
// process limit, a container scheduler's quota) has no room for another
// worker right now. The dispatcher treats this as retryable: the Bot stays
// in STAGED and is picked up again on a later tick rather than being
// failed outright.
var ErrCapacity = errors.New("launcher has no capacity for another worker")

// Launcher starts a worker process for a Bot and can force it to stop.
type Launcher interface {
	// Launch starts the worker for bot and returns an opaque handle the
	// launcher can later use to Stop it. It does not block until the
	// worker is healthy — that's the dispatcher's heartbeat sweep's job.
	Launch(ctx context.Context, bot *models.Bot) (handle string, err error)

	// Stop forcibly terminates a previously launched worker, used when a
	// heartbeat timeout drives a Bot to FATAL_ERROR and the dispatcher
	// wants to reclaim the worker's resources instead of leaving it
	// running orphaned.
	Stop(ctx context.Context, handle string) error
}
