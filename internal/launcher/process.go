package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/meetingbot/core/internal/models"
)

// ProcessLauncher launches a worker by re-invoking the current binary with
// `run-worker --bot-id=<id>`: os/exec.Command plus an inherited, overlaid
// environment.
type ProcessLauncher struct {
	// WorkerBinary is the executable to invoke; typically os.Args[0] so
	// the same binary that built the schedule also runs the worker.
	WorkerBinary string

	mu   sync.Mutex
	cmds map[string]*exec.Cmd // handle (bot id) -> running process
}

// NewProcessLauncher builds a ProcessLauncher that re-invokes workerBinary.
func NewProcessLauncher(workerBinary string) *ProcessLauncher {
	return &ProcessLauncher{WorkerBinary: workerBinary, cmds: make(map[string]*exec.Cmd)}
}

// Launch starts `<WorkerBinary> run-worker --bot-id=<bot.ID>` with BOT_ID
// set in its environment, and returns the Bot's own ID as the handle.
func (l *ProcessLauncher) Launch(ctx context.Context, bot *models.Bot) (string, error) {
	cmd := exec.CommandContext(ctx, l.WorkerBinary, "run-worker", "--bot-id="+bot.ID)
	cmd.Env = append(os.Environ(), "BOT_ID="+bot.ID, "MEETINGBOT_PLATFORM="+string(bot.Platform))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start worker process for bot %s: %w", bot.ID, err)
	}

	l.mu.Lock()
	l.cmds[bot.ID] = cmd
	l.mu.Unlock()

	go func() {
		_ = cmd.Wait() // reap; exit status surfaces through the heartbeat/state columns, not here
		l.mu.Lock()
		delete(l.cmds, bot.ID)
		l.mu.Unlock()
	}()

	return bot.ID, nil
}

// Stop sends SIGKILL to the process launched for handle, if it's still
// tracked locally (a dispatcher restart loses this map — StaleHeartbeats
// still drives the Bot to FATAL_ERROR even when the orphaned process
// outlives it).
func (l *ProcessLauncher) Stop(ctx context.Context, handle string) error {
	l.mu.Lock()
	cmd, ok := l.cmds[handle]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to kill worker process (pid %s): %w", strconv.Itoa(cmd.Process.Pid), err)
	}
	return nil
}
