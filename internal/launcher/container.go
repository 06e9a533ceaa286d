package launcher

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/meetingbot/core/internal/models"
)

// containerResources gives Zoom-native workers (which drive a real meeting
// client, not just a browser) a larger reservation than browser-based
// platforms.
var containerResources = map[models.Platform]container.Resources{
	models.PlatformZoomNative: {NanoCPUs: 2_000_000_000, Memory: 2 << 30},
	models.PlatformZoomRTMS:   {NanoCPUs: 500_000_000, Memory: 512 << 20},
}

var defaultResources = container.Resources{NanoCPUs: 1_000_000_000, Memory: 1 << 30}

// ContainerLauncher launches a worker as a one-shot container via the
// Docker Engine API, for deployments that isolate each Bot's worker in its
// own container rather than a forked OS process.
type ContainerLauncher struct {
	cli   *client.Client
	image string
}

// NewContainerLauncher builds a ContainerLauncher from a docker host URL
// (empty uses the environment default, DOCKER_HOST) and the worker image.
func NewContainerLauncher(dockerHost, image string) (*ContainerLauncher, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if dockerHost != "" {
		opts = append(opts, client.WithHost(dockerHost))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build docker client: %w", err)
	}
	return &ContainerLauncher{cli: cli, image: image}, nil
}

// Launch creates and starts a container running `run-worker --bot-id=`,
// returning the container ID as the handle.
func (l *ContainerLauncher) Launch(ctx context.Context, bot *models.Bot) (string, error) {
	resources := defaultResources
	if r, ok := containerResources[bot.Platform]; ok {
		resources = r
	}

	resp, err := l.cli.ContainerCreate(ctx,
		&container.Config{
			Image: l.image,
			Cmd:   []string{"run-worker", "--bot-id=" + bot.ID},
			Env:   []string{"BOT_ID=" + bot.ID, "MEETINGBOT_PLATFORM=" + string(bot.Platform)},
		},
		&container.HostConfig{Resources: resources},
		nil, nil, "meetingbot-worker-"+bot.ID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create worker container for bot %s (image %s): %w", bot.ID, l.image, err)
	}

	if err := l.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start worker container %s: %w", resp.ID, err)
	}
	return resp.ID, nil
}

// Stop stops and removes the container identified by handle.
func (l *ContainerLauncher) Stop(ctx context.Context, handle string) error {
	if err := l.cli.ContainerStop(ctx, handle, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to stop worker container %s: %w", handle, err)
	}
	if err := l.cli.ContainerRemove(ctx, handle, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove worker container %s: %w", handle, err)
	}
	return nil
}
