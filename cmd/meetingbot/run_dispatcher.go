package main

import (
	"github.com/spf13/cobra"

	"github.com/meetingbot/core/internal/config"
	"github.com/meetingbot/core/internal/dispatcher"
	"github.com/meetingbot/core/internal/launcher"
)

func newRunDispatcherCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-dispatcher",
		Short: "run the tick loop that advances scheduled/ready/stale bots",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := newLogger()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			st, err := openStore(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			l, err := buildLauncher(cfg)
			if err != nil {
				return err
			}

			d := dispatcher.New(st, l, newAccounting(st), dispatcher.Config{
				TickInterval:      cfg.Dispatcher.TickInterval,
				PreRoll:           cfg.Dispatcher.PreRoll,
				HeartbeatTimeout:  cfg.Dispatcher.HeartbeatTimeout,
				LaunchRetryWindow: cfg.Dispatcher.LaunchRetryWindow,
				ShardCount:        cfg.Dispatcher.ShardCount,
			}, log)

			log.Info("running dispatcher")
			d.Run(ctx)
			return nil
		},
	}
}

// buildLauncher selects a Launcher implementation per cfg.Launcher.Kind.
func buildLauncher(cfg *config.Config) (launcher.Launcher, error) {
	switch cfg.Launcher.Kind {
	case "container":
		return launcher.NewContainerLauncher(cfg.Launcher.DockerHost, cfg.Launcher.ContainerImage)
	default:
		return launcher.NewProcessLauncher(cfg.Launcher.WorkerBinary), nil
	}
}
