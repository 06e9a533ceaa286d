package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meetingbot/core/internal/adapter"
	"github.com/meetingbot/core/internal/controller"
	"github.com/meetingbot/core/internal/storage"
	"github.com/meetingbot/core/internal/transcription"
)

func newRunWorkerCmd() *cobra.Command {
	var botID string
	cmd := &cobra.Command{
		Use:   "run-worker",
		Short: "run one Bot's controller to completion (STAGED -> ENDED/FATAL_ERROR)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if botID == "" {
				return fmt.Errorf("--bot-id is required")
			}
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

			credentials, err := newCredentialService(st)
			if err != nil {
				return err
			}

			objectStore, err := storage.New(ctx, cfg.Storage)
			if err != nil {
				return err
			}

			providers := controller.TranscriptionProviders{
				"deepgram": transcription.NewDeepgramProvider(),
			}
			if addr := asrGRPCAddr(); addr != "" {
				grpcProvider, err := transcription.NewGRPCProvider(addr)
				if err != nil {
					return err
				}
				providers["grpc_asr"] = grpcProvider
			}

			ctrl := controller.New(
				st, credentials, newAccounting(st), webhookEngine(st), adapter.NewFactory(),
				objectStore, providers,
				controller.Config{
					HeartbeatInterval:    cfg.Worker.HeartbeatInterval,
					FlushTimeout:         cfg.Worker.FlushTimeout,
					AdapterLeaveDeadline: cfg.Worker.AdapterLeaveDeadline,
					AutoLeave:            cfg.Worker.AutoLeave,
				},
				log,
			)

			log.Info("running worker", "bot_id", botID)
			return ctrl.Run(ctx, botID)
		},
	}
	cmd.Flags().StringVar(&botID, "bot-id", "", "ID of the Bot this worker drives")
	return cmd
}
