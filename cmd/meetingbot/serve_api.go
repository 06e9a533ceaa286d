package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/meetingbot/core/internal/api"
	"github.com/meetingbot/core/internal/realtime"
	"github.com/meetingbot/core/internal/services"
)

func newServeAPICmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-api",
		Short: "run the HTTP API and websocket transcript stream",
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

			manager := realtime.NewManager(st, 5*time.Second)
			listener := realtime.NewListener(dsn(cfg.Database), manager)
			manager.SetListener(listener)
			if err := listener.Start(ctx); err != nil {
				return err
			}
			defer listener.Stop(ctx)

			server := api.NewServer(
				services.NewBotService(st),
				services.NewOrganizationService(st),
				services.NewRecordingService(st),
				services.NewWebhookService(st),
				manager,
				log,
			)

			httpServer := &http.Server{Addr: addr, Handler: server.Handler()}
			log.Info("serving api", "addr", addr)

			errCh := make(chan error, 1)
			go func() { errCh <- httpServer.ListenAndServe() }()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			case err := <-errCh:
				if err == http.ErrServerClosed {
					return nil
				}
				return err
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	return cmd
}
