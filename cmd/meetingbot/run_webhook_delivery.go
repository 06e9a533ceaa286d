package main

import (
	"github.com/spf13/cobra"

	"github.com/meetingbot/core/internal/webhook"
)

func newRunWebhookDeliveryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-webhook-delivery",
		Short: "drain the webhook delivery queue",
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

			d := webhook.NewDelivery(st, webhook.DeliveryConfig{
				ConnectTimeout: cfg.Webhook.ConnectTimeout,
				TotalTimeout:   cfg.Webhook.TotalTimeout,
				WorkerCount:    cfg.Webhook.WorkerCount,
				MaxBodyBytes:   cfg.Webhook.MaxBodyBytes,
			}, log)

			log.Info("running webhook delivery pool", "workers", cfg.Webhook.WorkerCount)
			d.Run(ctx)
			return nil
		},
	}
}
