package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := newLogger()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			// store.Open applies every embedded migration before
			// returning, so opening and immediately closing is the whole
			// operation — there is no separate "apply" step to call.
			st, err := openStore(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			log.Info("migrations applied")
			return nil
		},
	}
}
