// Command meetingbot is the single binary for every meetingbot/core
// process: the API server, the dispatcher tick loop, a per-bot worker,
// the webhook delivery pool, and schema migrations. Which one runs is
// selected by subcommand, the same shape as the teacher's operator
// binary composing its manager/webhook/cleanup entry points behind one
// cobra root.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:   "meetingbot",
		Short: "meetingbot/core: multi-tenant meeting bot orchestration",
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("MEETINGBOT_CONFIG"), "path to meetingbot.yaml")

	root.AddCommand(
		newServeAPICmd(),
		newRunDispatcherCmd(),
		newRunWorkerCmd(),
		newRunWebhookDeliveryCmd(),
		newMigrateCmd(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configPath is shared by every subcommand via the persistent --config flag.
var configPath string
