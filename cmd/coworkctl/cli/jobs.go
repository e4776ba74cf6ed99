package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/coworkhub/coworkhub/jobs"
)

func newJobsCmd() *cobra.Command {
	var (
		redisAddr string
		days      int
	)
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger background jobs",
	}
	purge := &cobra.Command{
		Use:   "purge-audit",
		Short: "Enqueue an immediate audit retention run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := jobs.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			info, err := client.EnqueueAuditPurge(ctx, days)
			if err != nil {
				return fmt.Errorf("enqueue purge: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s on %s (id %s)\n", info.Type, info.Queue, info.ID)
			return nil
		},
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	purge.Flags().StringVar(&redisAddr, "redis-addr", addr, "Redis address of the job queue")
	purge.Flags().IntVar(&days, "days", 90, "retention in days")
	cmd.AddCommand(purge)
	return cmd
}
