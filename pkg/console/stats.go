package console

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mimivibe/tarotq/pkg/config"
	"github.com/mimivibe/tarotq/pkg/root"
	"github.com/mimivibe/tarotq/pkg/telemetry"
)

var statsCmd = &cobra.Command{
	Use:   "queue:stats",
	Short: "Show queue depth and dead-letter backlog",
	Run: func(cmd *cobra.Command, args []string) {
		telemetry.SetGlobalLogger()

		cfg, err := config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid configuration")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		b, err := buildBackend(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Str("driver", cfg.QueueDriver).Msg("Failed to build queue backend")
		}

		depth, err := b.queue.Length(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read queue depth")
		}

		fmt.Printf("driver:   %s\n", cfg.QueueDriver)
		fmt.Printf("queue:    %s\n", cfg.RedisStreamKey)
		fmt.Printf("pending:  %d\n", depth)

		dlq, db, err := openDLQ(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open dead-letter store")
		}
		if dlq == nil {
			return
		}
		defer db.Close()

		n, err := dlq.Count(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to count dead-lettered jobs")
		}
		fmt.Printf("dead:     %d\n", n)

		if n > 0 {
			recent, err := dlq.Recent(ctx, 5)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to list dead-lettered jobs")
			}
			fmt.Println("recent failures:")
			for _, j := range recent {
				fmt.Printf("  #%d %s [%s] %s\n", j.ID, j.FailedAt.Format(time.RFC3339), j.Connection, j.Exception)
			}
		}
	},
}

func init() {
	root.GetRoot().AddCommand(statsCmd)
}
