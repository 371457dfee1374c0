package console

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mimivibe/tarotq/pkg/config"
	"github.com/mimivibe/tarotq/pkg/database"
	"github.com/mimivibe/tarotq/pkg/root"
	"github.com/mimivibe/tarotq/pkg/schedule"
	"github.com/mimivibe/tarotq/pkg/telemetry"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule:run",
	Short: "Run the scheduled maintenance tasks",
	Run: func(cmd *cobra.Command, args []string) {
		telemetry.SetGlobalLogger()

		cfg, err := config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid configuration")
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-c
			log.Info().Msg("Shutting down scheduler...")
			cancel()
		}()

		b, err := buildBackend(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Str("driver", cfg.QueueDriver).Msg("Failed to build queue backend")
		}

		// Lock provider: Redis when the driver gives us a connection,
		// database when only a DSN is around, none otherwise.
		var lockProvider schedule.LockProvider
		switch {
		case b.redisClient != nil:
			lockProvider = schedule.NewRedisLockProvider(b.redisClient)
		case cfg.DatabaseDSN != "":
			db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to connect to database for scheduler lock")
			}
			defer db.Close()
			lockProvider = schedule.NewDatabaseLockProvider(db, cfg.DatabaseDriver)
		default:
			log.Info().Msg("No distributed lock provider configured; OnOneServer tasks run on every server")
		}

		kernel := schedule.GetGlobalKernel()
		kernel.SetLockProvider(lockProvider)

		kernel.RegisterDepthMonitor(b.queue, cfg.RedisStreamKey)

		dlq, db, err := openDLQ(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open dead-letter store")
		}
		if dlq != nil {
			defer db.Close()
			kernel.RegisterDLQMonitor(dlq)
		}

		kernel.Run(ctx)
	},
}

func init() {
	root.GetRoot().AddCommand(scheduleCmd)
}
