package console

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mimivibe/tarotq/pkg/config"
	"github.com/mimivibe/tarotq/pkg/retry"
	"github.com/mimivibe/tarotq/pkg/root"
	"github.com/mimivibe/tarotq/pkg/telemetry"
	"github.com/mimivibe/tarotq/pkg/worker"
)

var workerConcurrency int

var workerCmd = &cobra.Command{
	Use:     "queue:work",
	Aliases: []string{"worker"},
	Short:   "Start the queue worker pool",
	Run: func(cmd *cobra.Command, args []string) {
		telemetry.SetGlobalLogger()

		tp, err := telemetry.InitTracer("tarotq-worker")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("Error shutting down tracer")
			}
		}()

		cfg, err := config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid configuration")
		}
		if workerConcurrency > 0 {
			cfg.WorkerConcurrency = workerConcurrency
		}

		policy, err := retry.NewPolicy(retry.Config{
			MaxAttempts:       cfg.RetryMaxAttempts,
			BaseDelay:         cfg.RetryBaseDelay,
			MaxDelay:          cfg.RetryMaxDelay,
			BackoffMultiplier: cfg.RetryMultiplier,
			Jitter:            cfg.RetryJitter,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid retry configuration")
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-c
			log.Info().Msg("Shutting down worker...")
			cancel()
		}()

		b, err := buildBackend(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Str("driver", cfg.QueueDriver).Msg("Failed to build queue backend")
		}

		dlq, db, err := openDLQ(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open dead-letter store")
		}
		if db != nil {
			defer db.Close()
		}

		// The reclaimer requeues entries claimed by crashed consumers.
		if b.redisQueue != nil {
			go b.redisQueue.StartReclaimer(ctx, cfg.ReclaimInterval, cfg.ReclaimMinIdle)
		}

		pool := &worker.Pool{
			Queue:       b.queue,
			Policy:      policy,
			Connection:  cfg.QueueDriver,
			QueueName:   cfg.RedisStreamKey,
			Concurrency: cfg.WorkerConcurrency,
			JobTimeout:  cfg.JobTimeout,
		}
		// Assign only a live provider: a nil pointer in the interface field
		// would slip past the pool's DLQ check.
		if dlq != nil {
			pool.DLQ = dlq
		}

		log.Info().
			Str("driver", cfg.QueueDriver).
			Str("queue", cfg.RedisStreamKey).
			Int("workers", cfg.WorkerConcurrency).
			Msg("Starting worker pool...")

		pool.Run(ctx)
		log.Info().Msg("Worker pool stopped.")
	},
}

func init() {
	workerCmd.Flags().IntVar(&workerConcurrency, "workers", 0, "Override WORKER_CONCURRENCY")

	root.GetRoot().AddCommand(workerCmd)
}
