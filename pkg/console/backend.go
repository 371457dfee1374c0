// Package console registers the tarotq CLI commands: queue:work,
// queue:dispatch, queue:stats, and schedule:run.
package console

import (
	"context"
	"database/sql"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mimivibe/tarotq/pkg/config"
	"github.com/mimivibe/tarotq/pkg/database"
	"github.com/mimivibe/tarotq/pkg/dedupe"
	dlqdb "github.com/mimivibe/tarotq/pkg/driver/database"
	redisdriver "github.com/mimivibe/tarotq/pkg/driver/redis"
	sqsdriver "github.com/mimivibe/tarotq/pkg/driver/sqs"
	"github.com/mimivibe/tarotq/pkg/driver/upstash"
	"github.com/mimivibe/tarotq/pkg/queue"
)

// backend bundles everything a command needs from the configured driver.
type backend struct {
	queue queue.Queue

	// redisQueue is set for the redis driver so the worker can start the
	// stale-claim reclaimer.
	redisQueue *redisdriver.StreamQueue

	// redisClient is set when a Redis connection exists, for the dedupe gate
	// and scheduler locks.
	redisClient *goredis.Client
}

// buildBackend constructs the queue backend selected by QUEUE_DRIVER.
func buildBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.QueueDriver {
	case config.DriverMemory:
		return &backend{queue: queue.NewMemoryQueue()}, nil

	case config.DriverRedis:
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := goredis.NewClient(opts)
		q, err := redisdriver.NewStreamQueue(ctx, client, cfg.RedisStreamKey, cfg.RedisConsumerGroup)
		if err != nil {
			return nil, err
		}
		return &backend{queue: q, redisQueue: q, redisClient: client}, nil

	case config.DriverUpstash:
		q, err := upstash.NewStreamQueue(ctx, upstash.Config{
			BaseURL:   cfg.UpstashURL,
			Token:     cfg.UpstashToken,
			StreamKey: cfg.RedisStreamKey,
			Group:     cfg.RedisConsumerGroup,
		})
		if err != nil {
			return nil, err
		}
		return &backend{queue: q}, nil

	case config.DriverSQS:
		client, err := config.LoadSQSClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &backend{queue: sqsdriver.NewQueue(client, cfg.SQSQueueURL)}, nil
	}

	return nil, fmt.Errorf("unknown queue driver %q", cfg.QueueDriver)
}

// dedupeGate picks the dedupe backend: Redis when a connection exists,
// otherwise the process-local gate.
func (b *backend) dedupeGate() dedupe.Gate {
	if b.redisClient != nil {
		return dedupe.NewRedisGate(b.redisClient)
	}
	return dedupe.NewMemoryGate()
}

// openDLQ opens the dead-letter store when a DSN is configured. A nil
// provider disables dead-lettering (terminal failures are logged and
// dropped).
func openDLQ(cfg *config.Config) (*dlqdb.DeadLetterProvider, *sql.DB, error) {
	if cfg.DatabaseDSN == "" {
		return nil, nil, nil
	}
	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	return dlqdb.NewDeadLetterProvider(db, cfg.FailedJobsTable), db, nil
}
