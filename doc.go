// Package tarotq provides the job queue for tarot reading requests: one
// queue contract with in-memory, Redis Streams, Upstash REST, and SQS
// backends, plus the worker pool, retry policy, dedupe gate, and dead-letter
// store around it.
//
// Key subpackages:
//
//	github.com/mimivibe/tarotq/pkg/queue    - Queue contract, payloads, producer, in-memory backend
//	github.com/mimivibe/tarotq/pkg/worker   - Worker pool (ack / retry / dead-letter)
//	github.com/mimivibe/tarotq/pkg/retry    - Exponential backoff with jitter
//	github.com/mimivibe/tarotq/pkg/dedupe   - Duplicate-submission gate (SET NX EX)
//	github.com/mimivibe/tarotq/pkg/errs     - Error codes, severities, sanitized messages
//	github.com/mimivibe/tarotq/pkg/driver   - Backends (redis, upstash, sqs) and the dead-letter store
//	github.com/mimivibe/tarotq/pkg/schedule - Cron maintenance tasks with distributed locks
//
// Example usage:
//
//	package main
//
//	import (
//		"context"
//
//		goredis "github.com/redis/go-redis/v9"
//
//		"github.com/mimivibe/tarotq/pkg/driver/redis"
//		"github.com/mimivibe/tarotq/pkg/queue"
//		"github.com/mimivibe/tarotq/pkg/retry"
//		"github.com/mimivibe/tarotq/pkg/worker"
//	)
//
//	func MyHandler(ctx context.Context, job *queue.QueuedJob) error {
//		// Process the reading...
//		return nil
//	}
//
//	func main() {
//		ctx := context.Background()
//		client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//		q, _ := redis.NewStreamQueue(ctx, client, "tarot:jobs", "tarot-workers")
//		policy, _ := retry.NewPolicy(retry.DefaultConfig())
//
//		queue.Register(queue.JobTypeReading, MyHandler)
//		pool := &worker.Pool{Queue: q, Policy: policy, QueueName: "tarot:jobs", Concurrency: 4}
//		pool.Run(ctx)
//	}
package tarotq
