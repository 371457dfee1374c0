package schedule

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mimivibe/tarotq/pkg/queue"
)

// RegisterDepthMonitor logs the pending queue depth every minute. Depth is
// the primary capacity signal for the reading pipeline; a steadily growing
// number means consumers are falling behind.
func (k *Kernel) RegisterDepthMonitor(q queue.Queue, queueName string) {
	k.Register("0 * * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		depth, err := q.Length(ctx)
		if err != nil {
			log.Error().Err(err).Str("queue", queueName).Msg("Failed to read queue depth")
			return
		}
		log.Info().Str("queue", queueName).Int("depth", depth).Msg("Queue depth")
	}, WithoutOverlapping())
}

// DeadLetterCounter reports how many dead-lettered rows exist.
type DeadLetterCounter interface {
	Count(ctx context.Context) (int, error)
}

// RegisterDLQMonitor logs the dead-letter backlog every five minutes, on one
// server only when a lock provider is configured.
func (k *Kernel) RegisterDLQMonitor(counter DeadLetterCounter) {
	k.Register("0 */5 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		n, err := counter.Count(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to count dead-lettered jobs")
			return
		}
		if n > 0 {
			log.Warn().Int("dead_lettered", n).Msg("Dead-letter backlog present")
		}
	}, OnOneServer("dlq-monitor"))
}
