package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// reclaimConsumer is the consumer identity used when claiming stale entries.
const reclaimConsumer = "reclaim-agent"

// StartReclaimer polls the pending entries list and requeues entries whose
// consumer claimed them longer than minIdle ago and never acked. This is the
// recovery path for workers that crashed between dequeue and ack: their
// in-process claim table died with them, but the broker still remembers the
// delivery. Runs until the context is cancelled.
func (q *StreamQueue) StartReclaimer(ctx context.Context, interval, minIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().
		Str("stream", q.streamKey).
		Dur("interval", interval).
		Dur("min_idle", minIdle).
		Msg("Starting stale-entry reclaimer")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.reclaimOnce(ctx, minIdle)
		}
	}
}

// staleRequeue is one claimed PEL entry due for re-append.
type staleRequeue struct {
	entryID   string
	jobID     string
	delivered int
	fields    map[string]interface{}
}

// planReclaim classifies claimed entries. Parseable entries are requeued
// with the dead consumer's claim counted as a delivery, so the retry budget
// still applies after a crash. Malformed entries are dropped.
func planReclaim(messages []goredis.XMessage) (requeues []staleRequeue, drops []string) {
	for _, msg := range messages {
		payload, delivered, err := parseEntry(msg.Values)
		if err != nil {
			log.Error().Err(err).Str("entry_id", msg.ID).Msg("Dropping malformed stale entry")
			drops = append(drops, msg.ID)
			continue
		}

		fields, _ := entryFields(payload, delivered+1)
		requeues = append(requeues, staleRequeue{
			entryID:   msg.ID,
			jobID:     payload.JobID,
			delivered: delivered + 1,
			fields:    fields,
		})
	}
	return requeues, drops
}

// reclaimOnce walks the PEL in batches, requeueing each stale entry with its
// delivery count bumped.
func (q *StreamQueue) reclaimOnce(ctx context.Context, minIdle time.Duration) {
	start := "-"
	for {
		messages, next, err := q.client.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
			Stream:   q.streamKey,
			Group:    q.group,
			MinIdle:  minIdle,
			Start:    start,
			Count:    10,
			Consumer: reclaimConsumer,
		}).Result()
		if err != nil {
			log.Error().Err(err).Str("stream", q.streamKey).Msg("Reclaim pass failed")
			return
		}
		if len(messages) == 0 {
			return
		}

		requeues, drops := planReclaim(messages)
		for _, id := range drops {
			q.client.XAck(ctx, q.streamKey, q.group, id)
			q.client.XDel(ctx, q.streamKey, id)
		}
		for _, r := range requeues {
			pipe := q.client.TxPipeline()
			pipe.XAck(ctx, q.streamKey, q.group, r.entryID)
			pipe.XDel(ctx, q.streamKey, r.entryID)
			pipe.XAdd(ctx, &goredis.XAddArgs{Stream: q.streamKey, Values: r.fields})
			if _, err := pipe.Exec(ctx); err != nil {
				log.Error().Err(err).Str("entry_id", r.entryID).Msg("Failed to requeue stale entry")
				continue
			}

			log.Warn().
				Str("job_id", r.jobID).
				Str("entry_id", r.entryID).
				Int("delivered", r.delivered).
				Msg("Requeued stale entry from PEL")
		}

		start = next
		if start == "0-0" {
			return
		}
	}
}
