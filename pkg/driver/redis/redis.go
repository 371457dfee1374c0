// Package redis implements the queue contract on Redis Streams with
// consumer groups. Enqueue appends with XADD, dequeue is a blocking
// XREADGROUP, ack maps to XACK on the broker-assigned entry id, and the
// pending entries list is the durability mechanism for crash recovery.
package redis

import (
	"context"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mimivibe/tarotq/pkg/driver/inflight"
	"github.com/mimivibe/tarotq/pkg/errs"
	"github.com/mimivibe/tarotq/pkg/queue"
)

// DefaultBlockTimeout bounds the blocking group read during dequeue.
const DefaultBlockTimeout = 5 * time.Second

// StreamQueue is the Redis Streams backend.
type StreamQueue struct {
	client       *goredis.Client
	streamKey    string
	group        string
	blockTimeout time.Duration

	// inflight holds the job_id -> stream entry id mapping for claims.
	// Acks must target the broker entry id, never the job id.
	inflight *inflight.Table
}

var _ queue.Queue = (*StreamQueue)(nil)

// NewStreamQueue connects the backend to a stream and ensures its consumer
// group exists. A "BUSYGROUP" reply from group creation means the group is
// already there and is treated as success.
func NewStreamQueue(ctx context.Context, client *goredis.Client, streamKey, group string) (*StreamQueue, error) {
	q := &StreamQueue{
		client:       client,
		streamKey:    streamKey,
		group:        group,
		blockTimeout: DefaultBlockTimeout,
		inflight:     inflight.NewTable(),
	}

	err := client.XGroupCreateMkStream(ctx, streamKey, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, &errs.QueueError{Kind: errs.QueueConnectionFailed, Reason: err.Error(), Err: err}
	}

	return q, nil
}

// Enqueue appends the payload as a stream entry.
func (q *StreamQueue) Enqueue(ctx context.Context, payload queue.JobPayload) (string, error) {
	fields, err := entryFields(payload, 0)
	if err != nil {
		return "", &errs.QueueError{Kind: errs.QueueInvalidPayload, JobID: payload.JobID, Reason: err.Error(), Err: err}
	}

	entryID, err := q.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: q.streamKey,
		Values: fields,
	}).Result()
	if err != nil {
		return "", &errs.QueueError{Kind: errs.QueueEnqueueFailed, JobID: payload.JobID, Reason: err.Error(), Err: err}
	}

	log.Debug().
		Str("job_id", payload.JobID).
		Str("stream", q.streamKey).
		Str("entry_id", entryID).
		Msg("Enqueued job")

	return payload.JobID, nil
}

// Dequeue blocks up to the read timeout for the next unclaimed entry. The
// broker guarantees each entry is delivered to at most one group member at a
// time, so no extra locking is needed here.
func (q *StreamQueue) Dequeue(ctx context.Context, consumerID string) (*queue.QueuedJob, error) {
	streams, err := q.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumerID,
		Streams:  []string{q.streamKey, ">"},
		Count:    1,
		Block:    q.blockTimeout,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			// Read timeout with nothing pending. A normal outcome.
			return nil, nil
		}
		return nil, &errs.QueueError{Kind: errs.QueueDequeueFailed, Reason: err.Error(), Err: err}
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			payload, delivered, perr := parseEntry(msg.Values)
			if perr != nil {
				log.Error().Err(perr).Str("entry_id", msg.ID).Msg("Skipping malformed stream entry")
				q.client.XAck(ctx, q.streamKey, q.group, msg.ID)
				continue
			}

			job := queue.QueuedJob{
				JobID:     payload.JobID,
				Payload:   payload,
				Attempts:  delivered + 1,
				ClaimedAt: time.Now().UTC(),
			}
			q.inflight.Track(job.JobID, inflight.Entry{
				Token:      msg.ID,
				ConsumerID: consumerID,
				Attempts:   job.Attempts,
				ClaimedAt:  job.ClaimedAt,
			})

			log.Debug().
				Str("job_id", job.JobID).
				Str("entry_id", msg.ID).
				Str("consumer", consumerID).
				Int("attempts", job.Attempts).
				Msg("Dequeued job")

			return &job, nil
		}
	}

	return nil, nil
}

// Ack XACKs the broker entry claimed for this job. Acking a job with no
// tracked claim is a no-op: either it was already acked or this process
// never claimed it.
func (q *StreamQueue) Ack(ctx context.Context, jobID, consumerID string) error {
	entry, ok := q.inflight.Remove(jobID)
	if !ok {
		return nil
	}

	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, q.streamKey, q.group, entry.Token)
	pipe.XDel(ctx, q.streamKey, entry.Token)
	if _, err := pipe.Exec(ctx); err != nil {
		// Put the claim back so a later ack can still find it.
		q.inflight.Track(jobID, entry)
		return &errs.QueueError{Kind: errs.QueueAckFailed, JobID: jobID, Reason: err.Error(), Err: err}
	}

	log.Debug().Str("job_id", jobID).Str("entry_id", entry.Token).Msg("Acked job")
	return nil
}

// Nack acknowledges the claimed entry and re-appends the payload with its
// delivery count carried in the entry, so attempts survive redelivery. The
// requeued job lands at the stream tail and becomes visible to any consumer.
func (q *StreamQueue) Nack(ctx context.Context, jobID, consumerID, reason string) error {
	entry, ok := q.inflight.Remove(jobID)
	if !ok {
		return nil
	}

	found, err := q.client.XRange(ctx, q.streamKey, entry.Token, entry.Token).Result()
	if err != nil || len(found) == 0 {
		q.inflight.Track(jobID, entry)
		msg := "entry not found in stream"
		if err != nil {
			msg = err.Error()
		}
		return &errs.QueueError{Kind: errs.QueueNackFailed, JobID: jobID, Reason: msg, Err: err}
	}

	payload, _, perr := parseEntry(found[0].Values)
	if perr != nil {
		q.inflight.Track(jobID, entry)
		return &errs.QueueError{Kind: errs.QueueNackFailed, JobID: jobID, Reason: perr.Error(), Err: perr}
	}

	fields, _ := entryFields(payload, entry.Attempts)
	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, q.streamKey, q.group, entry.Token)
	pipe.XDel(ctx, q.streamKey, entry.Token)
	pipe.XAdd(ctx, &goredis.XAddArgs{Stream: q.streamKey, Values: fields})
	if _, err := pipe.Exec(ctx); err != nil {
		q.inflight.Track(jobID, entry)
		return &errs.QueueError{Kind: errs.QueueNackFailed, JobID: jobID, Reason: err.Error(), Err: err}
	}

	log.Warn().
		Str("job_id", jobID).
		Str("consumer", consumerID).
		Int("attempts", entry.Attempts).
		Str("reason", reason).
		Msg("Nacked job, requeued")

	return nil
}

// Length reports the stream length: entries appended and not yet deleted.
func (q *StreamQueue) Length(ctx context.Context) (int, error) {
	n, err := q.client.XLen(ctx, q.streamKey).Result()
	if err != nil {
		return 0, &errs.QueueError{Kind: errs.QueueInternal, Reason: err.Error(), Err: err}
	}
	return int(n), nil
}
