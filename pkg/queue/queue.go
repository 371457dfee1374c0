package queue

import (
	"context"
)

// Queue is the contract every backend implements. One contract, many
// transports: the in-memory reference, Redis Streams, the Upstash REST proxy,
// and SQS all behave identically from the caller's perspective.
//
// Semantics:
//   - Enqueue makes the job visible to future dequeues in FIFO order relative
//     to other enqueues on the same queue. It fails only on transport errors,
//     never on payload content.
//   - Dequeue returns the next job not claimed by another consumer, or nil if
//     none is available. "No job" is a normal, frequent outcome. Dequeue
//     increments Attempts and sets ClaimedAt, and never hands the same
//     pending job to two concurrent callers.
//   - Ack marks a job complete. Idempotent: acking an unknown or already
//     acked job id is a no-op.
//   - Nack signals failed processing and makes the job visible again for a
//     future dequeue, recording the reason for diagnostics.
//   - Length reports jobs pending delivery; jobs mid-processing need not be
//     counted.
type Queue interface {
	Enqueue(ctx context.Context, payload JobPayload) (string, error)
	Dequeue(ctx context.Context, consumerID string) (*QueuedJob, error)
	Ack(ctx context.Context, jobID, consumerID string) error
	Nack(ctx context.Context, jobID, consumerID, reason string) error
	Length(ctx context.Context) (int, error)
}

// Handler processes a dequeued job. A nil error acks the job; a non-nil
// error nacks it and lets the retry policy decide what happens next.
type Handler func(ctx context.Context, job *QueuedJob) error

// DeadLetterProvider records jobs that exhausted their retry budget.
type DeadLetterProvider interface {
	// Log stores a terminally failed job. connection names the backend the
	// job came from, payload is the serialized JobPayload, reason the final
	// failure description.
	Log(ctx context.Context, connection, queueName string, payload []byte, reason string) error
}
