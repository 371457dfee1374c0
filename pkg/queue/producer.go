package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicate is returned by Dispatch when the payload's dedupe key is
// already held by a prior submission within its TTL window.
var ErrDuplicate = errors.New("duplicate job suppressed by dedupe key")

// Deduper is the gate consulted before enqueueing a payload that carries a
// dedupe key. TrySetKey must be atomic across concurrent callers.
type Deduper interface {
	TrySetKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Producer dispatches jobs to a queue, optionally suppressing duplicates
// through a dedupe gate.
type Producer struct {
	queue     Queue
	deduper   Deduper
	dedupeTTL time.Duration
}

// NewProducer creates a producer for the given queue. deduper may be nil,
// in which case dedupe keys on payloads are ignored.
func NewProducer(q Queue, deduper Deduper, dedupeTTL time.Duration) *Producer {
	return &Producer{queue: q, deduper: deduper, dedupeTTL: dedupeTTL}
}

// Dispatch enqueues a payload. A missing job id is assigned a UUID and a
// missing creation timestamp is set to now. If the payload carries a dedupe
// key and the gate reports a prior holder, Dispatch returns ErrDuplicate
// without touching the queue.
func (p *Producer) Dispatch(ctx context.Context, payload JobPayload) (string, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	if payload.CreatedAt.IsZero() {
		payload.CreatedAt = time.Now().UTC()
	}

	if payload.DedupeKey != "" && p.deduper != nil {
		won, err := p.deduper.TrySetKey(ctx, payload.DedupeKey, p.dedupeTTL)
		if err != nil {
			return "", err
		}
		if !won {
			return "", ErrDuplicate
		}
	}

	return p.queue.Enqueue(ctx, payload)
}
