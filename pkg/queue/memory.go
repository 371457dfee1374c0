package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// claim tracks a job handed to a consumer and not yet acked or nacked.
type claim struct {
	consumerID string
	job        QueuedJob
}

// MemoryQueue is the in-process reference backend. It is the semantic
// baseline for the Queue contract and the backend used in tests.
//
// Every operation runs under one exclusive lock for its full duration, so
// operations are linearizable with respect to each other. Internal
// collections are never exposed to callers.
//
// Known limitation: a consumer that dequeues and then disappears without
// ack/nack leaves its job parked in the processing map. Reclaiming such jobs
// needs a visibility timeout, which the reference backend does not implement;
// the stream backends cover it with broker-side reclaim.
type MemoryQueue struct {
	mu sync.Mutex

	// pending jobs in FIFO order; nacked jobs are pushed to the front.
	pending []JobPayload

	// processing maps job id to its current claim.
	processing map[string]claim

	// attempts maps job id to its delivery count.
	attempts map[string]int

	// nackReasons maps job id to the reason of its latest nack.
	nackReasons map[string]string
}

// NewMemoryQueue returns an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		processing:  make(map[string]claim),
		attempts:    make(map[string]int),
		nackReasons: make(map[string]string),
	}
}

var _ Queue = (*MemoryQueue)(nil)

// Enqueue appends the payload to the pending list.
func (q *MemoryQueue) Enqueue(_ context.Context, payload JobPayload) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, payload)
	if _, ok := q.attempts[payload.JobID]; !ok {
		q.attempts[payload.JobID] = 0
	}
	return payload.JobID, nil
}

// Dequeue pops the head of the pending list, increments its attempt counter
// and moves it into the processing map. Returns nil when the queue is empty.
func (q *MemoryQueue) Dequeue(_ context.Context, consumerID string) (*QueuedJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, nil
	}

	payload := q.pending[0]
	q.pending = q.pending[1:]

	q.attempts[payload.JobID]++
	job := QueuedJob{
		JobID:     payload.JobID,
		Payload:   payload,
		Attempts:  q.attempts[payload.JobID],
		ClaimedAt: time.Now().UTC(),
	}
	q.processing[payload.JobID] = claim{consumerID: consumerID, job: job}

	return &job, nil
}

// Ack removes the job from the processing map. Acking an unknown or already
// acked job id is a no-op.
func (q *MemoryQueue) Ack(_ context.Context, jobID, consumerID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.processing[jobID]; ok {
		delete(q.processing, jobID)
		delete(q.attempts, jobID)
		delete(q.nackReasons, jobID)
	}
	return nil
}

// Nack moves the job from the processing map back to the FRONT of the
// pending list, so retried jobs are served before new ones. The reason is
// recorded per job for diagnostics.
func (q *MemoryQueue) Nack(_ context.Context, jobID, consumerID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	c, ok := q.processing[jobID]
	if !ok {
		return nil
	}
	delete(q.processing, jobID)
	q.nackReasons[jobID] = reason
	q.pending = append([]JobPayload{c.job.Payload}, q.pending...)

	log.Debug().
		Str("job_id", jobID).
		Str("consumer", consumerID).
		Str("reason", reason).
		Msg("Nacked job, requeued")
	return nil
}

// LastNackReason reports the reason given with the latest nack of a job, or
// false when the job was never nacked or has since been acked.
func (q *MemoryQueue) LastNackReason(jobID string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	reason, ok := q.nackReasons[jobID]
	return reason, ok
}

// Length reports pending jobs only; jobs mid-processing are not counted.
func (q *MemoryQueue) Length(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), nil
}
