package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testPayload(question string) JobPayload {
	return JobPayload{
		JobID:         uuid.New().String(),
		UserID:        uuid.New(),
		Question:      question,
		CardCount:     3,
		SchemaVersion: "1",
		PromptVersion: "v2025-11-20-a",
		CreatedAt:     time.Now().UTC(),
		Metadata:      map[string]string{},
	}
}

func TestMemoryQueue_NewIsEmpty(t *testing.T) {
	q := NewMemoryQueue()

	n, err := q.Length(context.Background())
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected empty queue, got length %d", n)
	}
}

func TestMemoryQueue_EnqueueIncreasesLength(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(ctx, testPayload("q")); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	n, _ := q.Length(ctx)
	if n != 3 {
		t.Errorf("Expected length 3, got %d", n)
	}
}

func TestMemoryQueue_FIFOOrder(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		p := testPayload("q")
		ids = append(ids, p.JobID)
		q.Enqueue(ctx, p)
	}

	for i, want := range ids {
		job, err := q.Dequeue(ctx, "worker-1")
		if err != nil {
			t.Fatalf("Dequeue %d failed: %v", i, err)
		}
		if job == nil {
			t.Fatalf("Dequeue %d returned nil", i)
		}
		if job.JobID != want {
			t.Errorf("Dequeue %d: expected job %s, got %s", i, want, job.JobID)
		}
	}
}

func TestMemoryQueue_DequeueEmptyReturnsNil(t *testing.T) {
	q := NewMemoryQueue()

	job, err := q.Dequeue(context.Background(), "worker-1")
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if job != nil {
		t.Errorf("Expected nil job from empty queue, got %v", job)
	}
}

func TestMemoryQueue_DequeueSetsAttemptsAndClaim(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	q.Enqueue(ctx, testPayload("q"))

	job, _ := q.Dequeue(ctx, "worker-1")
	if job.Attempts != 1 {
		t.Errorf("Expected attempts 1 on first dequeue, got %d", job.Attempts)
	}
	if job.ClaimedAt.IsZero() {
		t.Error("Expected ClaimedAt to be set")
	}

	n, _ := q.Length(ctx)
	if n != 0 {
		t.Errorf("Expected length 0 while job is processing, got %d", n)
	}
}

func TestMemoryQueue_AtMostOneClaim(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	q.Enqueue(ctx, testPayload("q"))

	var wg sync.WaitGroup
	results := make([]*QueuedJob, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := q.Dequeue(ctx, "worker")
			if err != nil {
				t.Errorf("Dequeue failed: %v", err)
				return
			}
			results[i] = job
		}(i)
	}
	wg.Wait()

	got := 0
	for _, job := range results {
		if job != nil {
			got++
		}
	}
	if got != 1 {
		t.Errorf("Expected exactly one claim on a single-job queue, got %d", got)
	}
}

func TestMemoryQueue_AckIsIdempotent(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	p := testPayload("q")
	q.Enqueue(ctx, p)
	q.Dequeue(ctx, "worker-1")

	if err := q.Ack(ctx, p.JobID, "worker-1"); err != nil {
		t.Fatalf("First ack failed: %v", err)
	}
	if err := q.Ack(ctx, p.JobID, "worker-1"); err != nil {
		t.Errorf("Second ack should be a no-op, got error: %v", err)
	}
	if err := q.Ack(ctx, "unknown-job", "worker-1"); err != nil {
		t.Errorf("Ack of unknown job should be a no-op, got error: %v", err)
	}

	n, _ := q.Length(ctx)
	if n != 0 {
		t.Errorf("Expected length 0 after ack, got %d", n)
	}
}

func TestMemoryQueue_NackRequeues(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	p := testPayload("q")
	q.Enqueue(ctx, p)
	q.Dequeue(ctx, "worker-1")

	if err := q.Nack(ctx, p.JobID, "worker-1", "processing failed"); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}

	n, _ := q.Length(ctx)
	if n != 1 {
		t.Fatalf("Expected job back in queue after nack, length %d", n)
	}

	job, _ := q.Dequeue(ctx, "worker-2")
	if job == nil || job.JobID != p.JobID {
		t.Errorf("Expected to dequeue nacked job %s again", p.JobID)
	}
	if job.Attempts != 2 {
		t.Errorf("Expected attempts 2 on redelivery, got %d", job.Attempts)
	}
}

func TestMemoryQueue_NackPutsJobAtFront(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	first := testPayload("first")
	second := testPayload("second")
	q.Enqueue(ctx, first)
	q.Enqueue(ctx, second)

	q.Dequeue(ctx, "worker-1")
	q.Nack(ctx, first.JobID, "worker-1", "retry")

	// Retried job is served before the one that never failed.
	job, _ := q.Dequeue(ctx, "worker-1")
	if job.JobID != first.JobID {
		t.Errorf("Expected nacked job at the front, got %s", job.JobID)
	}
}

func TestMemoryQueue_NackRecordsReason(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	p := testPayload("q")
	q.Enqueue(ctx, p)

	if _, ok := q.LastNackReason(p.JobID); ok {
		t.Error("Expected no reason before the first nack")
	}

	q.Dequeue(ctx, "worker-1")
	q.Nack(ctx, p.JobID, "worker-1", "provider timeout")

	reason, ok := q.LastNackReason(p.JobID)
	if !ok || reason != "provider timeout" {
		t.Errorf("Expected recorded reason %q, got %q (%v)", "provider timeout", reason, ok)
	}

	// A later nack overwrites, and a final ack clears the record.
	q.Dequeue(ctx, "worker-1")
	q.Nack(ctx, p.JobID, "worker-1", "rate limited")
	if reason, _ := q.LastNackReason(p.JobID); reason != "rate limited" {
		t.Errorf("Expected latest reason, got %q", reason)
	}

	q.Dequeue(ctx, "worker-1")
	q.Ack(ctx, p.JobID, "worker-1")
	if _, ok := q.LastNackReason(p.JobID); ok {
		t.Error("Expected reason cleared after ack")
	}
}

func TestMemoryQueue_AttemptsMonotonic(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	p := testPayload("q")
	q.Enqueue(ctx, p)

	for want := 1; want <= 4; want++ {
		job, _ := q.Dequeue(ctx, "worker-1")
		if job.Attempts != want {
			t.Fatalf("Delivery %d: expected attempts %d, got %d", want, want, job.Attempts)
		}
		q.Nack(ctx, p.JobID, "worker-1", "again")
	}
}
