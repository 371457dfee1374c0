package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

func TestPlanReclaim_CountsClaimAsDelivery(t *testing.T) {
	fields, _ := entryFields(samplePayload(), 1)
	requeues, drops := planReclaim([]goredis.XMessage{
		{ID: "1700000000000-0", Values: fields},
	})

	if len(drops) != 0 {
		t.Errorf("Expected no drops, got %v", drops)
	}
	if len(requeues) != 1 {
		t.Fatalf("Expected one requeue, got %d", len(requeues))
	}

	r := requeues[0]
	if r.jobID != "job-42" || r.entryID != "1700000000000-0" {
		t.Errorf("Unexpected requeue identity: %+v", r)
	}
	if r.delivered != 2 {
		t.Errorf("Expected dead consumer's claim counted as a delivery (2), got %d", r.delivered)
	}

	_, delivered, err := parseEntry(r.fields)
	if err != nil {
		t.Fatalf("Requeued fields do not parse: %v", err)
	}
	if delivered != 2 {
		t.Errorf("Expected re-append fields to carry delivered=2, got %d", delivered)
	}
}

func TestPlanReclaim_DropsMalformedEntries(t *testing.T) {
	good, _ := entryFields(samplePayload(), 0)
	requeues, drops := planReclaim([]goredis.XMessage{
		{ID: "1-0", Values: map[string]interface{}{fieldPayload: "{not json"}},
		{ID: "2-0", Values: good},
		{ID: "3-0", Values: map[string]interface{}{"other": "x"}},
	})

	if len(requeues) != 1 || requeues[0].entryID != "2-0" {
		t.Errorf("Expected only the valid entry requeued, got %+v", requeues)
	}
	if len(drops) != 2 || drops[0] != "1-0" || drops[1] != "3-0" {
		t.Errorf("Expected malformed entries dropped, got %v", drops)
	}
}

// Requires a running Redis; set REDIS_TEST_ADDR (e.g. localhost:6379) to run.
func TestReclaim_RequeuesUnackedClaimAfterRestart(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	ctx := context.Background()
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	streamKey := fmt.Sprintf("tarotq:test:%s", uuid.NewString())
	t.Cleanup(func() { client.Del(ctx, streamKey) })

	q1, err := NewStreamQueue(ctx, client, streamKey, "tarot-workers")
	if err != nil {
		t.Fatalf("NewStreamQueue failed: %v", err)
	}
	if _, err := q1.Enqueue(ctx, samplePayload()); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Claim the job and then abandon it: the consumer's process dies, taking
	// its in-memory claim table with it before the ack.
	job, err := q1.Dequeue(ctx, "doomed-worker")
	if err != nil || job == nil {
		t.Fatalf("Dequeue failed: %v %+v", err, job)
	}
	if job.Attempts != 1 {
		t.Fatalf("Expected first delivery, got attempts %d", job.Attempts)
	}

	// A fresh backend instance stands in for the restarted process.
	q2, err := NewStreamQueue(ctx, client, streamKey, "tarot-workers")
	if err != nil {
		t.Fatalf("NewStreamQueue failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	q2.reclaimOnce(ctx, 10*time.Millisecond)

	redelivered, err := q2.Dequeue(ctx, "replacement-worker")
	if err != nil || redelivered == nil {
		t.Fatalf("Dequeue after reclaim failed: %v %+v", err, redelivered)
	}
	if redelivered.JobID != job.JobID {
		t.Errorf("Expected the abandoned job back, got %q", redelivered.JobID)
	}
	if redelivered.Attempts != 2 {
		t.Errorf("Expected the crashed claim to count as a delivery (attempts 2), got %d", redelivered.Attempts)
	}

	if err := q2.Ack(ctx, redelivered.JobID, "replacement-worker"); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
}
