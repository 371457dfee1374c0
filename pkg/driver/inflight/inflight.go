// Package inflight tracks broker-assigned identifiers for jobs between
// dequeue and ack/nack. Stream entries are acknowledged by their broker
// entry id, not the payload's job id, so every stream-style backend must
// retain this mapping for the lifetime of a claim.
package inflight

import (
	"sync"
	"time"
)

// Entry is one claimed job.
type Entry struct {
	// Token is the broker-assigned identifier: a stream entry id for
	// Redis-style backends, a receipt handle for SQS.
	Token string

	// ConsumerID is the consumer holding the claim.
	ConsumerID string

	// Attempts is the delivery count at claim time.
	Attempts int

	// ClaimedAt is when the job was handed out.
	ClaimedAt time.Time
}

// Table is a mutex-guarded job_id -> Entry map.
type Table struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[string]Entry)}
}

// Track records the claim for a job, replacing any previous claim.
func (t *Table) Track(jobID string, e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[jobID] = e
}

// Lookup returns the claim for a job, if one is held.
func (t *Table) Lookup(jobID string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[jobID]
	return e, ok
}

// Remove drops and returns the claim for a job.
func (t *Table) Remove(jobID string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[jobID]
	if ok {
		delete(t.entries, jobID)
	}
	return e, ok
}

// Len reports the number of claims currently held.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
