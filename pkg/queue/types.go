package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobPayload is the unit of work submitted to the queue. It is immutable once
// created; the queue never inspects or validates its content beyond
// serialization. Matches the wire schema used by the producers.
type JobPayload struct {
	// JobID uniquely identifies this job. Assigned by the producer.
	JobID string `json:"job_id"`

	// UserID is the user requesting the reading.
	UserID uuid.UUID `json:"user_id"`

	// Question is the free-text question to be answered.
	Question string `json:"question"`

	// CardCount is the number of cards to draw (3 or 5).
	CardCount int `json:"card_count"`

	// SchemaVersion tracks payload compatibility.
	SchemaVersion string `json:"schema_version"`

	// PromptVersion identifies the prompt used downstream (e.g. "v2025-11-20-a").
	PromptVersion string `json:"prompt_version"`

	// DedupeKey suppresses duplicate submissions within a TTL window.
	DedupeKey string `json:"dedupe_key,omitempty"`

	// TraceID propagates distributed tracing context.
	TraceID string `json:"trace_id,omitempty"`

	// CreatedAt is the UTC creation timestamp.
	CreatedAt time.Time `json:"created_at"`

	// Metadata carries free-form context (locale, source, ...).
	Metadata map[string]string `json:"metadata"`
}

// JobMetadata is the conventional shape of the Metadata field.
type JobMetadata struct {
	Locale string `json:"locale"`
	Source string `json:"source"`
}

// JobType distinguishes kinds of work the queue can carry.
type JobType string

const (
	JobTypeReading      JobType = "reading"
	JobTypeNotification JobType = "notification"
	JobTypeMaintenance  JobType = "maintenance"
)

// JobStatus is the lifecycle state of a job.
//
// Queued -> Processing (dequeue) -> Succeeded (ack)
//                                -> Queued (nack, retryable)
//                                -> Failed/DLQ (retry budget exhausted)
//
// Backends are not required to persist every state, but their observable
// ack/nack/length behavior must be consistent with this model.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusSucceeded  JobStatus = "succeeded"
	StatusFailed     JobStatus = "failed"
	StatusDLQ        JobStatus = "DLQ"
)

// QueuedJob wraps a payload handed to a consumer.
type QueuedJob struct {
	// JobID mirrors the payload's id for convenience.
	JobID string `json:"job_id"`

	// Payload is the job data to process.
	Payload JobPayload `json:"payload"`

	// Attempts counts delivery attempts, starting at 1 on first dequeue.
	// Never decreases for a given job.
	Attempts int `json:"attempts"`

	// ClaimedAt is set by the serving backend at dequeue time.
	ClaimedAt time.Time `json:"claimed_at"`
}
