package errs

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "info", SeverityInfo.String())
	assert.Equal(t, "warning", SeverityWarning.String())
	assert.Equal(t, "error", SeverityError.String())
	assert.Equal(t, "critical", SeverityCritical.String())
}

func TestQueueError_CodesAndSeverities(t *testing.T) {
	cases := []struct {
		kind     QueueErrorKind
		code     string
		severity Severity
		retry    bool
	}{
		{QueueConnectionFailed, "QUEUE_CONNECTION_FAILED", SeverityError, true},
		{QueueNetworkError, "QUEUE_NETWORK_ERROR", SeverityError, true},
		{QueueTimeout, "QUEUE_TIMEOUT_ERROR", SeverityWarning, true},
		{QueueEnqueueFailed, "QUEUE_ENQUEUE_FAILED", SeverityWarning, true},
		{QueueDequeueFailed, "QUEUE_DEQUEUE_FAILED", SeverityWarning, true},
		{QueueAckFailed, "QUEUE_ACK_FAILED", SeverityWarning, false},
		{QueueNackFailed, "QUEUE_NACK_FAILED", SeverityWarning, false},
		{QueueFull, "QUEUE_QUEUE_FULL", SeverityWarning, true},
		{QueueInvalidPayload, "QUEUE_INVALID_PAYLOAD", SeverityWarning, false},
		{QueueInternal, "QUEUE_INTERNAL_ERROR", SeverityError, false},
	}

	for _, tc := range cases {
		e := &QueueError{Kind: tc.kind, Reason: "raw detail"}
		assert.Equal(t, tc.code, e.Code())
		assert.Equal(t, tc.severity, e.Severity(), tc.code)
		assert.Equal(t, tc.retry, e.Retryable(), tc.code)
	}
}

func TestQueueError_UserMessageIsSanitized(t *testing.T) {
	e := &QueueError{
		Kind:   QueueConnectionFailed,
		Reason: "dial tcp redis-prod-3.internal:6379: connection refused",
	}

	msg := e.UserMessage()
	assert.NotContains(t, msg, "redis")
	assert.NotContains(t, msg, "internal")
	assert.NotContains(t, msg, "6379")
	assert.Contains(t, msg, "temporarily unavailable")

	// The raw reason belongs in the log context.
	assert.Contains(t, e.LogContext(), "redis-prod-3.internal:6379")
}

func TestQueueError_LogContextFields(t *testing.T) {
	e := &QueueError{Kind: QueueAckFailed, JobID: "job-9", Reason: "entry gone"}
	ctx := e.LogContext()

	assert.Contains(t, ctx, "error_code=QUEUE_ACK_FAILED")
	assert.Contains(t, ctx, "severity=warning")
	assert.Contains(t, ctx, `job_id="job-9"`)
	assert.Contains(t, ctx, `reason="entry gone"`)
}

func TestWorkerError_Escalation(t *testing.T) {
	under := &WorkerError{Kind: WorkerProcessingFailed, JobID: "j", Attempts: 2, MaxAttempts: 3}
	assert.Equal(t, SeverityWarning, under.Severity())
	assert.Contains(t, under.UserMessage(), "Attempt 2 of 3")

	exhausted := &WorkerError{Kind: WorkerMaxRetriesExceeded, JobID: "j", Attempts: 3}
	assert.Equal(t, SeverityError, exhausted.Severity())
	assert.Equal(t, "WORKER_MAX_RETRIES_EXCEEDED", exhausted.Code())
	assert.Contains(t, exhausted.UserMessage(), "multiple attempts")
}

func TestWorkerError_LogContext(t *testing.T) {
	e := &WorkerError{
		Kind:             WorkerInvalidJobData,
		JobID:            "job-4",
		ValidationErrors: []string{"card_count out of range", "question empty"},
	}
	ctx := e.LogContext()
	assert.Contains(t, ctx, `job_id="job-4"`)
	assert.Contains(t, ctx, "validation_errors=[card_count out of range, question empty]")
}

func TestClassify(t *testing.T) {
	cases := []struct {
		raw  string
		kind QueueErrorKind
	}{
		{"connection refused", QueueConnectionFailed},
		{"failed to connect to broker", QueueConnectionFailed},
		{"operation timed out after 5s", QueueTimeout},
		{"network unreachable", QueueNetworkError},
		{"dns lookup failed", QueueNetworkError},
		{"stream at capacity", QueueFull},
		{"something entirely novel", QueueInternal},
	}

	for _, tc := range cases {
		got := Classify(errors.New(tc.raw))
		assert.Equal(t, tc.kind, got.Kind, tc.raw)
		assert.Equal(t, tc.raw, got.Reason)
	}
}

func TestClassify_PreservesWrappedError(t *testing.T) {
	cause := errors.New("connection reset by peer")
	qe := Classify(cause)
	assert.True(t, errors.Is(qe, cause))
}

func TestNewResponse(t *testing.T) {
	e := &QueueError{Kind: QueueTimeout, Reason: "xreadgroup blocked too long"}
	resp := NewResponse(e)

	assert.Equal(t, "QUEUE_TIMEOUT_ERROR", resp.ErrorCode)
	assert.Equal(t, "warning", resp.Severity)
	assert.False(t, strings.Contains(resp.UserMessage, "xreadgroup"))
	assert.NotEmpty(t, resp.Timestamp)
}
