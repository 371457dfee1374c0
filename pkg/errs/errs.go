// Package errs classifies queue and worker failures, mapping each to a
// stable machine-readable code, a severity, a sanitized user-facing message,
// and a verbose operator log context. Raw backend detail (hostnames, library
// error text) is confined to the log context and never reaches the user
// message.
package errs

import (
	"fmt"
	"strings"
	"time"
)

// Severity grades an error for alerting and log filtering.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Context carries operator-facing detail about a failure.
type Context struct {
	ErrorCode string            `json:"error_code"`
	Severity  Severity          `json:"severity"`
	Timestamp time.Time         `json:"timestamp"`
	JobID     string            `json:"job_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	TraceID   string            `json:"trace_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Response is the sanitized error shape crossing the system boundary.
type Response struct {
	ErrorCode   string `json:"error_code"`
	UserMessage string `json:"user_message"`
	Severity    string `json:"severity"`
	Timestamp   string `json:"timestamp"`
	RequestID   string `json:"request_id,omitempty"`
}

// Classified is implemented by both error families.
type Classified interface {
	error
	Code() string
	UserMessage() string
	LogContext() string
	Severity() Severity
}

// NewResponse renders a classified error for the system boundary.
func NewResponse(err Classified) Response {
	return Response{
		ErrorCode:   err.Code(),
		UserMessage: err.UserMessage(),
		Severity:    err.Severity().String(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// QueueErrorKind enumerates transport-level failure classes.
type QueueErrorKind int

const (
	QueueConnectionFailed QueueErrorKind = iota
	QueueNetworkError
	QueueTimeout
	QueueEnqueueFailed
	QueueDequeueFailed
	QueueAckFailed
	QueueNackFailed
	QueueFull
	QueueInvalidPayload
	QueueInternal
)

// QueueError is a failure observed at the queue transport boundary.
type QueueError struct {
	Kind   QueueErrorKind
	JobID  string
	Reason string
	Err    error
}

var _ Classified = (*QueueError)(nil)

func (e *QueueError) Error() string {
	return e.Code() + ": " + e.UserMessage()
}

func (e *QueueError) Unwrap() error { return e.Err }

func (e *QueueError) Code() string {
	switch e.Kind {
	case QueueConnectionFailed:
		return "QUEUE_CONNECTION_FAILED"
	case QueueNetworkError:
		return "QUEUE_NETWORK_ERROR"
	case QueueTimeout:
		return "QUEUE_TIMEOUT_ERROR"
	case QueueEnqueueFailed:
		return "QUEUE_ENQUEUE_FAILED"
	case QueueDequeueFailed:
		return "QUEUE_DEQUEUE_FAILED"
	case QueueAckFailed:
		return "QUEUE_ACK_FAILED"
	case QueueNackFailed:
		return "QUEUE_NACK_FAILED"
	case QueueFull:
		return "QUEUE_QUEUE_FULL"
	case QueueInvalidPayload:
		return "QUEUE_INVALID_PAYLOAD"
	default:
		return "QUEUE_INTERNAL_ERROR"
	}
}

func (e *QueueError) UserMessage() string {
	switch e.Kind {
	case QueueConnectionFailed, QueueNetworkError:
		return "Service temporarily unavailable. Please try again in a few moments."
	case QueueTimeout:
		return "Request timed out. Please try again."
	case QueueEnqueueFailed, QueueFull:
		return "Service is experiencing high demand. Please try again later."
	case QueueDequeueFailed:
		return "Unable to process request at this time. Please try again."
	case QueueAckFailed, QueueNackFailed:
		return "Job processing encountered an issue. Please contact support if this persists."
	case QueueInvalidPayload:
		return "Invalid request format. Please check your input and try again."
	default:
		return "An unexpected error occurred. Please try again or contact support."
	}
}

func (e *QueueError) Severity() Severity {
	switch e.Kind {
	case QueueConnectionFailed, QueueNetworkError, QueueInternal:
		return SeverityError
	default:
		return SeverityWarning
	}
}

// Retryable reports whether the caller may retry the operation. Ack/nack
// failures leave the job state ambiguous and are surfaced instead; invalid
// payloads and internal errors are not automatically retryable.
func (e *QueueError) Retryable() bool {
	switch e.Kind {
	case QueueConnectionFailed, QueueNetworkError, QueueTimeout,
		QueueEnqueueFailed, QueueDequeueFailed, QueueFull:
		return true
	default:
		return false
	}
}

// LogContext renders the operator-facing line including raw reasons.
func (e *QueueError) LogContext() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] error_code=%s severity=%s timestamp=%s",
		e.Code(), e.Code(), e.Severity(), time.Now().UTC().Format(time.RFC3339))
	if e.JobID != "" {
		fmt.Fprintf(&b, " job_id=%q", e.JobID)
	}
	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}
	if reason != "" {
		fmt.Fprintf(&b, " reason=%q", reason)
	}
	return b.String()
}

// WorkerErrorKind enumerates processing-side failure classes.
type WorkerErrorKind int

const (
	WorkerProcessingFailed WorkerErrorKind = iota
	WorkerJobTimeout
	WorkerRetryable
	WorkerMaxRetriesExceeded
	WorkerInvalidJobData
	WorkerInternal
)

// WorkerError is a failure observed while processing a dequeued job.
type WorkerError struct {
	Kind             WorkerErrorKind
	JobID            string
	Attempts         int
	MaxAttempts      int
	Timeout          time.Duration
	NextRetryIn      time.Duration
	Reason           string
	ValidationErrors []string
	Err              error
}

var _ Classified = (*WorkerError)(nil)

func (e *WorkerError) Error() string {
	return e.Code() + ": " + e.UserMessage()
}

func (e *WorkerError) Unwrap() error { return e.Err }

func (e *WorkerError) Code() string {
	switch e.Kind {
	case WorkerProcessingFailed:
		return "WORKER_JOB_PROCESSING_FAILED"
	case WorkerJobTimeout:
		return "WORKER_JOB_TIMEOUT"
	case WorkerRetryable:
		return "WORKER_RETRYABLE_ERROR"
	case WorkerMaxRetriesExceeded:
		return "WORKER_MAX_RETRIES_EXCEEDED"
	case WorkerInvalidJobData:
		return "WORKER_INVALID_JOB_DATA"
	default:
		return "WORKER_INTERNAL_ERROR"
	}
}

func (e *WorkerError) UserMessage() string {
	switch e.Kind {
	case WorkerProcessingFailed:
		if e.Attempts > 1 {
			return fmt.Sprintf("Job processing is taking longer than expected. Attempt %d of %d. Please be patient.",
				e.Attempts, e.MaxAttempts)
		}
		return "Your request is being processed. This may take a few moments."
	case WorkerJobTimeout:
		return "Request processing timed out. Please try again with a simpler query."
	case WorkerRetryable:
		return "Your request is still being processed. Please check back in a few moments."
	case WorkerMaxRetriesExceeded:
		return "Request processing failed after multiple attempts. Please try again later."
	case WorkerInvalidJobData:
		return "Invalid request format. Please check your input and try again."
	default:
		return "An unexpected error occurred during processing. Please try again."
	}
}

func (e *WorkerError) Severity() Severity {
	switch e.Kind {
	case WorkerMaxRetriesExceeded, WorkerInternal:
		return SeverityError
	default:
		return SeverityWarning
	}
}

func (e *WorkerError) LogContext() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] error_code=%s severity=%s timestamp=%s",
		e.Code(), e.Code(), e.Severity(), time.Now().UTC().Format(time.RFC3339))
	if e.JobID != "" {
		fmt.Fprintf(&b, " job_id=%q", e.JobID)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " attempts=%d", e.Attempts)
	}
	if e.Timeout > 0 {
		fmt.Fprintf(&b, " timeout_seconds=%d", int(e.Timeout.Seconds()))
	}
	if e.NextRetryIn > 0 {
		fmt.Fprintf(&b, " next_retry_in=%s", e.NextRetryIn)
	}
	if len(e.ValidationErrors) > 0 {
		fmt.Fprintf(&b, " validation_errors=[%s]", strings.Join(e.ValidationErrors, ", "))
	}
	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}
	if reason != "" {
		fmt.Fprintf(&b, " reason=%q", reason)
	}
	return b.String()
}

// Classify maps an arbitrary lower-level error into a queue error kind by
// inspecting its textual description. This is a heuristic, not an exhaustive
// inspection of error structure; unfamiliar errors land on QueueInternal.
func Classify(err error) *QueueError {
	msg := err.Error()
	lower := strings.ToLower(msg)

	kind := QueueInternal
	switch {
	case strings.Contains(lower, "connection") || strings.Contains(lower, "connect"):
		kind = QueueConnectionFailed
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		kind = QueueTimeout
	case strings.Contains(lower, "network") || strings.Contains(lower, "dns"):
		kind = QueueNetworkError
	case strings.Contains(lower, "full") || strings.Contains(lower, "capacity"):
		kind = QueueFull
	}

	return &QueueError{Kind: kind, Reason: msg, Err: err}
}
