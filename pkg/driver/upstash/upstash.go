// Package upstash implements the queue contract on Upstash-style Redis
// Streams over HTTP. Every broker command is a discrete POST of a JSON
// command array to the REST endpoint, authorized with a bearer token, with
// the reply wrapped in a {"result": ..., "error": ...} envelope.
//
// HTTP-layer failures (timeouts, non-2xx statuses, malformed bodies) are
// transport errors, kept distinct from errors the broker itself reports in
// the envelope.
package upstash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mimivibe/tarotq/pkg/driver/inflight"
	"github.com/mimivibe/tarotq/pkg/errs"
	"github.com/mimivibe/tarotq/pkg/queue"
)

// DefaultTimeout bounds each REST round trip.
const DefaultTimeout = 30 * time.Second

// BrokerError is an error reported by the broker in the response envelope,
// as opposed to a failure of the HTTP transport.
type BrokerError struct {
	Msg string
}

func (e *BrokerError) Error() string {
	return "broker error: " + e.Msg
}

// Config holds the REST endpoint settings.
type Config struct {
	// BaseURL is the REST endpoint, e.g. "https://usw1-xxx.upstash.io".
	BaseURL string

	// Token is the bearer auth token.
	Token string

	// StreamKey is the stream carrying jobs (default "tarot:jobs").
	StreamKey string

	// Group is the consumer group name (default "tarot-workers").
	Group string

	// Timeout bounds each request; DefaultTimeout when zero.
	Timeout time.Duration
}

// StreamQueue is the HTTP-mediated stream backend. The REST protocol has no
// blocking read, so Dequeue is a single poll that returns nil when the
// stream has nothing new.
type StreamQueue struct {
	http      *http.Client
	baseURL   string
	token     string
	streamKey string
	group     string

	// inflight maps job ids to the broker entry ids of their claims.
	inflight *inflight.Table
}

var _ queue.Queue = (*StreamQueue)(nil)

// NewStreamQueue builds the backend and ensures the consumer group exists.
// A "BUSYGROUP" reply from group creation is success, not failure.
func NewStreamQueue(ctx context.Context, cfg Config) (*StreamQueue, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	q := &StreamQueue{
		http:      &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		streamKey: cfg.StreamKey,
		group:     cfg.Group,
		inflight:  inflight.NewTable(),
	}

	_, err := q.command(ctx, "XGROUP", "CREATE", q.streamKey, q.group, "0", "MKSTREAM")
	if err != nil {
		var broker *BrokerError
		if errors.As(err, &broker) &&
			(strings.Contains(broker.Msg, "BUSYGROUP") || strings.Contains(broker.Msg, "already exists")) {
			log.Debug().Str("group", q.group).Msg("Consumer group already exists")
		} else {
			return nil, err
		}
	}

	return q, nil
}

// command posts one broker command and returns the raw result. Transport
// failures come back as *errs.QueueError with a transport kind; broker
// failures as *BrokerError.
func (q *StreamQueue) command(ctx context.Context, args ...string) (json.RawMessage, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, &errs.QueueError{Kind: errs.QueueInternal, Reason: err.Error(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, &errs.QueueError{Kind: errs.QueueInternal, Reason: err.Error(), Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+q.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.http.Do(req)
	if err != nil {
		kind := errs.QueueConnectionFailed
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			kind = errs.QueueTimeout
		}
		return nil, &errs.QueueError{Kind: kind, Reason: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.QueueError{Kind: errs.QueueNetworkError, Reason: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errs.QueueError{
			Kind:   errs.QueueNetworkError,
			Reason: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, text),
		}
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(text, &envelope); err != nil {
		return nil, &errs.QueueError{
			Kind:   errs.QueueNetworkError,
			Reason: fmt.Sprintf("malformed response body: %v", err),
			Err:    err,
		}
	}
	if envelope.Error != "" {
		return nil, &BrokerError{Msg: envelope.Error}
	}

	return envelope.Result, nil
}

// Enqueue appends the payload with XADD.
func (q *StreamQueue) Enqueue(ctx context.Context, payload queue.JobPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", &errs.QueueError{Kind: errs.QueueInvalidPayload, JobID: payload.JobID, Reason: err.Error(), Err: err}
	}

	result, err := q.command(ctx, "XADD", q.streamKey, "*",
		fieldPayload, string(data), fieldAttempts, "0")
	if err != nil {
		return "", wrapOp(err, errs.QueueEnqueueFailed, payload.JobID)
	}

	var entryID string
	if err := json.Unmarshal(result, &entryID); err != nil {
		return "", &errs.QueueError{Kind: errs.QueueNetworkError, JobID: payload.JobID, Reason: err.Error(), Err: err}
	}

	log.Debug().
		Str("job_id", payload.JobID).
		Str("stream", q.streamKey).
		Str("entry_id", entryID).
		Msg("Enqueued job")

	return payload.JobID, nil
}

// Dequeue polls the group for one new entry.
func (q *StreamQueue) Dequeue(ctx context.Context, consumerID string) (*queue.QueuedJob, error) {
	result, err := q.command(ctx, "XREADGROUP",
		"GROUP", q.group, consumerID,
		"COUNT", "1",
		"STREAMS", q.streamKey, ">")
	if err != nil {
		return nil, wrapOp(err, errs.QueueDequeueFailed, "")
	}

	entryID, fields, ok, err := parseReadReply(result, q.streamKey)
	if err != nil {
		return nil, &errs.QueueError{Kind: errs.QueueDequeueFailed, Reason: err.Error(), Err: err}
	}
	if !ok {
		return nil, nil
	}

	payload, delivered, err := parseFields(fields)
	if err != nil {
		// Poison entry; ack it out of the way rather than redelivering forever.
		q.command(ctx, "XACK", q.streamKey, q.group, entryID)
		q.command(ctx, "XDEL", q.streamKey, entryID)
		log.Error().Err(err).Str("entry_id", entryID).Msg("Dropped malformed stream entry")
		return nil, nil
	}

	job := queue.QueuedJob{
		JobID:     payload.JobID,
		Payload:   payload,
		Attempts:  delivered + 1,
		ClaimedAt: time.Now().UTC(),
	}
	q.inflight.Track(job.JobID, inflight.Entry{
		Token:      entryID,
		ConsumerID: consumerID,
		Attempts:   job.Attempts,
		ClaimedAt:  job.ClaimedAt,
	})

	log.Debug().
		Str("job_id", job.JobID).
		Str("entry_id", entryID).
		Str("consumer", consumerID).
		Int("attempts", job.Attempts).
		Msg("Dequeued job")

	return &job, nil
}

// Ack XACKs the broker entry claimed for this job; unknown job ids are a
// no-op.
func (q *StreamQueue) Ack(ctx context.Context, jobID, consumerID string) error {
	entry, ok := q.inflight.Remove(jobID)
	if !ok {
		return nil
	}

	if _, err := q.command(ctx, "XACK", q.streamKey, q.group, entry.Token); err != nil {
		q.inflight.Track(jobID, entry)
		return wrapOp(err, errs.QueueAckFailed, jobID)
	}
	q.command(ctx, "XDEL", q.streamKey, entry.Token)

	log.Debug().Str("job_id", jobID).Str("entry_id", entry.Token).Msg("Acked job")
	return nil
}

// Nack re-appends the payload with its delivery count and then acks the
// claimed entry, making the job visible again. The re-append goes first: if
// it fails the claim is kept so the nack can be retried, and if the ack of
// the old entry fails afterwards the worst case is a duplicate delivery.
func (q *StreamQueue) Nack(ctx context.Context, jobID, consumerID, reason string) error {
	entry, ok := q.inflight.Remove(jobID)
	if !ok {
		return nil
	}

	result, err := q.command(ctx, "XRANGE", q.streamKey, entry.Token, entry.Token)
	if err != nil {
		q.inflight.Track(jobID, entry)
		return wrapOp(err, errs.QueueNackFailed, jobID)
	}

	fields, found, err := parseRangeReply(result)
	if err != nil || !found {
		q.inflight.Track(jobID, entry)
		msg := "entry not found in stream"
		if err != nil {
			msg = err.Error()
		}
		return &errs.QueueError{Kind: errs.QueueNackFailed, JobID: jobID, Reason: msg, Err: err}
	}

	payload, _, perr := parseFields(fields)
	if perr != nil {
		q.inflight.Track(jobID, entry)
		return &errs.QueueError{Kind: errs.QueueNackFailed, JobID: jobID, Reason: perr.Error(), Err: perr}
	}

	data, _ := json.Marshal(payload)
	if _, err := q.command(ctx, "XADD", q.streamKey, "*",
		fieldPayload, string(data), fieldAttempts, strconv.Itoa(entry.Attempts)); err != nil {
		q.inflight.Track(jobID, entry)
		return wrapOp(err, errs.QueueNackFailed, jobID)
	}
	if _, err := q.command(ctx, "XACK", q.streamKey, q.group, entry.Token); err != nil {
		// Already requeued; the stale claim will be cleaned up by the broker.
		log.Warn().Err(err).Str("job_id", jobID).Str("entry_id", entry.Token).
			Msg("Requeued job but failed to ack old entry")
		return nil
	}
	q.command(ctx, "XDEL", q.streamKey, entry.Token)

	log.Warn().
		Str("job_id", jobID).
		Str("consumer", consumerID).
		Int("attempts", entry.Attempts).
		Str("reason", reason).
		Msg("Nacked job, requeued")

	return nil
}

// Length reports the stream length via XLEN.
func (q *StreamQueue) Length(ctx context.Context) (int, error) {
	result, err := q.command(ctx, "XLEN", q.streamKey)
	if err != nil {
		return 0, wrapOp(err, errs.QueueInternal, "")
	}

	var n int
	if err := json.Unmarshal(result, &n); err != nil {
		return 0, &errs.QueueError{Kind: errs.QueueNetworkError, Reason: err.Error(), Err: err}
	}
	return n, nil
}

// wrapOp attaches the operation kind to broker errors while passing
// transport errors through untouched, preserving the transport/broker
// distinction for callers.
func wrapOp(err error, kind errs.QueueErrorKind, jobID string) error {
	var qe *errs.QueueError
	if errors.As(err, &qe) {
		return err
	}
	return &errs.QueueError{Kind: kind, JobID: jobID, Reason: err.Error(), Err: err}
}
