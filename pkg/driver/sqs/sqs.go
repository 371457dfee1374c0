// Package sqs implements the queue contract on Amazon SQS. Visibility
// timeouts replace explicit claims: a received message is invisible to other
// consumers until acked (deleted) or nacked (visibility reset to zero).
package sqs

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"github.com/mimivibe/tarotq/pkg/driver/inflight"
	"github.com/mimivibe/tarotq/pkg/errs"
	"github.com/mimivibe/tarotq/pkg/queue"
)

// Client is the slice of the SQS API this driver uses. *awssqs.Client
// satisfies it.
type Client interface {
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *awssqs.ChangeMessageVisibilityInput, optFns ...func(*awssqs.Options)) (*awssqs.ChangeMessageVisibilityOutput, error)
	GetQueueAttributes(ctx context.Context, params *awssqs.GetQueueAttributesInput, optFns ...func(*awssqs.Options)) (*awssqs.GetQueueAttributesOutput, error)
}

var _ Client = (*awssqs.Client)(nil)

// DefaultWaitTime is the long-poll duration for ReceiveMessage.
const DefaultWaitTime = 20 * time.Second

// Queue is the SQS-backed queue.
type Queue struct {
	client   Client
	queueURL string
	waitTime time.Duration

	// inflight maps job ids to receipt handles so ack and nack can address
	// the broker by its own token.
	inflight *inflight.Table
}

var _ queue.Queue = (*Queue)(nil)

// Option configures a Queue.
type Option func(*Queue)

// WithWaitTime overrides the long-poll duration.
func WithWaitTime(d time.Duration) Option {
	return func(q *Queue) { q.waitTime = d }
}

// NewQueue builds an SQS-backed queue for the given queue URL.
func NewQueue(client Client, queueURL string, opts ...Option) *Queue {
	q := &Queue{
		client:   client,
		queueURL: queueURL,
		waitTime: DefaultWaitTime,
		inflight: inflight.NewTable(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue sends the payload as a message body.
func (q *Queue) Enqueue(ctx context.Context, payload queue.JobPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", &errs.QueueError{Kind: errs.QueueInvalidPayload, JobID: payload.JobID, Reason: err.Error(), Err: err}
	}

	_, err = q.client.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(data)),
	})
	if err != nil {
		log.Error().Err(err).Str("job_id", payload.JobID).Msg("Failed to send message")
		return "", &errs.QueueError{Kind: errs.QueueEnqueueFailed, JobID: payload.JobID, Reason: err.Error(), Err: err}
	}

	log.Debug().Str("job_id", payload.JobID).Msg("Enqueued job")
	return payload.JobID, nil
}

// Dequeue long-polls for one message. The broker's ApproximateReceiveCount
// attribute is the delivery count, so attempts survive process crashes
// without any local bookkeeping.
func (q *Queue) Dequeue(ctx context.Context, consumerID string) (*queue.QueuedJob, error) {
	resp, err := q.client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     int32(q.waitTime / time.Second),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, &errs.QueueError{Kind: errs.QueueDequeueFailed, Reason: err.Error(), Err: err}
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}

	msg := resp.Messages[0]

	var payload queue.JobPayload
	if msg.Body == nil || json.Unmarshal([]byte(*msg.Body), &payload) != nil {
		// Poison message; delete it rather than letting it cycle through
		// the visibility timeout forever.
		q.deleteMessage(ctx, msg.ReceiptHandle)
		log.Error().Str("message_id", aws.ToString(msg.MessageId)).Msg("Dropped malformed message")
		return nil, nil
	}

	attempts := 1
	if s, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			attempts = n
		}
	}

	job := queue.QueuedJob{
		JobID:     payload.JobID,
		Payload:   payload,
		Attempts:  attempts,
		ClaimedAt: time.Now().UTC(),
	}
	q.inflight.Track(job.JobID, inflight.Entry{
		Token:      aws.ToString(msg.ReceiptHandle),
		ConsumerID: consumerID,
		Attempts:   attempts,
		ClaimedAt:  job.ClaimedAt,
	})

	log.Debug().
		Str("job_id", job.JobID).
		Str("consumer", consumerID).
		Int("attempts", attempts).
		Msg("Dequeued job")

	return &job, nil
}

// Ack deletes the message behind the claim; unknown job ids are a no-op.
func (q *Queue) Ack(ctx context.Context, jobID, consumerID string) error {
	entry, ok := q.inflight.Remove(jobID)
	if !ok {
		return nil
	}

	_, err := q.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(entry.Token),
	})
	if err != nil {
		q.inflight.Track(jobID, entry)
		return &errs.QueueError{Kind: errs.QueueAckFailed, JobID: jobID, Reason: err.Error(), Err: err}
	}

	log.Debug().Str("job_id", jobID).Msg("Acked job")
	return nil
}

// Nack zeroes the message's visibility timeout so the broker redelivers it
// immediately, bumping ApproximateReceiveCount for the next consumer.
func (q *Queue) Nack(ctx context.Context, jobID, consumerID, reason string) error {
	entry, ok := q.inflight.Remove(jobID)
	if !ok {
		return nil
	}

	_, err := q.client.ChangeMessageVisibility(ctx, &awssqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.queueURL),
		ReceiptHandle:     aws.String(entry.Token),
		VisibilityTimeout: 0,
	})
	if err != nil {
		q.inflight.Track(jobID, entry)
		return &errs.QueueError{Kind: errs.QueueNackFailed, JobID: jobID, Reason: err.Error(), Err: err}
	}

	log.Warn().
		Str("job_id", jobID).
		Str("consumer", consumerID).
		Str("reason", reason).
		Msg("Nacked job, returned to queue")

	return nil
}

// Length reports ApproximateNumberOfMessages, which counts visible messages
// only; in-flight claims are excluded.
func (q *Queue) Length(ctx context.Context) (int, error) {
	resp, err := q.client.GetQueueAttributes(ctx, &awssqs.GetQueueAttributesInput{
		QueueUrl: aws.String(q.queueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
		},
	})
	if err != nil {
		return 0, &errs.QueueError{Kind: errs.QueueInternal, Reason: err.Error(), Err: err}
	}

	s := resp.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)]
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &errs.QueueError{Kind: errs.QueueInternal, Reason: "unparseable queue depth: " + s, Err: err}
	}
	return n, nil
}

func (q *Queue) deleteMessage(ctx context.Context, receipt *string) {
	if receipt == nil {
		return
	}
	q.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: receipt,
	})
}
