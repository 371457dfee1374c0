// Package worker runs the consumer pool: dequeue, dispatch to the registered
// handler, then ack, retry with backoff, or dead-letter.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mimivibe/tarotq/pkg/errs"
	"github.com/mimivibe/tarotq/pkg/queue"
	"github.com/mimivibe/tarotq/pkg/retry"
)

// DefaultIdleDelay is how long a consumer sleeps after an empty dequeue.
const DefaultIdleDelay = 250 * time.Millisecond

// metadataTypeKey selects the handler for a job; jobs without it are
// readings.
const metadataTypeKey = "type"

// Pool runs Concurrency consumers against one queue backend.
type Pool struct {
	Queue       queue.Queue
	DLQ         queue.DeadLetterProvider
	Policy      *retry.Policy
	Connection  string
	QueueName   string
	Concurrency int

	// Handler overrides registry lookup when set.
	Handler queue.Handler

	// JobTimeout bounds each handler invocation; zero means unbounded.
	JobTimeout time.Duration

	// IdleDelay is the sleep after an empty dequeue; DefaultIdleDelay when
	// zero.
	IdleDelay time.Duration

	wg sync.WaitGroup
}

// Run starts the pool and blocks until the context is cancelled and all
// consumers have drained.
func (p *Pool) Run(ctx context.Context) {
	tracer := otel.Tracer("tarotq/worker")

	for i := 0; i < p.Concurrency; i++ {
		consumerID := fmt.Sprintf("worker-%d-%s", i, uuid.NewString()[:8])
		p.wg.Add(1)
		go p.consume(ctx, tracer, consumerID)
	}
	p.wg.Wait()
}

func (p *Pool) consume(ctx context.Context, tracer trace.Tracer, consumerID string) {
	defer p.wg.Done()

	log.Info().
		Str("consumer", consumerID).
		Str("queue", p.QueueName).
		Msg("Consumer started")

	idle := p.IdleDelay
	if idle == 0 {
		idle = DefaultIdleDelay
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("consumer", consumerID).Msg("Consumer stopped")
			return
		default:
		}

		job, err := p.Queue.Dequeue(ctx, consumerID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			classified := errs.Classify(err)
			log.Error().
				Err(err).
				Str("consumer", consumerID).
				Str("error_code", classified.Code()).
				Str("context", classified.LogContext()).
				Msg("Dequeue failed")
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, idle) {
				return
			}
			continue
		}

		p.process(ctx, tracer, consumerID, job)
	}
}

// process runs the handler and settles the job: ack on success, nack after
// the backoff delay while the retry budget holds, dead-letter once it is
// spent.
func (p *Pool) process(ctx context.Context, tracer trace.Tracer, consumerID string, job *queue.QueuedJob) {
	spanCtx, span := tracer.Start(ctx, "process_job", trace.WithAttributes(
		attribute.String("job.id", job.JobID),
		attribute.String("job.queue", p.QueueName),
		attribute.Int("job.attempts", job.Attempts),
	))
	defer span.End()

	handler, err := p.resolveHandler(job)
	if err != nil {
		// No handler will ever appear mid-flight; dead-letter immediately.
		log.Error().Err(err).Str("job_id", job.JobID).Msg("No handler for job")
		p.deadLetter(spanCtx, consumerID, job, err.Error())
		return
	}

	jobCtx := log.Logger.With().Str("job_id", job.JobID).Logger().WithContext(spanCtx)
	if p.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, p.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	handlerErr := runHandler(jobCtx, handler, job)
	elapsed := time.Since(start)

	if handlerErr == nil {
		if ackErr := p.Queue.Ack(spanCtx, job.JobID, consumerID); ackErr != nil {
			log.Error().Err(ackErr).Str("job_id", job.JobID).Msg("Ack failed")
			return
		}
		log.Info().
			Str("job_id", job.JobID).
			Int("attempts", job.Attempts).
			Dur("duration", elapsed).
			Msg("Job succeeded")
		return
	}

	span.RecordError(handlerErr)

	delay, retryable := p.Policy.NextAttemptDelay(job.Attempts)
	if !retryable {
		werr := &errs.WorkerError{
			Kind:        errs.WorkerMaxRetriesExceeded,
			JobID:       job.JobID,
			Attempts:    job.Attempts,
			MaxAttempts: p.Policy.Config().MaxAttempts,
			Reason:      handlerErr.Error(),
			Err:         handlerErr,
		}
		log.Error().
			Str("error_code", werr.Code()).
			Str("context", werr.LogContext()).
			Msg("Job exhausted retry budget")
		p.deadLetter(spanCtx, consumerID, job, handlerErr.Error())
		return
	}

	werr := &errs.WorkerError{
		Kind:        errs.WorkerRetryable,
		JobID:       job.JobID,
		Attempts:    job.Attempts,
		MaxAttempts: p.Policy.Config().MaxAttempts,
		NextRetryIn: delay,
		Reason:      handlerErr.Error(),
		Err:         handlerErr,
	}
	log.Warn().
		Str("error_code", werr.Code()).
		Str("context", werr.LogContext()).
		Msg("Job failed, will retry")

	// Hold the claim through the backoff window so the job does not become
	// visible again early.
	if !sleepCtx(ctx, delay) {
		// Shutting down; requeue without the remaining delay.
		p.Queue.Nack(context.WithoutCancel(ctx), job.JobID, consumerID, handlerErr.Error())
		return
	}
	if nackErr := p.Queue.Nack(spanCtx, job.JobID, consumerID, handlerErr.Error()); nackErr != nil {
		log.Error().Err(nackErr).Str("job_id", job.JobID).Msg("Nack failed")
	}
}

// deadLetter records the job and acks it off the queue. Recording failure
// keeps the job claimed so it is not silently lost.
func (p *Pool) deadLetter(ctx context.Context, consumerID string, job *queue.QueuedJob, reason string) {
	if p.DLQ != nil {
		payload, err := json.Marshal(job.Payload)
		if err != nil {
			payload = []byte(fmt.Sprintf(`{"job_id":%q}`, job.JobID))
		}
		if err := p.DLQ.Log(ctx, p.Connection, p.QueueName, payload, reason); err != nil {
			log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to dead-letter job")
			return
		}
	} else {
		log.Error().Str("job_id", job.JobID).Str("reason", reason).Msg("No dead-letter provider configured, dropping job")
	}

	if err := p.Queue.Ack(ctx, job.JobID, consumerID); err != nil {
		log.Error().Err(err).Str("job_id", job.JobID).Msg("Ack after dead-letter failed")
	}
}

func (p *Pool) resolveHandler(job *queue.QueuedJob) (queue.Handler, error) {
	if p.Handler != nil {
		return p.Handler, nil
	}

	jobType := queue.JobTypeReading
	if t, ok := job.Payload.Metadata[metadataTypeKey]; ok && t != "" {
		jobType = queue.JobType(t)
	}
	return queue.GetHandler(jobType)
}

// runHandler isolates handler panics so one bad job cannot take down the
// consumer.
func runHandler(ctx context.Context, handler queue.Handler, job *queue.QueuedJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

// sleepCtx sleeps for d, returning false if the context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
