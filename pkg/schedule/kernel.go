// Package schedule runs recurring maintenance tasks (queue depth reporting,
// dead-letter sweeps) on cron expressions, with optional distributed locks so
// a task fires on one server only.
package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Kernel manages scheduled tasks.
type Kernel struct {
	cron         *cron.Cron
	lockProvider LockProvider
}

// JobOption configures a scheduled job.
type JobOption func(*jobConfig)

type jobConfig struct {
	withoutOverlapping bool
	onOneServer        bool
	name               string
}

// NewKernel creates a scheduler kernel with second-level cron precision.
func NewKernel(lockProvider LockProvider) *Kernel {
	return &Kernel{
		cron:         cron.New(cron.WithSeconds()),
		lockProvider: lockProvider,
	}
}

// SetLockProvider sets the distributed lock provider.
func (k *Kernel) SetLockProvider(provider LockProvider) {
	k.lockProvider = provider
}

// WithoutOverlapping skips a run while the previous one is still going
// (local to this process).
func WithoutOverlapping() JobOption {
	return func(c *jobConfig) {
		c.withoutOverlapping = true
	}
}

// OnOneServer takes a distributed lock before running so only one server
// executes the task per tick.
func OnOneServer(name string) JobOption {
	return func(c *jobConfig) {
		c.onOneServer = true
		c.name = name
	}
}

// Register adds a function on a cron schedule.
// Schedule format: "s m h dom mon dow".
func (k *Kernel) Register(schedule string, cmd func(), opts ...JobOption) {
	cfg := &jobConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var job cron.Job = cron.FuncJob(cmd)

	if cfg.withoutOverlapping {
		job = cron.SkipIfStillRunning(cron.DefaultLogger)(job)
	}

	if cfg.onOneServer {
		if k.lockProvider == nil {
			log.Warn().Str("task", cfg.name).Msg("Ignoring OnOneServer: no lock provider configured")
		} else {
			job = k.lockedJob(cfg.name, job)
		}
	}

	if _, err := k.cron.AddJob(schedule, job); err != nil {
		log.Error().Err(err).Str("task", cfg.name).Msg("Failed to register scheduled task")
		return
	}
	log.Info().Str("task", cfg.name).Str("schedule", schedule).Msg("Registered scheduled task")
}

// lockedJob wraps a job with a lock held for the tick so other servers skip
// this instance. The lock is released after the job finishes.
func (k *Kernel) lockedJob(name string, inner cron.Job) cron.Job {
	return cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		acquired, err := k.lockProvider.GetLock(ctx, name, time.Minute)
		if err != nil {
			log.Error().Err(err).Str("task", name).Msg("Failed to check scheduler lock")
			return
		}
		if !acquired {
			return
		}

		defer func() {
			_ = k.lockProvider.ReleaseLock(context.Background(), name)
		}()
		inner.Run()
	})
}

// Run starts the scheduler and blocks until the context is cancelled, then
// waits for active jobs to finish.
func (k *Kernel) Run(ctx context.Context) {
	log.Info().Msg("Starting task scheduler")
	k.cron.Start()

	<-ctx.Done()

	log.Info().Msg("Stopping task scheduler")
	stopCtx := k.cron.Stop()
	<-stopCtx.Done()
}
