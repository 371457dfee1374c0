package main

import (
	"context"
	"fmt"

	"github.com/mimivibe/tarotq/pkg/config"
	"github.com/mimivibe/tarotq/pkg/mail"
	"github.com/mimivibe/tarotq/pkg/queue"
	"github.com/mimivibe/tarotq/pkg/root"
	"github.com/mimivibe/tarotq/pkg/telemetry"

	_ "github.com/mimivibe/tarotq/pkg/console" // Register commands
)

// ReadingHandler processes a reading job. The real deployment replaces this
// with the interpretation pipeline; this binary just demonstrates the
// contract.
func ReadingHandler(ctx context.Context, job *queue.QueuedJob) error {
	logger := telemetry.LoggerFromContext(ctx)
	logger.Info().
		Str("job_id", job.JobID).
		Str("user_id", job.Payload.UserID.String()).
		Int("card_count", job.Payload.CardCount).
		Int("attempts", job.Attempts).
		Msg("Processing reading")

	return nil
}

// NotificationHandler emails the user that their reading is ready. The
// recipient address and locale travel in the job metadata.
func NotificationHandler(mailer mail.Mailer) queue.Handler {
	return func(ctx context.Context, job *queue.QueuedJob) error {
		to, ok := job.Payload.Metadata["email"]
		if !ok || to == "" {
			return fmt.Errorf("notification job %s has no email address", job.JobID)
		}

		return mailer.Send(ctx, mail.ReadingReady(to, job.Payload.Metadata["locale"]))
	}
}

func main() {
	cfg, err := config.Load()

	mailCfg := mail.Config{Mailer: "log"}
	if err == nil {
		mailCfg = mail.Config{
			Mailer:      cfg.MailMailer,
			Host:        cfg.MailHost,
			Port:        cfg.MailPort,
			Username:    cfg.MailUsername,
			Password:    cfg.MailPassword,
			Encryption:  cfg.MailEncryption,
			FromAddress: cfg.MailFromAddress,
			FromName:    cfg.MailFromName,
		}
	}
	mailer, merr := mail.NewMailer(mailCfg)
	if merr != nil {
		mailer = mail.NewLogMailer(mailCfg)
	}

	queue.Register(queue.JobTypeReading, ReadingHandler)
	queue.Register(queue.JobTypeNotification, NotificationHandler(mailer))

	root.Execute()
}
