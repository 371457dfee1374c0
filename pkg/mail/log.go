package mail

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogMailer implements Mailer by logging messages, for development and for
// deployments without an SMTP relay.
type LogMailer struct {
	cfg Config
}

// NewLogMailer creates a new LogMailer
func NewLogMailer(cfg Config) *LogMailer {
	return &LogMailer{cfg: cfg}
}

// Send logs the message details
func (m *LogMailer) Send(ctx context.Context, msg *Message) error {
	applyDefaultFrom(msg, m.cfg)

	logger := log.Ctx(ctx).With().
		Str("mailer", "log").
		Str("from", msg.From).
		Strs("to", msg.To).
		Str("subject", msg.Subject).
		Str("content_type", msg.ContentType).
		Logger()

	if len(msg.Cc) > 0 {
		logger = logger.With().Strs("cc", msg.Cc).Logger()
	}
	if len(msg.Bcc) > 0 {
		logger = logger.With().Strs("bcc", msg.Bcc).Logger()
	}

	logger.Info().Msg("Sending email")
	logger.Info().Msgf("Body:\n%s", msg.Body)

	return nil
}
