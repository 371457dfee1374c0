package mail

import (
	"fmt"
)

// NewMailer creates a new Mailer based on the configuration
func NewMailer(cfg Config) (Mailer, error) {
	switch cfg.Mailer {
	case "smtp":
		return NewSMTPMailer(cfg), nil
	case "log":
		return NewLogMailer(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported mailer: %s", cfg.Mailer)
	}
}
