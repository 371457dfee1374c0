// Package mail delivers notification emails, used by the notification job
// handler to tell a user their reading is ready.
package mail

import "context"

// Config selects and tunes the mail transport.
type Config struct {
	// Mailer selects the transport: "smtp" or "log".
	Mailer string

	Host       string
	Port       string
	Username   string
	Password   string
	Encryption string // "ssl" for implicit TLS, empty for STARTTLS/plain

	FromAddress string
	FromName    string
}

// Message represents an email message
type Message struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Body        string
	ContentType string // e.g., "text/plain", "text/html"
}

// Mailer is the interface for sending emails
type Mailer interface {
	// Send sends the given message
	Send(ctx context.Context, msg *Message) error
}
