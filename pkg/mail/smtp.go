package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/mail"
	"net/smtp"
	"strings"
)

// SMTPMailer delivers messages over SMTP. Port 465 or Encryption "ssl"
// selects implicit TLS; everything else goes through smtp.SendMail, which
// upgrades with STARTTLS when the server offers it.
type SMTPMailer struct {
	cfg Config
}

// NewSMTPMailer creates a new SMTPMailer
func NewSMTPMailer(cfg Config) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send delivers the message.
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)
	applyDefaultFrom(msg, m.cfg)

	wire := renderMessage(msg)

	var auth smtp.Auth
	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	from, err := senderAddress(msg.From)
	if err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	recipients := collectRecipients(msg)

	if m.cfg.Encryption == "ssl" || m.cfg.Port == "465" {
		return m.sendImplicitTLS(addr, auth, from, recipients, []byte(wire))
	}
	return smtp.SendMail(addr, auth, from, recipients, []byte(wire))
}

func (m *SMTPMailer) sendImplicitTLS(addr string, auth smtp.Auth, from string, to []string, wire []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.cfg.Host})
	if err != nil {
		return fmt.Errorf("dial TLS: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer func() {
		_ = client.Quit()
	}()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("open data writer: %w", err)
	}
	if _, err := w.Write(wire); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return w.Close()
}

// applyDefaultFrom fills the From header from the configured sender when the
// message carries none.
func applyDefaultFrom(msg *Message, cfg Config) {
	if msg.From != "" || cfg.FromAddress == "" {
		return
	}
	msg.From = cfg.FromAddress
	if cfg.FromName != "" {
		msg.From = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress)
	}
}

func collectRecipients(msg *Message) []string {
	recipients := make([]string, 0, len(msg.To)+len(msg.Cc)+len(msg.Bcc))
	recipients = append(recipients, msg.To...)
	recipients = append(recipients, msg.Cc...)
	recipients = append(recipients, msg.Bcc...)
	return recipients
}

// renderMessage serializes headers and body for the wire. Header values are
// stripped of CR/LF so message fields can never smuggle extra headers in.
func renderMessage(msg *Message) string {
	sanitize := func(s string) string {
		return strings.NewReplacer("\r", "", "\n", "").Replace(s)
	}

	headers := []string{
		"From: " + sanitize(msg.From),
		"To: " + sanitize(strings.Join(msg.To, ", ")),
	}
	if len(msg.Cc) > 0 {
		headers = append(headers, "Cc: "+sanitize(strings.Join(msg.Cc, ", ")))
	}
	headers = append(headers, "Subject: "+sanitize(msg.Subject))

	contentType := msg.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}
	headers = append(headers, "Content-Type: "+sanitize(contentType)+"; charset=UTF-8")

	return strings.Join(headers, "\r\n") + "\r\n\r\n" + msg.Body
}

// senderAddress extracts the bare address from either "user@host" or
// "Name <user@host>" forms.
func senderAddress(input string) (string, error) {
	addr, err := mail.ParseAddress(input)
	if err != nil {
		return "", err
	}
	return addr.Address, nil
}
