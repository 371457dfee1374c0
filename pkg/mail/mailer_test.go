package mail

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestFactory(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantType  interface{}
		expectErr bool
	}{
		{
			name:     "smtp",
			config:   Config{Mailer: "smtp"},
			wantType: &SMTPMailer{},
		},
		{
			name:     "log",
			config:   Config{Mailer: "log"},
			wantType: &LogMailer{},
		},
		{
			name:      "invalid",
			config:    Config{Mailer: "carrier-pigeon"},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewMailer(tt.config)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.IsType(t, tt.wantType, got)
			}
		})
	}
}

func TestLogMailer_Send(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ctx := logger.WithContext(context.Background())

	cfg := Config{
		Mailer:      "log",
		FromAddress: "readings@mimivibe.com",
		FromName:    "MimiVibe",
	}
	mailer := NewLogMailer(cfg)

	err := mailer.Send(ctx, ReadingReady("seeker@example.com", "en"))
	assert.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Sending email")
	assert.Contains(t, output, "MimiVibe <readings@mimivibe.com>")
	assert.Contains(t, output, "seeker@example.com")
	assert.Contains(t, output, "Your reading is ready")
}

func TestReadingReady_Localized(t *testing.T) {
	en := ReadingReady("seeker@example.com", "en")
	assert.Equal(t, []string{"seeker@example.com"}, en.To)
	assert.Equal(t, "Your reading is ready", en.Subject)
	assert.Contains(t, en.Body, "MimiVibe")

	th := ReadingReady("seeker@example.com", "th")
	assert.Equal(t, "ผลการดูไพ่ของคุณพร้อมแล้ว", th.Subject)
	assert.Contains(t, th.Body, "MimiVibe")

	// Unknown locales fall back to English.
	other := ReadingReady("seeker@example.com", "fr")
	assert.Equal(t, en.Subject, other.Subject)
}

func TestSenderAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"readings@mimivibe.com", "readings@mimivibe.com", false},
		{"MimiVibe <readings@mimivibe.com>", "readings@mimivibe.com", false},
		{"<readings@mimivibe.com>", "readings@mimivibe.com", false},
		{"MimiVibe <readings@mimivibe.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := senderAddress(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

func TestRenderMessage(t *testing.T) {
	msg := ReadingReady("seeker@example.com", "en")
	msg.From = "readings@mimivibe.com"

	wire := renderMessage(msg)
	assert.Contains(t, wire, "From: readings@mimivibe.com")
	assert.Contains(t, wire, "To: seeker@example.com")
	assert.Contains(t, wire, "Subject: Your reading is ready")
	assert.Contains(t, wire, "Content-Type: text/plain")
	assert.True(t, strings.HasSuffix(wire, "\r\n\r\n"+msg.Body))
}

func TestRenderMessage_StripsHeaderInjection(t *testing.T) {
	msg := &Message{
		From:    "readings@mimivibe.com",
		To:      []string{"seeker@example.com"},
		Subject: "Your reading\r\nBcc: attacker@example.com",
		Body:    "Body",
	}

	wire := renderMessage(msg)
	assert.Contains(t, wire, "Subject: Your readingBcc: attacker@example.com")
	assert.NotContains(t, wire, "Subject: Your reading\r\n")
}

func TestCollectRecipients(t *testing.T) {
	msg := &Message{
		To:  []string{"seeker@example.com", "other@example.com"},
		Cc:  []string{"support@mimivibe.com"},
		Bcc: []string{"audit@mimivibe.com"},
	}

	recipients := collectRecipients(msg)
	assert.Len(t, recipients, 4)
	assert.Contains(t, recipients, "seeker@example.com")
	assert.Contains(t, recipients, "support@mimivibe.com")
	assert.Contains(t, recipients, "audit@mimivibe.com")
}

func TestApplyDefaultFrom(t *testing.T) {
	cfg := Config{FromAddress: "readings@mimivibe.com", FromName: "MimiVibe"}

	msg := &Message{To: []string{"seeker@example.com"}}
	applyDefaultFrom(msg, cfg)
	assert.Equal(t, "MimiVibe <readings@mimivibe.com>", msg.From)

	// An explicit From wins over the configured sender.
	msg = &Message{From: "tarot@example.com"}
	applyDefaultFrom(msg, cfg)
	assert.Equal(t, "tarot@example.com", msg.From)
}
