package mail

// ReadingReady builds the notification sent to a user when their reading
// has been completed. The body is localized per the user's locale; anything
// other than "th" falls back to English.
func ReadingReady(to, locale string) *Message {
	subject := "Your reading is ready"
	body := "Your tarot reading has been completed. Open the MimiVibe app to see it."
	if locale == "th" {
		subject = "ผลการดูไพ่ของคุณพร้อมแล้ว"
		body = "การดูไพ่ทาโรต์ของคุณเสร็จสมบูรณ์แล้ว เปิดแอป MimiVibe เพื่อดูผลได้เลย"
	}

	return &Message{
		To:      []string{to},
		Subject: subject,
		Body:    body,
	}
}
