package delivery

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSender satisfies services.DeliverySender over plain SMTP. No
// third-party mail library appears anywhere in the example pack, so this
// is built on net/smtp directly.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	addr := fmt.Sprintf("%s:%d", host, port)
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{addr: addr, from: from, auth: auth}
}

func (s *SMTPSender) Send(ctx context.Context, destination, subject, body string) error {
	msg := buildMessage(s.from, destination, subject, body)
	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{destination}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp: sending to %s: %w", destination, err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(body)
	return b.String()
}
