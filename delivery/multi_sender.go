package delivery

import (
	"context"
	"fmt"
	"strings"
)

// MultiSender dispatches to SMTP or WhatsApp depending on the shape of
// the destination address, so DigestAgent can be wired against a single
// services.DeliverySender regardless of which channel a recipient uses.
type MultiSender struct {
	smtp     *SMTPSender
	whatsapp *WhatsAppSender
}

func NewMultiSender(smtp *SMTPSender, whatsapp *WhatsAppSender) *MultiSender {
	return &MultiSender{smtp: smtp, whatsapp: whatsapp}
}

func (m *MultiSender) Send(ctx context.Context, destination, subject, body string) error {
	if strings.Contains(destination, "@") {
		if m.smtp == nil {
			return fmt.Errorf("delivery: no SMTP sender configured for %s", destination)
		}
		return m.smtp.Send(ctx, destination, subject, body)
	}
	if m.whatsapp == nil {
		return fmt.Errorf("delivery: no WhatsApp sender configured for %s", destination)
	}
	return m.whatsapp.Send(ctx, destination, subject, body)
}
