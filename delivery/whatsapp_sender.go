package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WhatsAppSender satisfies services.DeliverySender by posting to a
// configured WhatsApp Business API webhook. No WhatsApp SDK appears
// anywhere in the example pack, so this is a thin net/http client.
type WhatsAppSender struct {
	webhookURL string
	apiToken   string
	client     *http.Client
}

func NewWhatsAppSender(webhookURL, apiToken string) *WhatsAppSender {
	return &WhatsAppSender{
		webhookURL: webhookURL,
		apiToken:   apiToken,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

type whatsAppMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Send ignores subject: WhatsApp messages have no subject line, only a
// body.
func (w *WhatsAppSender) Send(ctx context.Context, destination, subject, body string) error {
	payload, err := json.Marshal(whatsAppMessage{To: destination, Body: body})
	if err != nil {
		return fmt.Errorf("whatsapp: marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("whatsapp: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiToken)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: sending to %s: %w", destination, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
