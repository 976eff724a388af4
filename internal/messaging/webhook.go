package messaging

import (
	"encoding/json"
	"fmt"
)

// WebhookPayload is the envelope the Cloud API posts to the webhook.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      string          `json:"id"`
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string       `json:"field"`
	Value webhookValue `json:"value"`
}

type webhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Messages         []webhookMessage `json:"messages"`
}

type webhookMessage struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *textBody           `json:"text,omitempty"`
	Interactive *webhookInteractive `json:"interactive,omitempty"`
	Button      *webhookButton      `json:"button,omitempty"`
}

type webhookInteractive struct {
	Type        string      `json:"type"`
	ButtonReply *replyTitle `json:"button_reply,omitempty"`
	ListReply   *replyTitle `json:"list_reply,omitempty"`
}

type webhookButton struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// ParseWebhook extracts the text and interactive messages from a webhook body.
// Status callbacks and unsupported message types are skipped.
func ParseWebhook(body []byte) ([]Inbound, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	var out []Inbound
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				if in, ok := toInbound(m); ok {
					out = append(out, in)
				}
			}
		}
	}
	return out, nil
}

func toInbound(m webhookMessage) (Inbound, bool) {
	in := Inbound{MessageID: m.ID, From: m.From}
	if in.From == "" {
		return Inbound{}, false
	}

	switch m.Type {
	case messageTypeText:
		if m.Text == nil {
			return Inbound{}, false
		}
		in.Kind = KindText
		in.Text = m.Text.Body
		return in, true

	case messageTypeInteract:
		if m.Interactive == nil {
			return Inbound{}, false
		}
		reply := m.Interactive.ButtonReply
		if reply == nil {
			reply = m.Interactive.ListReply
		}
		if reply == nil {
			return Inbound{}, false
		}
		in.Kind = KindInteractive
		in.ReplyID = reply.ID
		in.ReplyTitle = reply.Title
		return in, true

	case "button":
		if m.Button == nil {
			return Inbound{}, false
		}
		in.Kind = KindInteractive
		in.ReplyID = m.Button.Payload
		in.ReplyTitle = m.Button.Text
		return in, true
	}

	return Inbound{}, false
}
