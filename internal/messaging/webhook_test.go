package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleWebhook = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "messages": [
          {"from": "919800000001", "id": "wamid.A", "timestamp": "1", "type": "text", "text": {"body": "Hi"}},
          {"from": "919800000002", "id": "wamid.B", "timestamp": "1", "type": "interactive",
           "interactive": {"type": "button_reply", "button_reply": {"id": "btn_0", "title": "English"}}},
          {"from": "919800000003", "id": "wamid.C", "timestamp": "1", "type": "interactive",
           "interactive": {"type": "list_reply", "list_reply": {"id": "dept_42", "title": "Cardiology"}}},
          {"from": "919800000004", "id": "wamid.D", "timestamp": "1", "type": "image", "image": {"id": "m"}}
        ]
      }
    }]
  }]
}`

func TestParseWebhook(t *testing.T) {
	msgs, err := ParseWebhook([]byte(sampleWebhook))
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, KindText, msgs[0].Kind)
	assert.Equal(t, "Hi", msgs[0].Body())
	assert.False(t, msgs[0].IsInteractive())

	assert.Equal(t, KindInteractive, msgs[1].Kind)
	assert.Equal(t, "btn_0", msgs[1].ReplyID)
	assert.Equal(t, "English", msgs[1].Body())

	assert.Equal(t, "dept_42", msgs[2].ReplyID)
	assert.Equal(t, "919800000003", msgs[2].From)
}

func TestParseWebhookStatusOnly(t *testing.T) {
	msgs, err := ParseWebhook([]byte(`{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"statuses":[{"id":"x"}]}}]}]}`))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestParseWebhookInvalidJSON(t *testing.T) {
	_, err := ParseWebhook([]byte(`{`))
	assert.Error(t, err)
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "മലയാ", Truncate("മലയാളം", 4))
	assert.Equal(t, "short", Truncate("  short ", 20))
}
