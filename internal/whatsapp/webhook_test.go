package whatsapp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEnvelope = `{
  "object": "whatsapp_business_account",
  "entry": [
    {
      "id": "102290129340398",
      "changes": [
        {
          "field": "messages",
          "value": {
            "messaging_product": "whatsapp",
            "messages": [
              {
                "id": "wamid.text1",
                "from": "48600000001",
                "timestamp": "1731321600",
                "type": "text",
                "text": {"body": "Zwalniam 12/11"}
              },
              {
                "id": "wamid.list1",
                "from": "48600000002",
                "timestamp": "1731321601",
                "type": "interactive",
                "interactive": {
                  "type": "list_reply",
                  "list_reply": {"id": "absence_2025-11-12_100", "title": "środa 12.11 18:00"}
                }
              },
              {
                "id": "wamid.btn1",
                "from": "48600000002",
                "timestamp": "1731321602",
                "type": "interactive",
                "interactive": {
                  "type": "button_reply",
                  "button_reply": {"id": "absence_more_no", "title": "Nie"}
                }
              },
              {
                "id": "wamid.img1",
                "from": "48600000003",
                "timestamp": "1731321603",
                "type": "image"
              }
            ],
            "statuses": [
              {"id": "wamid.out1", "status": "delivered", "timestamp": "1731321604"}
            ]
          }
        }
      ]
    }
  ]
}`

func TestFlatten(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(sampleEnvelope), &env))

	events := env.Flatten()
	require.Len(t, events, 4, "statuses are not message events")

	assert.Equal(t, Inbound{
		EventID: "wamid.text1",
		From:    "48600000001",
		Kind:    KindText,
		Text:    "Zwalniam 12/11",
	}, events[0])

	assert.Equal(t, Inbound{
		EventID:    "wamid.list1",
		From:       "48600000002",
		Kind:       KindList,
		ReplyID:    "absence_2025-11-12_100",
		ReplyTitle: "środa 12.11 18:00",
	}, events[1])

	assert.Equal(t, KindButton, events[2].Kind)
	assert.Equal(t, "absence_more_no", events[2].ReplyID)

	// Unsupported message types still surface, so the router can shrug at
	// them instead of the webhook dropping them silently.
	assert.Equal(t, KindOther, events[3].Kind)
	assert.Equal(t, "wamid.img1", events[3].EventID)
}

func TestFlattenEmptyEnvelope(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"object":"whatsapp_business_account","entry":[]}`), &env))
	assert.Empty(t, env.Flatten())
}
