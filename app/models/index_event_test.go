package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIndexEvent(t *testing.T) {
	trigger := NewIndexEvent(AdminTrigger{RemoteAddr: "10.0.0.1", TokenName: "ops", ClientURL: "https://fdp.example.org"}, nil)

	assert.NotEmpty(t, trigger.UUID)
	assert.Equal(t, IndexEventVersion, trigger.Version)
	assert.Equal(t, EventTypeAdminTrigger, trigger.Type)
	assert.Equal(t, "https://fdp.example.org", trigger.ClientURL)
	assert.Nil(t, trigger.RelatedTo)
	assert.False(t, trigger.IsFinished())

	delivery := NewIndexEvent(WebhookTrigger{WebhookUUID: "hook", MatchedEvent: WebhookEventAdminTrigger}, trigger)
	require.NotNil(t, delivery.RelatedTo)
	assert.Equal(t, trigger.UUID, *delivery.RelatedTo)
	assert.Equal(t, "https://fdp.example.org", delivery.ClientURL, "delivery inherits the URL of the related event")
}

func TestEventPayloadRoundTrip(t *testing.T) {
	payloads := []EventPayload{
		AdminTrigger{RemoteAddr: "10.0.0.1", TokenName: "ops"},
		IncomingPing{RemoteAddr: "10.0.0.2", ClientURL: "https://fdp.example.org", NewEntry: true},
		WebhookPing{WebhookUUID: "hook", RemoteAddr: "10.0.0.3", TokenName: "ops"},
		WebhookTrigger{WebhookUUID: "hook", MatchedEvent: WebhookEventEntryValid},
		MetadataRetrieval{ClientURL: "https://fdp.example.org", Outcome: RetrievalUnreachable, Error: "timeout"},
	}

	for _, payload := range payloads {
		t.Run(string(payload.EventType()), func(t *testing.T) {
			event := NewIndexEvent(payload, nil)
			require.NoError(t, event.EncodePayload())

			decoded, err := DecodeEventPayload(event.Type, event.PayloadJSON)
			require.NoError(t, err)
			assert.Equal(t, payload, decoded)
		})
	}
}

func TestEncodePayloadRejectsMismatchedType(t *testing.T) {
	event := NewIndexEvent(AdminTrigger{}, nil)
	event.Type = EventTypeWebhookPing

	assert.Error(t, event.EncodePayload())
}

func TestDecodeEventPayloadUnknownType(t *testing.T) {
	_, err := DecodeEventPayload("Bogus", []byte(`{}`))
	assert.Error(t, err)
}
