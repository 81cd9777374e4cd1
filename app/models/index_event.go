package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IndexEventVersion is the schema version of event payloads
const IndexEventVersion = 1

// IndexEventType discriminates the payload variant stored with an event
type IndexEventType string

const (
	EventTypeAdminTrigger      IndexEventType = "AdminTrigger"
	EventTypeIncomingPing      IndexEventType = "IncomingPing"
	EventTypeWebhookPing       IndexEventType = "WebhookPing"
	EventTypeWebhookTrigger    IndexEventType = "WebhookTrigger"
	EventTypeMetadataRetrieval IndexEventType = "MetadataRetrieval"
)

// RetrievalOutcome is the result of one harvest run
type RetrievalOutcome string

const (
	RetrievalPending     RetrievalOutcome = ""
	RetrievalInstalled   RetrievalOutcome = "INSTALLED"
	RetrievalUnreachable RetrievalOutcome = "UNREACHABLE"
	RetrievalInvalid     RetrievalOutcome = "INVALID_SHAPE"
	RetrievalSkipped     RetrievalOutcome = "SKIPPED"
	RetrievalStoreFailed RetrievalOutcome = "STORE_FAILED"
)

// EventPayload is implemented only by the payload variants in this file.
type EventPayload interface {
	EventType() IndexEventType
	isEventPayload()
}

// AdminTrigger: an authenticated operator requested a (re)harvest.
// An empty ClientURL means every accepted entry.
type AdminTrigger struct {
	RemoteAddr string `json:"remoteAddr"`
	TokenName  string `json:"tokenName"`
	ClientURL  string `json:"clientUrl"`
}

// IncomingPing: a remote FDP announced itself on the public ping endpoint.
type IncomingPing struct {
	RemoteAddr string `json:"remoteAddr"`
	ClientURL  string `json:"clientUrl"`
	NewEntry   bool   `json:"newEntry"`
}

// WebhookPing: an operator asked for a verification delivery to one webhook.
type WebhookPing struct {
	WebhookUUID string `json:"webhookUuid"`
	RemoteAddr  string `json:"remoteAddr"`
	TokenName   string `json:"tokenName"`
}

// WebhookTrigger: delivery of a prior event to a webhook.
type WebhookTrigger struct {
	WebhookUUID  string           `json:"webhookUuid"`
	MatchedEvent WebhookEventKind `json:"matchedEvent"`
}

// MetadataRetrieval: one harvest run, chained to the trigger that caused it.
type MetadataRetrieval struct {
	ClientURL string           `json:"clientUrl"`
	Outcome   RetrievalOutcome `json:"outcome"`
	Error     string           `json:"error,omitempty"`
}

func (AdminTrigger) EventType() IndexEventType      { return EventTypeAdminTrigger }
func (IncomingPing) EventType() IndexEventType      { return EventTypeIncomingPing }
func (WebhookPing) EventType() IndexEventType       { return EventTypeWebhookPing }
func (WebhookTrigger) EventType() IndexEventType    { return EventTypeWebhookTrigger }
func (MetadataRetrieval) EventType() IndexEventType { return EventTypeMetadataRetrieval }

func (AdminTrigger) isEventPayload()      {}
func (IncomingPing) isEventPayload()      {}
func (WebhookPing) isEventPayload()       {}
func (WebhookTrigger) isEventPayload()    {}
func (MetadataRetrieval) isEventPayload() {}

// IndexEvent is an immutable, versioned record of a trigger or delivery.
// RelatedTo holds the uuid of an earlier event; it is a lookup key only.
type IndexEvent struct {
	ID          uint           `gorm:"primaryKey" json:"-"`
	UUID        string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	Version     int            `gorm:"not null" json:"version"`
	Type        IndexEventType `gorm:"type:varchar(40);index;not null" json:"type"`
	ClientURL   string         `gorm:"column:client_url;type:varchar(512);index" json:"clientUrl,omitempty"`
	PayloadJSON datatypes.JSON `gorm:"column:payload;not null" json:"-"`
	RelatedTo   *string        `gorm:"type:varchar(36);index" json:"relatedTo,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	FinishedAt  *time.Time     `json:"finishedAt,omitempty"`
	Payload     EventPayload   `gorm:"-" json:"payload"`
}

// TableName specifies the table name for the IndexEvent model
func (IndexEvent) TableName() string {
	return "index_events"
}

// NewIndexEvent builds an unsaved event. Payloads without their own URL
// inherit it from the related event.
func NewIndexEvent(payload EventPayload, related *IndexEvent) *IndexEvent {
	event := &IndexEvent{
		UUID:      uuid.New().String(),
		Version:   IndexEventVersion,
		Type:      payload.EventType(),
		ClientURL: PayloadClientURL(payload),
		Payload:   payload,
	}
	if related != nil {
		relatedUUID := related.UUID
		event.RelatedTo = &relatedUUID
		if event.ClientURL == "" {
			event.ClientURL = related.ClientURL
		}
	}
	return event
}

// PayloadClientURL returns the URL a payload refers to, if any
func PayloadClientURL(payload EventPayload) string {
	switch p := payload.(type) {
	case AdminTrigger:
		return p.ClientURL
	case IncomingPing:
		return p.ClientURL
	case MetadataRetrieval:
		return p.ClientURL
	case WebhookPing, WebhookTrigger:
		return ""
	default:
		panic(fmt.Sprintf("unhandled event payload %T", payload))
	}
}

// IsFinished reports whether processing of the event completed
func (e *IndexEvent) IsFinished() bool {
	return e.FinishedAt != nil
}

// EncodePayload refreshes PayloadJSON from Payload
func (e *IndexEvent) EncodePayload() error {
	if e.Payload == nil {
		return fmt.Errorf("event %s has no payload", e.UUID)
	}
	if e.Payload.EventType() != e.Type {
		return fmt.Errorf("event %s: payload %s does not match type %s", e.UUID, e.Payload.EventType(), e.Type)
	}
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload of event %s: %w", e.UUID, err)
	}
	e.PayloadJSON = datatypes.JSON(raw)
	return nil
}

// BeforeCreate serializes the payload variant
func (e *IndexEvent) BeforeCreate(tx *gorm.DB) error {
	if e.UUID == "" {
		e.UUID = uuid.New().String()
	}
	if e.Version == 0 {
		e.Version = IndexEventVersion
	}
	return e.EncodePayload()
}

// AfterFind restores the payload variant from the stored JSON
func (e *IndexEvent) AfterFind(tx *gorm.DB) error {
	payload, err := DecodeEventPayload(e.Type, e.PayloadJSON)
	if err != nil {
		return err
	}
	e.Payload = payload
	return nil
}

// DecodeEventPayload decodes raw JSON into the variant selected by eventType
func DecodeEventPayload(eventType IndexEventType, raw []byte) (EventPayload, error) {
	switch eventType {
	case EventTypeAdminTrigger:
		return decodePayload[AdminTrigger](raw)
	case EventTypeIncomingPing:
		return decodePayload[IncomingPing](raw)
	case EventTypeWebhookPing:
		return decodePayload[WebhookPing](raw)
	case EventTypeWebhookTrigger:
		return decodePayload[WebhookTrigger](raw)
	case EventTypeMetadataRetrieval:
		return decodePayload[MetadataRetrieval](raw)
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}

func decodePayload[T EventPayload](raw []byte) (EventPayload, error) {
	var payload T
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", payload.EventType(), err)
	}
	return payload, nil
}
