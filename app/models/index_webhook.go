package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookEventKind is the wire-visible name of an event a webhook can subscribe to
type WebhookEventKind string

const (
	WebhookEventAdminTrigger     WebhookEventKind = "AdminTrigger"
	WebhookEventNewEntry         WebhookEventKind = "NewEntry"
	WebhookEventIncomingPing     WebhookEventKind = "IncomingPing"
	WebhookEventEntryValid       WebhookEventKind = "EntryValid"
	WebhookEventEntryInvalid     WebhookEventKind = "EntryInvalid"
	WebhookEventEntryUnreachable WebhookEventKind = "EntryUnreachable"
	WebhookEventWebhookPing      WebhookEventKind = "WebhookPing"
)

var AllWebhookEventKinds = []WebhookEventKind{
	WebhookEventAdminTrigger,
	WebhookEventNewEntry,
	WebhookEventIncomingPing,
	WebhookEventEntryValid,
	WebhookEventEntryInvalid,
	WebhookEventEntryUnreachable,
	WebhookEventWebhookPing,
}

// ParseWebhookEventKind matches a kind name case-insensitively
func ParseWebhookEventKind(raw string) (WebhookEventKind, bool) {
	for _, kind := range AllWebhookEventKinds {
		if strings.EqualFold(string(kind), strings.TrimSpace(raw)) {
			return kind, true
		}
	}
	return "", false
}

// IndexWebhook is a subscriber endpoint notified about index events
type IndexWebhook struct {
	ID        uint                                `gorm:"primaryKey" json:"-"`
	UUID      string                              `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	TargetURL string                              `gorm:"column:target_url;type:varchar(512);not null" json:"targetUrl" validate:"required,url,max=512"`
	Secret    string                              `gorm:"type:varchar(255)" json:"secret" validate:"max=255"`
	AllEvents bool                                `gorm:"column:all_events;not null" json:"allEvents"`
	Events    datatypes.JSONSlice[WebhookEventKind] `gorm:"column:events" json:"events"`
	Enabled   bool                                `gorm:"not null" json:"enabled"`
	CreatedAt time.Time                           `json:"createdAt"`
	UpdatedAt time.Time                           `json:"updatedAt"`
}

// TableName specifies the table name for the IndexWebhook model
func (IndexWebhook) TableName() string {
	return "index_webhooks"
}

// BeforeCreate assigns the webhook uuid
func (w *IndexWebhook) BeforeCreate(tx *gorm.DB) error {
	if w.UUID == "" {
		w.UUID = uuid.New().String()
	}
	if w.Events == nil {
		w.Events = datatypes.JSONSlice[WebhookEventKind]{}
	}
	return nil
}

// Matches reports whether the webhook subscribes to kind
func (w *IndexWebhook) Matches(kind WebhookEventKind) bool {
	if w.AllEvents {
		return true
	}
	for _, subscribed := range w.Events {
		if subscribed == kind {
			return true
		}
	}
	return false
}

// IndexWebhookEvent records that a webhook matched an event. The unique
// index keeps an event from being delivered twice to the same webhook.
type IndexWebhookEvent struct {
	ID          uint             `gorm:"primaryKey" json:"-"`
	WebhookUUID string           `gorm:"type:varchar(36);not null;uniqueIndex:idx_webhook_event" json:"webhookUuid"`
	EventUUID   string           `gorm:"type:varchar(36);not null;uniqueIndex:idx_webhook_event" json:"eventUuid"`
	Kind        WebhookEventKind `gorm:"type:varchar(40);not null" json:"kind"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// TableName specifies the table name for the IndexWebhookEvent model
func (IndexWebhookEvent) TableName() string {
	return "index_webhook_events"
}
