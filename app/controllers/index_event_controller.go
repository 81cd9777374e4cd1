package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fairdatapoint/fdp-index/app/models"
)

var eventTypes = map[string]models.IndexEventType{
	"admintrigger":      models.EventTypeAdminTrigger,
	"incomingping":      models.EventTypeIncomingPing,
	"webhookping":       models.EventTypeWebhookPing,
	"webhooktrigger":    models.EventTypeWebhookTrigger,
	"metadataretrieval": models.EventTypeMetadataRetrieval,
}

// HandleListEvents returns a page of journal events, optionally of one ?type=
func (ic *IndexController) HandleListEvents(c *fiber.Ctx) error {
	var eventType models.IndexEventType
	if raw := c.Query("type"); raw != "" {
		t, ok := eventTypes[strings.ToLower(strings.TrimSpace(raw))]
		if !ok {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "Unknown event type "+raw)
		}
		eventType = t
	}
	page, size := pageParams(c)

	events, total, err := ic.service.Journal().List(c.UserContext(), eventType, page*size, size)
	if err != nil {
		return handleError(c, err)
	}
	if events == nil {
		events = []models.IndexEvent{}
	}
	return c.JSON(newPage(events, page, size, total))
}

// HandleGetEvent returns one event and, when present, the event it relates to
func (ic *IndexController) HandleGetEvent(c *fiber.Ctx) error {
	event, err := ic.service.Journal().Get(c.UserContext(), c.Params("uuid"))
	if err != nil {
		return handleError(c, err)
	}
	related, err := ic.service.Journal().Related(c.UserContext(), event)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{"event": event, "related": related})
}
