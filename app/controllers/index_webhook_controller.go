package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fairdatapoint/fdp-index/app/models"
	"github.com/fairdatapoint/fdp-index/internal/pkg/catalog"
)

// HandleListWebhooks returns every webhook
func (ic *IndexController) HandleListWebhooks(c *fiber.Ctx) error {
	webhooks, err := ic.service.ListWebhooks(c.UserContext())
	if err != nil {
		return handleError(c, err)
	}
	if webhooks == nil {
		webhooks = []models.IndexWebhook{}
	}
	return c.JSON(webhooks)
}

// HandleCreateWebhook registers a webhook
func (ic *IndexController) HandleCreateWebhook(c *fiber.Ctx) error {
	var in catalog.WebhookInput
	if err := c.BodyParser(&in); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	webhook, err := ic.service.CreateWebhook(c.UserContext(), in)
	if err != nil {
		return handleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(webhook)
}

// HandleGetWebhook returns one webhook
func (ic *IndexController) HandleGetWebhook(c *fiber.Ctx) error {
	webhook, err := ic.service.GetWebhook(c.UserContext(), c.Params("uuid"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(webhook)
}

// HandleUpdateWebhook replaces a webhook
func (ic *IndexController) HandleUpdateWebhook(c *fiber.Ctx) error {
	var in catalog.WebhookInput
	if err := c.BodyParser(&in); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	webhook, err := ic.service.UpdateWebhook(c.UserContext(), c.Params("uuid"), in)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(webhook)
}

// HandleDeleteWebhook removes a webhook
func (ic *IndexController) HandleDeleteWebhook(c *fiber.Ctx) error {
	if err := ic.service.DeleteWebhook(c.UserContext(), c.Params("uuid")); err != nil {
		return handleError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
