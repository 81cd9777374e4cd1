package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fairdatapoint/fdp-index/app/models"
)

// HandleGetSettings returns the active ping policy
func (ic *IndexController) HandleGetSettings(c *fiber.Ctx) error {
	return c.JSON(ic.service.Settings().Current())
}

// HandleUpdateSettings replaces the ping policy. All fields are required.
func (ic *IndexController) HandleUpdateSettings(c *fiber.Ctx) error {
	var settings models.SettingsIndexPing
	if err := c.BodyParser(&settings); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid settings: "+err.Error())
	}
	if err := settings.Validate(); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}
	updated, err := ic.service.Settings().Update(settings)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(updated)
}

// HandleResetSettings restores the default ping policy
func (ic *IndexController) HandleResetSettings(c *fiber.Ctx) error {
	settings, err := ic.service.Settings().Reset()
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(settings)
}
