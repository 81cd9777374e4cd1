package controllers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/fairdatapoint/fdp-index/internal/pkg/catalog"
)

var validate = validator.New()

// ============================================================================
// INDEX CONTROLLER - trigger pipeline and entry catalog
// ============================================================================

// IndexController handles the /index HTTP API
type IndexController struct {
	service *catalog.Service
}

// NewIndexController creates a new index controller
func NewIndexController(service *catalog.Service) *IndexController {
	return &IndexController{service: service}
}

// PingRequest is the body of the ping and trigger endpoints
type PingRequest struct {
	ClientURL string `json:"clientUrl" validate:"required,max=512"`
}

func parsePing(c *fiber.Ctx) (*PingRequest, error) {
	var req PingRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return nil, jsonError(c, fiber.StatusBadRequest, "bad_request", "clientUrl is required")
	}
	return &req, nil
}

// HandlePing accepts an announcement from a remote FDP
func (ic *IndexController) HandlePing(c *fiber.Ctx) error {
	req, err := parsePing(c)
	if req == nil {
		return err
	}
	remoteAddr := GetClientIP(c)
	log.Infof("[API] Received ping from %s for %s", remoteAddr, req.ClientURL)

	if _, err := ic.service.AcceptPing(c.UserContext(), remoteAddr, req.ClientURL); err != nil {
		return handleError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleAdminTrigger schedules a harvest of one URL
func (ic *IndexController) HandleAdminTrigger(c *fiber.Ctx) error {
	req, err := parsePing(c)
	if req == nil {
		return err
	}
	a := actor(c)
	log.Infof("[API] Received trigger request from %s (%s) for %s", a.RemoteAddr, a.TokenName, req.ClientURL)

	if _, err := ic.service.AdminTrigger(c.UserContext(), a, req.ClientURL); err != nil {
		return handleError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleAdminTriggerAll schedules a harvest of every accepted entry
func (ic *IndexController) HandleAdminTriggerAll(c *fiber.Ctx) error {
	a := actor(c)
	log.Infof("[API] Received trigger-all request from %s (%s)", a.RemoteAddr, a.TokenName)

	if _, _, err := ic.service.AdminTriggerAll(c.UserContext(), a); err != nil {
		return handleError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandlePingWebhook sends a verification delivery to ?webhook=<uuid>
func (ic *IndexController) HandlePingWebhook(c *fiber.Ctx) error {
	webhookUUID := c.Query("webhook")
	if webhookUUID == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "webhook query parameter is required")
	}
	a := actor(c)
	log.Infof("[API] Received webhook %s ping from %s", webhookUUID, a.RemoteAddr)

	if _, err := ic.service.PingWebhook(c.UserContext(), a, webhookUUID); err != nil {
		return handleError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
