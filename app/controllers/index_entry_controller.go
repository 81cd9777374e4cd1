package controllers

import (
	"bytes"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fairdatapoint/fdp-index/app/models"
	"github.com/fairdatapoint/fdp-index/app/repository"
	"github.com/fairdatapoint/fdp-index/internal/pkg/rdfio"
)

// detailEventsLimit bounds the events embedded in an entry detail
const detailEventsLimit = 10

// EntryDetail is an entry together with its latest events
type EntryDetail struct {
	*models.IndexEntry
	Events []models.IndexEvent `json:"events"`
}

// EntryUpdateRequest is the body of PUT /index/entries/:uuid
type EntryUpdateRequest struct {
	Permit string `json:"permit" validate:"required"`
}

func (ic *IndexController) entryFilter(c *fiber.Ctx) (repository.EntryFilter, error) {
	permits, err := permitFilter(c.Query("permit"))
	if err != nil {
		return repository.EntryFilter{}, err
	}
	states, err := stateFilter(c.Query("state"))
	if err != nil {
		return repository.EntryFilter{}, err
	}
	return repository.EntryFilter{States: states, Permits: permits}, nil
}

// HandleListEntries returns one page of entries
func (ic *IndexController) HandleListEntries(c *fiber.Ctx) error {
	filter, err := ic.entryFilter(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}
	page, size := pageParams(c)

	entries, total, err := ic.service.ListEntries(c.UserContext(), filter, page, size)
	if err != nil {
		return handlePublicError(c, err)
	}
	if entries == nil {
		entries = []models.IndexEntry{}
	}
	return c.JSON(newPage(entries, page, size, total))
}

// HandleAllEntries returns every entry with the requested permits
func (ic *IndexController) HandleAllEntries(c *fiber.Ctx) error {
	permits, err := permitFilter(c.Query("permit"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}
	entries, err := ic.service.ListAllEntries(c.UserContext(), repository.EntryFilter{Permits: permits})
	if err != nil {
		return handlePublicError(c, err)
	}
	if entries == nil {
		entries = []models.IndexEntry{}
	}
	return c.JSON(entries)
}

// HandleEntriesInfo returns aggregate counts
func (ic *IndexController) HandleEntriesInfo(c *fiber.Ctx) error {
	permits, err := permitFilter(c.Query("permit"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}
	info, err := ic.service.Info(c.UserContext(), permits)
	if err != nil {
		return handlePublicError(c, err)
	}
	return c.JSON(info)
}

// HandleGetEntry returns an entry with its latest events
func (ic *IndexController) HandleGetEntry(c *fiber.Ctx) error {
	entry, err := ic.service.GetEntry(c.UserContext(), c.Params("uuid"))
	if err != nil {
		return handlePublicError(c, err)
	}
	events, _, err := ic.service.Journal().ListByClientURL(c.UserContext(), entry.ClientURL, 0, detailEventsLimit)
	if err != nil {
		return handlePublicError(c, err)
	}
	if events == nil {
		events = []models.IndexEvent{}
	}
	return c.JSON(EntryDetail{IndexEntry: entry, Events: events})
}

// HandleEntryEvents returns a page of the events of an entry
func (ic *IndexController) HandleEntryEvents(c *fiber.Ctx) error {
	page, size := pageParams(c)
	events, total, err := ic.service.EntryEvents(c.UserContext(), c.Params("uuid"), page, size)
	if err != nil {
		return handlePublicError(c, err)
	}
	if events == nil {
		events = []models.IndexEvent{}
	}
	return c.JSON(newPage(events, page, size, total))
}

// HandleUpdateEntry changes the permit of an entry
func (ic *IndexController) HandleUpdateEntry(c *fiber.Ctx) error {
	var req EntryUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "permit is required")
	}
	permit, ok := models.ParsePermit(req.Permit)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Unknown permit "+req.Permit)
	}

	entry, err := ic.service.UpdatePermit(c.UserContext(), c.Params("uuid"), permit, actor(c))
	if err != nil {
		return handleError(c, err)
	}
	events, _, err := ic.service.Journal().ListByClientURL(c.UserContext(), entry.ClientURL, 0, detailEventsLimit)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(EntryDetail{IndexEntry: entry, Events: events})
}

// HandleEntryData returns the harvested graph in the negotiated RDF format
func (ic *IndexController) HandleEntryData(c *fiber.Ctx) error {
	triples, err := ic.service.EntryData(c.UserContext(), c.Params("uuid"))
	if err != nil {
		return handlePublicError(c, err)
	}

	// no Accept header negotiates the first offer, Turtle
	contentType := c.Accepts(rdfio.Offers()...)
	format, ok := rdfio.FormatForContentType(contentType)
	if !ok {
		return jsonError(c, fiber.StatusNotAcceptable, "not_acceptable",
			"Supported formats: "+strings.Join(rdfio.Offers(), ", "))
	}

	var buf bytes.Buffer
	if err := rdfio.Write(&buf, format, triples); err != nil {
		if errors.Is(err, rdfio.ErrNotRepresentable) {
			return jsonError(c, fiber.StatusNotAcceptable, "not_acceptable", err.Error())
		}
		return handleError(c, err)
	}
	c.Set(fiber.HeaderContentType, contentType)
	return c.Send(buf.Bytes())
}

// HandleDeleteEntry removes an entry and its harvested data
func (ic *IndexController) HandleDeleteEntry(c *fiber.Ctx) error {
	if err := ic.service.DeleteEntry(c.UserContext(), c.Params("uuid")); err != nil {
		return handleError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
