package controllers

import (
	"errors"
	"math"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/fairdatapoint/fdp-index/app/models"
	"github.com/fairdatapoint/fdp-index/app/repository"
	"github.com/fairdatapoint/fdp-index/internal/pkg/admission"
	"github.com/fairdatapoint/fdp-index/internal/pkg/catalog"
	"github.com/fairdatapoint/fdp-index/internal/pkg/usercontext"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetClientIP returns the caller address. Fiber resolves X-Forwarded-For
// itself when a trusted proxy header is configured.
func GetClientIP(c *fiber.Ctx) string {
	ip := c.IP()
	// IPv4 in IPv6 mapping (::ffff:192.168.1.1)
	if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
		ip = strings.TrimPrefix(ip, "::ffff:")
	}
	return ip
}

// actor describes the authenticated caller for the journal
func actor(c *fiber.Ctx) catalog.Actor {
	return catalog.Actor{
		RemoteAddr: GetClientIP(c),
		TokenName:  usercontext.GetTokenName(c),
	}
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// handleError maps service errors to the JSON error shape
func handleError(c *fiber.Ctx, err error) error {
	if denied, ok := admission.AsDenied(err); ok {
		if denied.Reason == admission.ReasonRateLimited {
			return jsonError(c, fiber.StatusTooManyRequests, "rate_limited", denied.Error())
		}
		return jsonError(c, fiber.StatusBadRequest, "deny_listed", denied.Error())
	}
	switch {
	case errors.Is(err, catalog.ErrInvalidInput):
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", "Resource not found")
	default:
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Request failed")
	}
}

// handlePublicError is handleError for anonymous listing endpoints, which
// never expose storage details
func handlePublicError(c *fiber.Ctx, err error) error {
	if errors.Is(err, repository.ErrStoreUnavailable) {
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
		return jsonError(c, fiber.StatusServiceUnavailable, "service_unavailable", "Index temporarily unavailable")
	}
	return handleError(c, err)
}

// PageInfo is the paging block of a page response
type PageInfo struct {
	Size          int   `json:"size"`
	Number        int   `json:"number"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// PageResponse wraps one page of results
type PageResponse struct {
	Content interface{} `json:"content"`
	Page    PageInfo    `json:"page"`
}

// pageParams reads the zero-based page and the page size
func pageParams(c *fiber.Ctx) (int, int) {
	page := c.QueryInt("page", 0)
	if page < 0 {
		page = 0
	}
	size := c.QueryInt("size", defaultPageSize)
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

func newPage(content interface{}, page, size int, total int64) PageResponse {
	return PageResponse{
		Content: content,
		Page: PageInfo{
			Size:          size,
			Number:        page,
			TotalElements: total,
			TotalPages:    int(math.Ceil(float64(total) / float64(size))),
		},
	}
}

// permitFilter parses the permit query value: a comma separated list of
// permits or "all". Empty means accepted.
func permitFilter(raw string) ([]models.IndexEntryPermit, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []models.IndexEntryPermit{models.PermitAccepted}, nil
	}
	if strings.EqualFold(raw, "all") {
		return nil, nil
	}
	var permits []models.IndexEntryPermit
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		permit, ok := models.ParsePermit(part)
		if !ok {
			return nil, errors.New("unknown permit " + part)
		}
		permits = append(permits, permit)
	}
	return permits, nil
}

// stateFilter parses an optional comma separated list of states
func stateFilter(raw string) ([]models.IndexEntryState, error) {
	var states []models.IndexEntryState
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		state, ok := models.ParseState(part)
		if !ok {
			return nil, errors.New("unknown state " + part)
		}
		states = append(states, state)
	}
	return states, nil
}
