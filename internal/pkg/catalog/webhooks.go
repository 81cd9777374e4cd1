package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/fairdatapoint/fdp-index/app/models"
	"github.com/fairdatapoint/fdp-index/internal/pkg/admission"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
)

// WebhookInput is the writable part of a webhook
type WebhookInput struct {
	TargetURL string   `json:"targetUrl"`
	Secret    string   `json:"secret"`
	AllEvents bool     `json:"allEvents"`
	Events    []string `json:"events"`
	Enabled   *bool    `json:"enabled"`
}

// apply copies the input onto w and validates the result
func (s *Service) apply(w *models.IndexWebhook, in WebhookInput) error {
	events := make(datatypes.JSONSlice[models.WebhookEventKind], 0, len(in.Events))
	for _, raw := range in.Events {
		kind, ok := models.ParseWebhookEventKind(raw)
		if !ok {
			return fmt.Errorf("%w: unknown webhook event %q", ErrInvalidInput, raw)
		}
		events = append(events, kind)
	}

	w.TargetURL = strings.TrimSpace(in.TargetURL)
	w.Secret = in.Secret
	w.AllEvents = in.AllEvents
	w.Events = events
	if in.Enabled != nil {
		w.Enabled = *in.Enabled
	}

	if err := s.validate.Struct(w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !models.IsHTTPURL(w.TargetURL) {
		return fmt.Errorf("%w: targetUrl must be an absolute http(s) URL", ErrInvalidInput)
	}
	return nil
}

// CreateWebhook registers a subscriber. New webhooks are enabled unless the
// input says otherwise.
func (s *Service) CreateWebhook(ctx context.Context, in WebhookInput) (*models.IndexWebhook, error) {
	w := &models.IndexWebhook{Enabled: true}
	if err := s.apply(w, in); err != nil {
		return nil, err
	}
	if err := s.webhooks.Create(ctx, w); err != nil {
		return nil, err
	}
	log.Infof("[Catalog] Created webhook %s -> %s", w.UUID, w.TargetURL)
	return w, nil
}

// UpdateWebhook replaces the writable fields of a webhook
func (s *Service) UpdateWebhook(ctx context.Context, uuid string, in WebhookInput) (*models.IndexWebhook, error) {
	w, err := s.webhooks.GetByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if err := s.apply(w, in); err != nil {
		return nil, err
	}
	if err := s.webhooks.Update(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// GetWebhook returns one webhook
func (s *Service) GetWebhook(ctx context.Context, uuid string) (*models.IndexWebhook, error) {
	return s.webhooks.GetByUUID(ctx, uuid)
}

// ListWebhooks returns every webhook
func (s *Service) ListWebhooks(ctx context.Context) ([]models.IndexWebhook, error) {
	return s.webhooks.GetAll(ctx)
}

// DeleteWebhook removes a webhook and its delivery records
func (s *Service) DeleteWebhook(ctx context.Context, uuid string) error {
	if err := s.webhooks.Delete(ctx, uuid); err != nil {
		return err
	}
	log.Infof("[Catalog] Deleted webhook %s", uuid)
	return nil
}

// Settings returns the ping admission policy
func (s *Service) Settings() *admission.Policy {
	return s.gate.Policy()
}
