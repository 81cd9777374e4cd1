package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Reason explains why a trigger was refused
type Reason string

const (
	ReasonDenyListed  Reason = "DENY_LISTED"
	ReasonRateLimited Reason = "RATE_LIMITED"
)

// DeniedError is returned by Admit when a trigger is refused
type DeniedError struct {
	Reason Reason
	Detail string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// AsDenied unwraps a DeniedError
func AsDenied(err error) (*DeniedError, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}

// Request describes a trigger to admit. ClientURL is empty for trigger-all
// and webhook pings; WebhookUUID is set for webhook pings only.
type Request struct {
	RemoteAddr  string
	ClientURL   string
	WebhookUUID string
}

// Gate decides whether a trigger may proceed, from the deny list and the
// per-source rate limit of the active Policy
type Gate struct {
	policy  *Policy
	counter HitCounter
	now     func() time.Time
}

// NewGate creates a gate
func NewGate(policy *Policy, counter HitCounter) *Gate {
	return &Gate{policy: policy, counter: counter, now: time.Now}
}

// WithClock replaces the time source
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Policy returns the policy the gate evaluates
func (g *Gate) Policy() *Policy {
	return g.policy
}

// Admit returns nil when the trigger may proceed and *DeniedError otherwise.
// A denied trigger is not counted. Counter backend failures admit the
// trigger.
func (g *Gate) Admit(ctx context.Context, req Request) error {
	settings, _ := g.policy.snapshot()

	if req.ClientURL != "" {
		if pattern, denied := g.policy.DenyMatch(req.ClientURL); denied {
			return &DeniedError{Reason: ReasonDenyListed, Detail: fmt.Sprintf("%s matches deny pattern %s", req.ClientURL, pattern)}
		}
	}

	key := "addr:" + req.RemoteAddr
	if req.WebhookUUID != "" {
		key = "webhook:" + req.WebhookUUID
	}

	allowed, err := g.counter.Hit(ctx, key, settings.RateLimitDuration.Std(), settings.RateLimitHits, g.now())
	if err != nil {
		log.Errorf("[Admission] Rate limit counter unavailable, admitting %s: %v", key, err)
		return nil
	}
	if !allowed {
		return &DeniedError{
			Reason: ReasonRateLimited,
			Detail: fmt.Sprintf("more than %d triggers within %s", settings.RateLimitHits, settings.RateLimitDuration.Std()),
		}
	}
	return nil
}
