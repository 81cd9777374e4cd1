package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/fairdatapoint/fdp-index/internal/pkg/usercontext"
)

// APIToken is one configured credential. Only the bcrypt hash of the
// secret is kept.
type APIToken struct {
	Name string
	Role string
	Hash []byte
}

// ParseAPITokens reads "name:role:bcrypt-hash" entries separated by ';'
func ParseAPITokens(raw string) ([]APIToken, error) {
	var tokens []APIToken
	for _, item := range strings.Split(raw, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("invalid API token entry %q, expected name:role:hash", item)
		}
		role := strings.ToLower(parts[1])
		if role != usercontext.RoleAdmin && role != usercontext.RoleUser {
			return nil, fmt.Errorf("API token %s has unknown role %q", parts[0], parts[1])
		}
		if _, err := bcrypt.Cost([]byte(parts[2])); err != nil {
			return nil, fmt.Errorf("API token %s: %w", parts[0], err)
		}
		tokens = append(tokens, APIToken{Name: parts[0], Role: role, Hash: []byte(parts[2])})
	}
	return tokens, nil
}

// APIKeyAuthMiddleware authenticates requests carrying an API token header.
// Requests without a token continue anonymously; an unknown token is 401.
func APIKeyAuthMiddleware(tokens []APIToken) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			usercontext.SetUserContext(c, usercontext.UserContext{})
			return c.Next()
		}

		for _, token := range tokens {
			if bcrypt.CompareHashAndPassword(token.Hash, []byte(apiKey)) != nil {
				continue
			}
			usercontext.SetUserContext(c, usercontext.UserContext{
				TokenName:  token.Name,
				Role:       token.Role,
				IsLoggedIn: true,
				IsAdmin:    token.Role == usercontext.RoleAdmin,
			})
			return c.Next()
		}

		log.Warnf("[Auth] Rejected invalid API token from %s", c.IP())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
