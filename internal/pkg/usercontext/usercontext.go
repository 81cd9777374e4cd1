package usercontext

import "github.com/gofiber/fiber/v2"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// UserContext represents the authenticated API token of a request
type UserContext struct {
	TokenName  string `json:"token_name"`
	Role       string `json:"role"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsAdmin    bool   `json:"is_admin"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{IsLoggedIn: false, IsAdmin: false}
}

// SetUserContext stores the context and the flat keys derived from it
func SetUserContext(c *fiber.Ctx, userCtx UserContext) {
	c.Locals(KeyUserContext, userCtx)
	c.Locals(KeyFromProtected, userCtx.IsLoggedIn)
	c.Locals(KeyTokenName, userCtx.TokenName)
	c.Locals(KeyIsAdmin, userCtx.IsAdmin)
}

// IsLoggedIn checks if the request carried a valid token
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsAdmin checks if the current token has the admin role
func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}

// GetTokenName returns the name of the current token, or empty string if anonymous
func GetTokenName(c *fiber.Ctx) string {
	return GetUserContext(c).TokenName
}
