package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyUserContext   = "USER_CONTEXT"
	KeyTokenName     = "token_name"
	KeyIsAdmin       = "isAdmin"
	KeyFromProtected = "from_protected"
)
