package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pulpfiction/pulpfiction/pkg/errcodes"
	"github.com/pulpfiction/pulpfiction/pkg/models"
	"github.com/pulpfiction/pulpfiction/pkg/usercontext"
)

// Middleware provides authentication middleware.
type Middleware struct {
	authService *Service
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(authService *Service) *Middleware {
	return &Middleware{
		authService: authService,
	}
}

// tokenFromRequest returns the session token from the cookie, falling back to
// an "Authorization: Bearer" header.
func tokenFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// Authenticate validates the JWT and verifies the user is still active. The
// user is stored on the echo context for usercontext.Middleware to pick up.
// If not authenticated, it returns 401.
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		token := tokenFromRequest(c)
		if token == "" {
			return errcodes.Unauthorized("Authentication required")
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			return errcodes.Unauthorized("Invalid or expired token")
		}

		// Verify user still exists and is active
		user, err := m.authService.GetUserByID(ctx, claims.UserID)
		if err != nil {
			return errcodes.Unauthorized("User not found or inactive")
		}

		c.Set(usercontext.EchoKey, user)

		return next(c)
	}
}

// RequireAdmin rejects users without the admin flag. Must be used after
// Authenticate.
func (m *Middleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := c.Get(usercontext.EchoKey).(*models.User)
		if !ok {
			return errcodes.Unauthorized("Authentication required")
		}
		if !user.IsAdmin {
			return errcodes.Forbidden("Accessing administrative routes")
		}
		return next(c)
	}
}
