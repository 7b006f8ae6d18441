package auth

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutes registers all auth routes and returns the middleware guarding
// the rest of the API.
func RegisterRoutes(e *echo.Echo, db *bun.DB, jwtSecret string) *Middleware {
	authService := NewService(db, jwtSecret)
	authMiddleware := NewMiddleware(authService)

	h := &handler{
		authService: authService,
	}

	auth := e.Group("/auth")
	auth.POST("/login", h.login)
	auth.POST("/logout", h.logout)
	auth.POST("/register", h.register)
	auth.GET("/status", h.status)
	auth.POST("/setup", h.setup)
	auth.GET("/me", h.me, authMiddleware.Authenticate)

	return authMiddleware
}
