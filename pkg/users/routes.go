package users

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers account management routes. The group must
// already require an administrator.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB) {
	h := &handler{
		userService: NewService(db),
	}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.PATCH("/:id", h.update)
	g.POST("/:id/reset-password", h.resetPassword)
}
