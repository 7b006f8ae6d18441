package admin

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers the unscoped listing routes. The group
// must already require an administrator.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB) {
	h := &handler{
		adminService: NewService(db),
	}

	g.GET("/authors", h.listAuthors)
	g.GET("/books", h.listBooks)
}
