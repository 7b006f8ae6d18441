package analytics

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB) {
	h := &handler{
		analyticsService: NewService(db),
	}

	g.GET("", h.summary)
}
