package authors

import (
	"github.com/labstack/echo/v4"
	"github.com/pulpfiction/pulpfiction/pkg/images"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers author routes on a pre-configured group.
// The group must already authenticate the request and install the user on
// its context.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, store *images.Store) {
	h := &handler{
		authorService: NewService(db, store),
		images:        store,
	}

	g.GET("", h.list)
	g.GET("/all", h.all)
	g.GET("/:id", h.retrieve)
	g.GET("/:id/image", h.image)
	g.POST("", h.create)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.deleteAuthor)
}
