package books

import (
	"github.com/labstack/echo/v4"
	"github.com/pulpfiction/pulpfiction/pkg/images"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers book routes on a pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, store *images.Store) {
	h := &handler{
		bookService: NewService(db, store),
		images:      store,
	}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.GET("/:id/image", h.image)
	g.POST("", h.create)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.deleteBook)
}
