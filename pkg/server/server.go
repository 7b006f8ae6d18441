package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/pulpfiction/pulpfiction/pkg/admin"
	"github.com/pulpfiction/pulpfiction/pkg/analytics"
	"github.com/pulpfiction/pulpfiction/pkg/auth"
	"github.com/pulpfiction/pulpfiction/pkg/authors"
	"github.com/pulpfiction/pulpfiction/pkg/binder"
	"github.com/pulpfiction/pulpfiction/pkg/books"
	"github.com/pulpfiction/pulpfiction/pkg/config"
	"github.com/pulpfiction/pulpfiction/pkg/errcodes"
	"github.com/pulpfiction/pulpfiction/pkg/images"
	"github.com/pulpfiction/pulpfiction/pkg/testutils"
	"github.com/pulpfiction/pulpfiction/pkg/usercontext"
	"github.com/pulpfiction/pulpfiction/pkg/users"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/uptrace/bun"
)

func New(cfg *config.Config, db *bun.DB, store *images.Store) (*http.Server, error) {
	e, err := newEcho(cfg, db, store)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func newEcho(cfg *config.Config, db *bun.DB, store *images.Store) (*echo.Echo, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit(bodyLimit(cfg.ImageMaxBytes)))

	health.RegisterRoutes(e)

	authMiddleware := auth.RegisterRoutes(e, db, cfg.JWTSecret)
	registerScopedRoutes(e, db, store, authMiddleware)

	adminGroup := e.Group("/admin")
	adminGroup.Use(authMiddleware.Authenticate)
	adminGroup.Use(authMiddleware.RequireAdmin)
	admin.RegisterRoutesWithGroup(adminGroup, db)
	users.RegisterRoutesWithGroup(adminGroup.Group("/users"), db)

	if cfg.Environment == "test" {
		testutils.RegisterRoutes(e, db)
	}

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	return e, nil
}

// registerScopedRoutes registers the routes whose queries are limited to the
// records of the authenticated user.
func registerScopedRoutes(e *echo.Echo, db *bun.DB, store *images.Store, authMiddleware *auth.Middleware) {
	authorsGroup := e.Group("/authors")
	authorsGroup.Use(authMiddleware.Authenticate, usercontext.Middleware())
	authors.RegisterRoutesWithGroup(authorsGroup, db, store)

	booksGroup := e.Group("/books")
	booksGroup.Use(authMiddleware.Authenticate, usercontext.Middleware())
	books.RegisterRoutesWithGroup(booksGroup, db, store)

	analyticsGroup := e.Group("/analytics")
	analyticsGroup.Use(authMiddleware.Authenticate, usercontext.Middleware())
	analytics.RegisterRoutesWithGroup(analyticsGroup, db)
}

// bodyLimit leaves room for the multipart envelope around an image of the
// maximum size.
func bodyLimit(maxImageBytes int64) string {
	return fmt.Sprintf("%dK", maxImageBytes/1024+512)
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
