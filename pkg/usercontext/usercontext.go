// Package usercontext carries the acting user of a request through its
// context.Context so that lower layers (model hooks, scoped queries) can see
// who they are acting for without it being passed explicitly.
package usercontext

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/pulpfiction/pulpfiction/pkg/models"
)

// EchoKey is the echo.Context key under which authentication stores the user.
const EchoKey = "user"

// WithUser returns a copy of ctx carrying user. A nil user leaves ctx as is.
func WithUser(ctx context.Context, user *models.User) context.Context {
	if user == nil {
		return ctx
	}
	return models.WithActor(ctx, user)
}

// User returns the acting user, or nil when there is none.
func User(ctx context.Context) *models.User {
	return models.ActorFrom(ctx)
}

// UserID returns the acting user's ID and whether a user is present.
func UserID(ctx context.Context) (int, bool) {
	user := User(ctx)
	if user == nil {
		return 0, false
	}
	return user.ID, true
}

// Clear returns a copy of ctx in which no user is visible, even if a parent
// context carries one.
func Clear(ctx context.Context) context.Context {
	return models.WithActor(ctx, nil)
}

// Run calls fn with a context acting as user. The caller's ctx is left
// untouched, so the user is gone once fn returns or panics.
func Run(ctx context.Context, user *models.User, fn func(ctx context.Context) error) error {
	return fn(models.WithActor(ctx, user))
}

// Middleware moves the authenticated user from the echo context onto the
// request's context.Context for the duration of the handler. The original
// request is restored on every exit path, including errors and panics, so a
// pooled echo.Context is never left holding the previous user.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			defer c.SetRequest(req)

			ctx := Clear(req.Context())
			if user, ok := c.Get(EchoKey).(*models.User); ok {
				ctx = WithUser(ctx, user)
			}
			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
