package usercontext

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/pulpfiction/pulpfiction/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Nil(t, User(ctx))
	_, ok := UserID(ctx)
	assert.False(t, ok)

	user := &models.User{ID: 5}
	ctx = WithUser(ctx, user)
	assert.Same(t, user, User(ctx))
	id, ok := UserID(ctx)
	require.True(t, ok)
	assert.Equal(t, 5, id)

	assert.Same(t, user, User(WithUser(ctx, nil)))
}

func TestClear(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: 5}
	parent := WithUser(context.Background(), user)
	cleared := Clear(parent)

	assert.Nil(t, User(cleared))
	assert.Same(t, user, User(parent))
}

func TestRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	user := &models.User{ID: 9}

	err := Run(ctx, user, func(ctx context.Context) error {
		assert.Same(t, user, User(ctx))
		return nil
	})
	require.NoError(t, err)
	assert.Nil(t, User(ctx))

	err = Run(ctx, user, func(ctx context.Context) error {
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	assert.Nil(t, User(ctx))
}

func TestIsolationAcrossGoroutines(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ctx := WithUser(context.Background(), &models.User{ID: id})
			for j := 0; j < 100; j++ {
				got, ok := UserID(ctx)
				if !assert.True(t, ok) || !assert.Equal(t, id, got) {
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func newContext(e *echo.Echo) (echo.Context, *http.Request) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), req
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	e := echo.New()
	user := &models.User{ID: 3}

	t.Run("installs user for the handler", func(t *testing.T) {
		c, _ := newContext(e)
		c.Set(EchoKey, user)

		var seen *models.User
		err := Middleware()(func(c echo.Context) error {
			seen = User(c.Request().Context())
			return nil
		})(c)
		require.NoError(t, err)
		assert.Same(t, user, seen)
		assert.Nil(t, User(c.Request().Context()))
	})

	t.Run("no user means an empty slot", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithUser(req.Context(), user))
		c := e.NewContext(req, httptest.NewRecorder())

		var seen *models.User
		err := Middleware()(func(c echo.Context) error {
			seen = User(c.Request().Context())
			return nil
		})(c)
		require.NoError(t, err)
		assert.Nil(t, seen)
	})

	t.Run("clears after handler error", func(t *testing.T) {
		c, orig := newContext(e)
		c.Set(EchoKey, user)

		err := Middleware()(func(c echo.Context) error {
			return errors.New("handler failed")
		})(c)
		require.Error(t, err)
		assert.Same(t, orig, c.Request())
		assert.Nil(t, User(c.Request().Context()))
	})

	t.Run("clears after handler panic", func(t *testing.T) {
		c, orig := newContext(e)
		c.Set(EchoKey, user)

		assert.Panics(t, func() {
			_ = Middleware()(func(c echo.Context) error {
				panic("handler panicked")
			})(c)
		})
		assert.Same(t, orig, c.Request())
		assert.Nil(t, User(c.Request().Context()))
	})
}
