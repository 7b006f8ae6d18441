package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/pulpfiction/pulpfiction/pkg/errcodes"
	"github.com/pulpfiction/pulpfiction/pkg/models"
	"github.com/pulpfiction/pulpfiction/pkg/usercontext"
	"github.com/robinjoseph08/golib/logger"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "pulpfiction_session"
	// CookieMaxAge is how long the cookie is valid.
	CookieMaxAge = TokenExpiry
)

type handler struct {
	authService *Service
}

func buildMeResponse(user *models.User) MeResponse {
	return MeResponse{
		ID:       user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
	}
}

func isSecure(c echo.Context) bool {
	return c.Request().TLS != nil || c.Request().Header.Get("X-Forwarded-Proto") == "https"
}

func (h *handler) setSessionCookie(c echo.Context, token string, maxAge time.Duration) {
	age := int(maxAge.Seconds())
	if maxAge < 0 {
		age = -1
	}
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   age,
		HttpOnly: true,
		Secure:   isSecure(c),
		SameSite: http.SameSiteLaxMode,
	})
}

// startSession issues a token for user, sets it as the session cookie and
// writes it in the response body.
func (h *handler) startSession(c echo.Context, status int, user *models.User) error {
	token, err := h.authService.GenerateToken(user)
	if err != nil {
		return errors.WithStack(err)
	}
	h.setSessionCookie(c, token, CookieMaxAge)

	return c.JSON(status, LoginResponse{
		MeResponse: buildMeResponse(user),
		Token:      token,
	})
}

func (h *handler) login(c echo.Context) error {
	ctx := c.Request().Context()

	params := LoginPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	user, err := h.authService.Authenticate(ctx, params.Username, params.Password)
	if err != nil {
		return err
	}

	return h.startSession(c, http.StatusOK, user)
}

func (h *handler) logout(c echo.Context) error {
	// Clear cookie by setting MaxAge to -1
	h.setSessionCookie(c, "", -1)

	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// register creates a regular user and signs them in.
func (h *handler) register(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)

	params := RegisterPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	user, err := h.authService.Register(ctx, params.Username, params.Password)
	if err != nil {
		return err
	}
	log.Info("user registered", logger.Data{"user_id": user.ID})

	return h.startSession(c, http.StatusCreated, user)
}

// me returns the current authenticated user's info.
func (h *handler) me(c echo.Context) error {
	user, ok := c.Get(usercontext.EchoKey).(*models.User)
	if !ok {
		return errcodes.Unauthorized("Authentication required")
	}
	return c.JSON(http.StatusOK, buildMeResponse(user))
}

// status returns whether the app needs initial setup.
func (h *handler) status(c echo.Context) error {
	ctx := c.Request().Context()

	count, err := h.authService.CountUsers(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return c.JSON(http.StatusOK, StatusResponse{
		NeedsSetup: count == 0,
	})
}

// setup creates the first admin user.
func (h *handler) setup(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)

	params := RegisterPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	user, err := h.authService.CreateFirstAdmin(ctx, params.Username, params.Password)
	if err != nil {
		return err
	}
	log.Info("initial admin created", logger.Data{"user_id": user.ID})

	return h.startSession(c, http.StatusCreated, user)
}
