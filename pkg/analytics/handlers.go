package analytics

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	analyticsService *Service
}

func (h *handler) summary(c echo.Context) error {
	ctx := c.Request().Context()

	summary, err := h.analyticsService.Compute(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, summary))
}
