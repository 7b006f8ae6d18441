package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

type handler struct {
	adminService *Service
}

func (h *handler) bindListOptions(c echo.Context) (ListOptions, error) {
	params := ListQuery{}
	if err := c.Bind(&params); err != nil {
		return ListOptions{}, errors.WithStack(err)
	}
	return ListOptions{
		UserID: params.UserID,
		Limit:  params.Limit,
		Offset: params.Offset,
	}, nil
}

func (h *handler) listAuthors(c echo.Context) error {
	ctx := c.Request().Context()

	opts, err := h.bindListOptions(c)
	if err != nil {
		return err
	}

	authors, total, err := h.adminService.ListAuthors(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}
	logger.FromContext(ctx).Info("admin listed authors", logger.Data{"user_id": opts.UserID, "total": total})

	return errors.WithStack(c.JSON(http.StatusOK, map[string]any{
		"authors": authors,
		"total":   total,
	}))
}

func (h *handler) listBooks(c echo.Context) error {
	ctx := c.Request().Context()

	opts, err := h.bindListOptions(c)
	if err != nil {
		return err
	}

	books, total, err := h.adminService.ListBooks(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}
	logger.FromContext(ctx).Info("admin listed books", logger.Data{"user_id": opts.UserID, "total": total})

	return errors.WithStack(c.JSON(http.StatusOK, map[string]any{
		"books": books,
		"total": total,
	}))
}
