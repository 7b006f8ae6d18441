package authors

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/pulpfiction/pulpfiction/pkg/errcodes"
	"github.com/pulpfiction/pulpfiction/pkg/images"
	"github.com/pulpfiction/pulpfiction/pkg/models"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
)

type handler struct {
	authorService *Service
	images        *images.Store
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListAuthorsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	authors, total, err := h.authorService.ListAuthorsWithTotal(ctx, ListAuthorsOptions{
		Limit:  &params.Limit,
		Offset: &params.Offset,
		Search: params.Search,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	response := map[string]any{
		"authors": authors,
		"total":   total,
	}

	return errors.WithStack(c.JSON(http.StatusOK, response))
}

func (h *handler) all(c echo.Context) error {
	ctx := c.Request().Context()

	authors, err := h.authorService.ListAllAuthors(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, authors))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Author")
	}

	author, err := h.authorService.RetrieveAuthor(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, author))
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateAuthorPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	author := &models.Author{
		Name:    params.Name,
		Details: params.Details,
	}

	if fh, ok := params.FormFiles["image"]; ok {
		filename, err := h.images.SaveUpload(images.KindAuthors, fh)
		if err != nil {
			return errors.WithStack(err)
		}
		author.ImageFilename = &filename
	}

	if err := h.authorService.CreateAuthor(ctx, author); err != nil {
		if author.ImageFilename != nil {
			h.discardUpload(c, *author.ImageFilename)
		}
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, author))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Author")
	}

	params := UpdateAuthorPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	author, err := h.authorService.RetrieveAuthor(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	opts := UpdateAuthorOptions{}
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return errcodes.FieldValidationError("name", `"name" is required`)
		}
		if name != author.Name {
			author.Name = name
			opts.Columns = append(opts.Columns, "name")
		}
	}
	if params.Details != nil {
		details := strings.TrimSpace(*params.Details)
		if details != author.Details {
			author.Details = details
			opts.Columns = append(opts.Columns, "details")
		}
	}

	if err := h.authorService.UpdateAuthor(ctx, author, opts); err != nil {
		return errors.WithStack(err)
	}

	if fh, ok := params.FormFiles["image"]; ok {
		filename, err := h.images.SaveUpload(images.KindAuthors, fh)
		if err != nil {
			return errors.WithStack(err)
		}
		if err := h.authorService.ReplaceImage(ctx, author, filename); err != nil {
			return errors.WithStack(err)
		}
	}

	// Reload
	author, err = h.authorService.RetrieveAuthor(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, author))
}

func (h *handler) deleteAuthor(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Author")
	}

	if err := h.authorService.DeleteAuthor(ctx, id); err != nil {
		return errors.WithStack(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *handler) image(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Author")
	}

	author, err := h.authorService.RetrieveAuthor(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}
	if author.ImageFilename == nil {
		return errcodes.NotFound("Image")
	}

	f, contentType, err := h.images.Open(*author.ImageFilename)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	return errors.WithStack(c.Stream(http.StatusOK, contentType, f))
}

// discardUpload removes an image stored for a request that then failed.
func (h *handler) discardUpload(c echo.Context, filename string) {
	if err := h.images.Delete(filename); err != nil {
		logger.FromEchoContext(c).Err(err).Warn("failed to remove uploaded image")
	}
}
