package books

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
	bookService *Service
	images      *images.Store
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListBooksQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	books, total, err := h.bookService.ListBooksWithTotal(ctx, ListBooksOptions{
		Limit:    &params.Limit,
		Offset:   &params.Offset,
		AuthorID: params.Author,
		Search:   params.Search,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	response := map[string]any{
		"books": books,
		"total": total,
	}

	return errors.WithStack(c.JSON(http.StatusOK, response))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	book, err := h.bookService.RetrieveBook(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, book))
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateBookPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	book := &models.Book{
		Name:     params.Name,
		Content:  params.Content,
		AuthorID: params.AuthorID,
	}

	if fh, ok := params.FormFiles["image"]; ok {
		filename, err := h.images.SaveUpload(images.KindBooks, fh)
		if err != nil {
			return errors.WithStack(err)
		}
		book.ImageFilename = &filename
	}

	if err := h.bookService.CreateBook(ctx, book); err != nil {
		if book.ImageFilename != nil {
			h.discardUpload(c, *book.ImageFilename)
		}
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, book))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	params := UpdateBookPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	book, err := h.bookService.RetrieveBook(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	opts := UpdateBookOptions{}
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return errcodes.FieldValidationError("name", `"name" is required`)
		}
		if name != book.Name {
			book.Name = name
			opts.Columns = append(opts.Columns, "name")
		}
	}
	if params.Content != nil && *params.Content != book.Content {
		book.Content = *params.Content
		opts.Columns = append(opts.Columns, "content")
	}
	if params.AuthorID != nil && *params.AuthorID != book.AuthorID {
		book.AuthorID = *params.AuthorID
		opts.Columns = append(opts.Columns, "author_id")
	}

	if err := h.bookService.UpdateBook(ctx, book, opts); err != nil {
		return errors.WithStack(err)
	}

	if fh, ok := params.FormFiles["image"]; ok {
		filename, err := h.images.SaveUpload(images.KindBooks, fh)
		if err != nil {
			return errors.WithStack(err)
		}
		if err := h.bookService.ReplaceImage(ctx, book, filename); err != nil {
			return errors.WithStack(err)
		}
	}

	// Reload
	book, err = h.bookService.RetrieveBook(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, book))
}

func (h *handler) deleteBook(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	if err := h.bookService.DeleteBook(ctx, id); err != nil {
		return errors.WithStack(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *handler) image(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	book, err := h.bookService.RetrieveBook(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}
	if book.ImageFilename == nil {
		return errcodes.NotFound("Image")
	}

	f, contentType, err := h.images.Open(*book.ImageFilename)
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
