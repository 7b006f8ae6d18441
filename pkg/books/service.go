package books

import (
	"context"
	"strings"

	"github.com/pulpfiction/pulpfiction/pkg/authors"
	"github.com/pulpfiction/pulpfiction/pkg/errcodes"
	"github.com/pulpfiction/pulpfiction/pkg/htmlutil"
	"github.com/pulpfiction/pulpfiction/pkg/images"
	"github.com/pulpfiction/pulpfiction/pkg/models"
	"github.com/pulpfiction/pulpfiction/pkg/scope"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

type ListBooksOptions struct {
	Limit    *int
	Offset   *int
	AuthorID *int
	Search   *string
}

type UpdateBookOptions struct {
	Columns []string
}

type Service struct {
	books   *scope.Repository[models.Book]
	authors *scope.Repository[models.Author]
	images  *images.Store
}

func NewService(db *bun.DB, store *images.Store) *Service {
	return &Service{
		books:   NewRepository(db),
		authors: authors.NewRepository(db),
		images:  store,
	}
}

// NewRepository returns the scoped repository for books.
func NewRepository(db bun.IDB) *scope.Repository[models.Book] {
	return scope.NewRepository[models.Book](db, "b", "Book")
}

// checkAuthor ensures the author exists in the caller's scope. Authors owned
// by someone else are reported the same as missing ones.
func (svc *Service) checkAuthor(ctx context.Context, authorID int) error {
	exists, err := svc.authors.Scoped(ctx).Where("a.id = ?", authorID).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return errcodes.FieldValidationError("author_id", `"author_id" must reference an existing author`)
	}
	return nil
}

// checkNameAvailable enforces (name, author_id) uniqueness ahead of the
// storage constraint. excludeID skips the book being updated.
func (svc *Service) checkNameAvailable(ctx context.Context, name string, authorID, excludeID int) error {
	q := svc.books.AllObjects().
		Where("b.name = ?", name).
		Where("b.author_id = ?", authorID)
	if excludeID != 0 {
		q = q.Where("b.id != ?", excludeID)
	}
	exists, err := q.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return errcodes.Duplicate("Book", "name", "author_id")
	}
	return nil
}

func (svc *Service) CreateBook(ctx context.Context, book *models.Book) error {
	book.Name = strings.TrimSpace(book.Name)
	book.Content = htmlutil.StripTags(book.Content)
	if err := svc.checkAuthor(ctx, book.AuthorID); err != nil {
		return err
	}
	if err := svc.checkNameAvailable(ctx, book.Name, book.AuthorID, 0); err != nil {
		return err
	}
	if err := svc.books.Insert(ctx, book); err != nil {
		return err
	}
	return svc.loadAuthor(ctx, book)
}

func (svc *Service) loadAuthor(ctx context.Context, book *models.Book) error {
	author, err := svc.authors.AllObjects().Get(ctx, book.AuthorID)
	if err != nil {
		return err
	}
	book.Author = author
	return nil
}

func (svc *Service) RetrieveBook(ctx context.Context, id int) (*models.Book, error) {
	return svc.books.Scoped(ctx).Relation("Author").Get(ctx, id)
}

func (svc *Service) ListBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	q := svc.books.Scoped(ctx).
		Relation("Author").
		Order("b.name ASC", "b.id ASC")
	if opts.AuthorID != nil {
		q = q.Where("b.author_id = ?", *opts.AuthorID)
	}
	if opts.Search != nil && *opts.Search != "" {
		search := "%" + strings.ToLower(*opts.Search) + "%"
		q = q.Where("LOWER(b.name) LIKE ?", search)
	}

	limit, offset := 0, 0
	if opts.Limit != nil {
		limit = *opts.Limit
	}
	if opts.Offset != nil {
		offset = *opts.Offset
	}
	return q.ListWithTotal(ctx, limit, offset)
}

func (svc *Service) UpdateBook(ctx context.Context, book *models.Book, opts UpdateBookOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}
	checkName := false
	for _, c := range opts.Columns {
		switch c {
		case "author_id":
			if err := svc.checkAuthor(ctx, book.AuthorID); err != nil {
				return err
			}
			checkName = true
		case "name":
			book.Name = strings.TrimSpace(book.Name)
			checkName = true
		case "content":
			book.Content = htmlutil.StripTags(book.Content)
		}
	}
	if checkName {
		if err := svc.checkNameAvailable(ctx, book.Name, book.AuthorID, book.ID); err != nil {
			return err
		}
	}
	if err := svc.books.Scoped(ctx).Update(ctx, book, opts.Columns...); err != nil {
		return err
	}
	return svc.loadAuthor(ctx, book)
}

func (svc *Service) DeleteBook(ctx context.Context, id int) error {
	book, err := svc.books.Scoped(ctx).Get(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.books.Scoped(ctx).Delete(ctx, id); err != nil {
		return err
	}
	if book.ImageFilename != nil {
		svc.removeImage(ctx, *book.ImageFilename)
	}
	return nil
}

// ReplaceImage points the book at a newly stored image and removes the old
// one. The new file is removed if the update fails.
func (svc *Service) ReplaceImage(ctx context.Context, book *models.Book, filename string) error {
	old := book.ImageFilename
	book.ImageFilename = &filename
	if err := svc.books.Scoped(ctx).Update(ctx, book, "image_filename"); err != nil {
		book.ImageFilename = old
		svc.removeImage(ctx, filename)
		return err
	}
	if old != nil {
		svc.removeImage(ctx, *old)
	}
	return nil
}

func (svc *Service) removeImage(ctx context.Context, filename string) {
	if err := svc.images.Delete(filename); err != nil {
		logger.FromContext(ctx).Warn("failed to remove image", logger.Data{"filename": filename, "error": err.Error()})
	}
}
