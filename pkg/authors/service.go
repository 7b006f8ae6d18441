package authors

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	"github.com/pulpfiction/pulpfiction/pkg/errcodes"
	"github.com/pulpfiction/pulpfiction/pkg/htmlutil"
	"github.com/pulpfiction/pulpfiction/pkg/images"
	"github.com/pulpfiction/pulpfiction/pkg/models"
	"github.com/pulpfiction/pulpfiction/pkg/scope"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

type ListAuthorsOptions struct {
	Limit  *int
	Offset *int
	Search *string
}

type UpdateAuthorOptions struct {
	Columns []string
}

type Service struct {
	db      *bun.DB
	authors *scope.Repository[models.Author]
	books   *scope.Repository[models.Book]
	images  *images.Store
}

func NewService(db *bun.DB, store *images.Store) *Service {
	return &Service{
		db:      db,
		authors: NewRepository(db),
		books:   scope.NewRepository[models.Book](db, "b", "Book"),
		images:  store,
	}
}

// NewRepository returns the scoped repository for authors.
func NewRepository(db bun.IDB) *scope.Repository[models.Author] {
	return scope.NewRepository[models.Author](db, "a", "Author")
}

// checkNameAvailable enforces global name uniqueness ahead of the storage
// constraint so the common case gets a clean error. excludeID skips the
// author being renamed.
func (svc *Service) checkNameAvailable(ctx context.Context, name string, excludeID int) error {
	q := svc.authors.AllObjects().Where("a.name = ?", name)
	if excludeID != 0 {
		q = q.Where("a.id != ?", excludeID)
	}
	exists, err := q.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return errcodes.Duplicate("Author", "name")
	}
	return nil
}

func (svc *Service) CreateAuthor(ctx context.Context, author *models.Author) error {
	author.Name = strings.TrimSpace(author.Name)
	author.Details = htmlutil.StripTags(author.Details)
	if err := svc.checkNameAvailable(ctx, author.Name, 0); err != nil {
		return err
	}
	return svc.authors.Insert(ctx, author)
}

func (svc *Service) RetrieveAuthor(ctx context.Context, id int) (*models.Author, error) {
	return svc.authors.Scoped(ctx).Get(ctx, id)
}

func (svc *Service) query(ctx context.Context, opts ListAuthorsOptions) *scope.Query[models.Author] {
	q := svc.authors.Scoped(ctx).Order("a.name ASC", "a.id ASC")
	if opts.Search != nil && *opts.Search != "" {
		search := "%" + strings.ToLower(*opts.Search) + "%"
		q = q.Where("LOWER(a.name) LIKE ?", search)
	}
	return q
}

func (svc *Service) ListAuthorsWithTotal(ctx context.Context, opts ListAuthorsOptions) ([]*models.Author, int, error) {
	limit, offset := 0, 0
	if opts.Limit != nil {
		limit = *opts.Limit
	}
	if opts.Offset != nil {
		offset = *opts.Offset
	}
	return svc.query(ctx, opts).ListWithTotal(ctx, limit, offset)
}

// ListAllAuthors returns every author in scope without pagination.
func (svc *Service) ListAllAuthors(ctx context.Context) ([]*models.Author, error) {
	return svc.query(ctx, ListAuthorsOptions{}).List(ctx)
}

func (svc *Service) UpdateAuthor(ctx context.Context, author *models.Author, opts UpdateAuthorOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}
	for _, c := range opts.Columns {
		switch c {
		case "name":
			author.Name = strings.TrimSpace(author.Name)
			if err := svc.checkNameAvailable(ctx, author.Name, author.ID); err != nil {
				return err
			}
		case "details":
			author.Details = htmlutil.StripTags(author.Details)
		}
	}
	return svc.authors.Scoped(ctx).Update(ctx, author, opts.Columns...)
}

// DeleteAuthor deletes an author in scope along with all of its books, then
// removes their stored images.
func (svc *Service) DeleteAuthor(ctx context.Context, id int) error {
	var filenames []string

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		author, err := svc.authors.WithDB(tx).Scoped(ctx).Get(ctx, id)
		if err != nil {
			return err
		}
		if author.ImageFilename != nil {
			filenames = append(filenames, *author.ImageFilename)
		}

		// Books follow their author regardless of who created them.
		books, err := svc.books.WithDB(tx).AllObjects().Where("b.author_id = ?", id).List(ctx)
		if err != nil {
			return err
		}
		for _, b := range books {
			if b.ImageFilename != nil {
				filenames = append(filenames, *b.ImageFilename)
			}
		}

		_, err = tx.NewDelete().
			Model((*models.Book)(nil)).
			Where("author_id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		return svc.authors.WithDB(tx).Scoped(ctx).Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	svc.removeImages(ctx, filenames...)
	return nil
}

// ReplaceImage points the author at a newly stored image and removes the old
// one. The new file is removed if the update fails.
func (svc *Service) ReplaceImage(ctx context.Context, author *models.Author, filename string) error {
	old := author.ImageFilename
	author.ImageFilename = &filename
	if err := svc.authors.Scoped(ctx).Update(ctx, author, "image_filename"); err != nil {
		author.ImageFilename = old
		svc.removeImages(ctx, filename)
		return err
	}
	if old != nil {
		svc.removeImages(ctx, *old)
	}
	return nil
}

func (svc *Service) removeImages(ctx context.Context, filenames ...string) {
	log := logger.FromContext(ctx)
	for _, f := range filenames {
		if err := svc.images.Delete(f); err != nil {
			log.Warn("failed to remove image", logger.Data{"filename": f, "error": err.Error()})
		}
	}
}
