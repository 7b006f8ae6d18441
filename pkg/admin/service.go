package admin

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/pulpfiction/pulpfiction/pkg/authors"
	"github.com/pulpfiction/pulpfiction/pkg/books"
	"github.com/pulpfiction/pulpfiction/pkg/models"
	"github.com/pulpfiction/pulpfiction/pkg/scope"
	"github.com/uptrace/bun"
)

type ListOptions struct {
	UserID *int
	Limit  int
	Offset int
}

// Service lists records across owners. It is only reachable from routes that
// require an administrator.
type Service struct {
	db      *bun.DB
	authors *scope.Repository[models.Author]
	books   *scope.Repository[models.Book]
}

func NewService(db *bun.DB) *Service {
	return &Service{
		db:      db,
		authors: authors.NewRepository(db),
		books:   books.NewRepository(db),
	}
}

func (svc *Service) ListAuthors(ctx context.Context, opts ListOptions) ([]*models.Author, int, error) {
	q, err := resolve(ctx, svc.db, svc.authors, opts.UserID)
	if err != nil {
		return nil, 0, err
	}
	return q.Order("a.name ASC", "a.id ASC").ListWithTotal(ctx, opts.Limit, opts.Offset)
}

func (svc *Service) ListBooks(ctx context.Context, opts ListOptions) ([]*models.Book, int, error) {
	q, err := resolve(ctx, svc.db, svc.books, opts.UserID)
	if err != nil {
		return nil, 0, err
	}
	return q.Relation("Author").Order("b.name ASC", "b.id ASC").ListWithTotal(ctx, opts.Limit, opts.Offset)
}

// resolve picks every row when userID is nil, otherwise the rows of that user.
// An unknown user yields the empty scope.
func resolve[T any](ctx context.Context, db bun.IDB, repo *scope.Repository[T], userID *int) (*scope.Query[T], error) {
	if userID == nil {
		return repo.AllObjects(), nil
	}

	user := &models.User{}
	err := db.NewSelect().
		Model(user).
		Where("u.id = ?", *userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repo.ForUser(nil), nil
		}
		return nil, errors.WithStack(err)
	}
	return repo.ForUser(user), nil
}
