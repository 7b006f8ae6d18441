// Package scope restricts queries on user-owned models to the rows created by
// a single owner. The default path reads the owner from the request context
// and fails closed: without a user, reads are empty and writes find nothing.
package scope

import (
	"context"
	"database/sql"
	"reflect"
	"time"

	"github.com/pkg/errors"
	"github.com/pulpfiction/pulpfiction/pkg/database"
	"github.com/pulpfiction/pulpfiction/pkg/errcodes"
	"github.com/pulpfiction/pulpfiction/pkg/models"
	"github.com/pulpfiction/pulpfiction/pkg/usercontext"
	"github.com/uptrace/bun"
)

// Columns that an update can never change.
var protectedColumns = map[string]struct{}{
	"id":            {},
	"created_by_id": {},
	"created_at":    {},
}

type Repository[T any] struct {
	db       bun.IDB
	alias    string
	resource string
}

// NewRepository returns a repository for the model T whose table is selected
// under alias. resource names the model in NotFound and duplicate errors.
func NewRepository[T any](db bun.IDB, alias, resource string) *Repository[T] {
	return &Repository[T]{db: db, alias: alias, resource: resource}
}

// WithDB returns a copy of the repository that runs against db, typically a
// transaction.
func (r *Repository[T]) WithDB(db bun.IDB) *Repository[T] {
	return &Repository[T]{db: db, alias: r.alias, resource: r.resource}
}

func (r *Repository[T]) Resource() string {
	return r.resource
}

// Scoped returns the rows owned by the acting user in ctx. With no user, the
// scope is empty.
func (r *Repository[T]) Scoped(ctx context.Context) *Query[T] {
	id, ok := usercontext.UserID(ctx)
	if !ok {
		return &Query[T]{repo: r, empty: true}
	}
	return &Query[T]{repo: r, owner: &id}
}

// AllObjects returns every row regardless of owner. Only administrative and
// background code should use it.
func (r *Repository[T]) AllObjects() *Query[T] {
	return &Query[T]{repo: r}
}

// ForUser returns the rows owned by user. A nil or inactive user yields the
// empty scope.
func (r *Repository[T]) ForUser(user *models.User) *Query[T] {
	if user == nil || !user.IsActive {
		return &Query[T]{repo: r, empty: true}
	}
	id := user.ID
	return &Query[T]{repo: r, owner: &id}
}

// Insert stores model. Ownership is stamped by the model's append hook from
// the acting user in ctx.
func (r *Repository[T]) Insert(ctx context.Context, model *T) error {
	_, err := r.db.NewInsert().
		Model(model).
		Returning("*").
		Exec(ctx)
	return r.convertErr(err)
}

func (r *Repository[T]) convertErr(err error) error {
	if err == nil {
		return nil
	}
	if fields, ok := database.UniqueViolation(err); ok {
		return errcodes.Duplicate(r.resource, fields...)
	}
	return errors.WithStack(err)
}

// Query is an immutable query over a repository's rows. Every builder method
// returns a new Query; the owner filter is always kept.
type Query[T any] struct {
	repo  *Repository[T]
	empty bool
	owner *int
	mods  []func(*bun.SelectQuery) *bun.SelectQuery
}

func (q *Query[T]) with(mod func(*bun.SelectQuery) *bun.SelectQuery) *Query[T] {
	mods := make([]func(*bun.SelectQuery) *bun.SelectQuery, len(q.mods), len(q.mods)+1)
	copy(mods, q.mods)
	return &Query[T]{
		repo:  q.repo,
		empty: q.empty,
		owner: q.owner,
		mods:  append(mods, mod),
	}
}

// IsEmpty reports whether the query can never match a row.
func (q *Query[T]) IsEmpty() bool {
	return q.empty
}

// Where adds a condition ANDed with the owner filter.
func (q *Query[T]) Where(query string, args ...interface{}) *Query[T] {
	return q.with(func(s *bun.SelectQuery) *bun.SelectQuery {
		return s.Where(query, args...)
	})
}

// Apply adds an arbitrary modification to the select.
func (q *Query[T]) Apply(fn func(*bun.SelectQuery) *bun.SelectQuery) *Query[T] {
	return q.with(fn)
}

func (q *Query[T]) Relation(name string, apply ...func(*bun.SelectQuery) *bun.SelectQuery) *Query[T] {
	return q.with(func(s *bun.SelectQuery) *bun.SelectQuery {
		return s.Relation(name, apply...)
	})
}

func (q *Query[T]) Order(orders ...string) *Query[T] {
	return q.with(func(s *bun.SelectQuery) *bun.SelectQuery {
		return s.Order(orders...)
	})
}

func (q *Query[T]) column(name string) string {
	return q.repo.alias + "." + name
}

func (q *Query[T]) selectQuery(model interface{}) *bun.SelectQuery {
	s := q.repo.db.NewSelect().Model(model)
	if q.owner != nil {
		s = s.Where(q.column("created_by_id")+" = ?", *q.owner)
	}
	for _, mod := range q.mods {
		s = mod(s)
	}
	return s
}

func (q *Query[T]) List(ctx context.Context) ([]*T, error) {
	items := []*T{}
	if q.empty {
		return items, nil
	}
	err := q.selectQuery(&items).Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return items, nil
}

// ListWithTotal returns one page of rows along with the total number of rows
// that match, ignoring limit and offset. A limit of zero returns every row.
func (q *Query[T]) ListWithTotal(ctx context.Context, limit, offset int) ([]*T, int, error) {
	items := []*T{}
	if q.empty {
		return items, 0, nil
	}
	s := q.selectQuery(&items)
	if limit > 0 {
		s = s.Limit(limit)
	}
	if offset > 0 {
		s = s.Offset(offset)
	}
	total, err := s.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	return items, total, nil
}

// Get returns the row with id. Missing rows and rows outside the scope both
// produce NotFound.
func (q *Query[T]) Get(ctx context.Context, id int) (*T, error) {
	if q.empty {
		return nil, errcodes.NotFound(q.repo.resource)
	}
	item := new(T)
	err := q.selectQuery(item).
		Where(q.column("id")+" = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound(q.repo.resource)
		}
		return nil, errors.WithStack(err)
	}
	return item, nil
}

func (q *Query[T]) Count(ctx context.Context) (int, error) {
	if q.empty {
		return 0, nil
	}
	count, err := q.selectQuery((*T)(nil)).Count(ctx)
	return count, errors.WithStack(err)
}

func (q *Query[T]) Exists(ctx context.Context) (bool, error) {
	if q.empty {
		return false, nil
	}
	exists, err := q.selectQuery((*T)(nil)).Exists(ctx)
	return exists, errors.WithStack(err)
}

// CreatedSince returns the creation time of every row in scope created at or
// after since.
func (q *Query[T]) CreatedSince(ctx context.Context, since time.Time) ([]time.Time, error) {
	times := []time.Time{}
	if q.empty {
		return times, nil
	}
	err := q.selectQuery((*T)(nil)).
		Column("created_at").
		Where(q.column("created_at")+" >= ?", since.UTC()).
		Scan(ctx, &times)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return times, nil
}

// Update writes columns of model, identified by its primary key, if the row is
// in scope and passes every filter on q. With no columns every non-protected column is written. The
// creator and creation time are never written, and updated_at/updated_by_id
// always are.
func (q *Query[T]) Update(ctx context.Context, model *T, columns ...string) error {
	if q.empty {
		return errcodes.NotFound(q.repo.resource)
	}
	u := q.repo.db.NewUpdate().Model(model).WherePK()
	if len(columns) > 0 {
		u = u.Column(updateColumns(columns)...)
	} else {
		u = u.ExcludeColumn("id", "created_by_id", "created_at")
	}
	if q.owner != nil {
		u = u.Where("created_by_id = ?", *q.owner)
	}
	if len(q.mods) > 0 {
		u = u.Where("EXISTS (?)", q.filtered(q.pkValue(model)))
	}
	res, err := u.Exec(ctx)
	if err != nil {
		return q.repo.convertErr(err)
	}
	return q.checkAffected(res)
}

// Delete removes the row with id if it is in scope and passes every filter on
// q.
func (q *Query[T]) Delete(ctx context.Context, id int) error {
	if q.empty {
		return errcodes.NotFound(q.repo.resource)
	}
	d := q.repo.db.NewDelete().Model((*T)(nil)).Where("id = ?", id)
	if q.owner != nil {
		d = d.Where("created_by_id = ?", *q.owner)
	}
	if len(q.mods) > 0 {
		d = d.Where("EXISTS (?)", q.filtered(id))
	}
	res, err := d.Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	return q.checkAffected(res)
}

// filtered selects the row with id if it passes every filter added to q.
func (q *Query[T]) filtered(id interface{}) *bun.SelectQuery {
	return q.selectQuery((*T)(nil)).Where(q.column("id")+" = ?", id)
}

func (q *Query[T]) pkValue(model *T) interface{} {
	table := q.repo.db.Dialect().Tables().Get(reflect.TypeOf(model).Elem())
	return table.PKs[0].Value(reflect.ValueOf(model).Elem()).Interface()
}

func (q *Query[T]) checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return errcodes.NotFound(q.repo.resource)
	}
	return nil
}

func updateColumns(columns []string) []string {
	candidates := make([]string, 0, len(columns)+2)
	candidates = append(candidates, columns...)
	candidates = append(candidates, "updated_at", "updated_by_id")

	out := make([]string, 0, len(candidates))
	seen := map[string]struct{}{}
	for _, c := range candidates {
		if _, ok := protectedColumns[c]; ok {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
