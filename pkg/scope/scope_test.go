package scope

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/pulpfiction/pulpfiction/pkg/errcodes"
	"github.com/pulpfiction/pulpfiction/pkg/migrations"
	"github.com/pulpfiction/pulpfiction/pkg/models"
	"github.com/pulpfiction/pulpfiction/pkg/usercontext"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func createUser(t *testing.T, db *bun.DB, username string) *models.User {
	t.Helper()

	user := &models.User{Username: username, PasswordHash: "x", IsActive: true}
	_, err := db.NewInsert().Model(user).Exec(context.Background())
	require.NoError(t, err)
	return user
}

func createAuthor(t *testing.T, repo *Repository[models.Author], user *models.User, name string) *models.Author {
	t.Helper()

	author := &models.Author{Name: name}
	ctx := usercontext.WithUser(context.Background(), user)
	require.NoError(t, repo.Insert(ctx, author))
	return author
}

func TestInsert_StampsCreator(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewRepository[models.Author](db, "a", "Author")
	alice := createUser(t, db, "alice")

	author := createAuthor(t, repo, alice, "Ursula")

	require.NotNil(t, author.CreatedByID)
	assert.Equal(t, alice.ID, *author.CreatedByID)
	require.NotNil(t, author.UpdatedByID)
	assert.Equal(t, alice.ID, *author.UpdatedByID)
	assert.False(t, author.CreatedAt.IsZero())

	stored, err := repo.AllObjects().Get(context.Background(), author.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CreatedByID)
	assert.Equal(t, alice.ID, *stored.CreatedByID)
}

func TestInsert_ExplicitCreatorWins(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewRepository[models.Author](db, "a", "Author")
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	author := &models.Author{Name: "Octavia"}
	author.CreatedByID = pointerutil.Int(bob.ID)
	require.NoError(t, repo.Insert(usercontext.WithUser(context.Background(), alice), author))

	assert.Equal(t, bob.ID, *author.CreatedByID)
}

func TestInsert_WithoutUserLeavesCreatorUnset(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewRepository[models.Author](db, "a", "Author")

	author := &models.Author{Name: "Anonymous"}
	require.NoError(t, repo.Insert(context.Background(), author))

	assert.Nil(t, author.CreatedByID)
	stored, err := repo.AllObjects().Get(context.Background(), author.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.CreatedByID)
}

func TestInsert_DuplicateName(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewRepository[models.Author](db, "a", "Author")
	alice := createUser(t, db, "alice")
	createAuthor(t, repo, alice, "Ursula")

	err := repo.Insert(usercontext.WithUser(context.Background(), alice), &models.Author{Name: "Ursula"})

	var e *errcodes.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "duplicate_name", e.Code)
	assert.Equal(t, []string{"name"}, e.Fields)
}

func TestScoped_OnlyOwnRows(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewRepository[models.Author](db, "a", "Author")
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	a1 := createAuthor(t, repo, alice, "A1")
	a2 := createAuthor(t, repo, alice, "A2")
	b1 := createAuthor(t, repo, bob, "B1")

	ctx := usercontext.WithUser(context.Background(), alice)

	list, err := repo.Scoped(ctx).Order("a.name ASC").List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a1.ID, list[0].ID)
	assert.Equal(t, a2.ID, list[1].ID)

	count, err := repo.Scoped(ctx).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = repo.Scoped(ctx).Get(ctx, b1.ID)
	require.ErrorIs(t, err, errcodes.NotFound("Author"))

	_, err = repo.Scoped(ctx).Get(ctx, 9999)
	require.ErrorIs(t, err, errcodes.NotFound("Author"))
}

func TestScoped_FailsClosedWithoutUser(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewRepository[models.Author](db, "a", "Author")
	alice := createUser(t, db, "alice")
	author := createAuthor(t, repo, alice, "A1")

	ctx := context.Background()
	q := repo.Scoped(ctx)
	assert.True(t, q.IsEmpty())

	list, err := q.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, total, err := q.ListWithTotal(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 0, total)

	count, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	exists, err := q.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = q.Get(ctx, author.ID)
	require.ErrorIs(t, err, errcodes.NotFound("Author"))

	author.Name = "changed"
	require.ErrorIs(t, q.Update(ctx, author, "name"), errcodes.NotFound("Author"))
	require.ErrorIs(t, q.Delete(ctx, author.ID), errcodes.NotFound("Author"))

	stored, err := repo.AllObjects().Get(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, "A1", stored.Name)
}

func TestScoped_ComposedFilter(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewRepository[models.Author](db, "a", "Author")
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	createAuthor(t, repo, alice, "Match")
	createAuthor(t, repo, alice, "Other")
	createAuthor(t, repo, bob, "Match too")

	ctx := usercontext.WithUser(context.Background(), alice)
	list, err := repo.Scoped(ctx).Where("a.name LIKE ?", "Match%").List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Match", list[0].Name)
}

func TestQuery_IsImmutable(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewRepository[models.Author](db, "a", "Author")
	alice := createUser(t, db, "alice")
	createAuthor(t, repo, alice, "A1")
	createAuthor(t, repo, alice, "B1")

	ctx := usercontext.WithUser(context.Background(), alice)
	base := repo.Scoped(ctx)
	_ = base.Where("a.name = ?", "A1")

	count, err := base.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestListWithTotal(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewRepository[models.Author](db, "a", "Author")
	alice := createUser(t, db, "alice")
	for _, name := range []string{"A", "B", "C"} {
		createAuthor(t, repo, alice, name)
	}

	ctx := usercontext.WithUser(context.Background(), alice)
	list, total, err := repo.Scoped(ctx).Order("a.name ASC").ListWithTotal(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 2)
	assert.Equal(t, "B", list[0].Name)
	assert.Equal(t, "C", list[1].Name)
}

func TestUpdate_KeepsCreatorAndRefreshesEditor(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewRepository[models.Author](db, "a", "Author")
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	author := createAuthor(t, repo, alice, "Before")
	createdAt := author.CreatedAt

	// Bob acts on Alice's row through the administrative path.
	ctx := usercontext.WithUser(context.Background(), bob)
	author.Name = "After"
	author.CreatedByID = pointerutil.Int(bob.ID)
	require.NoError(t, repo.AllObjects().Update(ctx, author, "name", "created_by_id"))

	stored, err := repo.AllObjects().Get(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, "After", stored.Name)
	assert.Equal(t, alice.ID, *stored.CreatedByID)
	assert.Equal(t, bob.ID, *stored.UpdatedByID)
	assert.True(t, createdAt.Equal(stored.CreatedAt))
}

func TestUpdate_NotOwned(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewRepository[models.Author](db, "a", "Author")
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	author := createAuthor(t, repo, alice, "Alice's")

	ctx := usercontext.WithUser(context.Background(), bob)
	author.Name = "Hijacked"
	err := repo.Scoped(ctx).Update(ctx, author, "name")
	require.ErrorIs(t, err, errcodes.NotFound("Author"))

	stored, err := repo.AllObjects().Get(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice's", stored.Name)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewRepository[models.Author](db, "a", "Author")
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	author := createAuthor(t, repo, alice, "A1")

	bobCtx := usercontext.WithUser(context.Background(), bob)
	require.ErrorIs(t, repo.Scoped(bobCtx).Delete(bobCtx, author.ID), errcodes.NotFound("Author"))

	aliceCtx := usercontext.WithUser(context.Background(), alice)
	require.NoError(t, repo.Scoped(aliceCtx).Delete(aliceCtx, author.ID))

	exists, err := repo.AllObjects().Where("a.id = ?", author.ID).Exists(aliceCtx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWrites_HonorComposedFilters(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewRepository[models.Author](db, "a", "Author")
	alice := createUser(t, db, "alice")
	kept := createAuthor(t, repo, alice, "Kept")
	renamed := createAuthor(t, repo, alice, "Renamed")

	ctx := usercontext.WithUser(context.Background(), alice)
	nobody := repo.Scoped(ctx).Where("a.name = ?", "Nobody")

	count, err := nobody.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.ErrorIs(t, nobody.Delete(ctx, kept.ID), errcodes.NotFound("Author"))
	exists, err := repo.AllObjects().Where("a.id = ?", kept.ID).Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	renamed.Name = "Changed"
	require.ErrorIs(t, nobody.Update(ctx, renamed, "name"), errcodes.NotFound("Author"))
	stored, err := repo.AllObjects().Get(ctx, renamed.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)

	t.Run("matching filter", func(t *testing.T) {
		matching := repo.Scoped(ctx).Where("a.name = ?", "Renamed")
		require.NoError(t, matching.Update(ctx, renamed, "name"))

		stored, err := repo.AllObjects().Get(ctx, renamed.ID)
		require.NoError(t, err)
		assert.Equal(t, "Changed", stored.Name)

		require.NoError(t, repo.Scoped(ctx).Where("a.name = ?", "Kept").Delete(ctx, kept.ID))
		exists, err := repo.AllObjects().Where("a.id = ?", kept.ID).Exists(ctx)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestUpdateColumns_LeavesCallerSliceAlone(t *testing.T) {
	t.Parallel()

	backing := make([]string, 2, 4)
	backing[0], backing[1] = "name", "created_by_id"
	extended := append(backing, "sentinel")

	cols := updateColumns(backing)

	assert.Equal(t, []string{"name", "updated_at", "updated_by_id"}, cols)
	assert.Equal(t, "sentinel", extended[2])
}

func TestForUser(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewRepository[models.Author](db, "a", "Author")
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	createAuthor(t, repo, alice, "A1")
	createAuthor(t, repo, bob, "B1")
	ctx := context.Background()

	list, err := repo.ForUser(bob).List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "B1", list[0].Name)

	list, err = repo.ForUser(nil).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	inactive := *bob
	inactive.IsActive = false
	list, err = repo.ForUser(&inactive).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	all, err := repo.AllObjects().List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreatedSince(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	repo := NewRepository[models.Author](db, "a", "Author")
	alice := createUser(t, db, "alice")
	ctx := usercontext.WithUser(context.Background(), alice)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	for i, days := range []int{1, 10, 40} {
		author := &models.Author{Name: string(rune('A' + i))}
		author.CreatedAt = now.AddDate(0, 0, -days)
		require.NoError(t, repo.Insert(ctx, author))
	}

	times, err := repo.Scoped(ctx).CreatedSince(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Len(t, times, 2)

	times, err = repo.Scoped(context.Background()).CreatedSince(context.Background(), now.AddDate(-1, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, times)
}
