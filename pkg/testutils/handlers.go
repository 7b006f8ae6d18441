package testutils

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/pulpfiction/pulpfiction/pkg/auth"
	"github.com/pulpfiction/pulpfiction/pkg/models"
	"github.com/uptrace/bun"
)

type handler struct {
	db *bun.DB
}

type createUserPayload struct {
	Username string `json:"username" mod:"trim" validate:"required"`
	Password string `json:"password" validate:"required"`
	IsAdmin  bool   `json:"is_admin"`
}

// createUser creates an active user, skipping the registration rules.
// POST /test/users.
func (h *handler) createUser(c echo.Context) error {
	ctx := c.Request().Context()

	params := createUserPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return errors.Wrap(err, "failed to hash password")
	}

	now := time.Now()
	user := &models.User{
		CreatedAt:    now,
		UpdatedAt:    now,
		Username:     params.Username,
		PasswordHash: hash,
		IsActive:     true,
		IsAdmin:      params.IsAdmin,
	}
	_, err = h.db.NewInsert().Model(user).Returning("*").Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to create user")
	}

	return errors.WithStack(c.JSON(http.StatusCreated, user))
}

type resetResponse struct {
	Books   int64 `json:"books"`
	Authors int64 `json:"authors"`
	Users   int64 `json:"users"`
}

// reset removes every book, author and user.
// DELETE /test/data.
func (h *handler) reset(c echo.Context) error {
	ctx := c.Request().Context()
	resp := resetResponse{}

	err := h.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		targets := []struct {
			model any
			count *int64
		}{
			{(*models.Book)(nil), &resp.Books},
			{(*models.Author)(nil), &resp.Authors},
			{(*models.User)(nil), &resp.Users},
		}
		for _, target := range targets {
			res, err := tx.NewDelete().Model(target.model).Where("1 = 1").Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
			*target.count, _ = res.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
