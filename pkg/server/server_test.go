package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pulpfiction/pulpfiction/pkg/config"
	"github.com/pulpfiction/pulpfiction/pkg/database"
	"github.com/pulpfiction/pulpfiction/pkg/images"
	"github.com/pulpfiction/pulpfiction/pkg/migrations"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	t *testing.T
	e *echo.Echo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.NewForTest()
	cfg.DatabaseFilePath = filepath.Join(t.TempDir(), "test.db")

	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	store := images.NewStore(afero.NewMemMapFs(), cfg.ImageMaxBytes, cfg.ImageMaxDimension)
	e, err := newEcho(cfg, db, store)
	require.NoError(t, err)

	return &testServer{t: t, e: e}
}

func (s *testServer) do(method, path, token, body string) (int, map[string]any) {
	s.t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.e.ServeHTTP(rr, req)

	var resp map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(rr.Body.Bytes(), &resp))
	}
	return rr.Code, resp
}

func (s *testServer) session(path, username string) string {
	s.t.Helper()

	code, resp := s.do(http.MethodPost, path, "", `{"username":"`+username+`","password":"correct-horse"}`)
	require.Equal(s.t, http.StatusCreated, code, resp)
	token, ok := resp["token"].(string)
	require.True(s.t, ok)
	return token
}

func errorCode(resp map[string]any) string {
	body, _ := resp["error"].(map[string]any)
	code, _ := body["code"].(string)
	return code
}

func TestServer_OwnershipIsolation(t *testing.T) {
	s := newTestServer(t)
	admin := s.session("/auth/setup", "alice")
	bob := s.session("/auth/register", "bob")

	code, author := s.do(http.MethodPost, "/authors", admin, `{"name":"Le Guin"}`)
	require.Equal(t, http.StatusCreated, code, author)
	authorID := int(author["id"].(float64))

	code, book := s.do(http.MethodPost, "/books", admin, `{"name":"The Dispossessed","author_id":`+strconv.Itoa(authorID)+`}`)
	require.Equal(t, http.StatusCreated, code, book)

	t.Run("owner sees their rows", func(t *testing.T) {
		code, resp := s.do(http.MethodGet, "/authors", admin, "")
		assert.Equal(t, http.StatusOK, code)
		assert.InDelta(t, 1, resp["total"], 0)
	})

	t.Run("other users see nothing", func(t *testing.T) {
		code, resp := s.do(http.MethodGet, "/books", bob, "")
		assert.Equal(t, http.StatusOK, code)
		assert.InDelta(t, 0, resp["total"], 0)

		code, resp = s.do(http.MethodGet, "/authors/"+strconv.Itoa(authorID), bob, "")
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "not_found", errorCode(resp))
	})

	t.Run("books can't reference another user's author", func(t *testing.T) {
		code, resp := s.do(http.MethodPost, "/books", bob, `{"name":"Borrowed","author_id":`+strconv.Itoa(authorID)+`}`)
		assert.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Equal(t, "validation_error", errorCode(resp))
	})

	t.Run("duplicate book", func(t *testing.T) {
		code, resp := s.do(http.MethodPost, "/books", admin, `{"name":"The Dispossessed","author_id":`+strconv.Itoa(authorID)+`}`)
		assert.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Equal(t, "duplicate_name", errorCode(resp))
	})

	t.Run("analytics are scoped", func(t *testing.T) {
		code, resp := s.do(http.MethodGet, "/analytics", admin, "")
		assert.Equal(t, http.StatusOK, code)
		assert.InDelta(t, 1, resp["totalBooks"], 0)
		assert.InDelta(t, 1, resp["newAuthorsLast30"], 0)

		_, resp = s.do(http.MethodGet, "/analytics", bob, "")
		assert.InDelta(t, 0, resp["totalBooks"], 0)
	})

	t.Run("admin routes", func(t *testing.T) {
		code, resp := s.do(http.MethodGet, "/admin/authors", bob, "")
		assert.Equal(t, http.StatusForbidden, code)
		assert.Equal(t, "forbidden", errorCode(resp))

		code, resp = s.do(http.MethodGet, "/admin/books", admin, "")
		assert.Equal(t, http.StatusOK, code)
		assert.InDelta(t, 1, resp["total"], 0)

		code, resp = s.do(http.MethodGet, "/admin/users", admin, "")
		assert.Equal(t, http.StatusOK, code)
		assert.InDelta(t, 2, resp["total"], 0)
	})
}

func TestServer_DeactivatedUserLosesAccess(t *testing.T) {
	s := newTestServer(t)
	admin := s.session("/auth/setup", "alice")
	bob := s.session("/auth/register", "bob")

	_, me := s.do(http.MethodGet, "/auth/me", bob, "")
	bobID := strconv.Itoa(int(me["id"].(float64)))

	code, resp := s.do(http.MethodPatch, "/admin/users/"+bobID, admin, `{"is_active":false}`)
	require.Equal(t, http.StatusOK, code, resp)

	code, resp = s.do(http.MethodGet, "/authors", bob, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", errorCode(resp))
}

func TestServer_RequiresAuthentication(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/authors", "/books", "/analytics", "/admin/authors", "/auth/me"} {
		code, resp := s.do(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, code, path)
		assert.Equal(t, "unauthorized", errorCode(resp), path)
	}
}

func TestServer_NotFound(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", errorCode(resp))
}

func TestServer_TestRoutes(t *testing.T) {
	s := newTestServer(t)

	code, user := s.do(http.MethodPost, "/test/users", "", `{"username":"e2e","password":"pw","is_admin":true}`)
	require.Equal(t, http.StatusCreated, code, user)
	assert.Equal(t, true, user["is_admin"])

	code, resp := s.do(http.MethodDelete, "/test/data", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 1, resp["users"], 0)

	_, status := s.do(http.MethodGet, "/auth/status", "", "")
	assert.Equal(t, true, status["needs_setup"])
}
