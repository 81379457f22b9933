package prefs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_UsersAndDefaults(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.Ping(ctx))

	u, err := s.CreateUser(ctx, "moderator@example.org", true)
	require.NoError(t, err)

	got, err := s.User(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.CanApprove)

	p, err := s.Preferences(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, Defaults(u.ID), p)

	_, err = s.User(ctx, 9999)
	require.ErrorIs(t, err, ErrUserNotFound)
	_, err = s.CreateUser(ctx, "moderator@example.org", false)
	require.Error(t, err, "duplicate email")
}

func TestStore_SaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	u, err := s.CreateUser(ctx, "user@example.org", false)
	require.NoError(t, err)

	want := &Preferences{UserID: u.ID, OwnNewsApproved: []string{"poll"}}
	require.NoError(t, s.SavePreferences(ctx, want))
	want.OthersNewsPosted = []string{"news", "link"}
	require.NoError(t, s.SavePreferences(ctx, want))

	got, err := s.Preferences(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"poll"}, got.OwnNewsApproved)
	assert.Equal(t, []string{"news", "link"}, got.OthersNewsPosted)
	assert.Empty(t, got.OthersNewsNeedsModeration)

	require.ErrorIs(t, s.SavePreferences(ctx, &Preferences{UserID: 4242}), ErrUserNotFound)
}

func newOpsRouter(t *testing.T) (http.Handler, *Store) {
	s := openStore(t)
	r := chi.NewRouter()
	NewAPI(s, nil, nil).RegisterRoutes(r)
	return r, s
}

func TestAPI_GetAndPost(t *testing.T) {
	ctx := context.Background()
	h, s := newOpsRouter(t)
	u, err := s.CreateUser(ctx, "mod@example.org", true)
	require.NoError(t, err)
	base := "/admin/users/" + itoa(u.ID) + "/preferences"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), FieldOthersNewsNeedsModeration)

	form := url.Values{FieldOwnNewsApproved: {"news"}}
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, base, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code, "moderation field is required for approvers")
	assert.Contains(t, rec.Body.String(), "This field is required.")

	form.Set(FieldOthersNewsNeedsModeration, "blogpost")
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, base, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	p, err := s.Preferences(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"news"}, p.OwnNewsApproved)
	assert.Equal(t, []string{"blogpost"}, p.OthersNewsNeedsModeration)
}

func TestAPI_Errors(t *testing.T) {
	h, _ := newOpsRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users/abc/preferences", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users/77/preferences", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_CreateUser(t *testing.T) {
	h, _ := newOpsRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/users", strings.NewReader(`{"email":"a@example.org","can_approve":true}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"can_approve":true`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/users", strings.NewReader(`{"email":"nope"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
