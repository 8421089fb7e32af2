package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func plainError(w http.ResponseWriter, r *http.Request, status int, message string) {
	http.Error(w, message, status)
}

func serve(t *testing.T, h func(http.Handler) http.Handler, token string) (*httptest.ResponseRecorder, *Identity) {
	t.Helper()
	var seen *Identity
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	Middleware(secret, plainError)(chain(h, inner)).ServeHTTP(rec, req)
	return rec, seen
}

// chain ставит h перед inner; nil означает без дополнительной проверки.
func chain(h func(http.Handler) http.Handler, inner http.Handler) http.Handler {
	if h == nil {
		return inner
	}
	return h(inner)
}

func TestParseToken_RoundTrip(t *testing.T) {
	token, err := IssueToken(secret, Identity{UserID: "42", Name: "admin", Email: "a@example.com", IsStaff: true}, time.Hour)
	require.NoError(t, err)

	id, err := ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, &Identity{UserID: "42", Name: "admin", Email: "a@example.com", IsStaff: true}, id)
}

func TestParseToken_Rejects(t *testing.T) {
	expired, err := IssueToken(secret, Identity{UserID: "1"}, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(secret, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := IssueToken([]byte("other"), Identity{UserID: "1"}, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(secret, other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken(secret, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	valid, err := IssueToken(secret, Identity{UserID: "7", Name: "bob"}, time.Hour)
	require.NoError(t, err)

	rec, id := serve(t, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, id)

	rec, id = serve(t, nil, "Bearer "+valid)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, id)
	assert.Equal(t, "bob", id.Name)

	rec, _ = serve(t, nil, "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = serve(t, nil, "Basic abc")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthAndStaff(t *testing.T) {
	user, err := IssueToken(secret, Identity{UserID: "7", Name: "bob"}, time.Hour)
	require.NoError(t, err)
	staff, err := IssueToken(secret, Identity{UserID: "1", Name: "admin", IsStaff: true}, time.Hour)
	require.NoError(t, err)

	rec, _ := serve(t, RequireAuth(plainError), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = serve(t, RequireAuth(plainError), "Bearer "+user)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = serve(t, RequireStaff(plainError), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = serve(t, RequireStaff(plainError), "Bearer "+user)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = serve(t, RequireStaff(plainError), "Bearer "+staff)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
