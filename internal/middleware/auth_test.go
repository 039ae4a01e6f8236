package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketbay/server/internal/auth"
	"github.com/marketbay/server/internal/model"
)

func newTestTokens() (*auth.JWTService, *auth.TokenService) {
	jwtService := auth.NewJWTService("test-jwt-secret-at-least-32-characters-long",
		15*time.Minute, 7*24*time.Hour, 10*time.Minute)
	// The middleware never touches the refresh store, so it can be nil.
	return jwtService, auth.NewTokenService(jwtService, nil, 7*24*time.Hour)
}

// echoUserID is the protected handler under test: it reports the
// identity the middleware attached.
func echoUserID(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetUserID(r.Context())
		require.True(t, ok)
		w.Write([]byte(id.String()))
	}
}

func TestRequireAuth_BearerHeader(t *testing.T) {
	jwtService, tokens := newTestTokens()
	userID := uuid.New()
	token, err := jwtService.SignAccess(userID, model.RoleUser)
	require.NoError(t, err)

	handler := RequireAuth(tokens)(echoUserID(t))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID.String(), rec.Body.String())
}

func TestRequireAuth_CookieFallback(t *testing.T) {
	jwtService, tokens := newTestTokens()
	userID := uuid.New()
	token, err := jwtService.SignAccess(userID, model.RoleUser)
	require.NoError(t, err)

	handler := RequireAuth(tokens)(echoUserID(t))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID.String(), rec.Body.String())
}

func TestRequireAuth_Unauthorized(t *testing.T) {
	jwtService, tokens := newTestTokens()

	expired := auth.NewJWTService("test-jwt-secret-at-least-32-characters-long",
		-time.Minute, time.Hour, time.Hour)
	expiredToken, err := expired.SignAccess(uuid.New(), model.RoleUser)
	require.NoError(t, err)
	refreshToken, err := jwtService.SignRefresh(uuid.New(), uuid.New())
	require.NoError(t, err)

	cases := map[string]func(*http.Request){
		"no credentials":   func(r *http.Request) {},
		"malformed header": func(r *http.Request) { r.Header.Set("Authorization", "Token abc") },
		"garbage token":    func(r *http.Request) { r.Header.Set("Authorization", "Bearer not-a-jwt") },
		"expired token":    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expiredToken) },
		"refresh token in place of access": func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+refreshToken)
		},
	}

	for name, arrange := range cases {
		t.Run(name, func(t *testing.T) {
			handler := RequireAuth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run")
			}))
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			arrange(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	jwtService, tokens := newTestTokens()

	protected := RequireAuth(tokens)(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	t.Run("admin passes", func(t *testing.T) {
		token, err := jwtService.SignAccess(uuid.New(), model.RoleAdmin)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("user is forbidden", func(t *testing.T) {
		token, err := jwtService.SignAccess(uuid.New(), model.RoleUser)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("anonymous is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGetClaims_MissingFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := GetClaims(req.Context())
	assert.False(t, ok)
	_, ok = GetUserID(req.Context())
	assert.False(t, ok)
}
