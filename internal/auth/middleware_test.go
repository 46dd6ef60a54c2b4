package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tradebot-architect/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testManager() *JWTManager {
	return NewJWTManager(config.AuthConfig{
		JWTSecret:           "super-secret-jwt-token-with-at-least-32-characters",
		Audience:            "authenticated",
		AccessTokenDuration: time.Hour,
	})
}

func TestJWTManager_RoundTrip(t *testing.T) {
	m := testManager()
	token, err := m.GenerateAccessToken(UserClaims{UserID: "u-1", Email: "a@b.io"})
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "a@b.io", claims.Email)
	assert.Equal(t, RoleAuthenticated, claims.Role)
	assert.False(t, claims.IsAdmin)
	assert.Equal(t, int64(3600), m.GetAccessTokenDuration())
}

func TestJWTManager_AdminFromMetadata(t *testing.T) {
	m := testManager()
	token, err := m.GenerateAccessToken(UserClaims{UserID: "u-1", IsAdmin: true})
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)
}

func TestJWTManager_ServiceRoleIsAdmin(t *testing.T) {
	m := testManager()
	token, err := m.GenerateAccessToken(UserClaims{UserID: "svc", Role: RoleServiceRole})
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)
}

func sign(t *testing.T, secret string, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTManager_Rejects(t *testing.T) {
	m := testManager()
	secret := "super-secret-jwt-token-with-at-least-32-characters"
	valid := jwt.RegisteredClaims{
		Subject:   "u-1",
		Audience:  jwt.ClaimStrings{"authenticated"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongAudience := valid
	wrongAudience.Audience = jwt.ClaimStrings{"anon"}

	noSubject := valid
	noSubject.Subject = ""

	noExpiry := valid
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-jwt", ErrInvalidToken},
		{"wrong secret", sign(t, "another-secret", jwt.SigningMethodHS256, Claims{RegisteredClaims: valid}), ErrInvalidToken},
		{"wrong algorithm", sign(t, secret, jwt.SigningMethodHS512, Claims{RegisteredClaims: valid}), ErrInvalidToken},
		{"expired", sign(t, secret, jwt.SigningMethodHS256, Claims{RegisteredClaims: expired}), ErrTokenExpired},
		{"wrong audience", sign(t, secret, jwt.SigningMethodHS256, Claims{RegisteredClaims: wrongAudience}), ErrInvalidToken},
		{"no subject", sign(t, secret, jwt.SigningMethodHS256, Claims{RegisteredClaims: noSubject}), ErrInvalidToken},
		{"no expiry", sign(t, secret, jwt.SigningMethodHS256, Claims{RegisteredClaims: noExpiry}), ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ValidateAccessToken(tt.token)
			assert.Equal(t, tt.want, err)
		})
	}
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "admin": IsAdmin(c)})
	})
	r.GET("/admin", RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestMiddleware(t *testing.T) {
	m := testManager()
	r := newRouter(Middleware(m))

	userToken, _ := m.GenerateAccessToken(UserClaims{UserID: "u-1"})
	adminToken, _ := m.GenerateAccessToken(UserClaims{UserID: "u-2", IsAdmin: true})

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"no header", "/me", "", http.StatusUnauthorized},
		{"basic scheme", "/me", "Basic abc", http.StatusUnauthorized},
		{"bad token", "/me", "Bearer nope", http.StatusUnauthorized},
		{"user", "/me", "Bearer " + userToken, http.StatusOK},
		{"user on admin route", "/admin", "Bearer " + userToken, http.StatusForbidden},
		{"admin on admin route", "/admin", "Bearer " + adminToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestTokenFromQuery(t *testing.T) {
	m := testManager()
	r := newRouter(TokenFromQuery(), Middleware(m))
	token, _ := m.GenerateAccessToken(UserClaims{UserID: "u-9"})

	req := httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"u-9"`)
}

func TestDisabledMiddleware(t *testing.T) {
	r := newRouter(DisabledMiddleware("00000000-0000-0000-0000-000000000000"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"00000000-0000-0000-0000-000000000000"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
