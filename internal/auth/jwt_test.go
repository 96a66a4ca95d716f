package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenValidator_IssueAndValidate(t *testing.T) {
	v := NewTokenValidator("test-secret", "quality-gin")

	token, err := v.IssueToken("worker-1", time.Hour)
	require.NoError(t, err)

	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "worker-1", claims.Sub)
	assert.Equal(t, "quality-gin", claims.Issuer)
}

func TestTokenValidator_RejectsWrongSecret(t *testing.T) {
	issuer := NewTokenValidator("secret-a", "quality-gin")
	verifier := NewTokenValidator("secret-b", "quality-gin")

	token, err := issuer.IssueToken("worker-1", time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenValidator_RejectsWrongIssuer(t *testing.T) {
	issuer := NewTokenValidator("test-secret", "other-service")
	verifier := NewTokenValidator("test-secret", "quality-gin")

	token, err := issuer.IssueToken("worker-1", time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenValidator_RejectsExpired(t *testing.T) {
	v := NewTokenValidator("test-secret", "quality-gin")

	token, err := v.IssueToken("worker-1", -time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenValidator_EmptyToken(t *testing.T) {
	v := NewTokenValidator("test-secret", "quality-gin")

	_, err := v.ValidateToken("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestTokenValidator_Disabled(t *testing.T) {
	v := NewTokenValidator("", "quality-gin")
	assert.False(t, v.Enabled())

	_, err := v.IssueToken("worker-1", time.Hour)
	assert.Error(t, err)
}

func newAuthTestRouter(validator *TokenValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AuthMiddleware(validator))
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id")})
	})
	return router
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	v := NewTokenValidator("test-secret", "quality-gin")
	router := newAuthTestRouter(v)

	token, err := v.IssueToken("worker-1", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "worker-1")
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	v := NewTokenValidator("test-secret", "quality-gin")
	router := newAuthTestRouter(v)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_DisabledPassthrough(t *testing.T) {
	v := NewTokenValidator("", "quality-gin")
	router := newAuthTestRouter(v)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-ID", "worker-2")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "worker-2")
}
