package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken 缺少 Token
	ErrMissingToken = errors.New("missing token")

	// ErrInvalidToken Token 无效
	ErrInvalidToken = errors.New("invalid token")
)

// Claims JWT 声明
type Claims struct {
	Sub   string   `json:"sub"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenValidator HMAC JWT Token 验证器
// secret 为空时验证器处于关闭状态 (开发模式)
type TokenValidator struct {
	secret []byte
	issuer string
}

// NewTokenValidator 创建 Token 验证器
func NewTokenValidator(secret string, issuer string) *TokenValidator {
	return &TokenValidator{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// Enabled 返回验证器是否启用
func (v *TokenValidator) Enabled() bool {
	return len(v.secret) > 0
}

// Issuer 返回 Issuer
func (v *TokenValidator) Issuer() string {
	return v.issuer
}

// ValidateToken 验证 JWT Token
func (v *TokenValidator) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// 只接受 HMAC 签名算法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	// 验证 issuer
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: invalid issuer", ErrInvalidToken)
	}

	if claims.Sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}

	return claims, nil
}

// IssueToken 签发 JWT Token (供测试和开发工具使用)
func (v *TokenValidator) IssueToken(sub string, ttl time.Duration) (string, error) {
	if !v.Enabled() {
		return "", errors.New("validator disabled: empty secret")
	}

	now := time.Now()
	claims := &Claims{
		Sub: sub,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// AuthMiddleware JWT 认证中间件
// 验证器关闭时直接放行, 从 X-User-ID 头读取调用者身份
func AuthMiddleware(validator *TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !validator.Enabled() {
			if userID := c.GetHeader("X-User-ID"); userID != "" {
				c.Set("user_id", userID)
			}
			c.Next()
			return
		}

		token := c.GetHeader("Authorization")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "missing authorization header",
			})
			c.Abort()
			return
		}

		// 移除 "Bearer " 前缀
		token = strings.TrimPrefix(token, "Bearer ")

		claims, err := validator.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "invalid token",
			})
			c.Abort()
			return
		}

		c.Set("user_id", claims.Sub)
		c.Set("user_name", claims.Name)
		c.Set("user_roles", claims.Roles)
		c.Next()
	}
}
