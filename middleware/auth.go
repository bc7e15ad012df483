package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"experience-backend/utils"
)

// SupplierIDKey is the gin context key holding the authenticated supplier id.
const SupplierIDKey = "supplierId"

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// NewSupplierToken issues the HS256 dashboard token for a supplier.
func NewSupplierToken(secret, supplierID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", utils.ErrEmptySecret
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   supplierID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseSupplierToken(secret, raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// SupplierAuth requires a valid dashboard JWT and stores its subject under SupplierIDKey.
func SupplierAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c)
		if raw == "" {
			utils.AbortError(c, http.StatusUnauthorized, "error.unauthorized", "missing bearer token")
			return
		}
		supplierID, err := parseSupplierToken(secret, raw)
		if err != nil {
			utils.AbortError(c, http.StatusUnauthorized, "error.unauthorized", "invalid token")
			return
		}
		c.Set(SupplierIDKey, supplierID)
		c.Next()
	}
}

// CronAuth guards the sweep endpoints with the shared CRON_SECRET.
func CronAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			utils.AbortError(c, http.StatusUnauthorized, "error.unauthorized", "invalid cron secret")
			return
		}
		c.Next()
	}
}
