package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxUsername = "username"
	ctxTenantID = "tenant_id"
)

// ─── Tenant-bound JWT auth ────────────────────────────────────────────────────

// Claims is the payload embedded in every JWT issued by /api/v1/auth/login.
type Claims struct {
	Username string `json:"username"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// GenerateJWT creates a signed HS256 JWT bound to one tenant.
func (s *Server) GenerateJWT(username, tenantID string) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "iotlinker",
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// parseJWT validates a token string and returns the claims.
func (s *Server) parseJWT(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer("iotlinker"))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// jwtMiddleware validates the management-API token.
// It expects the header:  Authorization: Bearer <jwt>
// Browsers cannot set headers on websocket upgrades, so ?access_token= is
// accepted as well.
func (s *Server) jwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("access_token")
		if raw := c.GetHeader("Authorization"); raw != "" {
			parts := strings.SplitN(raw, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "invalid Authorization format, expected: Bearer <token>",
					"code":  "authentication_failed",
				})
				return
			}
			tokenStr = parts[1]
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing Authorization header",
				"code":  "authentication_failed",
			})
			return
		}

		claims, err := s.parseJWT(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
				"code":  "authentication_failed",
			})
			return
		}

		c.Set(ctxUsername, claims.Username)
		c.Set(ctxTenantID, claims.TenantID)
		c.Next()
	}
}

// authorizeTenant writes a 403 unless the token was issued for tenantID.
// Without auth every tenant is reachable.
func (s *Server) authorizeTenant(c *gin.Context, tenantID string) bool {
	if !s.cfg.AuthEnabled {
		return true
	}
	if c.GetString(ctxTenantID) != tenantID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "token is not valid for this tenant",
			"code":  "forbidden",
		})
		return false
	}
	return true
}

// handleLogin accepts admin credentials plus a tenant and returns a signed JWT.
//
//	POST /api/v1/auth/login
//	Body: { "username": "admin", "password": "admin", "tenant_id": "<uuid>" }
func (s *Server) handleLogin(c *gin.Context) {
	var body struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		TenantID string `json:"tenant_id" binding:"required,uuid"`
	}
	if !s.bindJSON(c, &body) {
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(body.Username), []byte(s.cfg.AdminUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(body.Password), []byte(s.cfg.AdminPass)) == 1
	if !userOK || !passOK {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials", "code": "authentication_failed"})
		return
	}

	token, err := s.GenerateJWT(body.Username, body.TenantID)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(s.cfg.TokenTTL.Seconds()),
		"type":       "Bearer",
	})
}
