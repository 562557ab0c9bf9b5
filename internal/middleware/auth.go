package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/pkg/jwt"
	"github.com/gin-gonic/gin"
)

const (
	ctxUserID      = "userID"
	ctxDisplayName = "displayName"
	ctxEmail       = "email"
	ctxPhotoURL    = "photoURL"
	ctxProvider    = "provider"
)

// JWTAuth verifies the identity provider token. Browsers cannot set headers on a
// WebSocket upgrade, so the token may also arrive as the "token" query parameter.
func JWTAuth(jwtManager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c)
		if err != nil {
			common.ErrorResponse(c, http.StatusUnauthorized, err.Error(), nil)
			c.Abort()
			return
		}

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			if errors.Is(err, jwt.ErrExpiredToken) {
				common.ErrorResponse(c, http.StatusUnauthorized, "Token expired", err)
			} else {
				common.ErrorResponse(c, http.StatusUnauthorized, "Invalid token", err)
			}
			c.Abort()
			return
		}
		if !domain.ValidIdentityID(claims.UserID) {
			common.ErrorResponse(c, http.StatusUnauthorized, "Invalid token subject", nil)
			c.Abort()
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxDisplayName, claims.DisplayName)
		c.Set(ctxEmail, claims.Email)
		c.Set(ctxPhotoURL, claims.PhotoURL)
		c.Set(ctxProvider, claims.Provider)

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", errors.New("Missing authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errors.New("Invalid authorization header format")
	}
	return parts[1], nil
}

// GetUserID extracts user ID from context
func GetUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// GetIdentity returns everything the token vouched for
func GetIdentity(c *gin.Context) domain.Identity {
	return domain.Identity{
		UserID:      c.GetString(ctxUserID),
		DisplayName: c.GetString(ctxDisplayName),
		Email:       c.GetString(ctxEmail),
		PhotoURL:    c.GetString(ctxPhotoURL),
		Provider:    c.GetString(ctxProvider),
	}
}
