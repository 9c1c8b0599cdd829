package middlewares

import (
	"net/http"
	"strings"

	authUtils "civicbounty-be/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "user_id"

func bearerToken(c *gin.Context) string {
	authHeader := c.Request.Header.Get("Authorization")
	if authHeader != "" {
		// Extracting token from "Bearer <token>" format
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if cookie, err := c.Cookie(authUtils.CookieName); err == nil {
		return cookie
	}
	return ""
}

// AuthMiddleware accepts a token from the Authorization header or the
// auth cookie and stores its user id in the context.
func AuthMiddleware(secret string, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No authorization token provided"})
			c.Abort()
			return
		}

		userID, err := authUtils.ParseToken(secret, tokenString)
		if err != nil {
			log.WithError(err).WithField("path", c.Request.URL.Path).Debug("token validation failed")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization token"})
			c.Abort()
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}
