package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"campusline/models"
	"campusline/session"
	"campusline/utils"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// AuthMiddleware requires a valid, unrevoked bearer token.
func AuthMiddleware(tokens *utils.TokenManager, revoker session.Revoker) gin.HandlerFunc {
	return authenticate(tokens, revoker, false)
}

// BeaconAuthMiddleware also accepts the token as a ?token= query parameter,
// for requests sent during page teardown that cannot set headers.
func BeaconAuthMiddleware(tokens *utils.TokenManager, revoker session.Revoker) gin.HandlerFunc {
	return authenticate(tokens, revoker, true)
}

func authenticate(tokens *utils.TokenManager, revoker session.Revoker, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok && allowQuery {
			token = c.Query("token")
		}
		if token == "" {
			utils.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		claims, err := tokens.ParseToken(token)
		if err != nil {
			utils.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		if revoker != nil && revoker.IsRevoked(c.Request.Context(), claims.UserID, claims.IssuedTime()) {
			utils.Unauthorized(c, "session has been revoked, please sign in again")
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

// RequireRole aborts with 403 unless the caller has one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		utils.Forbidden(c, "insufficient role")
		c.Abort()
	}
}

// RequirePrivileged allows instructors and admins.
func RequirePrivileged() gin.HandlerFunc {
	return RequireRole(models.RoleInstructor, models.RoleAdmin)
}

func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func GetRole(c *gin.Context) string {
	return c.GetString(roleKey)
}
