package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/payroll_backend/utils"
)

const bearerPrefix = "Bearer "

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AuthMiddleware puts the acting employee and role from a bearer token on
// the request context. Requests without a token pass through; RequireActor
// rejects them where an actor is needed. A malformed or invalid token is
// always a 401.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(auth, bearerPrefix) {
			abortUnauthorized(c)
			return
		}

		claims, err := utils.JwtValidate(strings.TrimSpace(auth[len(bearerPrefix):]))
		if err != nil {
			abortUnauthorized(c)
			return
		}

		ctx := utils.SetActorIdInContext(c.Request.Context(), claims.EmployeeId())
		ctx = utils.SetActorRoleInContext(ctx, claims.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireActor aborts with 401 unless AuthMiddleware accepted a token.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetActorIdFromContext(c.Request.Context()); !ok {
			abortUnauthorized(c)
			return
		}
		c.Next()
	}
}
