package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnx/live-backend/internal/models"
	"github.com/learnx/live-backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles. Run it after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		roleVal, ok := c.Get(ContextUserRole)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, "missing user context")
			return
		}
		role, _ := roleVal.(string)
		if _, ok := allowed[models.Role(role)]; !ok {
			response.Abort(c, http.StatusForbidden, "insufficient permissions")
			return
		}
		c.Next()
	}
}
