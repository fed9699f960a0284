package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS sets CORS headers for browser clients of the REST API and the WebSocket upgrade.
// allowedOrigins is "*" or a comma-separated list of origins.
func CORS(allowedOrigins string) gin.HandlerFunc {
	origins := parseOrigins(allowedOrigins)
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allow := allowOrigin(origins, origin); allow != "" {
			c.Header("Access-Control-Allow-Origin", allow)
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
			if allow != "*" {
				c.Header("Vary", "Origin")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// OriginAllowed reports whether origin passes the same policy CORS applies. An empty
// origin (non-browser client) is always allowed.
func OriginAllowed(allowedOrigins, origin string) bool {
	return origin == "" || allowOrigin(parseOrigins(allowedOrigins), origin) != ""
}

func allowOrigin(origins map[string]bool, origin string) string {
	if len(origins) == 0 || origins["*"] {
		return "*"
	}
	if origin != "" && origins[origin] {
		return origin
	}
	return ""
}

func parseOrigins(s string) map[string]bool {
	m := make(map[string]bool)
	for _, o := range strings.Split(strings.TrimSpace(s), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			m[o] = true
		}
	}
	return m
}
