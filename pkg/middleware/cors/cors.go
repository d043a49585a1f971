package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowHeaders = "Authorization, Content-Type, X-Requested-With, X-Request-ID"
	allowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
)

// New builds a CORS middleware from a whitelist of origins. An empty
// whitelist opens the API to any origin, which is the dev default.
func New(origins []string) gin.HandlerFunc {
	whitelist := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		whitelist[normalize(o)] = struct{}{}
	}
	open := len(whitelist) == 0

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Add("Vary", "Origin")

		switch origin := c.GetHeader("Origin"); {
		case origin == "":
			if open {
				h.Set("Access-Control-Allow-Origin", "*")
			}
		case open:
			h.Set("Access-Control-Allow-Origin", origin)
		default:
			if _, ok := whitelist[normalize(origin)]; ok {
				h.Set("Access-Control-Allow-Origin", origin)
			}
		}

		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func normalize(origin string) string {
	return strings.ToLower(strings.TrimRight(origin, "/"))
}
