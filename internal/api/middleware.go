package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/claudeproxy/claudeproxy/internal/apierror"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware rejects requests unless the proxy access key is supplied
// via "x-api-key" or "Authorization: Bearer <key>", compared in constant
// time against the configured proxyAccessKey.
func (s *Server) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := s.Store.Get().ProxyAccessKey
		supplied := extractProxyKey(c.Request)

		if expected == "" || supplied == "" || !constantTimeEqual(supplied, expected) {
			apiErr := apierror.NewAuthError()
			c.AbortWithStatusJSON(apiErr.Status, apiErr.Body())
			return
		}
		c.Next()
	}
}

func extractProxyKey(r *http.Request) string {
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
