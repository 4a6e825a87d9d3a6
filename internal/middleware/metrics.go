package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestObserver receives one observation per served request.
type RequestObserver interface {
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
	ObserveUpload(variant string, size int64)
}

var unobservedPaths = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
}

// Metrics records latency per route template. Probe and scrape endpoints are skipped,
// and multipart uploads also report their body size labelled by import variant.
func Metrics(observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if observer == nil {
			c.Next()
			return
		}
		path := c.FullPath()
		if _, skip := unobservedPaths[path]; skip {
			c.Next()
			return
		}
		if path == "" {
			path = "unmatched"
		}
		if c.Request.Method == http.MethodPost {
			if variant := c.Param("variant"); variant != "" {
				observer.ObserveUpload(variant, c.Request.ContentLength)
			}
		}

		start := time.Now()
		c.Next()
		observer.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
