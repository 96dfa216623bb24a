package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const unmatchedRoute = "unmatched"

type requestObserver interface {
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
}

// Metrics records latency and status for every routed request. Probe and scrape
// endpoints are passed through unrecorded; requests that match no route share one
// label so arbitrary URLs cannot grow the series set.
func Metrics(observer requestObserver, skipPrefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if observer == nil || skipPath(c.Request.URL.Path, skipPrefixes) {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		observer.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

func skipPath(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
