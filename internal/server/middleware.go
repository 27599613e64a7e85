package server

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPObserver records served requests. *metrics.Metrics implements it.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// unmatchedRoute labels requests that hit no route.
const unmatchedRoute = "unmatched"

// accessLog writes one line per request and feeds the observer.
func accessLog(obs HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", RequestID(c),
		)

		if obs != nil {
			route := c.FullPath()
			if route == "" {
				route = unmatchedRoute
			}
			obs.ObserveHTTP(c.Request.Method, route, status, elapsed)
		}
	}
}

// recovery turns a handler panic into a 500 INTERNAL_ERROR body.
func recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		slog.Error("handler panic",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", RequestID(c),
			"panic", recovered,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: CodeInternal})
	})
}
