// Package server is the HTTP transport for ingestion and reads.
//
// Routes:
//
//	GET  /health
//	POST /api/ops/events
//	GET  /api/read/binding/:tagUid
//	GET  /api/read/placement/:type/:id
//	GET  /api/read/tx/:txId
//	GET  /metrics              (when a Gatherer is configured)
//
// Unknown routes answer 404 {"error":"NOT_FOUND"}.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/aether/internal/config"
	"github.com/roach88/aether/internal/query"
)

// Deps are the collaborators a handler needs. Ingest and Query are
// required; the rest have defaults.
type Deps struct {
	Ingest       Submitter
	Query        *query.Service
	Gatherer     prometheus.Gatherer // nil disables /metrics
	Observer     HTTPObserver        // nil disables request metrics
	IDs          IDGenerator         // default UUIDv7Generator
	MaxBodyBytes int64               // default config.DefaultMaxBodyBytes
	Now          func() time.Time    // default time.Now
}

// NewHandler builds the router.
func NewHandler(d Deps) *gin.Engine {
	if d.IDs == nil {
		d.IDs = UUIDv7Generator{}
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = config.DefaultMaxBodyBytes
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	r := gin.New()
	r.Use(requestID(d.IDs), accessLog(d.Observer), recovery())

	r.GET("/health", handleHealth(d.Now))
	r.POST("/api/ops/events", handleEvents(d.Ingest, d.MaxBodyBytes))

	read := r.Group("/api/read")
	read.GET("/binding/:tagUid", handleBinding(d.Query))
	read.GET("/placement/:type/:id", handlePlacement(d.Query))
	read.GET("/tx/:txId", handleTransaction(d.Query))

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	r.NoRoute(handleNoRoute)
	return r
}

// Server owns the listening HTTP server.
type Server struct {
	addr            string
	httpServer      *http.Server
	shutdownTimeout time.Duration
}

// New wraps handler in an http.Server listening on addr.
func New(addr string, handler http.Handler, shutdownTimeout time.Duration) *Server {
	return &Server{
		addr: addr,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

// ListenAndServe runs the HTTP server until ctx ends.
//
// On cancellation, it performs a bounded shutdown so in-flight requests
// are drained before hard close.
func (s *Server) ListenAndServe(ctx context.Context) error {
	serveErr := make(chan error, 1)
	slog.Info("http server listening", "addr", s.addr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		slog.Info("http server stopped")
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
