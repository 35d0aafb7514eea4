package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jameswong3388/AE-Logs-Analyzer/internal/aggregator"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/concurrency"
	"github.com/jameswong3388/AE-Logs-Analyzer/internal/hub"
)

// Server exposes the aggregated state over HTTP and streams merge updates
// over a WebSocket.
type Server struct {
	engine     *gin.Engine
	hub        *hub.Hub
	aggregator *aggregator.Aggregator
	addr       string
	started    time.Time
	log        zerolog.Logger
}

// New creates a status server. h may be nil, in which case /ws is not
// registered.
func New(h *hub.Hub, agg *aggregator.Aggregator, addr string, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	// Disable automatic redirects that cause 301 issues.
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false

	s := &Server{
		engine:     engine,
		hub:        h,
		aggregator: agg,
		addr:       addr,
		started:    time.Now(),
		log:        log.With().Str("component", "server").Logger(),
	}

	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		snap := s.aggregator.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).Round(time.Second).String(),
			"sources": len(snap.Sources),
			"failed":  len(snap.Failed()),
		})
	})

	api := s.engine.Group("/api")
	api.GET("/sources", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.aggregator.Snapshot().Sources)
	})
	api.GET("/jobs", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.aggregator.Snapshot().JobList())
	})
	api.GET("/reports", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.aggregator.Snapshot().ReportList())
	})
	api.GET("/events", s.handleEvents)
	api.GET("/observations", func(c *gin.Context) {
		snap := s.aggregator.Snapshot()
		series := concurrency.Compute(snap.JobList())
		c.JSON(http.StatusOK, slices.Concat(snap.Observations, series.Observations))
	})
	api.GET("/concurrency", func(c *gin.Context) {
		c.JSON(http.StatusOK, concurrency.Compute(s.aggregator.Snapshot().JobList()))
	})

	if s.hub != nil {
		s.engine.GET("/ws", s.handleWebSocket)
	}

	// pprof profiling endpoints.
	s.engine.GET("/debug/pprof/", gin.WrapF(pprof.Index))
	s.engine.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
	s.engine.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
	s.engine.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
	s.engine.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	s.engine.GET("/debug/pprof/allocs", gin.WrapH(pprof.Handler("allocs")))
	s.engine.GET("/debug/pprof/heap", gin.WrapH(pprof.Handler("heap")))
	s.engine.GET("/debug/pprof/goroutine", gin.WrapH(pprof.Handler("goroutine")))
}

// handleEvents returns the merged event log, optionally only the last
// ?limit entries.
func (s *Server) handleEvents(c *gin.Context) {
	events := s.aggregator.Snapshot().Events
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		if n < len(events) {
			events = events[len(events)-n:]
		}
	}
	c.JSON(http.StatusOK, events)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("status server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
