package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/solatis/policyrouter/internal/core/api"
	"github.com/solatis/policyrouter/internal/core/auth"
	"github.com/solatis/policyrouter/internal/core/config"
	"github.com/solatis/policyrouter/internal/core/metrics"
)

// HTTPServer serves the JSON evaluation API, health and metrics.
type HTTPServer struct {
	server *http.Server
	engine *gin.Engine
	logger *zap.Logger
}

// NewHTTPServer builds the gin router.
//
// Routes:
//
//	POST /v1/evaluate  evaluation (auth, rate limit)
//	GET  /v1/policies  active policy set (auth, rate limit)
//	GET  /healthz      200 once a policy set is loaded, else 503
//	GET  /metrics      Prometheus exposition (when m is non-nil)
func NewHTTPServer(cfg *config.RouterAPIConfig, service *api.PolicyRouterService, engines api.EngineProvider, authenticator *auth.Authenticator, limiter *RateLimiter, m *metrics.Metrics, logger *zap.Logger) (*HTTPServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger, m))

	engine.GET("/healthz", func(c *gin.Context) {
		e, err := engines.Engine()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": e.Version(), "policies": e.Store().Len()})
	})
	if m != nil {
		engine.GET("/metrics", gin.WrapH(m.Handler()))
	}

	protected := engine.Group("/", timeoutMiddleware(cfg.RequestTimeout))
	if limiter != nil {
		protected.Use(limiter.GinMiddleware())
	}
	if authenticator != nil {
		protected.Use(authenticator.GinMiddleware())
	}
	service.RegisterRoutes(protected)

	return &HTTPServer{
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.HTTPPort)),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		logger: logger,
	}, nil
}

// Handler returns the router, for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown. Returns nil after a clean shutdown.
func (s *HTTPServer) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve HTTP on %s: %w", s.server.Addr, err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx ends.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requestLogger logs each request and records it in m when non-nil.
// The route label is the registered pattern to keep metric cardinality bounded.
func requestLogger(logger *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		code := c.Writer.Status()
		if m != nil {
			m.RecordHTTPRequest(c.Request.Method, route, code)
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", code),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if clientID := auth.ClientIDFromContext(c.Request.Context()); clientID != "" {
			fields = append(fields, zap.String("client_id", clientID))
		}
		if code >= http.StatusInternalServerError {
			logger.Warn("HTTP request failed", fields...)
		} else {
			logger.Debug("HTTP request", fields...)
		}
	}
}

// timeoutMiddleware bounds the request context.
func timeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
