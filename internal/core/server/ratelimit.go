package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/solatis/policyrouter/internal/core/api"
	"github.com/solatis/policyrouter/internal/core/metrics"
)

// RateLimiter is a token bucket shared by the gRPC and HTTP listeners, so the
// configured rate bounds total evaluation traffic for the process.
type RateLimiter struct {
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRateLimiter returns nil when rps is not positive (rate limiting disabled).
func NewRateLimiter(rps, burst int, logger *zap.Logger, m *metrics.Metrics) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
		metrics: m,
	}
}

// Allow reports whether one more request may proceed now.
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.Allow()
}

func (rl *RateLimiter) reject(transport, method, client string) {
	if rl.metrics != nil {
		rl.metrics.RecordRateLimitHit(transport)
	}
	rl.logger.Warn("rate limit exceeded",
		zap.String("transport", transport),
		zap.String("method", method),
		zap.String("client_addr", client),
	)
}

// UnaryInterceptor rejects requests over the limit with ResourceExhausted.
// Methods listed in skip are never limited.
func (rl *RateLimiter) UnaryInterceptor(skip ...string) grpc.UnaryServerInterceptor {
	exempt := make(map[string]bool, len(skip))
	for _, m := range skip {
		exempt[m] = true
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if exempt[info.FullMethod] {
			return handler(ctx, req)
		}
		if !rl.Allow() {
			rl.reject(api.TransportGRPC, info.FullMethod, peerAddr(ctx))
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

// GinMiddleware rejects requests over the limit with 429.
func (rl *RateLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow() {
			rl.reject(api.TransportHTTP, c.FullPath(), c.ClientIP())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
