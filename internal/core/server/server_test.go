package server

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/policyrouter/internal/core/api"
	"github.com/solatis/policyrouter/internal/core/auth"
	"github.com/solatis/policyrouter/internal/core/config"
	"github.com/solatis/policyrouter/internal/core/metrics"
	"github.com/solatis/policyrouter/internal/core/policy"
	"github.com/solatis/policyrouter/internal/rules"
	"github.com/solatis/policyrouter/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedEngine struct {
	engine *rules.Engine
}

func (f fixedEngine) Engine() (*rules.Engine, error) {
	if f.engine == nil {
		return nil, policy.ErrNotLoaded
	}
	return f.engine, nil
}

func testEngine(t *testing.T) *rules.Engine {
	t.Helper()
	engine, err := rules.NewEngine([]types.PolicyDefinition{
		{
			Name:      "web",
			RulesExpr: map[string]any{"platform": []any{"web"}},
			Config:    types.PolicyConfig{URL: "http://web.example"},
		},
	})
	require.NoError(t, err)
	return engine
}

func testConfig() *config.RouterAPIConfig {
	cfg := config.DefaultConfig().RouterAPI
	return &cfg
}

func newHTTP(t *testing.T, engines api.EngineProvider, limiter *RateLimiter, m *metrics.Metrics) *HTTPServer {
	t.Helper()
	svc, err := api.NewPolicyRouterService(engines, nil, m)
	require.NoError(t, err)
	srv, err := NewHTTPServer(testConfig(), svc, engines, nil, limiter, m, nil)
	require.NoError(t, err)
	return srv
}

func TestNewRateLimiterDisabled(t *testing.T) {
	assert.Nil(t, NewRateLimiter(0, 10, nil, nil))
	assert.Nil(t, NewRateLimiter(-1, 10, nil, nil))
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil, nil)
	require.NotNil(t, rl)

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
}

func TestRateLimiterUnaryInterceptor(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil, metrics.New("test"))
	interceptor := rl.UnaryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: api.EvaluateMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil }

	resp, err := interceptor(context.Background(), nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)

	_, err = interceptor(context.Background(), nil, info, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestHTTPRateLimit(t *testing.T) {
	srv := newHTTP(t, fixedEngine{engine: testEngine(t)}, NewRateLimiter(1, 1, nil, nil), nil)

	do := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(`{"platform":"web"}`))
		srv.Handler().ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}

func TestHealthz(t *testing.T) {
	t.Run("loaded", func(t *testing.T) {
		srv := newHTTP(t, fixedEngine{engine: testEngine(t)}, nil, nil)

		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"ok"`)
	})

	t.Run("not loaded", func(t *testing.T) {
		srv := newHTTP(t, fixedEngine{}, nil, nil)

		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestHealthzNotRateLimited(t *testing.T) {
	srv := newHTTP(t, fixedEngine{engine: testEngine(t)}, NewRateLimiter(1, 1, nil, nil), nil)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New("test")
	srv := newHTTP(t, fixedEngine{engine: testEngine(t)}, nil, m)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/evaluate", bytes.NewBufferString(`{"platform":"web"}`)))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "test_evaluations_total")
	assert.Contains(t, body, `route="/v1/evaluate"`)
}

func TestNewServersValidateArguments(t *testing.T) {
	_, err := NewGRPCServer(nil, nil, nil, nil, nil)
	assert.Error(t, err)
	_, err = NewGRPCServer(testConfig(), nil, nil, nil, nil)
	assert.Error(t, err)
	_, err = NewHTTPServer(nil, nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func startGRPC(t *testing.T, limiter *RateLimiter) *grpc.ClientConn {
	t.Helper()
	svc, err := api.NewPolicyRouterService(fixedEngine{engine: testEngine(t)}, nil, nil)
	require.NoError(t, err)
	srv, err := NewGRPCServer(testConfig(), svc, nil, limiter, nil)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGRPCServerEvaluate(t *testing.T) {
	conn := startGRPC(t, nil)
	client := api.NewPolicyRouterClient(conn)

	req, err := structpb.NewStruct(map[string]any{"platform": "web"})
	require.NoError(t, err)

	resp, err := client.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.AsMap()["matched"].(bool))
	assert.Equal(t, "web", resp.AsMap()["policy"].(map[string]any)["name"])
}

func TestGRPCServerHealth(t *testing.T) {
	conn := startGRPC(t, nil)
	client := grpc_health_v1.NewHealthClient(conn)

	resp, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)
}

func TestGRPCServerRateLimit(t *testing.T) {
	conn := startGRPC(t, NewRateLimiter(1, 1, nil, nil))
	client := api.NewPolicyRouterClient(conn)

	req, err := structpb.NewStruct(map[string]any{"platform": "web"})
	require.NoError(t, err)

	_, err = client.Evaluate(context.Background(), req)
	require.NoError(t, err)
	_, err = client.Evaluate(context.Background(), req)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestTimeoutInterceptor(t *testing.T) {
	interceptor := timeoutInterceptor(50 * time.Millisecond)
	info := &grpc.UnaryServerInfo{FullMethod: api.EvaluateMethod}

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
		return nil, nil
	})
	require.NoError(t, err)

	_, err = timeoutInterceptor(0)(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestRateLimiterSkipsHealth(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil, nil)
	interceptor := rl.UnaryInterceptor(healthMethods...)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) { return nil, nil }

	for i := 0; i < 3; i++ {
		_, err := interceptor(context.Background(), nil, info, handler)
		require.NoError(t, err)
	}
}

func TestHTTPAuthRequired(t *testing.T) {
	engines := fixedEngine{engine: testEngine(t)}
	svc, err := api.NewPolicyRouterService(engines, nil, nil)
	require.NoError(t, err)
	authenticator := auth.NewAuthenticator(map[string][]byte{"0123456789abcdef0123456789abcdef": []byte("secret")}, nil, nil)
	srv, err := NewHTTPServer(testConfig(), svc, engines, authenticator, nil, nil, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/evaluate", strings.NewReader(`{"platform":"web"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/policies", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
