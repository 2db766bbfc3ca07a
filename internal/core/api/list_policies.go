package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/policyrouter/internal/rules"
)

// Snapshot describes the active policy set.
// Version is content-addressable: the same definitions always produce the
// same version, so it doubles as an ETag.
type Snapshot struct {
	engine *rules.Engine
}

// Policies returns a snapshot of the active policy set.
func (s *PolicyRouterService) Policies(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	engine, err := s.engines.Engine()
	if err != nil {
		return nil, err
	}
	return &Snapshot{engine: engine}, nil
}

// Version returns the policy set version.
func (snap *Snapshot) Version() string {
	return snap.engine.Version()
}

// ETag returns the version as a quoted HTTP entity tag.
func (snap *Snapshot) ETag() string {
	return `"` + snap.engine.Version() + `"`
}

// Map renders the snapshot in the shared response shape.
func (snap *Snapshot) Map() map[string]any {
	store := snap.engine.Store()

	all := store.All()
	policies := make([]any, len(all))
	for i, p := range all {
		policies[i] = policyMap(p, true)
	}

	names := store.ReferencedFieldNames().Names()
	fields := make([]any, len(names))
	for i, n := range names {
		fields[i] = n
	}

	ws := store.Warnings()
	warnings := make([]any, len(ws))
	for i, w := range ws {
		warnings[i] = w.String()
	}

	return map[string]any{
		"version":   snap.engine.Version(),
		"etag":      snap.ETag(),
		"loaded_at": snap.engine.LoadedAt().Format(time.RFC3339),
		"policies":  policies,
		"fields":    fields,
		"warnings":  warnings,
	}
}

// ListPolicies returns the active policy set.
func (s *PolicyRouterService) ListPolicies(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snap, err := s.Policies(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	out, err := newStruct(snap.Map())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// handleListPolicies serves GET /v1/policies with ETag support.
func (s *PolicyRouterService) handleListPolicies(c *gin.Context) {
	snap, err := s.Policies(c.Request.Context())
	if err != nil {
		writeHTTPError(c, err)
		return
	}

	etag := snap.ETag()
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.JSON(http.StatusOK, snap.Map())
}

// RegisterRoutes mounts the evaluation API on r.
func (s *PolicyRouterService) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.POST("/evaluate", s.handleEvaluate)
	v1.GET("/policies", s.handleListPolicies)
}
