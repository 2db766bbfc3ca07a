package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/policyrouter/internal/types"
)

// EvaluationIDHeader lets HTTP callers supply their own correlation ID.
const EvaluationIDHeader = "X-Evaluation-ID"

// Evaluate evaluates one event delivered as a protobuf Struct.
// Nested values in the Struct are ignored by projection; numbers arrive as
// doubles, so integers beyond 2^53 lose precision on this transport.
func (s *PolicyRouterService) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, types.ErrEventNotObject.Error())
	}

	ev, err := s.EvaluateEvent(ctx, TransportGRPC, s.grpcEvaluationID(ctx), req.AsMap())
	if err != nil {
		return nil, grpcError(err)
	}

	out, err := newStruct(ev.Map())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// grpcEvaluationID reads a caller-supplied ID from metadata, if valid.
func (s *PolicyRouterService) grpcEvaluationID(ctx context.Context) types.EvaluationID {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(EvaluationIDMetadata)
	if len(values) == 0 {
		return ""
	}
	return s.parseEvaluationID(values[0])
}

// parseEvaluationID accepts a caller-supplied ID only when it is a UUID.
func (s *PolicyRouterService) parseEvaluationID(raw string) types.EvaluationID {
	if raw == "" {
		return ""
	}
	id, err := types.ParseEvaluationID(raw)
	if err != nil {
		s.logger.Debug("ignoring malformed evaluation id", zap.Error(err))
		return ""
	}
	return id
}

// handleEvaluate serves POST /v1/evaluate. The body must be a JSON object.
// No match is a successful response with matched=false.
func (s *PolicyRouterService) handleEvaluate(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, types.MaxPayloadSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeHTTPError(c, types.ErrPayloadTooLarge)
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	id := s.parseEvaluationID(c.GetHeader(EvaluationIDHeader))
	ev, err := s.EvaluatePayload(c.Request.Context(), TransportHTTP, id, types.Payload(body))
	if err != nil {
		writeHTTPError(c, err)
		return
	}

	c.Header(EvaluationIDHeader, string(ev.ID))
	c.JSON(http.StatusOK, ev.Map())
}

func writeHTTPError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(httpStatus(err), gin.H{"error": err.Error()})
}
