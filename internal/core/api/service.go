// Package api implements the policyrouter evaluation API for gRPC and HTTP.
//
// Both transports convert their request into a plain attribute map (or raw
// JSON payload) and call the same service methods; the response shape is
// shared as well, built from Evaluation.Map and Snapshot.Map.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/policyrouter/internal/core/auth"
	"github.com/solatis/policyrouter/internal/core/metrics"
	"github.com/solatis/policyrouter/internal/rules"
	"github.com/solatis/policyrouter/internal/types"
)

// Transport labels for logs and metrics.
const (
	TransportGRPC = "grpc"
	TransportHTTP = "http"
	TransportCLI  = "cli"
)

// EngineProvider returns the engine to evaluate against.
// Implemented by *policy.Registry.
type EngineProvider interface {
	Engine() (*rules.Engine, error)
}

// PolicyRouterService evaluates events against the active policy set.
// Thin orchestration layer delegating to the rules engine.
type PolicyRouterService struct {
	engines EngineProvider
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewPolicyRouterService creates service instance with dependencies.
// logger and m may be nil.
func NewPolicyRouterService(engines EngineProvider, logger *zap.Logger, m *metrics.Metrics) (*PolicyRouterService, error) {
	if engines == nil {
		return nil, fmt.Errorf("engines cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyRouterService{engines: engines, logger: logger, metrics: m}, nil
}

// Evaluation is the result of one evaluation request.
type Evaluation struct {
	ID       types.EvaluationID
	Decision rules.Decision
	Version  string // policy set version the decision was made against
}

// EvaluateEvent evaluates an attribute map. id may be empty, in which case a
// new evaluation ID is generated.
func (s *PolicyRouterService) EvaluateEvent(ctx context.Context, transport string, id types.EvaluationID, raw map[string]any) (*Evaluation, error) {
	return s.evaluate(ctx, transport, id, func(e *rules.Engine) (rules.Decision, error) {
		return e.Evaluate(raw), nil
	})
}

// EvaluatePayload evaluates a raw JSON object.
// Returns types.ErrEventNotObject when payload is not a JSON object.
func (s *PolicyRouterService) EvaluatePayload(ctx context.Context, transport string, id types.EvaluationID, payload types.Payload) (*Evaluation, error) {
	if len(payload) > types.MaxPayloadSize {
		return nil, types.ErrPayloadTooLarge
	}
	return s.evaluate(ctx, transport, id, func(e *rules.Engine) (rules.Decision, error) {
		return e.EvaluateJSON([]byte(payload))
	})
}

func (s *PolicyRouterService) evaluate(ctx context.Context, transport string, id types.EvaluationID, run func(*rules.Engine) (rules.Decision, error)) (*Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// One engine for the whole request; a concurrent reload swaps the
	// registry pointer but never this local.
	engine, err := s.engines.Engine()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	decision, err := run(engine)
	elapsed := time.Since(start)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObserveEvaluation(transport, "invalid", elapsed)
		}
		return nil, err
	}

	if id == "" {
		id = types.NewEvaluationID()
	}
	if s.metrics != nil {
		s.metrics.ObserveEvaluation(transport, decision.Outcome.String(), elapsed)
	}

	if ce := s.logger.Check(zap.DebugLevel, "event evaluated"); ce != nil {
		fields := []zap.Field{
			zap.String("evaluation_id", string(id)),
			zap.String("transport", transport),
			zap.String("outcome", decision.Outcome.String()),
			zap.Int("projected_fields", len(decision.Projected)),
			zap.Strings("matched_policies", decision.Result.Names()),
			zap.Duration("duration", elapsed),
		}
		if clientID := auth.ClientIDFromContext(ctx); clientID != "" {
			fields = append(fields, zap.String("client_id", clientID))
		}
		ce.Write(fields...)
	}

	return &Evaluation{ID: id, Decision: decision, Version: engine.Version()}, nil
}

// Map renders the evaluation in the shared response shape. Policy metadata
// keeps json.Number values; gRPC responses go through newStruct.
func (ev *Evaluation) Map() map[string]any {
	projected := make(map[string]any, len(ev.Decision.Projected))
	for k, v := range ev.Decision.Projected {
		projected[k] = v
	}

	names := ev.Decision.Result.Names()
	matched := make([]any, len(names))
	for i, n := range names {
		matched[i] = n
	}

	out := map[string]any{
		"evaluation_id":    string(ev.ID),
		"matched":          ev.Decision.Outcome == rules.OutcomeMatched,
		"outcome":          ev.Decision.Outcome.String(),
		"policy":           nil,
		"matched_policies": matched,
		"projected_fields": projected,
		"policy_version":   ev.Version,
	}
	if p := ev.Decision.Policy(); p != nil {
		out["policy"] = policyMap(p, false)
	}
	return out
}

// policyMap renders a policy; withRules adds the normalised rule expression.
func policyMap(p *types.Policy, withRules bool) map[string]any {
	metadata := make(map[string]any, len(p.Config.Metadata))
	for k, v := range p.Config.Metadata {
		metadata[k] = v
	}

	out := map[string]any{
		"name":     p.Name,
		"priority": p.Priority,
		"url":      p.Config.URL,
		"metadata": metadata,
	}
	if withRules {
		ruleMap := make(map[string]any, len(p.Rules))
		for field, values := range p.Rules {
			list := make([]any, len(values))
			for i, v := range values {
				list[i] = v
			}
			ruleMap[field] = list
		}
		out["rules"] = ruleMap
		out["matchable"] = p.Matchable()
	}
	return out
}

// newStruct encodes a response map for gRPC. HTTP encodes the same map with
// encoding/json, which keeps json.Number digits exact.
func newStruct(m map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(structValue(m).(map[string]any))
}

// structValue converts response values into ones structpb.NewValue accepts.
// json.Number becomes float64, or stays text when it overflows a double.
func structValue(v any) any {
	switch v := v.(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = structValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = structValue(e)
		}
		return out
	default:
		return v
	}
}
