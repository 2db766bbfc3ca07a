package policy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/solatis/policyrouter/internal/core/metrics"
	"github.com/solatis/policyrouter/internal/rules"
)

/*
 * Registry holds the active rules engine.
 *
 * Reload workflow:
 *   1. Load definitions from the source
 *   2. Build a new engine (store + index); a ConfigError leaves the current
 *      engine in place
 *   3. Log every PolicyWarning
 *   4. Swap the engine pointer
 *
 * Readers call Engine() once per request and use that engine for the whole
 * evaluation, so a concurrent reload never mixes two policy sets. Reloads are
 * serialised; lookups never block.
 */

// ErrNotLoaded is returned by Engine before the first successful load.
var ErrNotLoaded = errors.New("policy set not loaded")

// Registry owns the current engine and reloads it from a Source.
type Registry struct {
	source  Source
	logger  *zap.Logger
	metrics *metrics.Metrics

	engine atomic.Pointer[rules.Engine]
	mu     sync.Mutex // serialises Reload
}

// NewRegistry creates a registry over source. m may be nil.
func NewRegistry(source Source, logger *zap.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{source: source, logger: logger, metrics: m}
}

// Engine returns the active engine.
func (r *Registry) Engine() (*rules.Engine, error) {
	e := r.engine.Load()
	if e == nil {
		return nil, ErrNotLoaded
	}
	return e, nil
}

// Reload loads the source and swaps in a new engine. On error the active
// engine is unchanged. Returns the engine now active.
func (r *Registry) Reload(ctx context.Context) (*rules.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	log := r.logger.With(zap.String("source", r.source.Describe()))

	defs, err := r.source.Load(ctx)
	if err == nil {
		var engine *rules.Engine
		engine, err = rules.NewEngine(defs)
		if err == nil {
			return r.activate(log, engine, start), nil
		}
	}

	if r.metrics != nil {
		r.metrics.ObserveReload(err, 0, 0)
	}
	log.Error("policy reload failed", zap.Error(err))
	return r.engine.Load(), err
}

func (r *Registry) activate(log *zap.Logger, engine *rules.Engine, start time.Time) *rules.Engine {
	store := engine.Store()
	warnings := store.Warnings()
	for _, w := range warnings {
		log.Warn("policy rule expression unusable, policy will never match",
			zap.String("policy", w.Policy),
			zap.String("field", w.Field),
			zap.String("reason", w.Reason),
		)
	}

	previous := r.engine.Swap(engine)
	if r.metrics != nil {
		r.metrics.ObserveReload(nil, store.Len(), len(warnings))
	}

	fields := []zap.Field{
		zap.Int("policies", store.Len()),
		zap.Int("warnings", len(warnings)),
		zap.Strings("fields", store.ReferencedFieldNames().Names()),
		zap.Int("buckets", engine.Index().Buckets()),
		zap.String("version", engine.Version()),
		zap.Duration("duration", time.Since(start)),
	}
	switch {
	case previous == nil:
		log.Info("policy set loaded", fields...)
	case previous.Version() == engine.Version():
		log.Info("policy set reloaded, no changes", fields...)
	default:
		log.Info("policy set reloaded", append(fields, zap.String("previous_version", previous.Version()))...)
	}
	return engine
}
