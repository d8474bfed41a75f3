// Package evaluator implements the facade that dispatches model
// evaluation to the target host with caching (§4.7).
package evaluator

import (
	"context"
	"fmt"

	"github.com/olivefarm/enginecore/internal/cache"
	"github.com/olivefarm/enginecore/internal/footprint"
	"github.com/olivefarm/enginecore/internal/hardware"
	"github.com/olivefarm/enginecore/internal/metric"
	"github.com/olivefarm/enginecore/internal/model"
)

// Target is the narrow collaborator contract an Evaluator needs to run a
// model's metrics against a host.
type Target interface {
	EvaluateModel(ctx context.Context, m model.Model, metricsConfig map[string]any, accel hardware.AcceleratorSpec) (metric.Result, error)
	IsLocalLike() bool
}

// Materializer mirrors executor.Materializer: downloads a remote model
// resource to local disk before a local-like target can evaluate it.
type Materializer interface {
	Materialize(ctx context.Context, m model.Model) error
}

// Evaluator caches evaluation results keyed by (ModelId, AcceleratorSpec)
// and records them into a Footprint with IsGoalsMet left false; the
// ranking step fills IsGoalsMet in later.
type Evaluator struct {
	Cache        *cache.Cache
	Footprint    *footprint.Footprint
	Materializer Materializer
}

// New returns an Evaluator backed by c, recording results into fp.
func New(c *cache.Cache, fp *footprint.Footprint) *Evaluator {
	return &Evaluator{Cache: c, Footprint: fp}
}

// Evaluate runs (or replays from cache) one model's metrics on accel via
// target, recording the result into the footprint.
func (e *Evaluator) Evaluate(ctx context.Context, m model.Model, id model.ID, metricsConfig map[string]any, accel hardware.AcceleratorSpec, target Target) (metric.Result, error) {
	if cached, hit := e.Cache.LookupEvaluation(id, accel); hit {
		result := decodeSignal(cached)
		e.record(id, result)
		return result, nil
	}

	if target.IsLocalLike() && e.Materializer != nil && cache.IsRemote(m.ResourcePath()) {
		if err := e.Materializer.Materialize(ctx, m); err != nil {
			return nil, fmt.Errorf("evaluator: materialize model %s: %w", id, err)
		}
	}

	result, err := target.EvaluateModel(ctx, m, metricsConfig, accel)
	if err != nil {
		return nil, fmt.Errorf("evaluator: evaluate model %s: %w", id, err)
	}

	e.Cache.CacheEvaluation(id, accel, encodeSignal(result))
	e.record(id, result)
	return result, nil
}

func (e *Evaluator) record(id model.ID, result metric.Result) {
	if e.Footprint == nil {
		return
	}
	e.Footprint.Record(id, footprint.RecordInput{
		Metrics: &footprint.NodeMetric{Value: result.Clone(), IsGoalsMet: false},
	})
}

func encodeSignal(r metric.Result) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[string(k)] = map[string]any{
			"value":            v.Value,
			"priority":         v.Priority,
			"higher_is_better": v.HigherIsBetter,
		}
	}
	return out
}

func decodeSignal(raw map[string]any) metric.Result {
	out := make(metric.Result, len(raw))
	for k, v := range raw {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out[metric.Key(k)] = metric.Value{
			Value:          asFloat(entry["value"]),
			Priority:       int(asFloat(entry["priority"])),
			HigherIsBetter: asBool(entry["higher_is_better"]),
		}
	}
	return out
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	default:
		return 0
	}
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
