package system

import (
	"context"
	"fmt"

	"github.com/olivefarm/enginecore/internal/hardware"
	"github.com/olivefarm/enginecore/internal/metric"
	"github.com/olivefarm/enginecore/internal/model"
	"github.com/olivefarm/enginecore/internal/passregistry"
)

// LocalHost runs a pass in-process by delegating to an embedding-supplied
// PassRunner. This is the normal path: concrete pass bodies are outside
// this engine's scope, so LocalHost only knows how to invoke one.
type LocalHost struct {
	Runner PassRunner
}

// NewLocalHost returns a LocalHost that dispatches every pass to runner.
func NewLocalHost(runner PassRunner) *LocalHost {
	return &LocalHost{Runner: runner}
}

// RunPass resolves inst's config at point and invokes the runner.
func (h *LocalHost) RunPass(ctx context.Context, inst passregistry.PassInstance, input model.Model, outputPath string, point map[string]any) (model.Model, error) {
	if h.Runner == nil {
		return nil, fmt.Errorf("system: LocalHost has no PassRunner configured")
	}
	cfg, err := inst.ConfigAt(point)
	if err != nil {
		return nil, fmt.Errorf("system: resolve pass config: %w", err)
	}
	return h.Runner(ctx, passTypeOf(inst), cfg, input, outputPath)
}

// IsLocalLike always reports true: LocalHost runs in the engine's own
// address space and filesystem.
func (h *LocalHost) IsLocalLike() bool { return true }

// LocalTarget evaluates a model in-process by delegating to an
// embedding-supplied EvalRunner.
type LocalTarget struct {
	Runner EvalRunner
}

// NewLocalTarget returns a LocalTarget backed by runner.
func NewLocalTarget(runner EvalRunner) *LocalTarget {
	return &LocalTarget{Runner: runner}
}

// EvaluateModel invokes the runner directly.
func (t *LocalTarget) EvaluateModel(ctx context.Context, m model.Model, metricsConfig map[string]any, accel hardware.AcceleratorSpec) (metric.Result, error) {
	if t.Runner == nil {
		return nil, fmt.Errorf("system: LocalTarget has no EvalRunner configured")
	}
	return t.Runner(ctx, m, metricsConfig, accel)
}

// IsLocalLike always reports true.
func (t *LocalTarget) IsLocalLike() bool { return true }

// passTypeOf recovers a pass's declared type for container routing and
// logging. Concrete PassInstance implementations are expected to embed a
// Type() string accessor; instances that don't are reported as "unknown"
// rather than failing the run.
func passTypeOf(inst passregistry.PassInstance) string {
	if typed, ok := inst.(interface{ Type() string }); ok {
		return typed.Type()
	}
	return "unknown"
}
