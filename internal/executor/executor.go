// Package executor runs a single pass on an input model via a chosen
// execution host, with cache lookup and failure containment (§4.5).
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/olivefarm/enginecore/internal/cache"
	"github.com/olivefarm/enginecore/internal/footprint"
	"github.com/olivefarm/enginecore/internal/hardware"
	"github.com/olivefarm/enginecore/internal/model"
	"github.com/olivefarm/enginecore/internal/passregistry"
)

// Host is the narrow collaborator contract a PassExecutor needs. Concrete
// hosts (an in-process runner, or a Kubernetes Job launcher) satisfy this
// without the executor importing their packages.
type Host interface {
	RunPass(ctx context.Context, inst passregistry.PassInstance, input model.Model, outputPath string, point map[string]any) (model.Model, error)
	// IsLocalLike reports whether this host runs in the same address
	// space/filesystem as the engine, and therefore needs a remote
	// model's resource materialized locally before it can run a pass.
	IsLocalLike() bool
}

// Materializer downloads a remote model resource to local disk, rewriting
// the model's resource path in place. Only invoked for local-like hosts.
type Materializer interface {
	Materialize(ctx context.Context, m model.Model) error
}

// Executor runs passes against a shared cache and footprint.
type Executor struct {
	Cache        *cache.Cache
	Footprint    *footprint.Footprint
	Materializer Materializer
}

// New returns an Executor backed by c and recording edges into fp.
func New(c *cache.Cache, fp *footprint.Footprint) *Executor {
	return &Executor{Cache: c, Footprint: fp}
}

// Run executes one pass at one search point, returning the produced model
// (or PRUNED) and its ModelId. searchEnabled gates the failure-containment
// rule in step 6 of §4.5: with search disabled a single-shot pipeline must
// surface unexpected errors rather than silently prune them.
func (e *Executor) Run(
	ctx context.Context,
	passName string,
	inst passregistry.PassInstance,
	accel hardware.AcceleratorSpec,
	inputModelID model.ID,
	inputModel model.Model,
	point map[string]any,
	host Host,
	searchEnabled bool,
) (model.Model, model.ID, error) {
	cfg, err := inst.ConfigAt(point)
	if err != nil {
		return nil, "", &ProgrammerError{Err: fmt.Errorf("executor: resolve config for %s: %w", passName, err)}
	}
	serialized := inst.SerializeConfig(cfg)
	configHash := model.HashJSON(serialized)

	var runAccel *hardware.AcceleratorSpec
	if !inst.IsAcceleratorAgnostic(accel) {
		a := accel
		runAccel = &a
	}

	if outputID, hit := e.Cache.LookupRun(inputModelID, passName, configHash, runAccel); hit {
		if out, ok := e.Cache.LoadModel(outputID); ok {
			e.recordEdge(outputID, inputModelID, passName, serialized, modelConfigOf(out))
			return out, outputID, nil
		}
		// Cache hit with a missing model sidecar degrades to a miss.
	}

	number, err := e.Cache.AllocateModelNumber()
	if err != nil {
		return nil, "", fmt.Errorf("executor: allocate model number: %w", err)
	}
	var idAccel fmt.Stringer
	if runAccel != nil {
		idAccel = *runAccel
	}
	outputID := model.NewDerivedID(number, passName, inputModelID.InputNumber(), configHash, idAccel)
	outputDir, err := e.Cache.ModelOutputDir(outputID)
	if err != nil {
		return nil, "", fmt.Errorf("executor: prepare output dir for %s: %w", outputID, err)
	}

	var out model.Model
	if !inst.ValidateSearchPoint(point) && searchEnabled {
		out = model.Pruned
	} else {
		out, err = e.invoke(ctx, inst, inputModel, outputDir, point, host, searchEnabled)
		if err != nil {
			return nil, "", err
		}
	}

	cfgJSON, err := json.Marshal(serialized)
	if err != nil {
		cfgJSON = []byte("{}")
	}
	e.Cache.CacheModel(outputID, out)
	e.Cache.CacheRun(inputModelID, passName, string(cfgJSON), configHash, runAccel, outputID)
	e.recordEdge(outputID, inputModelID, passName, serialized, modelConfigOf(out))
	return out, outputID, nil
}

func (e *Executor) invoke(
	ctx context.Context,
	inst passregistry.PassInstance,
	inputModel model.Model,
	outputDir string,
	point map[string]any,
	host Host,
	searchEnabled bool,
) (model.Model, error) {
	if host.IsLocalLike() && e.Materializer != nil && cache.IsRemote(inputModel.ResourcePath()) {
		if err := e.Materializer.Materialize(ctx, inputModel); err != nil {
			return nil, fmt.Errorf("executor: materialize input model: %w", err)
		}
	}

	out, err := host.RunPass(ctx, inst, inputModel, outputDir, point)
	if err == nil {
		return out, nil
	}

	var progErr *ProgrammerError
	if errors.As(err, &progErr) {
		return nil, progErr
	}

	var passErr *PassFailureError
	if errors.As(err, &passErr) {
		log.Printf("executor: pass failed, pruning branch: %v", passErr)
		return model.Pruned, nil
	}

	if searchEnabled {
		log.Printf("executor: unexpected pass error, pruning branch: %v", err)
		return model.Pruned, nil
	}
	return nil, fmt.Errorf("executor: pass run: %w", err)
}

func (e *Executor) recordEdge(outputID, inputModelID model.ID, passName string, runConfig, modelConfig map[string]any) {
	if e.Footprint == nil {
		return
	}
	parent := inputModelID
	e.Footprint.Record(outputID, footprint.RecordInput{
		ModelConfig:   modelConfig,
		ParentModelID: &parent,
		FromPass:      passName,
		PassRunConfig: runConfig,
	})
}

// modelConfigOf serializes a produced model for its footprint node's
// model_config field; a pruned output carries none.
func modelConfigOf(m model.Model) map[string]any {
	if model.IsPruned(m) {
		return nil
	}
	cfg, err := m.ToJSON(true)
	if err != nil {
		log.Printf("executor: serialize model config: %v", err)
		return nil
	}
	return cfg
}
