package search

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/olivefarm/enginecore/internal/evaluator"
	"github.com/olivefarm/enginecore/internal/executor"
	"github.com/olivefarm/enginecore/internal/hardware"
	"github.com/olivefarm/enginecore/internal/metric"
	"github.com/olivefarm/enginecore/internal/model"
	"github.com/olivefarm/enginecore/internal/passregistry"
)

// Driver runs the SearchDriver loop for one accelerator.
type Driver struct {
	Executor  *executor.Executor
	Evaluator *evaluator.Evaluator

	// Instances maps a registered pass name to its accelerator-bound
	// instance, in registration order.
	Instances []passregistry.NamedInstance

	// HostFor resolves the execution host for a pass name, falling back
	// to the engine-wide default host exactly like engine.py's
	// host_for_pass.
	HostFor func(passName string) executor.Host
	// TargetFor resolves the evaluation target bound to a pass name
	// (its declared evaluator, if any), or nil if the pass declares
	// none. DefaultTarget is used when TargetFor returns nil.
	TargetFor     func(passName string) evaluator.Target
	DefaultTarget evaluator.Target

	MetricsConfig map[string]any
	Accel         hardware.AcceleratorSpec
	SearchEnabled bool

	InputModelID model.ID
	InputModel   model.Model
}

func (d *Driver) instanceFor(passName string) (passregistry.NamedInstance, bool) {
	for _, ni := range d.Instances {
		if ni.Name == passName {
			return ni, true
		}
	}
	return passregistry.NamedInstance{}, false
}

func (d *Driver) targetFor(passName string) evaluator.Target {
	if d.TargetFor != nil {
		if t := d.TargetFor(passName); t != nil {
			return t
		}
	}
	return d.DefaultTarget
}

func (d *Driver) hostFor(passName string) executor.Host {
	if d.HostFor != nil {
		return d.HostFor(passName)
	}
	return nil
}

// Run drives strategy to termination, returning the number of iterations
// executed.
func (d *Driver) Run(ctx context.Context, strategy Strategy) (int, error) {
	start := time.Now()
	iter := 0
	for {
		step, ok := strategy.NextStep()
		if !ok {
			return iter, nil
		}
		iter++

		startModel, err := d.resolveStartModel(step.ModelID)
		if err != nil {
			return iter, err
		}

		modelIDs := map[string]model.ID{}
		currentModel := startModel
		currentID := step.ModelID
		pruned := false

		for _, ps := range step.Passes {
			ni, found := d.instanceFor(ps.PassName)
			if !found {
				return iter, fmt.Errorf("search: strategy proposed unregistered pass %q", ps.PassName)
			}
			host := d.hostFor(ps.PassName)
			if host == nil {
				return iter, fmt.Errorf("search: no host resolved for pass %q (and no engine default)", ps.PassName)
			}
			out, outID, err := d.Executor.Run(ctx, ps.PassName, ni.Instance, d.Accel, currentID, currentModel, ps.Point, host, d.SearchEnabled)
			if err != nil {
				return iter, fmt.Errorf("search: pass %q: %w", ps.PassName, err)
			}
			modelIDs[ps.PassName] = outID
			currentModel, currentID = out, outID
			if model.IsPruned(out) {
				pruned = true
				break
			}
		}

		var signal metric.Result
		if !pruned {
			terminalPass := ""
			if len(step.Passes) > 0 {
				terminalPass = step.Passes[len(step.Passes)-1].PassName
			}
			target := d.targetFor(terminalPass)
			switch {
			case target != nil && d.Evaluator != nil:
				signal, err = d.Evaluator.Evaluate(ctx, currentModel, currentID, d.MetricsConfig, d.Accel, target)
				if err != nil {
					return iter, fmt.Errorf("search: evaluate %s: %w", currentID, err)
				}
			case d.SearchEnabled:
				return iter, fmt.Errorf("search: no evaluator available for pass %q and search is enabled", terminalPass)
			default:
				// No evaluator configured and search disabled: evaluation
				// is skipped per §4.4.
			}
		}

		strategy.RecordFeedbackSignal(step.SearchPoint, signal, modelIDs, pruned)

		if err := strategy.CheckExitCriteria(iter, time.Since(start).Seconds(), signal); err != nil {
			log.Printf("search: exit criteria met after %d iterations: %v", iter, err)
			return iter, nil
		}
	}
}

func (d *Driver) resolveStartModel(id model.ID) (model.Model, error) {
	if id == d.InputModelID {
		return d.InputModel, nil
	}
	m, ok := d.Executor.Cache.LoadModel(id)
	if !ok {
		return nil, fmt.Errorf("search: strategy proposed unknown start model %q (strategy bug)", id)
	}
	return m, nil
}
