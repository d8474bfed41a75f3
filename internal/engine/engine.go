// Package engine ties the core components together: for each resolved
// accelerator it materializes the pass search space, drives the search
// loop, and at termination writes footprints and selects the Pareto
// frontier (optionally reduced to a top-K ranking), exactly as the
// distilled spec's §2 control flow and §4.8 top-K ranking describe.
package engine

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/olivefarm/enginecore/internal/accelerator"
	"github.com/olivefarm/enginecore/internal/cache"
	"github.com/olivefarm/enginecore/internal/evaluator"
	"github.com/olivefarm/enginecore/internal/executor"
	"github.com/olivefarm/enginecore/internal/footprint"
	"github.com/olivefarm/enginecore/internal/goal"
	"github.com/olivefarm/enginecore/internal/hardware"
	"github.com/olivefarm/enginecore/internal/metric"
	"github.com/olivefarm/enginecore/internal/model"
	"github.com/olivefarm/enginecore/internal/packaging"
	"github.com/olivefarm/enginecore/internal/passregistry"
	"github.com/olivefarm/enginecore/internal/search"
)

// Config is the single structured configuration object (§6): cache
// directory, clean-cache toggles, the default host/target, and the
// declared execution providers. Concrete model (de)serialization, pass
// bodies, and search strategy construction are the caller's concern —
// the engine only orchestrates.
type Config struct {
	CacheDir             string
	CleanCache           bool
	CleanEvaluationCache bool
	OutputDir            string
	OutputName           string
	EvaluationOnly       bool
	PlotParetoFrontier   bool

	ModelFactory model.Config
	Registry     *passregistry.Registry

	Target             accelerator.TargetHost
	ExecutionProviders []string
	AcceleratorSource  accelerator.Source

	DefaultHost   executor.Host
	HostFor       func(passName string) executor.Host
	DefaultTarget evaluator.Target
	TargetFor     func(passName string) evaluator.Target

	// EvaluatorConfig is the engine-wide evaluator configuration (§6's
	// "evaluator" field), handed opaquely to the evaluation target.
	EvaluatorConfig map[string]any

	Materializer interface {
		Materialize(ctx context.Context, m model.Model) error
	}

	// GoalSpecs declares every metric's goal/priority/direction, keyed by
	// joint metric key (§4.6). Empty means no objectives: §8's boundary
	// case ("no-search mode emits output without a metrics field").
	GoalSpecs map[metric.Key]goal.SubMetricSpec

	// NewStrategy constructs a fresh SearchStrategy for one accelerator's
	// run. Nil disables search (§4.4's no-search mode): the driver
	// executes exactly one step covering every registered pass.
	NewStrategy func() search.Strategy

	// Packaging is the default run-time "packaging_config" input (§6),
	// applied to every Run call that doesn't override it with
	// WithPackaging. Nil (or a Generator whose Config isn't Enabled)
	// skips packaging entirely.
	Packaging packaging.Generator
}

// RunOption customizes a single Run call for the run-time inputs (§6) that
// vary per invocation rather than being fixed at engine construction, the
// way the HTTP API threads a per-request packaging_config through to
// Engine.Run without forcing every run to share the process-wide default.
type RunOption func(*runOptions)

type runOptions struct {
	packaging packaging.Generator
}

// WithPackaging overrides Config.Packaging for this Run call only.
func WithPackaging(g packaging.Generator) RunOption {
	return func(o *runOptions) { o.packaging = g }
}

// RunResult is what one accelerator's run produced.
type RunResult struct {
	Accel          hardware.AcceleratorSpec
	Footprint      *footprint.Footprint
	ParetoFrontier *footprint.Footprint
	Iterations     int
}

// Engine owns the cache shared by every accelerator run invoked against it.
type Engine struct {
	cfg   Config
	cache *cache.Cache
}

// New constructs an Engine, creating (and optionally cleaning) its cache.
func New(cfg Config) (*Engine, error) {
	c, err := cache.New(cfg.CacheDir, cfg.ModelFactory)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if cfg.CleanCache {
		if err := c.CleanCache(); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	} else if cfg.CleanEvaluationCache {
		if err := c.CleanEvaluationCache(); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}
	return &Engine{cfg: cfg, cache: c}, nil
}

// Cache exposes the engine's shared cache to callers that need direct
// access.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// CacheDir returns the engine's configured cache directory.
func (e *Engine) CacheDir() string { return e.cfg.CacheDir }

// OutputDir returns the engine's configured output directory, where
// footprints, the Pareto frontier, and no-search-mode artifacts land.
func (e *Engine) OutputDir() string { return e.cfg.OutputDir }

// Run executes the engine against inputModel, producing one RunResult per
// resolved accelerator. A per-accelerator failure is logged as a warning
// and omitted from the result map (§7.5's catch-all); any other error
// (configuration, programmer) propagates immediately.
func (e *Engine) Run(ctx context.Context, inputModel model.Model, opts ...RunOption) (map[hardware.AcceleratorSpec]*RunResult, error) {
	ro := runOptions{packaging: e.cfg.Packaging}
	for _, opt := range opts {
		opt(&ro)
	}

	source := e.cfg.AcceleratorSource
	if source == nil {
		source = accelerator.StaticSource{}
	}
	specs, err := accelerator.Resolve(e.cfg.Target, e.cfg.ExecutionProviders, source)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e.cleanRequestedRunCaches()

	inputData, err := inputModel.ToJSON(false)
	if err != nil {
		return nil, fmt.Errorf("engine: serialize input model: %w", err)
	}
	inputID := model.ID(model.HashJSON(inputData))
	e.cache.CacheModel(inputID, inputModel)

	results := make(map[hardware.AcceleratorSpec]*RunResult, len(specs))
	for _, spec := range specs {
		result, err := e.runAccelerator(ctx, spec, inputID, inputModel, ro.packaging)
		if err != nil {
			log.Printf("engine: accelerator %s failed, omitting from results: %v", spec, err)
			continue
		}
		results[spec] = result
	}
	return results, nil
}

func (e *Engine) runAccelerator(ctx context.Context, spec hardware.AcceleratorSpec, inputID model.ID, inputModel model.Model, pkg packaging.Generator) (*RunResult, error) {
	instances, err := e.cfg.Registry.Instantiate(spec)
	if err != nil {
		return nil, err
	}

	fp := footprint.New()
	fp.Record(inputID, footprint.RecordInput{})

	objectives, err := e.resolveGoals(ctx, spec, inputID, inputModel, fp)
	if err != nil {
		return nil, err
	}
	fp.RecordObjectiveDict(objectives)

	exec := executor.New(e.cache, fp)
	exec.Materializer = e.cfg.Materializer
	ev := evaluator.New(e.cache, fp)
	ev.Materializer = e.cfg.Materializer

	if e.cfg.EvaluationOnly {
		return e.evaluateInputOnly(ctx, spec, inputID, inputModel, fp, ev)
	}

	searchEnabled := e.cfg.NewStrategy != nil

	driver := &search.Driver{
		Executor:      exec,
		Evaluator:     ev,
		Instances:     instances,
		HostFor:       e.hostFor,
		TargetFor:     e.targetFor,
		DefaultTarget: e.cfg.DefaultTarget,
		MetricsConfig: e.cfg.EvaluatorConfig,
		Accel:         spec,
		SearchEnabled: searchEnabled,
		InputModelID:  inputID,
		InputModel:    inputModel,
	}

	var strategy search.Strategy
	if searchEnabled {
		strategy = e.cfg.NewStrategy()
		spaces := make([]search.PassSearchSpace, 0, len(instances))
		for _, ni := range instances {
			spaces = append(spaces, search.PassSearchSpace{PassName: ni.Name, SearchSpace: ni.Instance.SearchSpace()})
		}
		if err := strategy.Initialize(spaces, inputID, objectives); err != nil {
			return nil, fmt.Errorf("engine: initialize strategy: %w", err)
		}
	} else {
		if err := requireEmptySearchSpaces(instances); err != nil {
			return nil, err
		}
		strategy = newSingleStepStrategy(instances, inputID)
	}

	iterations, err := driver.Run(ctx, strategy)
	if err != nil {
		return nil, err
	}

	if !searchEnabled {
		if err := e.materializeNoSearchOutputs(spec, instances, fp); err != nil {
			return nil, err
		}
		if err := e.writeTerminalMetrics(spec, fp); err != nil {
			return nil, err
		}
	}

	if objectives.Len() > 0 {
		for _, n := range fp.Nodes() {
			if n.Metrics != nil {
				fp.SetGoalsMet(n.ModelID, metric.GoalsMet(objectives, n.Metrics.Value))
			}
		}
	}

	prefix := e.prefix(spec)
	if err := fp.ToFile(filepath.Join(e.cfg.OutputDir, prefix+"footprints.json")); err != nil {
		return nil, fmt.Errorf("engine: write footprints: %w", err)
	}

	frontier := fp.GetParetoFrontier()
	if n, ok := strategy.OutputModelNum(); ok {
		topK(frontier, n)
	}
	if err := frontier.ToFile(filepath.Join(e.cfg.OutputDir, prefix+"pareto_frontier_footprints.json")); err != nil {
		return nil, fmt.Errorf("engine: write pareto frontier: %w", err)
	}
	if e.cfg.PlotParetoFrontier {
		if err := writeParetoChart(filepath.Join(e.cfg.OutputDir, prefix+"pareto_frontier_footprints_chart.html"), frontier); err != nil {
			log.Printf("engine: write pareto chart: %v", err)
		}
	}

	if pkg != nil {
		if err := pkg.Package(e.cfg.OutputDir, frontier.Nodes(), e.cache.LoadModelOrError); err != nil {
			return nil, fmt.Errorf("engine: package pareto frontier: %w", err)
		}
	}

	return &RunResult{Accel: spec, Footprint: fp, ParetoFrontier: frontier, Iterations: iterations}, nil
}

// evaluateInputOnly implements the evaluation_only run-time input (§6): no
// passes run; the input model itself is evaluated on this accelerator and
// the result written as {prefix}metrics.json.
func (e *Engine) evaluateInputOnly(ctx context.Context, spec hardware.AcceleratorSpec, inputID model.ID, inputModel model.Model, fp *footprint.Footprint, ev *evaluator.Evaluator) (*RunResult, error) {
	if e.cfg.DefaultTarget == nil {
		return nil, fmt.Errorf("engine: evaluation-only run requires a default evaluator")
	}
	signal, err := ev.Evaluate(ctx, inputModel, inputID, e.cfg.EvaluatorConfig, spec, e.cfg.DefaultTarget)
	if err != nil {
		return nil, err
	}
	prefix := e.prefix(spec)
	if err := writeMetricsFile(filepath.Join(e.cfg.OutputDir, prefix+"metrics.json"), signal); err != nil {
		return nil, err
	}
	if err := fp.ToFile(filepath.Join(e.cfg.OutputDir, prefix+"footprints.json")); err != nil {
		return nil, fmt.Errorf("engine: write footprints: %w", err)
	}
	return &RunResult{Accel: spec, Footprint: fp, ParetoFrontier: fp.GetParetoFrontier()}, nil
}

// cleanRequestedRunCaches drops the run-cache entries of every pass whose
// descriptor asked for a clean slate, so its next execution recomputes
// instead of replaying a stale cached run.
func (e *Engine) cleanRequestedRunCaches() {
	for _, name := range e.cfg.Registry.Names() {
		d, ok := e.cfg.Registry.Get(name)
		if !ok || !d.CleanRunCache {
			continue
		}
		typeName := d.Type
		if typeName == "" {
			typeName = name
		}
		if err := e.cache.CleanPassRunCache(typeName); err != nil {
			log.Printf("engine: clean run cache for %s: %v", typeName, err)
		}
	}
}

func (e *Engine) hostFor(passName string) executor.Host {
	if e.cfg.HostFor != nil {
		if h := e.cfg.HostFor(passName); h != nil {
			return h
		}
	}
	return e.cfg.DefaultHost
}

func (e *Engine) targetFor(passName string) evaluator.Target {
	if e.cfg.TargetFor != nil {
		return e.cfg.TargetFor(passName)
	}
	return nil
}

// resolveGoals runs the GoalResolver (§4.6) using the engine default
// target as the baseline evaluator, when a baseline is required. The
// baseline evaluation records into fp like any other evaluation, so the
// input model's metrics appear in the run's serialized footprint.
func (e *Engine) resolveGoals(ctx context.Context, spec hardware.AcceleratorSpec, inputID model.ID, inputModel model.Model, fp *footprint.Footprint) (metric.ObjectiveDict, error) {
	if len(e.cfg.GoalSpecs) == 0 {
		return metric.ObjectiveDict{}, nil
	}
	var baseline goal.BaselineFunc
	if e.cfg.DefaultTarget != nil {
		baseline = func() (metric.Result, error) {
			ev := evaluator.New(e.cache, fp)
			ev.Materializer = e.cfg.Materializer
			return ev.Evaluate(ctx, inputModel, inputID, e.cfg.EvaluatorConfig, spec, e.cfg.DefaultTarget)
		}
	}
	return goal.Resolve(e.cfg.GoalSpecs, baseline)
}

func requireEmptySearchSpaces(instances []passregistry.NamedInstance) error {
	for _, ni := range instances {
		if len(ni.Instance.SearchSpace()) > 0 {
			return fmt.Errorf("engine: pass %q has a non-empty search space but search is disabled (configuration error)", ni.Name)
		}
	}
	return nil
}

// materializeNoSearchOutputs writes a "{prefix}model" artifact+sidecar for
// every pass that declares an output_name, and always for the terminal
// pass. The engine-wide output_name override, when set, takes precedence
// over the terminal pass's own name; with neither set the terminal output
// uses the bare accelerator prefix.
func (e *Engine) materializeNoSearchOutputs(spec hardware.AcceleratorSpec, instances []passregistry.NamedInstance, fp *footprint.Footprint) error {
	for i, ni := range instances {
		terminal := i == len(instances)-1
		outputName := ni.Descriptor.OutputName
		if terminal && e.cfg.OutputName != "" {
			outputName = e.cfg.OutputName
		}
		if outputName == "" && !terminal {
			continue
		}
		if err := e.writeNamedOutput(outputPrefix(outputName, spec)+"model", ni.Name, fp); err != nil {
			return err
		}
	}
	return nil
}

// writeTerminalMetrics writes the terminal evaluation result as
// "{prefix}metrics.json", skipped when nothing was evaluated.
func (e *Engine) writeTerminalMetrics(spec hardware.AcceleratorSpec, fp *footprint.Footprint) error {
	var leaf *footprint.Node
	for _, n := range fp.Nodes() {
		if n.Metrics != nil {
			leaf = n
		}
	}
	if leaf == nil {
		return nil
	}
	return writeMetricsFile(filepath.Join(e.cfg.OutputDir, e.prefix(spec)+"metrics.json"), leaf.Metrics.Value)
}

func (e *Engine) writeNamedOutput(baseName, passName string, fp *footprint.Footprint) error {
	var found *footprint.Node
	for _, n := range fp.Nodes() {
		if n.FromPass == passName {
			found = n
		}
	}
	if found == nil {
		return fmt.Errorf("engine: no produced model found for pass %q's output %q", passName, baseName)
	}
	m, ok := e.cache.LoadModel(found.ModelID)
	if !ok {
		return fmt.Errorf("engine: load output model %s for %q: cache miss", found.ModelID, baseName)
	}
	if model.IsPruned(m) {
		return fmt.Errorf("engine: pass %q produced PRUNED, cannot materialize output %q", passName, baseName)
	}
	return writeModelArtifact(e.cfg.OutputDir, baseName, m)
}

// outputPrefix applies §6's prefix rule for one named output.
func outputPrefix(outputName string, spec hardware.AcceleratorSpec) string {
	if outputName != "" {
		return fmt.Sprintf("%s_%s_", outputName, spec.String())
	}
	return fmt.Sprintf("%s_", spec.String())
}

// prefix implements §6's "{prefix} = <output_name>_<accelerator_spec>_ if
// output_name is set, else <accelerator_spec>_" rule.
func (e *Engine) prefix(spec hardware.AcceleratorSpec) string {
	return outputPrefix(e.cfg.OutputName, spec)
}

// topK reduces frontier to the first n nodes by the descending rank-tuple
// order (§4.8), restricting in place.
func topK(frontier *footprint.Footprint, n int) {
	nodes := frontier.Nodes()
	if n <= 0 || n >= len(nodes) {
		return
	}
	objectives := frontier.Objectives()
	sortNodesByRank(nodes, objectives)
	ids := make([]model.ID, 0, n)
	for i := 0; i < n && i < len(nodes); i++ {
		ids = append(ids, nodes[i].ModelID)
	}
	frontier.UpdateNodes(ids)
}

func sortNodesByRank(nodes []*footprint.Node, objectives metric.ObjectiveDict) {
	less := func(i, j int) bool {
		ai := metric.RankTuple(objectives, nodes[i].Metrics.Value)
		aj := metric.RankTuple(objectives, nodes[j].Metrics.Value)
		return metric.CompareRankTuples(ai, aj) > 0
	}
	insertionSort(nodes, less)
}

// insertionSort is a small stable sort so tie-breaking matches the input
// (and therefore declaration) order exactly, as §4.8 requires.
func insertionSort(nodes []*footprint.Node, less func(i, j int) bool) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}
