// Package footprint implements the in-memory provenance DAG the engine
// builds while searching, and the Pareto-frontier/top-K selection run at
// termination.
package footprint

import (
	"encoding/json"
	"os"

	"github.com/olivefarm/enginecore/internal/metric"
	"github.com/olivefarm/enginecore/internal/model"
)

// NodeMetric is the evaluated result attached to a footprint node, plus
// whether it satisfies the resolved goals. IsGoalsMet is filled in later
// by the top-K ranking step (§4.7), not at evaluation time.
type NodeMetric struct {
	Value      metric.Result `json:"value"`
	IsGoalsMet bool          `json:"is_goals_met"`
}

// Node is one vertex of the footprint DAG.
type Node struct {
	ModelID       model.ID       `json:"model_id"`
	ModelConfig   map[string]any `json:"model_config,omitempty"`
	ParentModelID *model.ID      `json:"parent_model_id,omitempty"`
	FromPass      string         `json:"from_pass,omitempty"`
	PassRunConfig map[string]any `json:"pass_run_config,omitempty"`
	Metrics       *NodeMetric    `json:"metrics,omitempty"`
}

// RecordInput carries the optional fields a single Record call may set.
// Nil/zero fields are left untouched on an existing node.
type RecordInput struct {
	ModelConfig   map[string]any
	ParentModelID *model.ID
	FromPass      string
	PassRunConfig map[string]any
	Metrics       *NodeMetric
}

// Footprint is the provenance DAG for one accelerator's search: a set of
// nodes keyed by ModelId plus the resolved ObjectiveDict used to interpret
// their metrics.
type Footprint struct {
	order      []model.ID
	nodes      map[model.ID]*Node
	objectives metric.ObjectiveDict
}

// New returns an empty Footprint.
func New() *Footprint {
	return &Footprint{nodes: make(map[model.ID]*Node)}
}

// RecordObjectiveDict stores the resolved objectives used by Pareto/top-K.
func (f *Footprint) RecordObjectiveDict(od metric.ObjectiveDict) {
	f.objectives = od
}

// Objectives returns the recorded ObjectiveDict.
func (f *Footprint) Objectives() metric.ObjectiveDict { return f.objectives }

// Record merges in into the node for id, creating it if absent.
//
// ModelConfig: last-writer-wins (a cache-hit replay may refresh it).
// ParentModelID/FromPass/PassRunConfig: these are the DAG edges — set
// once, ignored on subsequent calls so a node's provenance never moves.
// Metrics: written at most once; a later call with a non-nil Metrics only
// updates IsGoalsMet on the already-recorded value.
func (f *Footprint) Record(id model.ID, in RecordInput) {
	n, ok := f.nodes[id]
	if !ok {
		n = &Node{ModelID: id}
		f.nodes[id] = n
		f.order = append(f.order, id)
	}
	if in.ModelConfig != nil {
		n.ModelConfig = in.ModelConfig
	}
	if in.ParentModelID != nil && n.ParentModelID == nil {
		n.ParentModelID = in.ParentModelID
	}
	if in.FromPass != "" && n.FromPass == "" {
		n.FromPass = in.FromPass
	}
	if in.PassRunConfig != nil && n.PassRunConfig == nil {
		n.PassRunConfig = in.PassRunConfig
	}
	if in.Metrics != nil {
		if n.Metrics == nil {
			m := *in.Metrics
			n.Metrics = &m
		} else {
			n.Metrics.IsGoalsMet = in.Metrics.IsGoalsMet
		}
	}
}

// SetGoalsMet updates is_goals_met on an already-evaluated node. It is a
// no-op if the node has no recorded metrics yet.
func (f *Footprint) SetGoalsMet(id model.ID, met bool) {
	if n, ok := f.nodes[id]; ok && n.Metrics != nil {
		n.Metrics.IsGoalsMet = met
	}
}

// Node returns the node for id, if recorded.
func (f *Footprint) Node(id model.ID) (*Node, bool) {
	n, ok := f.nodes[id]
	return n, ok
}

// Nodes returns all recorded nodes in insertion order.
func (f *Footprint) Nodes() []*Node {
	out := make([]*Node, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.nodes[id])
	}
	return out
}

// Len reports the number of recorded nodes.
func (f *Footprint) Len() int { return len(f.order) }

// Reachable reports whether every node is reachable from some root (a node
// with no ParentModelID) via ParentModelID edges — the DAG invariant
// tested in §8.
func (f *Footprint) Reachable() bool {
	for _, n := range f.nodes {
		if !f.reachesRoot(n, make(map[model.ID]bool)) {
			return false
		}
	}
	return true
}

func (f *Footprint) reachesRoot(n *Node, seen map[model.ID]bool) bool {
	if n.ParentModelID == nil {
		return true
	}
	if seen[n.ModelID] {
		return false // cycle, not a DAG
	}
	seen[n.ModelID] = true
	parent, ok := f.nodes[*n.ParentModelID]
	if !ok {
		// Parent is a root that was never explicitly recorded as a node
		// (e.g. only referenced, never visited) — still reachable since
		// the edge terminates at a known id.
		return true
	}
	return f.reachesRoot(parent, seen)
}

// GetParetoFrontier returns a new Footprint containing only the nodes with
// complete metrics that are not dominated by any other complete-metric
// node. Nodes lacking metrics are excluded here but remain in the original
// graph.
func (f *Footprint) GetParetoFrontier() *Footprint {
	frontier := New()
	frontier.objectives = f.objectives

	var complete []*Node
	for _, id := range f.order {
		n := f.nodes[id]
		if n.Metrics != nil && metric.HasAll(f.objectives, n.Metrics.Value) {
			complete = append(complete, n)
		}
	}

	for _, a := range complete {
		dominated := false
		for _, b := range complete {
			if a == b {
				continue
			}
			if metric.Dominates(f.objectives, b.Metrics.Value, a.Metrics.Value) {
				dominated = true
				break
			}
		}
		if !dominated {
			cp := *a
			if a.Metrics != nil {
				m := *a.Metrics
				cp.Metrics = &m
			}
			frontier.nodes[a.ModelID] = &cp
			frontier.order = append(frontier.order, a.ModelID)
		}
	}
	return frontier
}

// UpdateNodes restricts the footprint to exactly the given node ids, in the
// given order, used by top-K selection to shrink a frontier footprint.
func (f *Footprint) UpdateNodes(ids []model.ID) {
	newNodes := make(map[model.ID]*Node, len(ids))
	for _, id := range ids {
		if n, ok := f.nodes[id]; ok {
			newNodes[id] = n
		}
	}
	f.nodes = newNodes
	f.order = append([]model.ID(nil), ids...)
}

// ToFile serializes the DAG to path as 4-space-indented JSON.
func (f *Footprint) ToFile(path string) error {
	out := struct {
		Nodes      []*Node               `json:"nodes"`
		Objectives *metric.ObjectiveDict `json:"objective_dict,omitempty"`
	}{
		Nodes: f.Nodes(),
	}
	if f.objectives.Len() > 0 {
		out.Objectives = &f.objectives
	}
	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
