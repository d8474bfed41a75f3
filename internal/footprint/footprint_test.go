package footprint

import (
	"path/filepath"
	"testing"

	"github.com/olivefarm/enginecore/internal/metric"
	"github.com/olivefarm/enginecore/internal/model"
)

func objectives() metric.ObjectiveDict {
	return metric.NewObjectiveDict(map[metric.Key]metric.Objective{
		"accuracy": {HigherIsBetter: true, Priority: 1},
		"latency":  {HigherIsBetter: false, Priority: 2},
	})
}

func TestRecordCreatesNodeAndSetsEdgesOnce(t *testing.T) {
	f := New()
	root := model.ID("deadbeef")
	child := model.ID("0_Quantize-deadbeef-cfg1")

	f.Record(root, RecordInput{})
	f.Record(child, RecordInput{ParentModelID: &root, FromPass: "Quantize"})
	// Second record must not move the edge even if a different parent is offered.
	other := model.ID("other")
	f.Record(child, RecordInput{ParentModelID: &other, FromPass: "Fuse"})

	n, ok := f.Node(child)
	if !ok {
		t.Fatalf("Node: missing")
	}
	if n.ParentModelID == nil || *n.ParentModelID != root {
		t.Fatalf("ParentModelID moved: %v", n.ParentModelID)
	}
	if n.FromPass != "Quantize" {
		t.Fatalf("FromPass moved: %q", n.FromPass)
	}
}

func TestRecordMetricsWrittenOnceGoalsMetUpdatable(t *testing.T) {
	f := New()
	id := model.ID("m1")
	v := metric.Result{"accuracy": {Value: 0.9, HigherIsBetter: true, Priority: 1}}

	f.Record(id, RecordInput{Metrics: &NodeMetric{Value: v, IsGoalsMet: false}})
	// A later write with a different value must not replace the stored value.
	f.Record(id, RecordInput{Metrics: &NodeMetric{
		Value:      metric.Result{"accuracy": {Value: 0.1, HigherIsBetter: true, Priority: 1}},
		IsGoalsMet: true,
	}})

	n, _ := f.Node(id)
	if n.Metrics.Value["accuracy"].Value != 0.9 {
		t.Fatalf("metric value overwritten: %v", n.Metrics.Value)
	}
	if !n.Metrics.IsGoalsMet {
		t.Fatalf("IsGoalsMet not updated")
	}
}

func TestSetGoalsMetNoopWithoutMetrics(t *testing.T) {
	f := New()
	id := model.ID("m1")
	f.Record(id, RecordInput{})
	f.SetGoalsMet(id, true)
	n, _ := f.Node(id)
	if n.Metrics != nil {
		t.Fatalf("SetGoalsMet created metrics out of nothing")
	}
}

func TestParetoFrontierExcludesDominatedAndIncomplete(t *testing.T) {
	f := New()
	f.RecordObjectiveDict(objectives())

	// a: accuracy 0.9, latency 10 -- dominates b on both axes.
	a := model.ID("a")
	f.Record(a, RecordInput{Metrics: &NodeMetric{Value: metric.Result{
		"accuracy": {Value: 0.9, HigherIsBetter: true, Priority: 1},
		"latency":  {Value: 10, HigherIsBetter: false, Priority: 2},
	}}})
	// b: accuracy 0.8, latency 20 -- dominated by a.
	b := model.ID("b")
	f.Record(b, RecordInput{Metrics: &NodeMetric{Value: metric.Result{
		"accuracy": {Value: 0.8, HigherIsBetter: true, Priority: 1},
		"latency":  {Value: 20, HigherIsBetter: false, Priority: 2},
	}}})
	// c: accuracy 0.95, latency 30 -- not dominated (trades accuracy for latency).
	c := model.ID("c")
	f.Record(c, RecordInput{Metrics: &NodeMetric{Value: metric.Result{
		"accuracy": {Value: 0.95, HigherIsBetter: true, Priority: 1},
		"latency":  {Value: 30, HigherIsBetter: false, Priority: 2},
	}}})
	// d: incomplete metrics (missing latency) -- excluded from frontier.
	d := model.ID("d")
	f.Record(d, RecordInput{Metrics: &NodeMetric{Value: metric.Result{
		"accuracy": {Value: 0.99, HigherIsBetter: true, Priority: 1},
	}}})

	frontier := f.GetParetoFrontier()
	if frontier.Len() != 2 {
		t.Fatalf("frontier size = %d, want 2", frontier.Len())
	}
	if _, ok := frontier.Node(b); ok {
		t.Fatalf("dominated node b present in frontier")
	}
	if _, ok := frontier.Node(d); ok {
		t.Fatalf("incomplete node d present in frontier")
	}
	if f.Len() != 4 {
		t.Fatalf("original graph mutated: len = %d, want 4", f.Len())
	}
}

func TestReachableDetectsDisconnectedNode(t *testing.T) {
	f := New()
	root := model.ID("root")
	child := model.ID("child")
	f.Record(root, RecordInput{})
	f.Record(child, RecordInput{ParentModelID: &root})
	if !f.Reachable() {
		t.Fatalf("Reachable: want true for a rooted DAG")
	}
}

func TestUpdateNodesRestrictsSet(t *testing.T) {
	f := New()
	a, b := model.ID("a"), model.ID("b")
	f.Record(a, RecordInput{})
	f.Record(b, RecordInput{})
	f.UpdateNodes([]model.ID{a})
	if f.Len() != 1 {
		t.Fatalf("Len = %d, want 1", f.Len())
	}
	if _, ok := f.Node(b); ok {
		t.Fatalf("node b should have been dropped")
	}
}

func TestToFileWritesJSON(t *testing.T) {
	f := New()
	f.RecordObjectiveDict(objectives())
	f.Record(model.ID("a"), RecordInput{Metrics: &NodeMetric{Value: metric.Result{
		"accuracy": {Value: 0.9, HigherIsBetter: true, Priority: 1},
		"latency":  {Value: 10, HigherIsBetter: false, Priority: 2},
	}}})

	path := filepath.Join(t.TempDir(), "footprints.json")
	if err := f.ToFile(path); err != nil {
		t.Fatalf("ToFile: %v", err)
	}
}
