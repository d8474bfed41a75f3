// Package metric defines the evaluation result and objective types shared
// by the goal resolver, the evaluator facade, and the footprint's Pareto
// computation.
package metric

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Key is a joint metric/sub-metric key, e.g. "accuracy-accuracy_custom" or
// just "latency" when a metric has no distinct sub-metrics.
type Key string

// JointKey builds a Key from a metric name and an optional sub-metric name.
func JointKey(metricName, subMetricName string) Key {
	if subMetricName == "" {
		return Key(metricName)
	}
	return Key(metricName + "-" + subMetricName)
}

// Value is one evaluated sub-metric.
type Value struct {
	Value          float64 `json:"value"`
	Priority       int     `json:"priority"`
	HigherIsBetter bool    `json:"higher_is_better"`
}

// CmpDirection returns +1 if a higher value is better, -1 otherwise, so
// that dominance/ranking comparisons can always compare in the "bigger is
// better" direction.
func (v Value) CmpDirection() float64 {
	if v.HigherIsBetter {
		return 1
	}
	return -1
}

// orientedValue is the value oriented so that larger is always better.
func (v Value) orientedValue() float64 {
	return v.CmpDirection() * v.Value
}

// Result is the output of one evaluation: every sub-metric the evaluator
// produced, keyed by joint metric key. Priority 0 entries are
// informational and never become objectives.
type Result map[Key]Value

// Clone returns a shallow copy safe to store independently.
func (r Result) Clone() Result {
	out := make(Result, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Objective is one resolved optimization objective: whether higher is
// better, the resolved absolute goal threshold (nil if none was declared),
// and its priority (ascending = earlier/more important).
type Objective struct {
	HigherIsBetter bool     `json:"higher_is_better"`
	Goal           *float64 `json:"goal,omitempty"`
	Priority       int      `json:"priority"`
}

// ObjectiveDict is the ordered mapping joint_key -> Objective, sorted
// ascending by priority as required by §3/§4.6. Priority-0 sub-metrics
// must never be inserted (callers filter before calling NewObjectiveDict).
type ObjectiveDict struct {
	keys   []Key
	values map[Key]Objective
}

// NewObjectiveDict builds an ObjectiveDict from an unordered map, sorting
// keys ascending by priority. Ties break by key for determinism.
func NewObjectiveDict(m map[Key]Objective) ObjectiveDict {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := m[keys[i]].Priority, m[keys[j]].Priority
		if pi != pj {
			return pi < pj
		}
		return keys[i] < keys[j]
	})
	values := make(map[Key]Objective, len(m))
	for k, v := range m {
		values[k] = v
	}
	return ObjectiveDict{keys: keys, values: values}
}

// Keys returns the objective keys in ascending-priority order.
func (o ObjectiveDict) Keys() []Key { return append([]Key(nil), o.keys...) }

// Get returns the objective for k and whether it exists.
func (o ObjectiveDict) Get(k Key) (Objective, bool) {
	v, ok := o.values[k]
	return v, ok
}

// Len reports the number of objectives.
func (o ObjectiveDict) Len() int { return len(o.keys) }

// MarshalJSON renders the objectives as a JSON object whose keys appear in
// ascending-priority order, so the serialized footprint preserves the
// iteration order the engine optimized under.
func (o ObjectiveDict) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(string(k))
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Dominates reports whether result a dominates result b over the given
// objectives: at least as good on every objective, strictly better on at
// least one. Both results must carry every objective key or the
// comparison cannot be made (returns false).
func Dominates(objectives ObjectiveDict, a, b Result) bool {
	strictlyBetter := false
	for _, k := range objectives.Keys() {
		av, aok := a[k]
		bv, bok := b[k]
		if !aok || !bok {
			return false
		}
		ao, bo := av.orientedValue(), bv.orientedValue()
		if ao < bo {
			return false
		}
		if ao > bo {
			strictlyBetter = true
		}
	}
	return strictlyBetter
}

// HasAll reports whether r carries a value for every objective key.
func HasAll(objectives ObjectiveDict, r Result) bool {
	for _, k := range objectives.Keys() {
		if _, ok := r[k]; !ok {
			return false
		}
	}
	return true
}

// GoalsMet reports whether r satisfies every objective that carries a
// resolved goal: the oriented value must reach the oriented goal
// threshold. Objectives without a goal never constrain. A result missing
// any objective key cannot meet goals.
func GoalsMet(objectives ObjectiveDict, r Result) bool {
	if !HasAll(objectives, r) {
		return false
	}
	for _, k := range objectives.Keys() {
		obj, _ := objectives.Get(k)
		if obj.Goal == nil {
			continue
		}
		v := r[k]
		if v.orientedValue() < v.CmpDirection()*(*obj.Goal) {
			return false
		}
	}
	return true
}

// RankTuple returns the oriented values in ascending-priority objective
// order, suitable for a lexicographic "bigger tuple wins" comparison as
// used by top-K ranking (§4.8).
func RankTuple(objectives ObjectiveDict, r Result) []float64 {
	out := make([]float64, 0, objectives.Len())
	for _, k := range objectives.Keys() {
		out = append(out, r[k].orientedValue())
	}
	return out
}

// CompareRankTuples implements the stable lexicographic comparison used by
// top-K ranking: returns >0 if a ranks above b, <0 if below, 0 if tied.
func CompareRankTuples(a, b []float64) int {
	for i := range a {
		if i >= len(b) {
			break
		}
		if a[i] > b[i] {
			return 1
		}
		if a[i] < b[i] {
			return -1
		}
	}
	return 0
}
