package metric

import "testing"

func TestJointKey(t *testing.T) {
	if got := JointKey("accuracy", ""); got != Key("accuracy") {
		t.Fatalf("JointKey no sub = %q", got)
	}
	if got := JointKey("accuracy", "accuracy_custom"); got != Key("accuracy-accuracy_custom") {
		t.Fatalf("JointKey with sub = %q", got)
	}
}

func TestObjectiveDictOrdersByAscendingPriority(t *testing.T) {
	od := NewObjectiveDict(map[Key]Objective{
		"latency":  {Priority: 2},
		"accuracy": {Priority: 1},
	})
	keys := od.Keys()
	if len(keys) != 2 || keys[0] != "accuracy" || keys[1] != "latency" {
		t.Fatalf("Keys() = %v, want [accuracy latency]", keys)
	}
}

func TestObjectiveDictTieBreaksByKey(t *testing.T) {
	od := NewObjectiveDict(map[Key]Objective{
		"b": {Priority: 1},
		"a": {Priority: 1},
	})
	keys := od.Keys()
	if keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("Keys() = %v, want [a b]", keys)
	}
}

func TestDominatesHigherIsBetter(t *testing.T) {
	od := NewObjectiveDict(map[Key]Objective{"accuracy": {HigherIsBetter: true, Priority: 1}})
	a := Result{"accuracy": {Value: 0.9, HigherIsBetter: true}}
	b := Result{"accuracy": {Value: 0.8, HigherIsBetter: true}}
	if !Dominates(od, a, b) {
		t.Fatalf("Dominates: a should dominate b")
	}
	if Dominates(od, b, a) {
		t.Fatalf("Dominates: b should not dominate a")
	}
}

func TestDominatesLowerIsBetter(t *testing.T) {
	od := NewObjectiveDict(map[Key]Objective{"latency": {HigherIsBetter: false, Priority: 1}})
	fast := Result{"latency": {Value: 10, HigherIsBetter: false}}
	slow := Result{"latency": {Value: 20, HigherIsBetter: false}}
	if !Dominates(od, fast, slow) {
		t.Fatalf("Dominates: faster (lower latency) should dominate")
	}
}

func TestDominatesRequiresAllKeys(t *testing.T) {
	od := NewObjectiveDict(map[Key]Objective{
		"accuracy": {HigherIsBetter: true, Priority: 1},
		"latency":  {HigherIsBetter: false, Priority: 2},
	})
	a := Result{"accuracy": {Value: 0.9, HigherIsBetter: true}}
	b := Result{"accuracy": {Value: 0.8, HigherIsBetter: true}, "latency": {Value: 20, HigherIsBetter: false}}
	if Dominates(od, a, b) {
		t.Fatalf("Dominates: incomplete result a must not be treated as dominating")
	}
}

func TestHasAll(t *testing.T) {
	od := NewObjectiveDict(map[Key]Objective{
		"accuracy": {Priority: 1},
		"latency":  {Priority: 2},
	})
	complete := Result{"accuracy": {}, "latency": {}}
	incomplete := Result{"accuracy": {}}
	if !HasAll(od, complete) {
		t.Fatalf("HasAll: want true for complete result")
	}
	if HasAll(od, incomplete) {
		t.Fatalf("HasAll: want false for incomplete result")
	}
}

func TestRankTupleOrientation(t *testing.T) {
	od := NewObjectiveDict(map[Key]Objective{
		"accuracy": {HigherIsBetter: true, Priority: 1},
		"latency":  {HigherIsBetter: false, Priority: 2},
	})
	r := Result{
		"accuracy": {Value: 0.9, HigherIsBetter: true},
		"latency":  {Value: 20, HigherIsBetter: false},
	}
	tup := RankTuple(od, r)
	if tup[0] != 0.9 || tup[1] != -20 {
		t.Fatalf("RankTuple = %v, want [0.9 -20]", tup)
	}
}

func TestCompareRankTuples(t *testing.T) {
	if CompareRankTuples([]float64{1, 2}, []float64{1, 1}) <= 0 {
		t.Fatalf("want a > b")
	}
	if CompareRankTuples([]float64{1, 1}, []float64{1, 2}) >= 0 {
		t.Fatalf("want a < b")
	}
	if CompareRankTuples([]float64{1, 1}, []float64{1, 1}) != 0 {
		t.Fatalf("want tie")
	}
}

func TestGoalsMet(t *testing.T) {
	goalHigh := 0.8
	goalLow := 15.0
	od := NewObjectiveDict(map[Key]Objective{
		"accuracy": {HigherIsBetter: true, Goal: &goalHigh, Priority: 1},
		"latency":  {HigherIsBetter: false, Goal: &goalLow, Priority: 2},
	})
	cases := []struct {
		name     string
		accuracy float64
		latency  float64
		want     bool
	}{
		{"both met", 0.9, 10, true},
		{"accuracy below goal", 0.7, 10, false},
		{"latency above goal", 0.9, 20, false},
		{"exactly at goals", 0.8, 15, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Result{
				"accuracy": {Value: tc.accuracy, HigherIsBetter: true},
				"latency":  {Value: tc.latency, HigherIsBetter: false},
			}
			if got := GoalsMet(od, r); got != tc.want {
				t.Fatalf("GoalsMet = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGoalsMetIgnoresGoallessObjectives(t *testing.T) {
	od := NewObjectiveDict(map[Key]Objective{"accuracy": {HigherIsBetter: true, Priority: 1}})
	if !GoalsMet(od, Result{"accuracy": {Value: 0.1, HigherIsBetter: true}}) {
		t.Fatalf("objective without a goal must not constrain")
	}
	if GoalsMet(od, Result{}) {
		t.Fatalf("result missing an objective key cannot meet goals")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	r := Result{"accuracy": {Value: 0.9}}
	c := r.Clone()
	c["accuracy"] = Value{Value: 0.1}
	if r["accuracy"].Value != 0.9 {
		t.Fatalf("Clone shares storage with original")
	}
}
