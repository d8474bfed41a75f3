// Package goal resolves relative goal declarations (degradation/improvement)
// to absolute thresholds via an optional baseline evaluation, and builds
// the final ObjectiveDict the search driver optimizes against (§4.6).
package goal

import (
	"fmt"

	"github.com/olivefarm/enginecore/internal/metric"
)

// Kind is a goal's comparison kind.
type Kind string

const (
	Threshold             Kind = "threshold"
	MaxDegradation        Kind = "max-degradation"
	MinImprovement        Kind = "min-improvement"
	PercentMaxDegradation Kind = "percent-max-degradation"
	PercentMinImprovement Kind = "percent-min-improvement"
)

// Goal is one declared sub-metric goal.
type Goal struct {
	Kind  Kind
	Value float64
}

// SubMetricSpec is one metric's declared goal/priority/direction, keyed by
// joint metric key at the call site.
type SubMetricSpec struct {
	Goal           *Goal
	Priority       int
	HigherIsBetter bool
}

// BaselineFunc runs the one baseline evaluation of the input model via the
// engine's default evaluator, required only when some goal is not a plain
// threshold.
type BaselineFunc func() (metric.Result, error)

// Resolve implements the distilled spec's algorithm: if every declared goal
// is a plain threshold, no baseline evaluation runs; otherwise exactly one
// baseline evaluation resolves every relative goal against it. Only
// sub-metrics with Priority > 0 become objectives, sorted ascending by
// priority.
func Resolve(specs map[metric.Key]SubMetricSpec, baseline BaselineFunc) (metric.ObjectiveDict, error) {
	needsBaseline := false
	for _, s := range specs {
		if s.Goal != nil && s.Goal.Kind != Threshold {
			needsBaseline = true
			break
		}
	}

	var base metric.Result
	if needsBaseline {
		if baseline == nil {
			return metric.ObjectiveDict{}, fmt.Errorf("goal: relative goal declared but no baseline evaluator available")
		}
		var err error
		base, err = baseline()
		if err != nil {
			return metric.ObjectiveDict{}, fmt.Errorf("goal: baseline evaluation: %w", err)
		}
	}

	objectives := make(map[metric.Key]metric.Objective, len(specs))
	for key, s := range specs {
		if s.Priority <= 0 {
			continue
		}
		var resolvedGoal *float64
		if s.Goal != nil {
			v, err := resolveOne(*s.Goal, s.HigherIsBetter, base, key)
			if err != nil {
				return metric.ObjectiveDict{}, err
			}
			resolvedGoal = &v
		}
		objectives[key] = metric.Objective{
			HigherIsBetter: s.HigherIsBetter,
			Goal:           resolvedGoal,
			Priority:       s.Priority,
		}
	}
	return metric.NewObjectiveDict(objectives), nil
}

func resolveOne(g Goal, higherIsBetter bool, base metric.Result, key metric.Key) (float64, error) {
	if g.Kind == Threshold {
		return g.Value, nil
	}

	bv, ok := base[key]
	if !ok {
		return 0, fmt.Errorf("goal: baseline missing sub-metric %q required to resolve a relative goal", key)
	}
	b := bv.Value
	m := 1.0
	if !higherIsBetter {
		m = -1.0
	}

	switch g.Kind {
	case MaxDegradation:
		return b - m*g.Value, nil
	case MinImprovement:
		return b + m*g.Value, nil
	case PercentMaxDegradation:
		return b * (1 - m*g.Value/100), nil
	case PercentMinImprovement:
		return b * (1 + m*g.Value/100), nil
	default:
		return 0, fmt.Errorf("goal: unrecognized goal kind %q", g.Kind)
	}
}
