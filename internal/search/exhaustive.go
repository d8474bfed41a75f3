package search

import (
	"fmt"
	"sort"

	"github.com/elliotchance/orderedmap/v3"

	"github.com/olivefarm/enginecore/internal/metric"
	"github.com/olivefarm/enginecore/internal/model"
	"github.com/olivefarm/enginecore/internal/passregistry"
)

// ExhaustiveJointStrategy is Olive's documented default
// (execution_order: joint, search_algorithm: exhaustive): it enumerates
// the full Cartesian product of every pass's non-empty search space, in
// registration order, as one joint step per combination. A pass with an
// empty search space contributes one implicit no-op point to every
// combination.
type ExhaustiveJointStrategy struct {
	MaxIterations      int     // 0 means unbounded
	MaxDurationSeconds float64 // 0 means unbounded

	spaces      []PassSearchSpace
	seedModelID model.ID

	combinations []passregistry.SearchPoint
	next         int
}

func (s *ExhaustiveJointStrategy) Initialize(spaces []PassSearchSpace, seedModelID model.ID, objectives metric.ObjectiveDict) error {
	s.spaces = spaces
	s.seedModelID = seedModelID
	s.combinations = cartesianProduct(spaces)
	s.next = 0
	return nil
}

func (s *ExhaustiveJointStrategy) NextStep() (*Step, bool) {
	if s.next >= len(s.combinations) {
		return nil, false
	}
	point := s.combinations[s.next]
	s.next++

	passes := make([]PassStep, 0, len(s.spaces))
	for _, sp := range s.spaces {
		cfg, _ := point.Get(sp.PassName)
		passes = append(passes, PassStep{PassName: sp.PassName, Point: cfg})
	}
	return &Step{ModelID: s.seedModelID, SearchPoint: point, Passes: passes}, true
}

func (s *ExhaustiveJointStrategy) RecordFeedbackSignal(passregistry.SearchPoint, metric.Result, map[string]model.ID, bool) {
	// Exhaustive enumeration needs no feedback to pick its next point.
}

func (s *ExhaustiveJointStrategy) CheckExitCriteria(iter int, elapsedSeconds float64, _ metric.Result) error {
	if s.MaxIterations > 0 && iter >= s.MaxIterations {
		return fmt.Errorf("search: reached MaxIterations=%d", s.MaxIterations)
	}
	if s.MaxDurationSeconds > 0 && elapsedSeconds >= s.MaxDurationSeconds {
		return fmt.Errorf("search: reached MaxDurationSeconds=%.0f", s.MaxDurationSeconds)
	}
	return nil
}

func (s *ExhaustiveJointStrategy) OutputModelNum() (int, bool) { return 0, false }

// cartesianProduct enumerates every combination of each pass's search
// space entries (a search space is a set of named choices; an empty
// search space contributes a single nil-config choice), in pass
// registration order, each combination as an ordered pass_name -> point
// map.
func cartesianProduct(spaces []PassSearchSpace) []passregistry.SearchPoint {
	choiceSets := make([][]map[string]any, len(spaces))
	for i, sp := range spaces {
		choiceSets[i] = expandChoices(sp.SearchSpace)
	}

	total := 1
	for _, cs := range choiceSets {
		total *= len(cs)
	}

	combos := make([]passregistry.SearchPoint, 0, total)
	indices := make([]int, len(spaces))
	for {
		point := orderedmap.NewOrderedMap[string, map[string]any]()
		for i, sp := range spaces {
			point.Set(sp.PassName, choiceSets[i][indices[i]])
		}
		combos = append(combos, point)

		pos := len(spaces) - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < len(choiceSets[pos]) {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return combos
}

// expandChoices turns a pass's declared search space into the list of
// concrete config maps to try. A search space with no parameters yields a
// single implicit no-op point. Each top-level key is treated as a
// parameter name whose value is the list of candidate settings.
func expandChoices(space map[string]any) []map[string]any {
	if len(space) == 0 {
		return []map[string]any{nil}
	}
	keys := make([]string, 0, len(space))
	for k := range space {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	options := make([][]any, len(keys))
	for i, k := range keys {
		switch v := space[k].(type) {
		case []any:
			options[i] = v
		default:
			options[i] = []any{v}
		}
	}

	total := 1
	for _, o := range options {
		total *= len(o)
	}
	out := make([]map[string]any, 0, total)
	indices := make([]int, len(keys))
	for {
		cfg := make(map[string]any, len(keys))
		for i, k := range keys {
			cfg[k] = options[i][indices[i]]
		}
		out = append(out, cfg)

		pos := len(keys) - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < len(options[pos]) {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return out
}
