package engine

import (
	"github.com/olivefarm/enginecore/internal/metric"
	"github.com/olivefarm/enginecore/internal/model"
	"github.com/olivefarm/enginecore/internal/passregistry"
	"github.com/olivefarm/enginecore/internal/search"
)

// singleStepStrategy implements §4.4's no-search mode: exactly one step
// covering every registered pass in declared order, each at its (already
// validated empty) search space's implicit no-op point.
type singleStepStrategy struct {
	step *search.Step
	done bool
}

func newSingleStepStrategy(instances []passregistry.NamedInstance, seedModelID model.ID) *singleStepStrategy {
	point := passregistry.NewSearchPoint()
	passes := make([]search.PassStep, 0, len(instances))
	for _, ni := range instances {
		point.Set(ni.Name, nil)
		passes = append(passes, search.PassStep{PassName: ni.Name, Point: nil})
	}
	return &singleStepStrategy{
		step: &search.Step{ModelID: seedModelID, SearchPoint: point, Passes: passes},
	}
}

func (s *singleStepStrategy) Initialize([]search.PassSearchSpace, model.ID, metric.ObjectiveDict) error {
	return nil
}

func (s *singleStepStrategy) NextStep() (*search.Step, bool) {
	if s.done {
		return nil, false
	}
	s.done = true
	return s.step, true
}

func (s *singleStepStrategy) RecordFeedbackSignal(passregistry.SearchPoint, metric.Result, map[string]model.ID, bool) {
}

func (s *singleStepStrategy) CheckExitCriteria(int, float64, metric.Result) error { return nil }

func (s *singleStepStrategy) OutputModelNum() (int, bool) { return 0, false }
