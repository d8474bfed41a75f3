// Package search implements the SearchDriver control loop (§4.4): it
// consumes a search strategy, dispatches steps through the PassExecutor
// and Evaluator facade, records feedback, and enforces exit criteria.
package search

import (
	"github.com/olivefarm/enginecore/internal/metric"
	"github.com/olivefarm/enginecore/internal/model"
	"github.com/olivefarm/enginecore/internal/passregistry"
)

// PassSearchSpace pairs a registered pass name with its search space, in
// the order passes will run within a step.
type PassSearchSpace struct {
	PassName    string
	SearchSpace map[string]any
}

// PassStep is one pass's chosen configuration within a Step.
type PassStep struct {
	PassName string
	Point    map[string]any
}

// Step represents one advance: start from ModelID, apply Passes in order,
// evaluate the terminal output.
type Step struct {
	ModelID     model.ID
	SearchPoint passregistry.SearchPoint
	Passes      []PassStep
}

// Strategy is the opaque step-proposal collaborator the driver delegates
// to. Olive ships several; this module ships ExhaustiveJointStrategy as
// the documented default.
type Strategy interface {
	Initialize(spaces []PassSearchSpace, seedModelID model.ID, objectives metric.ObjectiveDict) error
	// NextStep returns the next step to take, or ok=false to terminate.
	NextStep() (step *Step, ok bool)
	RecordFeedbackSignal(point passregistry.SearchPoint, signal metric.Result, modelIDs map[string]model.ID, pruned bool)
	// CheckExitCriteria returns a non-nil error to terminate the loop.
	CheckExitCriteria(iter int, elapsedSeconds float64, signal metric.Result) error
	// OutputModelNum returns a requested top-K bound, if any.
	OutputModelNum() (n int, ok bool)
}
