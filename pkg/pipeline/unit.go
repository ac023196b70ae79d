package pipeline

import (
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/designmap/pkg/engine"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

// Stage names used in Unit.Skipped.
const (
	StageGeneration = "generation"
	StageValidation = "validation"
)

// Unit is one component instance moving through the pipeline. A unit is
// owned by exactly one worker while it runs.
type Unit struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	State      State          `json:"state"`
	Record     *engine.Record `json:"record,omitempty"`
	Generation *Generation    `json:"generation,omitempty"`
	Verdict    *Verdict       `json:"verdict,omitempty"`
	Attempts   int            `json:"attempts"`
	Skipped    []string       `json:"skipped,omitempty"`
	Error      string         `json:"error,omitempty"`
	History    []Transition   `json:"history"`

	// Err is the error that moved the unit to Failed or Canceled.
	Err error `json:"-"`

	node    *scene.Node
	now     func() time.Time
	observe TransitionObserver
}

func newUnit(id string, targetNode *scene.Node, now func() time.Time, observe TransitionObserver) *Unit {
	return &Unit{
		ID:      id,
		Name:    targetNode.Name,
		State:   StatePending,
		node:    targetNode,
		now:     now,
		observe: observe,
	}
}

// Node returns the scene node the unit was created for.
func (unit *Unit) Node() *scene.Node {
	return unit.node
}

// Duration returns the time between the first and the last transition.
func (unit *Unit) Duration() time.Duration {
	if len(unit.History) == 0 {
		return 0
	}

	return unit.History[len(unit.History)-1].At.Sub(unit.History[0].At)
}

// StageDurations returns how long the unit spent in each state it left.
func (unit *Unit) StageDurations() map[State]time.Duration {
	durations := make(map[State]time.Duration)

	for idx := 1; idx < len(unit.History); idx++ {
		prev := unit.History[idx-1]
		durations[prev.To] += unit.History[idx].At.Sub(prev.At)
	}

	return durations
}

func (unit *Unit) transition(to State, note string) error {
	if !CanTransition(unit.State, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, unit.State, to)
	}

	step := Transition{From: unit.State, To: to, At: unit.now(), Note: note}
	unit.History = append(unit.History, step)
	unit.State = to

	if unit.observe != nil {
		unit.observe(unit.ID, step)
	}

	return nil
}

// advanceTo steps through the analysis states up to target, noting each
// skipped step.
func (unit *Unit) advanceTo(target State, note string) error {
	for _, state := range analysisStates {
		if unit.State == target {
			return nil
		}

		if CanTransition(unit.State, state) {
			err := unit.transition(state, note)
			if err != nil {
				return err
			}
		}
	}

	if unit.State != target {
		return fmt.Errorf("%w: cannot reach %s from %s", ErrInvalidTransition, target, unit.State)
	}

	return nil
}

func (unit *Unit) fail(err error) {
	unit.finish(StateFailed, err)
}

func (unit *Unit) cancel(err error) {
	unit.finish(StateCanceled, err)
}

func (unit *Unit) finish(state State, err error) {
	if unit.State.Terminal() {
		return
	}

	unit.Err = err
	unit.Error = err.Error()

	// Failed and Canceled are reachable from every non-terminal state.
	_ = unit.transition(state, unit.Error)
}
