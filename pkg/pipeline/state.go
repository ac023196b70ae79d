// Package pipeline runs the per-component state machine over a batch of
// units: ingestion, the pure analysis stages, and the external generation
// and validation calls, under a bounded worker pool with retry and
// cooperative cancellation.
package pipeline

import (
	"slices"
	"time"
)

// State is a unit's position in the processing state machine.
type State string

// Unit states.
const (
	StatePending                    State = "Pending"
	StateIngesting                  State = "Ingesting"
	StateClassifying                State = "Classifying"
	StateExtracting                 State = "Extracting"
	StateMapping                    State = "Mapping"
	StateAwaitingExternalGeneration State = "AwaitingExternalGeneration"
	StateAwaitingExternalValidation State = "AwaitingExternalValidation"
	StateRetrying                   State = "Retrying"
	StateDone                       State = "Done"
	StateFailed                     State = "Failed"
	StateCanceled                   State = "Canceled"
)

// States lists every state in pipeline order.
func States() []State {
	return []State{
		StatePending, StateIngesting, StateClassifying, StateExtracting, StateMapping,
		StateAwaitingExternalGeneration, StateAwaitingExternalValidation, StateRetrying,
		StateDone, StateFailed, StateCanceled,
	}
}

// transitions lists the forward moves of each state. Failed and Canceled are
// reachable from every non-terminal state and are not repeated here.
var transitions = map[State][]State{
	StatePending:                    {StateIngesting},
	StateIngesting:                  {StateClassifying},
	StateClassifying:                {StateExtracting},
	StateExtracting:                 {StateMapping},
	StateMapping:                    {StateAwaitingExternalGeneration},
	StateAwaitingExternalGeneration: {StateAwaitingExternalValidation, StateRetrying},
	StateAwaitingExternalValidation: {StateDone, StateRetrying},
	StateRetrying:                   {StateAwaitingExternalGeneration, StateAwaitingExternalValidation},
}

// analysisStates are the pure stages, in order.
var analysisStates = []State{StateClassifying, StateExtracting, StateMapping}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCanceled
}

// CanTransition reports whether the state machine allows from → to.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}

	if to == StateFailed || to == StateCanceled {
		return true
	}

	return slices.Contains(transitions[from], to)
}

// Transition is one recorded state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}
