package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrOutOfOrder is returned when a stage would move the run backwards or
// skip a state.
var ErrOutOfOrder = errors.New("stage out of order")

// State is the lifecycle position of a run.
type State string

const (
	StateNotStarted State = "not-started"
	StateHardened   State = "hardened"
	StateFetched    State = "fetched"
	StatePublished  State = "published"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// next lists the only forward transition out of each state.
var next = map[State]State{
	StateNotStarted: StateHardened,
	StateHardened:   StateFetched,
	StateFetched:    StatePublished,
	StatePublished:  StateSucceeded,
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Transition records one state change.
type Transition struct {
	From  State     `json:"from"`
	To    State     `json:"to"`
	Stage string    `json:"stage,omitempty"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}

func checkTransition(from, to State) error {
	if to == StateFailed {
		if from.Terminal() {
			return fmt.Errorf("%w: %s -> %s", ErrOutOfOrder, from, to)
		}
		return nil
	}
	if next[from] != to {
		return fmt.Errorf("%w: %s -> %s", ErrOutOfOrder, from, to)
	}
	return nil
}
