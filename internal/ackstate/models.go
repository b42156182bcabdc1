package ackstate

import (
	"errors"
	"fmt"
)

// State is the acknowledgment state of one document in one period.
type State string

const (
	StateAvailable State = "AVAILABLE"
	StateSigned    State = "SIGNED"
	StateObjected  State = "OBJECTED"
)

func (s State) IsValid() bool {
	switch s {
	case StateAvailable, StateSigned, StateObjected:
		return true
	}
	return false
}

// Action is a recipient response that may move the state.
type Action string

const (
	ActionSign   Action = "sign"
	ActionObject Action = "object"
	ActionUndo   Action = "undo"
	ActionKeep   Action = "keep"
)

// Key identifies one document acknowledgment. Period is the canonical
// "mm/yyyy" label.
type Key struct {
	DocumentID string
	Period     string
}

func (k Key) String() string {
	return k.DocumentID + "@" + k.Period
}

var ErrInvalidTransition = errors.New("invalid acknowledgment transition")

var transitions = map[State]map[Action]State{
	StateAvailable: {
		ActionSign:   StateSigned,
		ActionObject: StateObjected,
	},
	StateObjected: {
		ActionUndo: StateSigned,
		ActionKeep: StateObjected,
	},
}

// Next applies action to from. Signed documents accept no action.
func Next(from State, action Action) (State, error) {
	next, ok := transitions[from][action]
	if !ok {
		return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, from)
	}
	return next, nil
}
