package session

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConnection Kind = "connection"
	KindGeneration Kind = "generation"
	KindExecution  Kind = "execution"
)

var (
	ErrNotConnected  = errors.New("not connected to a database")
	ErrEmptyQuestion = errors.New("question is required")
	ErrTurnNotFound  = errors.New("turn not found")
	ErrNoResult      = errors.New("turn has no result")
)

// TurnError ends the current operation only; the session stays usable.
type TurnError struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a *TurnError in err's chain, or "".
func KindOf(err error) Kind {
	var turnErr *TurnError
	if errors.As(err, &turnErr) {
		return turnErr.Kind
	}
	return ""
}
