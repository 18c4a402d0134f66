package service

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a transaction reference resolves to nothing.
var ErrNotFound = errors.New("transaction not found")

// PersistenceError wraps a fatal store failure. Only the reference lookup and
// the status-transition save can produce it; every later failure is soft.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// StageFailure records a non-fatal error absorbed by the approval pipeline.
type StageFailure struct {
	Stage string
	Err   error
}

func (f StageFailure) Error() string {
	return fmt.Sprintf("stage %s: %v", f.Stage, f.Err)
}
