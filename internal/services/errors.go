package services

import (
	"errors"
	"fmt"
)

// ErrReplicaOnly marks operations that only the graph replica can answer.
// Callers running primary-only get this instead of a silent slow path.
var ErrReplicaOnly = errors.New("operation requires the graph replica")

// PrimaryWriteError wraps a failed write to the relational source of truth.
// Nothing was applied anywhere when this is returned.
type PrimaryWriteError struct {
	Op  string
	Err error
}

func (e *PrimaryWriteError) Error() string {
	return fmt.Sprintf("primary write failed (%s): %v", e.Op, e.Err)
}

func (e *PrimaryWriteError) Unwrap() error { return e.Err }

// ReplicaWriteError wraps a failed replica write after the primary write
// succeeded. RolledBack reports whether the compensating primary delete ran
// and succeeded; when it is true the stores are consistent again.
type ReplicaWriteError struct {
	Op         string
	RolledBack bool
	Err        error
}

func (e *ReplicaWriteError) Error() string {
	if e.RolledBack {
		return fmt.Sprintf("replica write failed (%s), primary rolled back: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("replica write failed (%s): %v", e.Op, e.Err)
}

func (e *ReplicaWriteError) Unwrap() error { return e.Err }

// RollbackError is the worst case: the replica write failed and the
// compensating primary delete failed too, leaving the stores divergent until
// the next backfill. It must reach the caller, never be swallowed.
type RollbackError struct {
	Op          string
	WriteErr    error
	RollbackErr error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("replica write failed (%s) and compensating delete failed, stores divergent: write: %v, rollback: %v",
		e.Op, e.WriteErr, e.RollbackErr)
}

func (e *RollbackError) Unwrap() error { return e.RollbackErr }
