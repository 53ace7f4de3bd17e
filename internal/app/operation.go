package app

import (
	"time"

	"refile-go/internal/refile"
)

// Operation tracks one CLI command or server run. Its ID tags every log line
// written while it is active.
type Operation struct {
	ID        string
	Name      string
	StartedAt time.Time
	Status    string // "success" or "error"
}

// NewOperation starts a new operation.
func NewOperation(name string, ids refile.IDGenerator, clock refile.Clock) *Operation {
	return &Operation{
		ID:        ids.New(),
		Name:      name,
		StartedAt: clock.Now(),
		Status:    "success",
	}
}

// Record marks the operation failed when err is non-nil and returns err unchanged.
func (op *Operation) Record(err error) error {
	if err != nil {
		op.Status = "error"
	}
	return err
}

// Failed returns true if any recorded step failed.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}
