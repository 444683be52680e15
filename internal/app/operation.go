package app

import (
	"time"
)

// opIDLayout formats the operation identity carried on every log line.
const opIDLayout = "20060102T150405Z"

// Operation identifies one CLI invocation in the log.
type Operation struct {
	ID         string
	Name       string
	Parameters string
	Started    time.Time
	Status     string // "success" or "error"
}

// NewOperation creates an operation started at now.
func NewOperation(name, parameters string, now time.Time) *Operation {
	return &Operation{
		ID:         now.UTC().Format(opIDLayout),
		Name:       name,
		Parameters: parameters,
		Started:    now,
		Status:     "success",
	}
}

// Fail marks the operation as failed when err is not nil and returns err.
func (op *Operation) Fail(err error) error {
	if err != nil {
		op.Status = "error"
	}
	return err
}

// Elapsed returns the time since the operation started.
func (op *Operation) Elapsed(now time.Time) time.Duration {
	return now.Sub(op.Started)
}
