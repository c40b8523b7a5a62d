// Package probe samples one aspect of host health per probe and turns every
// outcome, including faults, into a Result.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is a health level, ordered UNKNOWN < OK < WARN < CRIT
type Status string

const (
	StatusUnknown Status = "UNKNOWN"
	StatusOK      Status = "OK"
	StatusWarn    Status = "WARN"
	StatusCrit    Status = "CRIT"
)

// Severity returns the ordering rank of the status
func (s Status) Severity() int {
	switch s {
	case StatusOK:
		return 1
	case StatusWarn:
		return 2
	case StatusCrit:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the four known levels
func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusOK, StatusWarn, StatusCrit:
		return true
	}
	return false
}

// Worst returns the highest-severity status; no input yields UNKNOWN
func Worst(statuses ...Status) Status {
	worst := StatusUnknown
	for _, s := range statuses {
		if s.Severity() > worst.Severity() {
			worst = s
		}
	}
	return worst
}

// Result is one probe reading. Value holds a float64 or a string.
type Result struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Value     any       `json:"value"`
	Message   string    `json:"message"`
	SampledAt time.Time `json:"sampledAt"`
	Error     string    `json:"error"`
	// Unit is UnitPercent for utilization readings, empty otherwise
	Unit string `json:"unit,omitempty"`
}

// UnitPercent marks a Value in the 0-100 range
const UnitPercent = "%"

// NewResult builds a result stamped with the current time
func NewResult(name string, status Status, value any, message string) Result {
	return Result{
		Name:      name,
		Status:    status,
		Value:     value,
		Message:   message,
		SampledAt: time.Now().UTC(),
	}
}

func percentResult(name string, status Status, value float64, message string) Result {
	r := NewResult(name, status, value, message)
	r.Unit = UnitPercent
	return r
}

// Unknown builds an UNKNOWN result carrying err
func Unknown(name string, err error) Result {
	r := NewResult(name, StatusUnknown, nil, "")
	if err != nil {
		r.Error = err.Error()
		r.Message = "sample unavailable"
	}
	return r
}

// Probe samples one health signal. Sample must honor ctx and report faults
// through the returned Result rather than panicking.
type Probe interface {
	Name() string
	Sample(ctx context.Context) Result
}

// ErrProbeTimeout marks a probe that did not report before its deadline
var ErrProbeTimeout = errors.New("probe timeout")

// InternalError wraps a panic or collaborator fault raised inside a probe
type InternalError struct {
	Probe string
	Cause any
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("probe %s internal error: %v", e.Probe, e.Cause)
}

func (e *InternalError) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}
