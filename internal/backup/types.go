// Package backup runs the enumerate, archive, upload, verify and prune
// pipeline with per-step retries and a durable run journal.
package backup

import (
	"time"
)

// Trigger is what started a run
type Trigger string

const (
	TriggerScheduled Trigger = "SCHEDULED"
	TriggerManual    Trigger = "MANUAL"
)

// Outcome is the externally visible result of a run
type Outcome string

const (
	OutcomeRunning Outcome = "RUNNING"
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomePartial Outcome = "PARTIAL"
	OutcomeFailed  Outcome = "FAILED"
)

// StepName identifies a pipeline step
type StepName string

const (
	StepEnumerate StepName = "ENUMERATE"
	StepArchive   StepName = "ARCHIVE"
	StepUpload    StepName = "UPLOAD"
	StepVerify    StepName = "VERIFY"
	StepPrune     StepName = "PRUNE"
)

// Steps in execution order
var Steps = []StepName{StepEnumerate, StepArchive, StepUpload, StepVerify, StepPrune}

// State is the position of a run in the pipeline state machine
type State string

const (
	StateIdle            State = "IDLE"
	StateEnumerating     State = "ENUMERATING"
	StateArchiving       State = "ARCHIVING"
	StateUploading       State = "UPLOADING"
	StateVerifying       State = "VERIFYING"
	StatePruning         State = "PRUNING"
	StateSucceeded       State = "SUCCEEDED"
	StatePartiallyFailed State = "PARTIALLY_FAILED"
	StateFailed          State = "FAILED"
)

var stepStates = map[StepName]State{
	StepEnumerate: StateEnumerating,
	StepArchive:   StateArchiving,
	StepUpload:    StateUploading,
	StepVerify:    StateVerifying,
	StepPrune:     StatePruning,
}

// terminalState maps a finished outcome to its terminal state
func terminalState(o Outcome) State {
	switch o {
	case OutcomeSuccess:
		return StateSucceeded
	case OutcomePartial:
		return StatePartiallyFailed
	default:
		return StateFailed
	}
}

// StepOutcome is the result of a single attempt
type StepOutcome string

const (
	StepSuccess StepOutcome = "SUCCESS"
	StepFailed  StepOutcome = "FAILED"
)

// StepResult records one attempt of one step
type StepResult struct {
	Step       StepName    `json:"step"`
	Attempt    int         `json:"attempt"`
	Outcome    StepOutcome `json:"outcome"`
	Detail     string      `json:"detail"`
	DurationMs int64       `json:"durationMs"`
}

// Duration returns the attempt duration
func (s StepResult) Duration() time.Duration {
	return time.Duration(s.DurationMs) * time.Millisecond
}

// Run is one execution of the pipeline. Steps is append-only.
type Run struct {
	ID               int64        `json:"id"`
	Trigger          Trigger      `json:"trigger"`
	StartedAt        time.Time    `json:"startedAt"`
	FinishedAt       *time.Time   `json:"finishedAt"`
	State            State        `json:"state"`
	Outcome          Outcome      `json:"outcome"`
	BytesTransferred int64        `json:"bytesTransferred"`
	RetriesUsed      int          `json:"retriesUsed"`
	Reason           string       `json:"reason,omitempty"`
	Archive          string       `json:"archive,omitempty"`
	Key              string       `json:"key,omitempty"`
	Steps            []StepResult `json:"steps"`
}

// Finished reports whether the run reached a terminal state
func (r *Run) Finished() bool {
	return r.FinishedAt != nil
}

// Clone returns a deep copy safe to hand to other goroutines
func (r *Run) Clone() Run {
	c := *r
	c.Steps = append([]StepResult(nil), r.Steps...)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return c
}

// Duration is the wall time of a finished run, or zero while it is running
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// LastStep returns the most recent step record
func (r *Run) LastStep() (StepResult, bool) {
	if len(r.Steps) == 0 {
		return StepResult{}, false
	}
	return r.Steps[len(r.Steps)-1], true
}
