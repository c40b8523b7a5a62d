package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning rejects a trigger while another run holds the claim
	ErrAlreadyRunning = errors.New("backup already running")

	// ErrStorageUnavailable marks object store transport failures and an open breaker
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrVerificationMismatch means the uploaded object does not match the local archive
	ErrVerificationMismatch = errors.New("verification mismatch")

	// ErrCancelled is returned by steps interrupted by Cancel
	ErrCancelled = errors.New("run cancelled")

	// ErrNotRunning is returned by Cancel when the id is not the active run
	ErrNotRunning = errors.New("run not active")

	// ErrRunNotFound is returned by Wait for an id that was never started
	ErrRunNotFound = errors.New("run not found")
)

// StepRetryExhaustedError ends a step after its last failed attempt
type StepRetryExhaustedError struct {
	Step     StepName
	Attempts int
	Err      error
}

func (e *StepRetryExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Step, e.Attempts, e.Err)
}

func (e *StepRetryExhaustedError) Unwrap() error {
	return e.Err
}
