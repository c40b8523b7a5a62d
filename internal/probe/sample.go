package probe

import (
	"context"
	"fmt"
	"time"

	constants "vpsdash/config"
)

// DefaultTimeout bounds a single probe sample
const DefaultTimeout = constants.DEFAULT_PROBE_TIMEOUT * time.Second

// Sample runs p with a deadline and never lets a fault escape: a panic becomes
// an UNKNOWN result with an InternalError and a missed deadline becomes an
// UNKNOWN result with ErrProbeTimeout. It returns no later than timeout.
func Sample(ctx context.Context, p Probe, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	name := p.Name()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so an abandoned probe goroutine can still finish and exit.
	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Unknown(name, &InternalError{Probe: name, Cause: r})
			}
		}()
		done <- normalize(name, p.Sample(ctx))
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return Unknown(name, fmt.Errorf("%w after %s", ErrProbeTimeout, timeout))
	}
}

func normalize(name string, r Result) Result {
	r.Name = name
	if !r.Status.Valid() {
		r.Status = StatusUnknown
	}
	if r.SampledAt.IsZero() {
		r.SampledAt = time.Now().UTC()
	}
	return r
}
