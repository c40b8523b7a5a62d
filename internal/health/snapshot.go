// Package health runs the probe cycle and assembles its results into snapshots.
package health

import (
	"time"

	"vpsdash/internal/probe"
)

// Snapshot is the health of the host at one instant. It is built once and
// never mutated; With returns a copy.
type Snapshot struct {
	TakenAt       time.Time      `json:"takenAt"`
	OverallStatus probe.Status   `json:"overallStatus"`
	Results       []probe.Result `json:"results"`
}

// NewSnapshot computes the overall status as the worst result status
func NewSnapshot(at time.Time, results []probe.Result) Snapshot {
	if results == nil {
		results = []probe.Result{}
	}
	statuses := make([]probe.Status, len(results))
	for i, r := range results {
		statuses[i] = r.Status
	}
	return Snapshot{
		TakenAt:       at.UTC(),
		OverallStatus: probe.Worst(statuses...),
		Results:       results,
	}
}

// Empty is the placeholder served before any probe cycle has published
func Empty(at time.Time) Snapshot {
	return NewSnapshot(at, nil)
}

// With returns a copy of s where r replaces the result of the same name, or
// is appended when there is none. The overall status is recomputed.
func (s Snapshot) With(r probe.Result) Snapshot {
	results := make([]probe.Result, 0, len(s.Results)+1)
	replaced := false
	for _, existing := range s.Results {
		if existing.Name == r.Name {
			results = append(results, r)
			replaced = true
			continue
		}
		results = append(results, existing)
	}
	if !replaced {
		results = append(results, r)
	}
	return NewSnapshot(s.TakenAt, results)
}

// Result looks up a result by probe name
func (s Snapshot) Result(name string) (probe.Result, bool) {
	for _, r := range s.Results {
		if r.Name == name {
			return r, true
		}
	}
	return probe.Result{}, false
}

// Age is how long ago the snapshot was taken
func (s Snapshot) Age(now time.Time) time.Duration {
	if s.TakenAt.IsZero() {
		return 0
	}
	return now.Sub(s.TakenAt)
}

// Publisher stores a finished snapshot and returns it as it was stored
type Publisher interface {
	Publish(s Snapshot) Snapshot
}

// Observer is notified with every published snapshot
type Observer interface {
	Observe(s Snapshot)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(s Snapshot)

func (f ObserverFunc) Observe(s Snapshot) { f(s) }
