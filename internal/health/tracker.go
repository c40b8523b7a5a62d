package health

import (
	"sync"
	"time"

	"vpsdash/internal/probe"
)

// ProbeStats is the running record of one probe across cycles
type ProbeStats struct {
	Name                string
	LastStatus          probe.Status
	ConsecutiveFailures int
	LastOK              time.Time
}

// Tracker keeps per-probe failure streaks. A failure is any non-OK result.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*ProbeStats
}

func NewTracker() *Tracker {
	return &Tracker{stats: make(map[string]*ProbeStats)}
}

// Record updates the stats for r and returns the previous status
func (t *Tracker) Record(r probe.Result) (previous probe.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.stats[r.Name]
	if !ok {
		st = &ProbeStats{Name: r.Name, LastStatus: probe.StatusUnknown}
		t.stats[r.Name] = st
	}
	previous = st.LastStatus
	st.LastStatus = r.Status

	if r.Status == probe.StatusOK {
		st.ConsecutiveFailures = 0
		st.LastOK = r.SampledAt
	} else {
		st.ConsecutiveFailures++
	}
	return previous
}

// Stats returns a copy of the stats for name
func (t *Tracker) Stats(name string) (ProbeStats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.stats[name]
	if !ok {
		return ProbeStats{}, false
	}
	return *st, true
}

// ConsecutiveFailures returns the current failure streak of name
func (t *Tracker) ConsecutiveFailures(name string) int {
	st, _ := t.Stats(name)
	return st.ConsecutiveFailures
}
