// Package cache holds the current health snapshot, a short snapshot history
// and the backup run history. Readers never block on writers.
package cache

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	constants "vpsdash/config"
	"vpsdash/internal/backup"
	"vpsdash/internal/health"
	"vpsdash/internal/probe"
)

// BackupProbeName is the synthetic result carrying the last backup outcome
const BackupProbeName = "backup"

const subscriberBuffer = 4

// Cache is the single owner of published snapshots and finished runs
type Cache struct {
	current atomic.Pointer[health.Snapshot]
	created time.Time

	mu      sync.RWMutex
	history *Ring[health.Snapshot]
	runs    *Ring[backup.Run]
	backup  *probe.Result
	subs    map[int]chan health.Snapshot
	nextSub int
}

// New creates a cache; sizes below one fall back to the defaults
func New(historySize, runHistorySize int) *Cache {
	if historySize < 1 {
		historySize = constants.DEFAULT_SNAPSHOT_HISTORY
	}
	if runHistorySize < 1 {
		runHistorySize = constants.DEFAULT_RUN_HISTORY
	}
	return &Cache{
		created: time.Now().UTC(),
		history: NewRing[health.Snapshot](historySize),
		runs:    NewRing[backup.Run](runHistorySize),
		subs:    make(map[int]chan health.Snapshot),
	}
}

// Publish makes s current, folding in the latest backup result, and appends
// it to history. It returns what was stored.
func (c *Cache) Publish(s health.Snapshot) health.Snapshot {
	c.mu.Lock()
	if c.backup != nil {
		s = s.With(*c.backup)
	}
	c.current.Store(&s)
	c.history.Push(s)
	subs := make([]chan health.Snapshot, 0, len(c.subs))
	for _, ch := range c.subs {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- s:
		default:
		}
	}
	return s
}

// Current returns the latest snapshot, or an UNKNOWN placeholder before the
// first publish. It never blocks.
func (c *Cache) Current() health.Snapshot {
	if s := c.current.Load(); s != nil {
		return *s
	}
	return health.Empty(c.created)
}

// Initialized reports whether any snapshot has been published
func (c *Cache) Initialized() bool {
	return c.current.Load() != nil
}

// History returns published snapshots, most recent first. The first entry is
// the current snapshot.
func (c *Cache) History(limit int) []health.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history.Newest(limit)
}

// HistoryCap is the fixed history capacity
func (c *Cache) HistoryCap() int {
	return c.history.Cap()
}

// RunsCap is the fixed run history capacity
func (c *Cache) RunsCap() int {
	return c.runs.Cap()
}

// RecordBackupStatus stores a finished run and makes its outcome part of
// every snapshot published from now on
func (c *Cache) RecordBackupStatus(run backup.Run) {
	res := BackupResult(run)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs.Push(run.Clone())
	c.backup = &res
}

// SeedRuns loads runs recovered from the journal, oldest first
func (c *Cache) SeedRuns(runs []backup.Run) {
	if len(runs) == 0 {
		return
	}
	sorted := append([]backup.Run(nil), runs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range sorted {
		c.runs.Push(r.Clone())
	}
	res := BackupResult(sorted[len(sorted)-1])
	c.backup = &res
}

// Runs returns finished runs, most recent first
func (c *Cache) Runs(limit int) []backup.Run {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runs.Newest(limit)
}

// Run looks up a finished run by id
func (c *Cache) Run(id int64) (backup.Run, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runs.Find(func(r backup.Run) bool { return r.ID == id })
}

// Subscribe delivers each published snapshot until cancel is called. Slow
// subscribers miss snapshots rather than stalling Publish.
func (c *Cache) Subscribe() (<-chan health.Snapshot, func()) {
	ch := make(chan health.Snapshot, subscriberBuffer)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
	return ch, cancel
}

// BackupResult converts a run into the synthetic "backup" probe result
func BackupResult(run backup.Run) probe.Result {
	status := probe.StatusUnknown
	switch run.Outcome {
	case backup.OutcomeSuccess:
		status = probe.StatusOK
	case backup.OutcomePartial:
		status = probe.StatusWarn
	case backup.OutcomeFailed:
		status = probe.StatusCrit
	}

	msg := fmt.Sprintf("run #%d %s", run.ID, run.Outcome)
	if run.Reason != "" {
		msg += ": " + run.Reason
	}

	at := run.StartedAt
	if run.FinishedAt != nil {
		at = *run.FinishedAt
	}
	return probe.Result{
		Name:      BackupProbeName,
		Status:    status,
		Value:     string(run.Outcome),
		Message:   msg,
		SampledAt: at.UTC(),
	}
}
