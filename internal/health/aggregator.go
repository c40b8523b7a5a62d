package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	constants "vpsdash/config"
	"vpsdash/internal/logger"
	"vpsdash/internal/probe"
)

// DefaultGrace is added to the probe timeout to form the cycle deadline
const DefaultGrace = constants.DEFAULT_CYCLE_GRACE * time.Second

// ErrMissedDeadline is recorded for probes that did not report within the cycle
var ErrMissedDeadline = errors.New("missed cycle deadline")

// Options configures an Aggregator. Zero durations take the defaults.
type Options struct {
	Timeout   time.Duration
	Grace     time.Duration
	Observers []Observer
	Tracker   *Tracker
	Logger    *logger.Logger
}

// Aggregator samples every probe once per tick and publishes the snapshot
type Aggregator struct {
	probes    []probe.Probe
	publisher Publisher
	timeout   time.Duration
	grace     time.Duration
	observers []Observer
	tracker   *Tracker
	log       *logger.Logger

	running atomic.Bool
}

// New validates the probe set. Probe names must be unique since results are
// keyed by name downstream.
func New(probes []probe.Probe, publisher Publisher, opts Options) (*Aggregator, error) {
	if publisher == nil {
		return nil, errors.New("health: nil publisher")
	}
	seen := make(map[string]struct{}, len(probes))
	for _, p := range probes {
		if _, dup := seen[p.Name()]; dup {
			return nil, fmt.Errorf("health: duplicate probe name %q", p.Name())
		}
		seen[p.Name()] = struct{}{}
	}

	if opts.Timeout <= 0 {
		opts.Timeout = probe.DefaultTimeout
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Tracker == nil {
		opts.Tracker = NewTracker()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("health")
	}

	return &Aggregator{
		probes:    probes,
		publisher: publisher,
		timeout:   opts.Timeout,
		grace:     opts.Grace,
		observers: opts.Observers,
		tracker:   opts.Tracker,
		log:       opts.Logger,
	}, nil
}

// Tracker exposes the per-probe failure streaks
func (a *Aggregator) Tracker() *Tracker { return a.tracker }

// Tick runs one probe cycle. When a cycle is already in flight the call
// returns immediately with false.
func (a *Aggregator) Tick(ctx context.Context) (Snapshot, bool) {
	if !a.running.CompareAndSwap(false, true) {
		a.log.Debug("probe cycle already running, tick skipped")
		return Snapshot{}, false
	}
	defer a.running.Store(false)

	start := time.Now()
	results := a.collect(ctx)
	published := a.publisher.Publish(NewSnapshot(start, results))

	a.track(results)
	for _, o := range a.observers {
		o.Observe(published)
	}

	a.log.Debug("probe cycle finished in %s: %s", time.Since(start).Round(time.Millisecond), published.OverallStatus)
	return published, true
}

// collect fans out one goroutine per probe and gathers whatever reported
// before the cycle deadline. Results keep registration order.
func (a *Aggregator) collect(ctx context.Context) []probe.Result {
	ctx, cancel := context.WithTimeout(ctx, a.timeout+a.grace)
	defer cancel()

	type indexed struct {
		i int
		r probe.Result
	}

	results := make([]probe.Result, len(a.probes))
	reported := make([]bool, len(a.probes))
	out := make(chan indexed, len(a.probes))

	var wg sync.WaitGroup
	for i, p := range a.probes {
		wg.Add(1)
		go func(i int, p probe.Probe) {
			defer wg.Done()
			out <- indexed{i: i, r: probe.Sample(ctx, p, a.timeout)}
		}(i, p)
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	remaining := len(a.probes)
	for remaining > 0 {
		select {
		case res, ok := <-out:
			if !ok {
				remaining = 0
				continue
			}
			results[res.i] = res.r
			reported[res.i] = true
			remaining--
		case <-ctx.Done():
			remaining = 0
		}
	}

	for i, p := range a.probes {
		if !reported[i] {
			results[i] = probe.Unknown(p.Name(), ErrMissedDeadline)
		}
	}
	return results
}

func (a *Aggregator) track(results []probe.Result) {
	for _, r := range results {
		previous := a.tracker.Record(r)
		if previous == r.Status {
			continue
		}
		switch r.Status {
		case probe.StatusOK:
			if previous != probe.StatusUnknown {
				a.log.Info("probe %s recovered: %s", r.Name, r.Message)
			}
		case probe.StatusWarn, probe.StatusCrit:
			a.log.Warning("probe %s is %s: %s", r.Name, r.Status, r.Message)
		default:
			a.log.Warning("probe %s is UNKNOWN: %s", r.Name, r.Error)
		}
	}
}
