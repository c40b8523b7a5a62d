package health

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpsdash/internal/logger"
	"vpsdash/internal/probe"
)

type stubProbe struct {
	name   string
	status probe.Status
	delay  time.Duration
	block  chan struct{}
	calls  atomic.Int32
}

func (p *stubProbe) Name() string { return p.name }

func (p *stubProbe) Sample(ctx context.Context) probe.Result {
	p.calls.Add(1)
	if p.block != nil {
		<-p.block
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	return probe.NewResult(p.name, p.status, 1.0, "")
}

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (r *recordingPublisher) Publish(s Snapshot) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
	return s
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func TestNewSnapshot(t *testing.T) {
	s := NewSnapshot(time.Now(), nil)
	assert.Equal(t, probe.StatusUnknown, s.OverallStatus)
	assert.NotNil(t, s.Results)

	s = NewSnapshot(time.Now(), []probe.Result{
		{Name: "a", Status: probe.StatusOK},
		{Name: "b", Status: probe.StatusWarn},
	})
	assert.Equal(t, probe.StatusWarn, s.OverallStatus)
}

func TestSnapshotWith(t *testing.T) {
	s := NewSnapshot(time.Now(), []probe.Result{{Name: "cpu", Status: probe.StatusOK}})

	withBackup := s.With(probe.Result{Name: "backup", Status: probe.StatusCrit})
	assert.Equal(t, probe.StatusCrit, withBackup.OverallStatus)
	assert.Len(t, withBackup.Results, 2)
	assert.Len(t, s.Results, 1, "original snapshot must not change")

	replaced := withBackup.With(probe.Result{Name: "backup", Status: probe.StatusOK})
	assert.Len(t, replaced.Results, 2)
	assert.Equal(t, probe.StatusOK, replaced.OverallStatus)

	r, ok := replaced.Result("backup")
	require.True(t, ok)
	assert.Equal(t, probe.StatusOK, r.Status)
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	_, err := New([]probe.Probe{
		&stubProbe{name: "cpu"},
		&stubProbe{name: "cpu"},
	}, &recordingPublisher{}, Options{Logger: logger.Nop()})
	assert.Error(t, err)
}

func TestTickPublishesInRegistrationOrder(t *testing.T) {
	pub := &recordingPublisher{}
	probes := []probe.Probe{
		&stubProbe{name: "slow", status: probe.StatusOK, delay: 30 * time.Millisecond},
		&stubProbe{name: "fast", status: probe.StatusWarn},
	}
	agg, err := New(probes, pub, Options{Timeout: time.Second, Logger: logger.Nop()})
	require.NoError(t, err)

	snap, ok := agg.Tick(context.Background())
	require.True(t, ok)
	require.Len(t, snap.Results, 2)
	assert.Equal(t, "slow", snap.Results[0].Name)
	assert.Equal(t, "fast", snap.Results[1].Name)
	assert.Equal(t, probe.StatusWarn, snap.OverallStatus)
	assert.Equal(t, 1, pub.count())
}

func TestTickHungProbeDoesNotDelayPublication(t *testing.T) {
	hung := &stubProbe{name: "hung", block: make(chan struct{})}
	defer close(hung.block)

	pub := &recordingPublisher{}
	agg, err := New([]probe.Probe{
		hung,
		&stubProbe{name: "ok", status: probe.StatusOK},
	}, pub, Options{Timeout: 50 * time.Millisecond, Grace: 50 * time.Millisecond, Logger: logger.Nop()})
	require.NoError(t, err)

	start := time.Now()
	snap, ok := agg.Tick(context.Background())
	require.True(t, ok)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, probe.StatusUnknown, snap.Results[0].Status)
	assert.Contains(t, snap.Results[0].Error, "probe timeout")
	assert.Equal(t, probe.StatusOK, snap.Results[1].Status)
	assert.Equal(t, probe.StatusOK, snap.OverallStatus)
}

func TestTickIsSingleFlight(t *testing.T) {
	gate := &stubProbe{name: "gate", status: probe.StatusOK, block: make(chan struct{})}
	pub := &recordingPublisher{}
	agg, err := New([]probe.Probe{gate}, pub, Options{Timeout: 5 * time.Second, Logger: logger.Nop()})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		agg.Tick(context.Background())
	}()

	require.Eventually(t, func() bool { return gate.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, ok := agg.Tick(context.Background())
	assert.False(t, ok)

	close(gate.block)
	<-done
	assert.Equal(t, 1, pub.count())
	assert.Equal(t, int32(1), gate.calls.Load())
}

func TestTickNotifiesObserversAndTracksFailures(t *testing.T) {
	p := &stubProbe{name: "disk", status: probe.StatusCrit}
	var observed []probe.Status
	agg, err := New([]probe.Probe{p}, &recordingPublisher{}, Options{
		Logger: logger.Nop(),
		Observers: []Observer{ObserverFunc(func(s Snapshot) {
			observed = append(observed, s.OverallStatus)
		})},
	})
	require.NoError(t, err)

	agg.Tick(context.Background())
	agg.Tick(context.Background())
	assert.Equal(t, 2, agg.Tracker().ConsecutiveFailures("disk"))

	p.status = probe.StatusOK
	agg.Tick(context.Background())

	st, ok := agg.Tracker().Stats("disk")
	require.True(t, ok)
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.False(t, st.LastOK.IsZero())
	assert.Equal(t, []probe.Status{probe.StatusCrit, probe.StatusCrit, probe.StatusOK}, observed)
}

func TestTickWithNoProbes(t *testing.T) {
	agg, err := New(nil, &recordingPublisher{}, Options{Logger: logger.Nop()})
	require.NoError(t, err)

	snap, ok := agg.Tick(context.Background())
	require.True(t, ok)
	assert.Equal(t, probe.StatusUnknown, snap.OverallStatus)
	assert.Empty(t, snap.Results)
}
