package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"vpsdash/internal/backup"
	"vpsdash/internal/health"
	"vpsdash/internal/logger"
)

type countingTicker struct {
	ticks atomic.Int32
}

func (c *countingTicker) Tick(ctx context.Context) (health.Snapshot, bool) {
	c.ticks.Add(1)
	return health.Empty(time.Now()), true
}

type fakeTrigger struct {
	err    error
	active *backup.Run
	calls  int
}

func (f *fakeTrigger) TriggerRun(trigger backup.Trigger) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return 12, nil
}

func (f *fakeTrigger) Active() (backup.Run, bool) {
	if f.active == nil {
		return backup.Run{}, false
	}
	return *f.active, true
}

func observed() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.FromZap(zap.New(core)), logs
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, nil, Options{Interval: time.Second})
	assert.Error(t, err)

	_, err = New(&countingTicker{}, nil, Options{})
	assert.Error(t, err)

	_, err = New(&countingTicker{}, &fakeTrigger{}, Options{Interval: time.Second, BackupSchedule: "not a cron"})
	assert.Error(t, err)
}

func TestBackupTickSkipsWhileRunActive(t *testing.T) {
	log, logs := observed()
	trigger := &fakeTrigger{err: backup.ErrAlreadyRunning, active: &backup.Run{ID: 4}}
	s, err := New(&countingTicker{}, trigger, Options{Interval: time.Minute, BackupSchedule: "0 3 * * *", Logger: log})
	require.NoError(t, err)
	defer s.Shutdown()

	s.backupTick()

	assert.Equal(t, 1, trigger.calls)
	skipped := logs.FilterMessage("skipping scheduled backup: run #4 still active")
	assert.Equal(t, 1, skipped.Len())
}

func TestBackupTickStartsRun(t *testing.T) {
	log, logs := observed()
	s, err := New(&countingTicker{}, &fakeTrigger{}, Options{Interval: time.Minute, BackupSchedule: "0 3 * * *", Logger: log})
	require.NoError(t, err)
	defer s.Shutdown()

	s.backupTick()
	assert.Equal(t, 1, logs.FilterMessage("scheduled backup run #12 started").Len())

	s.trigger = &fakeTrigger{err: errors.New("agent shutting down")}
	s.backupTick()
	assert.Equal(t, 1, logs.FilterMessageSnippet("scheduled backup not started").Len())
}

func TestEmptyScheduleDisablesBackups(t *testing.T) {
	s, err := New(&countingTicker{}, &fakeTrigger{}, Options{Interval: time.Minute})
	require.NoError(t, err)
	defer s.Shutdown()

	_, ok := s.NextBackup()
	assert.False(t, ok)
}

func TestNextBackupFollowsCron(t *testing.T) {
	s, err := New(&countingTicker{}, &fakeTrigger{}, Options{Interval: time.Minute, BackupSchedule: "0 3 * * *"})
	require.NoError(t, err)
	s.Start()
	defer s.Shutdown()

	next, ok := s.NextBackup()
	require.True(t, ok)
	assert.Equal(t, 3, next.Hour())
	assert.Equal(t, 0, next.Minute())
}

func TestProbeJobTicks(t *testing.T) {
	ticker := &countingTicker{}
	s, err := New(ticker, nil, Options{Interval: 20 * time.Millisecond})
	require.NoError(t, err)

	_, ok := s.TickNow(context.Background())
	require.True(t, ok)

	s.Start()
	require.Eventually(t, func() bool { return ticker.ticks.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Shutdown())
}
