package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpsdash/internal/hooks"
	"vpsdash/internal/logger"
)

type fakeEnumerator struct {
	gate chan struct{}
	err  error
}

func (f *fakeEnumerator) Enumerate(ctx context.Context) (Manifest, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return Manifest{}, f.err
	}
	return Manifest{Files: []FileEntry{{Path: "/etc/hosts", Name: "etc/hosts", Size: 10}}, TotalBytes: 10}, nil
}

// fakeArchiver writes a real file so retention and cleanup are observable
type fakeArchiver struct {
	dir     string
	panicOn bool
	content string
}

func (f *fakeArchiver) Archive(ctx context.Context, m Manifest, key string) (Artifact, error) {
	if f.panicOn {
		panic("archiver exploded")
	}
	path := filepath.Join(f.dir, key)
	data := "archive-bytes"
	if f.content != "" {
		data = f.content
	}
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		return Artifact{}, err
	}
	return Artifact{Path: path, Key: key, Size: int64(len(data)), SHA256: "abc123"}, nil
}

type fakeStore struct {
	mu          sync.Mutex
	objects     map[string]ObjectInfo
	sums        map[string]string
	putFails    int
	deleteErr   error
	badChecksum bool
	deleted     []string
	puts        int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]ObjectInfo{}, sums: map[string]string{}}
}

func (s *fakeStore) Put(ctx context.Context, key, localPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.putFails != 0 {
		if s.putFails > 0 {
			s.putFails--
		}
		return ErrStorageUnavailable
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}
	s.objects[key] = ObjectInfo{Key: key, Size: info.Size()}
	s.sums[key] = "abc123"
	return nil
}

func (s *fakeStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ObjectInfo
	for k, o := range s.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeStore) Checksum(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.badChecksum {
		return "ffff", nil
	}
	return s.sums[key], nil
}

type sinkRecorder struct {
	mu       sync.Mutex
	runs     []Run
	attempts []StepOutcome
}

func (s *sinkRecorder) RecordBackupStatus(run Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
}

func (s *sinkRecorder) StepAttempt(step StepName, outcome StepOutcome, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, outcome)
}

func (s *sinkRecorder) RunFinished(run Run) {}

type memLog struct {
	mu     sync.Mutex
	events []string
	steps  []int
}

func (m *memLog) Append(event string, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	m.steps = append(m.steps, len(run.Steps))
	return nil
}

type harness struct {
	orch  *Orchestrator
	store *fakeStore
	enum  *fakeEnumerator
	arch  *fakeArchiver
	sink  *sinkRecorder
	log   *memLog
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		store: newFakeStore(),
		enum:  &fakeEnumerator{},
		arch:  &fakeArchiver{dir: t.TempDir()},
		sink:  &sinkRecorder{},
		log:   &memLog{},
	}
	opts := Options{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Keep:        2,
		KeyPrefix:   "vps-backup",
		Enumerator:  h.enum,
		Archiver:    h.arch,
		Store:       h.store,
		Journal:     h.log,
		Sink:        h.sink,
		Recorder:    h.sink,
		Logger:      logger.Nop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	orch, err := New(opts)
	require.NoError(t, err)
	h.orch = orch
	return h
}

func (h *harness) run(t *testing.T) Run {
	t.Helper()
	id, err := h.orch.TriggerRun(TriggerManual)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := h.orch.Wait(ctx, id)
	require.NoError(t, err)
	return run
}

func stepNames(run Run) []StepName {
	names := make([]StepName, len(run.Steps))
	for i, s := range run.Steps {
		names[i] = s.Step
	}
	return names
}

func TestRunSuccess(t *testing.T) {
	h := newHarness(t, nil)
	run := h.run(t)

	assert.Equal(t, OutcomeSuccess, run.Outcome)
	assert.Equal(t, StateSucceeded, run.State)
	assert.Equal(t, Steps, stepNames(run))
	assert.Equal(t, 0, run.RetriesUsed)
	assert.Equal(t, int64(13), run.BytesTransferred)
	assert.NotNil(t, run.FinishedAt)
	assert.Empty(t, run.Archive)

	_, err := os.Stat(filepath.Join(h.arch.dir, run.Key))
	assert.True(t, errors.Is(err, os.ErrNotExist), "local archive removed after verified upload")

	require.Len(t, h.sink.runs, 1)
	assert.Equal(t, run.ID, h.sink.runs[0].ID)
	assert.Equal(t, EventStart, h.log.events[0])
	assert.Equal(t, EventFinish, h.log.events[len(h.log.events)-1])
}

func TestUploadExhaustionFailsAndRetainsArchive(t *testing.T) {
	h := newHarness(t, nil)
	h.store.putFails = -1

	run := h.run(t)

	assert.Equal(t, OutcomeFailed, run.Outcome)
	assert.Equal(t, StateFailed, run.State)
	assert.Equal(t, 3, run.RetriesUsed)
	assert.Equal(t, []StepName{StepEnumerate, StepArchive, StepUpload, StepUpload, StepUpload}, stepNames(run))
	assert.Equal(t, StepSuccess, run.Steps[1].Outcome)
	for i, s := range run.Steps[2:] {
		assert.Equal(t, StepFailed, s.Outcome)
		assert.Equal(t, i+1, s.Attempt)
	}
	assert.Contains(t, run.Reason, "UPLOAD failed after 3 attempts")

	require.NotEmpty(t, run.Archive)
	_, err := os.Stat(run.Archive)
	assert.NoError(t, err, "archive kept for manual recovery")
	assert.Equal(t, 3, h.store.puts, "archive step not re-run")
}

func TestRetainedArchiveSurvivesNextRun(t *testing.T) {
	h := newHarness(t, nil)
	h.store.putFails = -1
	failed := h.run(t)
	require.Equal(t, OutcomeFailed, failed.Outcome)
	kept, err := os.ReadFile(failed.Archive)
	require.NoError(t, err)

	h.store.putFails = 0
	h.arch.content = "second-run"
	next := h.run(t)
	require.Equal(t, OutcomeSuccess, next.Outcome)

	assert.NotEqual(t, failed.Key, next.Key)
	assert.Contains(t, failed.Key, "-r1.tar.gz")
	assert.Contains(t, next.Key, "-r2.tar.gz")
	after, err := os.ReadFile(failed.Archive)
	require.NoError(t, err)
	assert.Equal(t, kept, after)
}

func TestRetryRecoversWithinStep(t *testing.T) {
	h := newHarness(t, nil)
	h.store.putFails = 1

	run := h.run(t)

	assert.Equal(t, OutcomeSuccess, run.Outcome)
	assert.Equal(t, 1, run.RetriesUsed)
	assert.Equal(t, []StepName{StepEnumerate, StepArchive, StepUpload, StepUpload, StepVerify, StepPrune}, stepNames(run))
	assert.Equal(t, StepFailed, run.Steps[2].Outcome)
	assert.Equal(t, 2, run.Steps[3].Attempt)
	assert.Equal(t, StepSuccess, run.Steps[3].Outcome)
}

func TestVerifyMismatchIsPartialAndSkipsPrune(t *testing.T) {
	h := newHarness(t, nil)
	h.store.badChecksum = true

	run := h.run(t)

	assert.Equal(t, OutcomePartial, run.Outcome)
	assert.Equal(t, StatePartiallyFailed, run.State)
	assert.NotContains(t, stepNames(run), StepPrune)
	assert.Contains(t, run.Reason, ErrVerificationMismatch.Error())
	assert.NotEmpty(t, run.Archive)
}

func TestPruneFailureIsPartial(t *testing.T) {
	h := newHarness(t, nil)
	h.store.objects["vps-backup-20200101T000000Z.tar.gz"] = ObjectInfo{Key: "vps-backup-20200101T000000Z.tar.gz"}
	h.store.objects["vps-backup-20200102T000000Z.tar.gz"] = ObjectInfo{Key: "vps-backup-20200102T000000Z.tar.gz"}
	h.store.deleteErr = errors.New("permission denied")

	run := h.run(t)

	assert.Equal(t, OutcomePartial, run.Outcome)
	last, _ := run.LastStep()
	assert.Equal(t, StepPrune, last.Step)
	assert.Equal(t, StepFailed, last.Outcome)
}

func TestPruneKeepsNewestAndCurrent(t *testing.T) {
	h := newHarness(t, nil)
	old := []string{
		"vps-backup-20200101T000000Z.tar.gz",
		"vps-backup-20200102T000000Z.tar.gz",
		"vps-backup-20200103T000000Z.tar.gz",
	}
	for _, k := range old {
		h.store.objects[k] = ObjectInfo{Key: k}
	}
	h.store.objects["unrelated.txt"] = ObjectInfo{Key: "unrelated.txt"}

	run := h.run(t)
	require.Equal(t, OutcomeSuccess, run.Outcome)

	assert.ElementsMatch(t, []string{old[0], old[1]}, h.store.deleted)
	assert.Contains(t, h.store.objects, run.Key)
	assert.Contains(t, h.store.objects, old[2])
	assert.Contains(t, h.store.objects, "unrelated.txt")
}

func TestPruneOrdersSameSecondByRunID(t *testing.T) {
	h := newHarness(t, nil)
	old := []string{
		"vps-backup-20200101T000000Z-r1.tar.gz",
		"vps-backup-20200101T000000Z-r3.tar.gz",
		"vps-backup-20200101T000000Z-r2.tar.gz",
	}
	for _, k := range old {
		h.store.objects[k] = ObjectInfo{Key: k}
	}

	run := h.run(t)
	require.Equal(t, OutcomeSuccess, run.Outcome)

	assert.ElementsMatch(t, []string{old[0], old[2]}, h.store.deleted)
	assert.Contains(t, h.store.objects, old[1])
}

func TestEnumerateFailureFails(t *testing.T) {
	h := newHarness(t, nil)
	h.enum.err = errors.New("source /srv missing")

	run := h.run(t)

	assert.Equal(t, OutcomeFailed, run.Outcome)
	assert.Equal(t, []StepName{StepEnumerate, StepEnumerate, StepEnumerate}, stepNames(run))
	assert.Equal(t, 0, h.store.puts)
	assert.Empty(t, run.Archive)
}

func TestTriggerRunIsSingleFlight(t *testing.T) {
	h := newHarness(t, nil)
	h.enum.gate = make(chan struct{})

	id, err := h.orch.TriggerRun(TriggerScheduled)
	require.NoError(t, err)

	_, err = h.orch.TriggerRun(TriggerManual)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	active, ok := h.orch.Active()
	require.True(t, ok)
	assert.Equal(t, id, active.ID)
	assert.Equal(t, OutcomeRunning, active.Outcome)

	close(h.enum.gate)
	run, err := h.orch.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, run.Outcome)
	assert.Len(t, h.sink.runs, 1, "rejected trigger created no record")

	h.enum.gate = nil
	next, err := h.orch.TriggerRun(TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, id+1, next)
	_, err = h.orch.Wait(context.Background(), next)
	require.NoError(t, err)
}

func TestIDsContinueFromJournal(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.LastID = 41 })
	assert.Equal(t, int64(42), h.run(t).ID)
}

func TestCancelBetweenSteps(t *testing.T) {
	h := newHarness(t, nil)
	h.enum.gate = make(chan struct{})

	id, err := h.orch.TriggerRun(TriggerManual)
	require.NoError(t, err)

	require.NoError(t, h.orch.Cancel(id, "operator"))
	assert.ErrorIs(t, h.orch.Cancel(id+5, "x"), ErrNotRunning)
	close(h.enum.gate)

	run, err := h.orch.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, run.Outcome)
	assert.Equal(t, "cancelled: operator", run.Reason)
	assert.Equal(t, []StepName{StepEnumerate}, stepNames(run), "enumerate completes, archive never starts")
}

func TestPanicFailsRunAndReleasesClaim(t *testing.T) {
	h := newHarness(t, nil)
	h.arch.panicOn = true

	run := h.run(t)
	assert.Equal(t, OutcomeFailed, run.Outcome)
	assert.Contains(t, run.Reason, "panic: archiver exploded")

	h.arch.panicOn = false
	assert.Equal(t, OutcomeSuccess, h.run(t).Outcome)
}

func TestStepsJournaledBeforeNextStep(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t)

	// Each step event carries one more step than the previous one.
	prev := 0
	for i, ev := range h.log.events {
		if ev != EventStep {
			continue
		}
		assert.Equal(t, prev+1, h.log.steps[i])
		prev = h.log.steps[i]
	}
	assert.Equal(t, len(Steps), prev)
}

func TestPreHookFailureFailsEnumerate(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Hooks = hooks.NewRunner(time.Second)
		o.HookPre = "exit 2"
		o.MaxAttempts = 1
	})

	run := h.run(t)
	assert.Equal(t, OutcomeFailed, run.Outcome)
	require.Len(t, run.Steps, 1)
	assert.Contains(t, run.Steps[0].Detail, "pre hook")
}

func TestShutdownRefusesNewRuns(t *testing.T) {
	h := newHarness(t, nil)
	h.enum.gate = make(chan struct{})

	id, err := h.orch.TriggerRun(TriggerManual)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- h.orch.Shutdown(context.Background()) }()

	require.Eventually(t, func() bool {
		_, err := h.orch.TriggerRun(TriggerManual)
		return err != nil && !errors.Is(err, ErrAlreadyRunning)
	}, time.Second, 5*time.Millisecond)

	close(h.enum.gate)
	require.NoError(t, <-done)

	run, err := h.orch.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "cancelled: agent shutting down", run.Reason)
}

func TestBackoffDelays(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.BaseDelay = time.Second
		o.MaxDelay = 5 * time.Second
	})
	b := h.orch.newBackOff()
	b.Reset()

	var got []time.Duration
	for i := 0; i < 4; i++ {
		got = append(got, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}, got)
}

func TestStepRetryExhaustedError(t *testing.T) {
	err := error(&StepRetryExhaustedError{Step: StepUpload, Attempts: 3, Err: ErrStorageUnavailable})
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	var exhausted *StepRetryExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, StepUpload, exhausted.Step)
}
