package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	constants "vpsdash/config"
	"vpsdash/internal/hooks"
	"vpsdash/internal/logger"
	"vpsdash/pkg/utils"
)

// Options configures an Orchestrator. Zero values take the defaults.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Keep        int
	KeyPrefix   string
	HookPre     string
	HookPost    string
	// LastID seeds run ids; the next run gets LastID+1
	LastID int64

	Enumerator Enumerator
	Archiver   Archiver
	Store      ObjectStore
	Hooks      HookRunner
	Journal    RunLog
	Sink       StatusSink
	Recorder   Recorder
	Logger     *logger.Logger
}

// Orchestrator executes backup runs one at a time
type Orchestrator struct {
	opts Options
	log  *logger.Logger

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu       sync.Mutex
	active   *runState
	last     *runState
	nextID   int64
	shutdown bool

	wg sync.WaitGroup
}

// runState is the live record of the active run. Only the run goroutine
// mutates run; readers take a Clone under mu.
type runState struct {
	mu           sync.Mutex
	run          Run
	cancelReason string
	done         chan struct{}
}

func (st *runState) snapshot() Run {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.run.Clone()
}

func (st *runState) cancelled() (string, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cancelReason, st.cancelReason != ""
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Enumerator == nil || opts.Archiver == nil || opts.Store == nil {
		return nil, errors.New("backup: enumerator, archiver and store are required")
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = constants.DEFAULT_MAX_ATTEMPTS
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = constants.DEFAULT_BASE_DELAY * time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = constants.DEFAULT_MAX_DELAY * time.Second
	}
	if opts.Keep < 1 {
		opts.Keep = constants.DEFAULT_KEEP
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = constants.DEFAULT_KEY_PREFIX
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("backup")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		opts:       opts,
		log:        opts.Logger,
		baseCtx:    ctx,
		cancelBase: cancel,
		nextID:     opts.LastID + 1,
	}, nil
}

// TriggerRun claims the single run slot and starts a run in the background.
// It fails with ErrAlreadyRunning, creating no record, while another run is
// active.
func (o *Orchestrator) TriggerRun(trigger Trigger) (int64, error) {
	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return 0, errors.New("backup: orchestrator is shutting down")
	}
	if o.active != nil {
		o.mu.Unlock()
		return 0, ErrAlreadyRunning
	}

	id := o.nextID
	o.nextID++
	st := &runState{
		run: Run{
			ID:        id,
			Trigger:   trigger,
			StartedAt: time.Now().UTC(),
			State:     StateIdle,
			Outcome:   OutcomeRunning,
			Steps:     []StepResult{},
		},
		done: make(chan struct{}),
	}
	o.active = st
	o.wg.Add(1)
	o.mu.Unlock()

	o.log.Info("backup run #%d started (%s)", id, trigger)
	go o.execute(st)
	return id, nil
}

// Active returns a copy of the running run
func (o *Orchestrator) Active() (Run, bool) {
	o.mu.Lock()
	st := o.active
	o.mu.Unlock()
	if st == nil {
		return Run{}, false
	}
	return st.snapshot(), true
}

// Cancel asks the active run to stop at the next step boundary. The run ends
// FAILED with reason "cancelled: <reason>".
func (o *Orchestrator) Cancel(id int64, reason string) error {
	o.mu.Lock()
	st := o.active
	o.mu.Unlock()
	if st == nil || st.run.ID != id {
		return ErrNotRunning
	}
	if reason == "" {
		reason = "requested"
	}

	st.mu.Lock()
	if st.cancelReason == "" {
		st.cancelReason = reason
	}
	st.mu.Unlock()
	o.log.Warning("backup run #%d cancel requested: %s", id, reason)
	return nil
}

// Wait blocks until run id finishes and returns its final record
func (o *Orchestrator) Wait(ctx context.Context, id int64) (Run, error) {
	o.mu.Lock()
	var st *runState
	switch {
	case o.active != nil && o.active.run.ID == id:
		st = o.active
	case o.last != nil && o.last.run.ID == id:
		st = o.last
	}
	o.mu.Unlock()
	if st == nil {
		return Run{}, ErrRunNotFound
	}

	select {
	case <-st.done:
		return st.snapshot(), nil
	case <-ctx.Done():
		return Run{}, ctx.Err()
	}
}

// Shutdown refuses new runs, cancels the active run at its next step
// boundary and waits for it. When ctx expires first, in-flight step work is
// aborted.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.shutdown = true
	st := o.active
	o.mu.Unlock()

	if st != nil {
		_ = o.Cancel(st.run.ID, "agent shutting down")
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancelBase()
		return nil
	case <-ctx.Done():
		o.cancelBase()
		<-done
		return ctx.Err()
	}
}

func (o *Orchestrator) release(st *runState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == st {
		o.active = nil
	}
	o.last = st
}

// pipeline carries data between steps of one run
type pipeline struct {
	manifest Manifest
	artifact Artifact
}

func (o *Orchestrator) execute(st *runState) {
	defer o.wg.Done()
	defer close(st.done)
	defer o.release(st)
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("backup run #%d panicked: %v", st.run.ID, r)
			o.finish(st, OutcomeFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	ctx := o.baseCtx
	o.journal(EventStart, st.snapshot())

	var p pipeline
	outcome, reason := OutcomeSuccess, ""

steps:
	for _, step := range Steps {
		if why, ok := st.cancelled(); ok {
			outcome, reason = OutcomeFailed, "cancelled: "+why
			break
		}

		err := o.runStep(ctx, st, step, func(ctx context.Context) (string, error) {
			return o.doStep(ctx, st, step, &p)
		})
		if err == nil {
			continue
		}

		if errors.Is(err, ErrCancelled) {
			why, _ := st.cancelled()
			outcome, reason = OutcomeFailed, "cancelled: "+why
			break
		}

		switch step {
		case StepEnumerate, StepArchive, StepUpload:
			outcome = OutcomeFailed
		case StepVerify, StepPrune:
			// data reached the store; prune is skipped after a failed verify
			outcome = OutcomePartial
		}
		reason = err.Error()
		break steps
	}

	if p.artifact.Path != "" {
		if outcome == OutcomeSuccess {
			if err := os.Remove(p.artifact.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				o.log.Warning("backup run #%d: remove local archive: %v", st.run.ID, err)
			}
		} else {
			st.mu.Lock()
			st.run.Archive = p.artifact.Path
			st.mu.Unlock()
			o.log.Warning("backup run #%d: local archive retained at %s", st.run.ID, p.artifact.Path)
		}
	}

	o.finish(st, outcome, reason)
}

// finish moves the run to its terminal state exactly once
func (o *Orchestrator) finish(st *runState, outcome Outcome, reason string) {
	st.mu.Lock()
	if st.run.FinishedAt != nil {
		st.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	st.run.FinishedAt = &now
	st.run.Outcome = outcome
	st.run.State = terminalState(outcome)
	st.run.Reason = reason
	final := st.run.Clone()
	st.mu.Unlock()

	o.journal(EventFinish, final)
	if o.opts.Sink != nil {
		o.opts.Sink.RecordBackupStatus(final)
	}
	if o.opts.Recorder != nil {
		o.opts.Recorder.RunFinished(final)
	}

	switch outcome {
	case OutcomeSuccess:
		o.log.Success("backup run #%d succeeded in %s, %s uploaded", final.ID,
			utils.FormatDuration(final.Duration()), utils.FormatBytes(final.BytesTransferred))
	case OutcomePartial:
		o.log.Warning("backup run #%d partially failed: %s", final.ID, reason)
	default:
		o.log.Error("backup run #%d failed: %s", final.ID, reason)
	}

	o.postHook(final)
}

func (o *Orchestrator) postHook(run Run) {
	if o.opts.Hooks == nil || o.opts.HookPost == "" {
		return
	}
	res, err := o.opts.Hooks.Run(o.baseCtx, o.opts.HookPost,
		"VPSDASH_RUN_ID="+strconv.FormatInt(run.ID, 10),
		"VPSDASH_RUN_OUTCOME="+string(run.Outcome),
	)
	if err != nil {
		o.log.Warning("backup run #%d post hook failed: %v: %s", run.ID, err, output(res))
		return
	}
	if out := output(res); out != "" {
		o.log.Info("backup run #%d post hook: %s", run.ID, out)
	}
}

// runStep executes one step with retries. Every attempt is appended to the
// run and the journal before the next attempt or step begins.
func (o *Orchestrator) runStep(ctx context.Context, st *runState, step StepName, fn func(ctx context.Context) (string, error)) error {
	st.mu.Lock()
	st.run.State = stepStates[step]
	snap := st.run.Clone()
	st.mu.Unlock()
	o.journal(EventState, snap)

	attempt := 0
	var lastErr error

	op := func() error {
		if attempt > 0 {
			if _, ok := st.cancelled(); ok {
				return backoff.Permanent(ErrCancelled)
			}
		}
		attempt++

		start := time.Now()
		detail, err := fn(ctx)
		res := StepResult{
			Step:       step,
			Attempt:    attempt,
			Outcome:    StepSuccess,
			Detail:     detail,
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			res.Outcome = StepFailed
			res.Detail = err.Error()
			lastErr = err
		}
		o.appendStep(st, res)
		return err
	}

	notify := func(err error, wait time.Duration) {
		o.log.Warning("backup run #%d: %s attempt %d failed: %v (retrying in %s)", st.run.ID, step, attempt, err, wait)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(o.newBackOff(), uint64(o.opts.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) {
		return ErrCancelled
	}
	if lastErr == nil {
		lastErr = err
	}
	return &StepRetryExhaustedError{Step: step, Attempts: attempt, Err: lastErr}
}

// newBackOff waits base, 2×base, 4×base... capped at MaxDelay, without jitter
func (o *Orchestrator) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.opts.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = o.opts.MaxDelay
	b.MaxElapsedTime = 0
	return b
}

func (o *Orchestrator) appendStep(st *runState, res StepResult) {
	st.mu.Lock()
	st.run.Steps = append(st.run.Steps, res)
	if res.Outcome == StepFailed {
		st.run.RetriesUsed++
	}
	snap := st.run.Clone()
	st.mu.Unlock()

	o.journal(EventStep, snap)
	if o.opts.Recorder != nil {
		o.opts.Recorder.StepAttempt(res.Step, res.Outcome, res.Duration())
	}
}

func (o *Orchestrator) journal(event string, run Run) {
	if o.opts.Journal == nil {
		return
	}
	if err := o.opts.Journal.Append(event, run); err != nil {
		o.log.Error("backup run #%d: journal %s: %v", run.ID, event, err)
	}
}

func (o *Orchestrator) doStep(ctx context.Context, st *runState, step StepName, p *pipeline) (string, error) {
	switch step {
	case StepEnumerate:
		return o.enumerate(ctx, st, p)
	case StepArchive:
		return o.archive(ctx, st, p)
	case StepUpload:
		return o.upload(ctx, st, p)
	case StepVerify:
		return o.verify(ctx, p)
	case StepPrune:
		return o.prune(ctx, p)
	}
	return "", fmt.Errorf("unknown step %s", step)
}

func (o *Orchestrator) enumerate(ctx context.Context, st *runState, p *pipeline) (string, error) {
	if o.opts.Hooks != nil && o.opts.HookPre != "" {
		res, err := o.opts.Hooks.Run(ctx, o.opts.HookPre, "VPSDASH_RUN_ID="+strconv.FormatInt(st.run.ID, 10))
		if err != nil {
			return "", fmt.Errorf("pre hook: %w: %s", err, utils.TruncateString(output(res), 200))
		}
	}

	m, err := o.opts.Enumerator.Enumerate(ctx)
	if err != nil {
		return "", err
	}
	p.manifest = m
	return fmt.Sprintf("%d files, %s", len(m.Files), utils.FormatBytes(m.TotalBytes)), nil
}

func (o *Orchestrator) archive(ctx context.Context, st *runState, p *pipeline) (string, error) {
	key := ArchiveKey(o.opts.KeyPrefix, st.run.ID, st.run.StartedAt)
	art, err := o.opts.Archiver.Archive(ctx, p.manifest, key)
	if err != nil {
		return "", err
	}
	p.artifact = art

	st.mu.Lock()
	st.run.Key = art.Key
	st.mu.Unlock()
	return fmt.Sprintf("%s (%s, sha256 %s)", art.Key, utils.FormatBytes(art.Size), shortSum(art.SHA256)), nil
}

func (o *Orchestrator) upload(ctx context.Context, st *runState, p *pipeline) (string, error) {
	if err := o.opts.Store.Put(ctx, p.artifact.Key, p.artifact.Path); err != nil {
		return "", err
	}
	st.mu.Lock()
	st.run.BytesTransferred += p.artifact.Size
	st.mu.Unlock()
	return fmt.Sprintf("uploaded %s", utils.FormatBytes(p.artifact.Size)), nil
}

func (o *Orchestrator) verify(ctx context.Context, p *pipeline) (string, error) {
	objects, err := o.opts.Store.List(ctx, p.artifact.Key)
	if err != nil {
		return "", err
	}

	var found *ObjectInfo
	for i := range objects {
		if objects[i].Key == p.artifact.Key {
			found = &objects[i]
			break
		}
	}
	if found == nil {
		return "", fmt.Errorf("%w: %s missing from remote listing", ErrVerificationMismatch, p.artifact.Key)
	}
	if found.Size != p.artifact.Size {
		return "", fmt.Errorf("%w: remote size %d, local %d", ErrVerificationMismatch, found.Size, p.artifact.Size)
	}

	sum, err := o.opts.Store.Checksum(ctx, p.artifact.Key)
	if err != nil {
		return "", err
	}
	if sum != p.artifact.SHA256 {
		return "", fmt.Errorf("%w: remote sha256 %s, local %s", ErrVerificationMismatch, sum, p.artifact.SHA256)
	}
	return "size and sha256 match", nil
}

// prune keeps the newest Keep archives by key timestamp and never deletes
// the archive uploaded by this run
func (o *Orchestrator) prune(ctx context.Context, p *pipeline) (string, error) {
	objects, err := o.opts.Store.List(ctx, o.opts.KeyPrefix+"-")
	if err != nil {
		return "", err
	}

	type dated struct {
		key string
		at  time.Time
		id  int64
	}
	var archives []dated
	for _, obj := range objects {
		if at, id, ok := parseArchiveKey(o.opts.KeyPrefix, obj.Key); ok {
			archives = append(archives, dated{key: obj.Key, at: at, id: id})
		}
	}
	sort.Slice(archives, func(i, j int) bool {
		if !archives[i].at.Equal(archives[j].at) {
			return archives[i].at.After(archives[j].at)
		}
		return archives[i].id > archives[j].id
	})

	deleted := 0
	for i, a := range archives {
		if i < o.opts.Keep || a.key == p.artifact.Key {
			continue
		}
		if err := o.opts.Store.Delete(ctx, a.key); err != nil {
			return "", fmt.Errorf("delete %s: %w", a.key, err)
		}
		deleted++
	}

	kept := len(archives) - deleted
	return fmt.Sprintf("deleted %d, kept %d", deleted, kept), nil
}

func output(res *hooks.Result) string {
	if res == nil {
		return ""
	}
	return res.Output
}

func shortSum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
