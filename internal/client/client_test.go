package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpsdash/internal/api"
	"vpsdash/internal/backup"
	"vpsdash/internal/cache"
	"vpsdash/internal/health"
	"vpsdash/internal/probe"
)

type stubBackups struct {
	active *backup.Run
}

func (s *stubBackups) TriggerRun(trigger backup.Trigger) (int64, error) {
	if s.active != nil {
		return 0, backup.ErrAlreadyRunning
	}
	s.active = &backup.Run{ID: 8, Trigger: trigger, Outcome: backup.OutcomeRunning, StartedAt: time.Now().UTC()}
	return 8, nil
}

func (s *stubBackups) Active() (backup.Run, bool) {
	if s.active == nil {
		return backup.Run{}, false
	}
	return *s.active, true
}

func (s *stubBackups) Cancel(id int64, reason string) error {
	if s.active == nil || s.active.ID != id {
		return backup.ErrNotRunning
	}
	return nil
}

func agent(t *testing.T) (*cache.Cache, *stubBackups, *Client) {
	t.Helper()
	c := cache.New(10, 10)
	b := &stubBackups{}
	srv := httptest.NewServer(api.NewRouter(api.RouterConfig{Cache: c, Backups: b}))
	t.Cleanup(srv.Close)
	return c, b, New(srv.URL)
}

func TestHealthOverCBOR(t *testing.T) {
	c, _, cl := agent(t)
	c.Publish(health.NewSnapshot(time.Now(), []probe.Result{
		{Name: "disk", Status: probe.StatusCrit, Value: 92.5, Message: "disk / at 92.5%"},
		{Name: "minecraft", Status: probe.StatusCrit, Value: "offline"},
	}))

	snap, _, err := cl.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, probe.StatusCrit, snap.OverallStatus)
	require.Len(t, snap.Results, 2)
	assert.Equal(t, 92.5, snap.Results[0].Value)
	assert.Equal(t, "offline", snap.Results[1].Value)
}

func TestTriggerCancelAndConflict(t *testing.T) {
	_, _, cl := agent(t)
	ctx := context.Background()

	id, err := cl.Trigger(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), id)

	_, err = cl.Trigger(ctx)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, cl.Cancel(ctx, 8, "maintenance window"))

	err = cl.Cancel(ctx, 3, "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "not_running", apiErr.Code)
}

func TestRunsAndWait(t *testing.T) {
	c, _, cl := agent(t)
	at := time.Now().UTC()
	c.RecordBackupStatus(backup.Run{ID: 7, StartedAt: at, FinishedAt: &at, Outcome: backup.OutcomeSuccess, Steps: []backup.StepResult{}})

	runs, err := cl.Runs(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, backup.OutcomeSuccess, runs[0].Outcome)

	run, err := cl.WaitRun(context.Background(), 7, 10*time.Millisecond, nil)
	require.NoError(t, err)
	assert.True(t, run.Finished())

	_, err = cl.Run(context.Background(), 99)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestUnreachableAgent(t *testing.T) {
	_, _, err := New("127.0.0.1:1").Health(context.Background())
	assert.Error(t, err)
}
