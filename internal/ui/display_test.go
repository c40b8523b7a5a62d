package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpsdash/internal/backup"
	"vpsdash/internal/health"
	"vpsdash/internal/probe"
)

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "-", FormatValue(nil))
	assert.Equal(t, "92.5", FormatValue(92.46))
	assert.Equal(t, "offline", FormatValue("offline"))
	assert.Equal(t, "3", FormatValue(3))
}

func TestRenderSnapshot(t *testing.T) {
	snap := health.NewSnapshot(time.Now(), []probe.Result{
		{Name: "disk", Status: probe.StatusCrit, Value: 92.5, Message: "disk / at 92.5%"},
		{Name: "wireguard", Status: probe.StatusUnknown, Error: "wg not found"},
	})

	out := RenderSnapshot(snap, 3*time.Second)
	assert.Contains(t, out, "CRIT")
	assert.Contains(t, out, "disk / at 92.5%")
	assert.Contains(t, out, "wg not found")
	assert.Contains(t, out, "3s ago")
	assert.NotContains(t, out, ProgressFull, "only percentage readings get a bar")
}

func TestRenderSnapshotUtilizationBars(t *testing.T) {
	snap := health.NewSnapshot(time.Now(), []probe.Result{
		{Name: "memory", Status: probe.StatusWarn, Value: 75.0, Unit: probe.UnitPercent},
		{Name: "app-log", Status: probe.StatusOK, Value: 3.0},
	})

	out := RenderSnapshot(snap, time.Second)
	assert.Equal(t, 15, strings.Count(out, ProgressFull))
	assert.Equal(t, 5, strings.Count(out, ProgressEmpty))
	assert.Contains(t, out, "75.0%")
}

func TestRenderSnapshotEmpty(t *testing.T) {
	out := RenderSnapshot(health.Empty(time.Now()), 0)
	assert.Contains(t, out, "UNKNOWN")
	assert.Contains(t, out, "No probe results yet")
}

func TestRenderRuns(t *testing.T) {
	start := time.Now().Add(-time.Minute)
	end := start.Add(42 * time.Second)
	runs := []backup.Run{
		{ID: 2, Trigger: backup.TriggerManual, Outcome: backup.OutcomeRunning, StartedAt: time.Now()},
		{ID: 1, Trigger: backup.TriggerScheduled, Outcome: backup.OutcomePartial, StartedAt: start, FinishedAt: &end, BytesTransferred: 2048},
	}

	out := RenderRuns(runs)
	assert.Contains(t, out, "RUNNING")
	assert.Contains(t, out, "PARTIAL")
	assert.Contains(t, out, "42s")
	assert.Contains(t, out, "2.0 KB")

	assert.Contains(t, RenderRuns(nil), "No backup runs recorded")
}

func TestRenderRunSteps(t *testing.T) {
	end := time.Now()
	run := backup.Run{
		ID: 5, Trigger: backup.TriggerManual, Outcome: backup.OutcomeFailed,
		StartedAt: end.Add(-time.Minute), FinishedAt: &end, Reason: "UPLOAD retries exhausted",
		Steps: []backup.StepResult{
			{Step: backup.StepEnumerate, Attempt: 1, Outcome: backup.StepSuccess, Detail: "12 files"},
			{Step: backup.StepUpload, Attempt: 3, Outcome: backup.StepFailed, Detail: "connection refused"},
		},
	}

	out := RenderRun(run)
	assert.Contains(t, out, "Backup Run #5")
	assert.Contains(t, out, "UPLOAD retries exhausted")
	assert.Contains(t, out, "connection refused")
}

func TestSpinWithoutTerminal(t *testing.T) {
	var out bytes.Buffer

	result, err := Spin(&out, "waiting", func(update func(string)) (string, error) {
		update("halfway")
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Contains(t, out.String(), "done")

	out.Reset()
	_, err = Spin(&out, "waiting", func(func(string)) (string, error) {
		return "", errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.Contains(t, out.String(), "boom")
}
