// Package client talks to a running agent's status API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	constants "vpsdash/config"
	"vpsdash/internal/backup"
	"vpsdash/internal/encoding"
	"vpsdash/internal/health"
)

// ErrAlreadyRunning mirrors the API's 409 answer to a trigger
var ErrAlreadyRunning = errors.New("a backup run is already in progress")

// APIError is a non-2xx answer from the agent
type APIError struct {
	Status int
	Code   string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("agent returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("agent returned HTTP %d: %s", e.Status, e.Code)
}

// Client is a status API client. Responses are requested as CBOR.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for addr, either host:port or a full URL
func New(addr string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		base: strings.TrimRight(addr, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// Health fetches the current snapshot and its age
func (c *Client) Health(ctx context.Context) (health.Snapshot, time.Duration, error) {
	var snap health.Snapshot
	resp, err := c.do(ctx, http.MethodGet, "/health", &snap)
	if err != nil {
		return snap, 0, err
	}
	secs, _ := strconv.Atoi(resp.Header.Get("X-Snapshot-Age"))
	return snap, time.Duration(secs) * time.Second, nil
}

// History fetches up to limit published snapshots, most recent first
func (c *Client) History(ctx context.Context, limit int) ([]health.Snapshot, error) {
	var snaps []health.Snapshot
	_, err := c.do(ctx, http.MethodGet, "/health/history?limit="+strconv.Itoa(limit), &snaps)
	return snaps, err
}

// Runs lists backup runs, the active one first
func (c *Client) Runs(ctx context.Context, limit int) ([]backup.Run, error) {
	var runs []backup.Run
	_, err := c.do(ctx, http.MethodGet, "/backups?limit="+strconv.Itoa(limit), &runs)
	return runs, err
}

// Run fetches one run
func (c *Client) Run(ctx context.Context, id int64) (backup.Run, error) {
	var run backup.Run
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/backups/%d", id), &run)
	return run, err
}

// Trigger starts a manual backup run and returns its id
func (c *Client) Trigger(ctx context.Context) (int64, error) {
	var body struct {
		RunID int64 `json:"runId"`
	}
	_, err := c.do(ctx, http.MethodPost, "/backups/run", &body)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == "already_running" {
		return 0, ErrAlreadyRunning
	}
	return body.RunID, err
}

// Cancel asks the agent to stop run id at the next step boundary
func (c *Client) Cancel(ctx context.Context, id int64, reason string) error {
	path := fmt.Sprintf("/backups/%d/cancel", id)
	if reason != "" {
		path += "?reason=" + url.QueryEscape(reason)
	}
	_, err := c.do(ctx, http.MethodPost, path, nil)
	return err
}

// WaitRun polls run id until it leaves RUNNING. onPoll, when set, sees every
// unfinished record.
func (c *Client) WaitRun(ctx context.Context, id int64, every time.Duration, onPoll func(backup.Run)) (backup.Run, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		run, err := c.Run(ctx, id)
		if err != nil {
			return run, err
		}
		if run.Finished() {
			return run, nil
		}
		if onPoll != nil {
			onPoll(run)
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, out any) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", encoding.ContentTypeCBOR+", "+encoding.ContentTypeJSON+";q=0.5")
	req.Header.Set("User-Agent", constants.HEADER_USER_AGENT)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent unreachable at %s: %w", c.base, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		_ = decode(resp, &body)
		return resp, &APIError{Status: resp.StatusCode, Code: body.Error}
	}
	if out == nil {
		resp.Body.Close()
		return resp, nil
	}
	if err := decode(resp, out); err != nil {
		return resp, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return resp, nil
}

func decode(resp *http.Response, out any) error {
	if encoding.IsCBOR(resp) {
		return encoding.ReadCBORResponse(resp, out)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
