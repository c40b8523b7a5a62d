// Package notify delivers alert notifications to external endpoints.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	constants "vpsdash/config"
)

// ErrSendFailed wraps every delivery failure
var ErrSendFailed = errors.New("notification send failed")

// SignatureHeader carries "sha256=<hex hmac of the body>" when a secret is set
const SignatureHeader = "X-Vpsdash-Signature"

// Message is one notification
type Message struct {
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Body    string         `json:"text"`
	Payload map[string]any `json:"payload,omitempty"`
}

type webhookPayload struct {
	Message
	Timestamp string `json:"timestamp"`
}

// Webhook POSTs notifications as JSON, optionally signed with HMAC-SHA256
type Webhook struct {
	URL    string
	Secret string
	// Attempts bounds delivery tries for 5xx and transport errors
	Attempts int
	client   *http.Client
	delay    time.Duration
}

// NewWebhook creates a webhook sender with a 10s request timeout
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		URL:      url,
		Secret:   secret,
		Attempts: 3,
		client:   &http.Client{Timeout: 10 * time.Second},
		delay:    2 * time.Second,
	}
}

// Send delivers msg. Non-2xx responses are failures; 4xx are not retried.
func (w *Webhook) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(webhookPayload{
		Message:   msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to marshal webhook payload: %s", ErrSendFailed, err)
	}

	attempts := w.Attempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(w.delay), uint64(attempts-1)),
		ctx,
	)
	return backoff.Retry(func() error { return w.post(ctx, data) }, b)
}

func (w *Webhook) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(data))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: failed to build webhook request: %s", ErrSendFailed, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", constants.HEADER_USER_AGENT)
	if w.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(data, w.Secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: webhook request failed: %s", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: webhook returned status %d", ErrSendFailed, resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("%w: webhook returned status %d", ErrSendFailed, resp.StatusCode))
	}
}

// Sign computes the lowercase hex HMAC-SHA256 of data
func Sign(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
