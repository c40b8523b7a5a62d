package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	constants "vpsdash/config"
)

// Telegram sends notifications to one chat through the Bot API
type Telegram struct {
	Token  string
	ChatID int64
	// Attempts bounds delivery tries for 429, 5xx and transport errors
	Attempts int
	apiURL   string
	client   *http.Client
	delay    time.Duration
}

// NewTelegram creates a Telegram sender with a 10s request timeout
func NewTelegram(token string, chatID int64) *Telegram {
	return &Telegram{
		Token:    token,
		ChatID:   chatID,
		Attempts: 3,
		apiURL:   constants.TELEGRAM_API_URL,
		client:   &http.Client{Timeout: 10 * time.Second},
		delay:    2 * time.Second,
	}
}

type telegramMessage struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// FormatTelegram renders msg as Telegram HTML: bold title, escaped body
func FormatTelegram(msg Message) string {
	return "<b>" + html.EscapeString(msg.Title) + "</b>\n\n" + html.EscapeString(msg.Body)
}

// Send delivers msg. Bot API errors other than rate limiting are not retried.
func (t *Telegram) Send(ctx context.Context, msg Message) error {
	if t.Token == "" || t.ChatID == 0 {
		return fmt.Errorf("%w: telegram not configured", ErrSendFailed)
	}
	data, err := json.Marshal(telegramMessage{
		ChatID:                t.ChatID,
		Text:                  FormatTelegram(msg),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("%w: failed to marshal telegram message: %s", ErrSendFailed, err)
	}

	attempts := t.Attempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(t.delay), uint64(attempts-1)),
		ctx,
	)
	return backoff.Retry(func() error { return t.post(ctx, data) }, b)
}

func (t *Telegram) post(ctx context.Context, data []byte) error {
	endpoint := fmt.Sprintf(t.apiURL, t.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: failed to build telegram request: %s", ErrSendFailed, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", constants.HEADER_USER_AGENT)

	resp, err := t.client.Do(req)
	if err != nil {
		// the request URL carries the bot token
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("%w: telegram request failed: %s", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: telegram API returned status %d", ErrSendFailed, resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("%w: telegram API returned status %d", ErrSendFailed, resp.StatusCode))
	}
}

// Sender is anything that can deliver a Message
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Multi fans a message out to every sender. All senders are tried; the
// result joins their errors.
type Multi []Sender

func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
