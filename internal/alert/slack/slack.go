// Package slack posts alerts to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hejijunhao/warden/internal/alert"
)

const (
	defaultTimeout = 10 * time.Second
	maxRetries     = 3
)

// Option configures a slack Channel.
type Option func(*Channel)

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) { c.client.Timeout = d }
}

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(c *Channel) { c.headers = h }
}

// Channel POSTs one message per alert to a webhook URL. Retries on 5xx
// with exponential backoff.
type Channel struct {
	client  *http.Client
	url     string
	headers map[string]string
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a slack channel targeting the given webhook URL.
func New(webhookURL string, opts ...Option) *Channel {
	c := &Channel{
		client: &http.Client{Timeout: defaultTimeout},
		url:    webhookURL,
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) Name() string { return "slack" }

type message struct {
	Text   string  `json:"text"`
	Blocks []block `json:"blocks,omitempty"`
}

type block struct {
	Type string `json:"type"`
	Text *text  `json:"text,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func render(a alert.Alert) message {
	var issues strings.Builder
	for _, ref := range a.Issues {
		fmt.Fprintf(&issues, "\n• <%s|%s%s> %s", ref.URL, ref.Repository, ref.Identifier, ref.Title)
	}
	detail := fmt.Sprintf("*%s*\nTarget: `%s` | Severity: *%s*", a.Finding.Summary, a.Target.Label(), a.Finding.Severity)
	if len(a.Finding.AffectedServices) > 0 {
		detail += " | Services: " + strings.Join(a.Finding.AffectedServices, ", ")
	}
	return message{
		Text: alert.Subject(a),
		Blocks: []block{
			{Type: "header", Text: &text{Type: "plain_text", Text: alert.Subject(a)}},
			{Type: "section", Text: &text{Type: "mrkdwn", Text: detail + issues.String()}},
		},
	}
}

// Send posts a to the webhook.
func (c *Channel) Send(ctx context.Context, a alert.Alert) error {
	body, err := json.Marshal(render(a))
	if err != nil {
		return fmt.Errorf("slack: marshal: %w", err)
	}
	return c.postWithRetry(ctx, body)
}

// Close is a no-op; the channel holds no resources.
func (c *Channel) Close() error { return nil }

// Ping checks that the webhook URL is well formed. Posting would notify
// the channel, so no request is made.
func (c *Channel) Ping(context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("slack: webhook URL %q is not an http(s) URL", c.url)
	}
	return nil
}

// postWithRetry sends the body via HTTP POST with retry on 5xx.
func (c *Channel) postWithRetry(ctx context.Context, body []byte) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, time.Duration(1<<(attempt-1))*time.Second); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("slack: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("slack: %w", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("slack: HTTP %d", resp.StatusCode)

		// Only retry on 5xx server errors.
		if resp.StatusCode < 500 {
			return lastErr
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
