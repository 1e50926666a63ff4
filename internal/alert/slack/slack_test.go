package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hejijunhao/warden/internal/alert"
	"github.com/hejijunhao/warden/internal/model"
)

func testAlert() alert.Alert {
	return alert.Alert{
		CycleID:   "c1",
		Timestamp: time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC),
		Target:    model.Target{Name: "shop", Project: "p1"},
		Finding: model.Finding{
			Severity:         model.SeverityHigh,
			Summary:          "db refused connections",
			AffectedServices: []string{"api"},
		},
		Issues: []model.IssueRef{{Identifier: "#42", URL: "https://github.com/acme/shop/issues/42", Title: "DB down", Repository: "acme/shop"}},
	}
}

func noSleep(c *Channel) {
	c.sleep = func(context.Context, time.Duration) error { return nil }
}

func TestSendPostsMessage(t *testing.T) {
	var got message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Custom") != "yes" {
			t.Errorf("custom header missing")
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c := New(srv.URL, WithHeaders(map[string]string{"X-Custom": "yes"}))
	if err := c.Send(context.Background(), testAlert()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(got.Text, "HIGH in shop") {
		t.Fatalf("unexpected text %q", got.Text)
	}
	if len(got.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(got.Blocks))
	}
	section := got.Blocks[1].Text.Text
	if !strings.Contains(section, "<https://github.com/acme/shop/issues/42|acme/shop#42>") {
		t.Fatalf("expected issue link, got %q", section)
	}
}

func TestRetryOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(503)
			return
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c := New(srv.URL)
	noSleep(c)
	if err := c.Send(context.Background(), testAlert()); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(404)
	}))
	defer srv.Close()

	c := New(srv.URL)
	noSleep(c)
	if err := c.Send(context.Background(), testAlert()); err == nil {
		t.Fatal("expected error for 404")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls.Load())
	}
}

func TestExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()

	c := New(srv.URL)
	noSleep(c)
	err := c.Send(context.Background(), testAlert())
	if err == nil || !strings.Contains(err.Error(), "HTTP 500") {
		t.Fatalf("expected HTTP 500 error, got %v", err)
	}
}

func TestPing(t *testing.T) {
	if err := New("https://hooks.slack.com/services/T/B/X").Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := New("not a url").Ping(context.Background()); err == nil {
		t.Fatal("expected error for malformed URL")
	}
}
