package email

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/hejijunhao/warden/internal/alert"
	"github.com/hejijunhao/warden/internal/model"
)

type fakeSender struct {
	msgs []*mail.Msg
	err  error
}

func (f *fakeSender) DialAndSendWithContext(_ context.Context, msgs ...*mail.Msg) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func testConfig() Config {
	return Config{Host: "smtp.example.com", From: "warden@example.com", To: []string{"oncall@example.com", "lead@example.com"}}
}

func testAlert() alert.Alert {
	return alert.Alert{
		CycleID:   "c1",
		Timestamp: time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC),
		Target:    model.Target{Name: "shop", Project: "p1"},
		Finding:   model.Finding{Severity: model.SeverityHigh, Summary: "db refused connections"},
		Issues:    []model.IssueRef{{Identifier: "#42", URL: "https://github.com/acme/shop/issues/42", Repository: "acme/shop"}},
	}
}

func TestSend(t *testing.T) {
	s := &fakeSender{}
	c, err := New(testConfig(), WithSender(s))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Send(context.Background(), testAlert()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(s.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(s.msgs))
	}

	var buf bytes.Buffer
	if _, err := s.msgs[0].WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{
		"Subject: [warden] HIGH in shop: db refused connections",
		"oncall@example.com",
		"lead@example.com",
		"https://github.com/acme/shop/issues/42",
	} {
		if !strings.Contains(raw, want) {
			t.Fatalf("message missing %q:\n%s", want, raw)
		}
	}
}

func TestSendError(t *testing.T) {
	c, _ := New(testConfig(), WithSender(&fakeSender{err: errors.New("421 try later")}))
	if err := c.Send(context.Background(), testAlert()); err == nil || !strings.Contains(err.Error(), "421") {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}

func TestSendInvalidRecipient(t *testing.T) {
	cfg := testConfig()
	cfg.To = []string{"not an address"}
	c, _ := New(cfg, WithSender(&fakeSender{}))
	if err := c.Send(context.Background(), testAlert()); err == nil {
		t.Fatal("expected address error")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{From: "a@b.c", To: []string{"d@e.f"}}); err == nil {
		t.Fatal("expected error for missing host")
	}
	if _, err := New(Config{Host: "smtp.example.com"}); err == nil {
		t.Fatal("expected error for missing recipients")
	}
	c, err := New(testConfig())
	if err != nil {
		t.Fatalf("New with real client: %v", err)
	}
	if c.cfg.Port != defaultPort {
		t.Fatalf("expected default port, got %d", c.cfg.Port)
	}
}

func TestPing(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	cfg := testConfig()
	cfg.Host, cfg.Port = "127.0.0.1", addr.Port
	c, _ := New(cfg, WithSender(&fakeSender{}))
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	ln.Close()
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected error after listener closed")
	}
}
