package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hejijunhao/warden/internal/alert"
	"github.com/hejijunhao/warden/internal/engine/compactor"
	"github.com/hejijunhao/warden/internal/model"
)

func testAlert(summary string) alert.Alert {
	return alert.Alert{
		CycleID:   "c1",
		Timestamp: time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC),
		Target:    model.Target{Name: "shop", Project: "p1"},
		Finding: model.Finding{
			Severity:  model.SeverityHigh,
			Summary:   summary,
			IssueBody: "body text",
		},
	}
}

func TestSendProducesValidNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	c, err := New(path, compactor.Standard)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := c.Send(context.Background(), testAlert("db down")); err != nil {
			t.Fatalf("Send error: %v", err)
		}
	}
	c.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}
	for i, line := range lines {
		var a alert.Alert
		if err := json.Unmarshal([]byte(line), &a); err != nil {
			t.Errorf("line %d: invalid JSON: %v", i, err)
		}
		if a.Finding.Summary != "db down" {
			t.Errorf("line %d: summary = %q, want db down", i, a.Finding.Summary)
		}
	}
}

func TestSendFlushesImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	c, err := New(path, compactor.Standard)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer c.Close()

	c.Send(context.Background(), testAlert("db down"))

	data, _ := os.ReadFile(path)
	if len(data) == 0 {
		t.Error("file is empty: Send did not flush")
	}
}

func TestRotationTriggersAtMaxSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")

	// Each line is well over 200 bytes, so every write after the first rotates.
	c, err := New(path, compactor.Standard, WithMaxSize(200))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := c.Send(context.Background(), testAlert("timeout")); err != nil {
			t.Fatalf("Send error: %v", err)
		}
	}
	c.Close()

	for _, p := range []string{path, path + ".1", path + ".4"} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", p)
		}
	}
}

func TestAppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	for i := 0; i < 2; i++ {
		c, err := New(path, compactor.Standard)
		if err != nil {
			t.Fatalf("New error: %v", err)
		}
		c.Send(context.Background(), testAlert("x"))
		c.Close()
	}
	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Fatalf("expected 2 lines across reopen, got %d", n)
	}
}

func TestVerbosityMinimalStripsBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	c, err := New(path, compactor.Minimal)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	c.Send(context.Background(), testAlert("timeout"))
	c.Close()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "body text") {
		t.Error("Minimal verbosity should strip the issue body")
	}
}

func TestConcurrentSendsSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	c, err := New(path, compactor.Standard)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Send(context.Background(), testAlert("db down"))
		}()
	}
	wg.Wait()
	c.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 50 {
		t.Errorf("got %d lines, want 50", len(lines))
	}
}

func TestNewFailsForMissingDirectory(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope", "alerts.jsonl"), compactor.Standard); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
