package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := Open(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRecordExistsExpire(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if ok, err := s.Exists(ctx, "warden:issue:abc"); err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}
	if err := s.Record(ctx, "warden:issue:abc", []byte(`{"project":"p1"}`), 7*24*time.Hour); err != nil {
		t.Fatalf("record: %v", err)
	}
	if ok, err := s.Exists(ctx, "warden:issue:abc"); err != nil || !ok {
		t.Fatalf("expected key, ok=%v err=%v", ok, err)
	}
	got, err := mr.Get("warden:issue:abc")
	if err != nil || got != `{"project":"p1"}` {
		t.Fatalf("unexpected value %q err=%v", got, err)
	}

	mr.FastForward(7*24*time.Hour + time.Second)
	if ok, _ := s.Exists(ctx, "warden:issue:abc"); ok {
		t.Fatal("expected key to expire")
	}
}

func TestSweepPersistent(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	mr.Set("warden:issue:nottl", "x")
	s.Record(ctx, "warden:issue:ttl", []byte("y"), time.Hour)
	mr.Set("other:issue:nottl", "z")

	n, err := s.SweepPersistent(ctx, "warden:")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	if mr.Exists("warden:issue:nottl") {
		t.Fatal("key without ttl should be removed")
	}
	if !mr.Exists("warden:issue:ttl") {
		t.Fatal("key with ttl must survive")
	}
	if !mr.Exists("other:issue:nottl") {
		t.Fatal("keys outside the prefix must survive")
	}
}

func TestUnavailable(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	if _, err := s.Exists(context.Background(), "k"); err == nil {
		t.Fatal("expected error when server is down")
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error when server is down")
	}
}

func TestOpenBadURL(t *testing.T) {
	if _, err := Open(context.Background(), "not a url"); err == nil {
		t.Fatal("expected parse error")
	}
}
