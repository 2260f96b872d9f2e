package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryProvider()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := m.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("get: %q %v", got, err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestMemoryProviderSetNX(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryProvider()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := m.SetNX(ctx, "dup", []byte("1"), 5*time.Minute)
	if !ok {
		t.Fatalf("first SetNX should win")
	}
	ok, _ = m.SetNX(ctx, "dup", []byte("2"), 5*time.Minute)
	if ok {
		t.Fatalf("second SetNX inside ttl should lose")
	}
	now = now.Add(6 * time.Minute)
	ok, _ = m.SetNX(ctx, "dup", []byte("3"), 5*time.Minute)
	if !ok {
		t.Fatalf("SetNX after expiry should win")
	}
	if err := m.Del(ctx, "dup"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := m.Get(ctx, "dup"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete")
	}
}

func TestMemoryProviderCopiesValues(t *testing.T) {
	m := NewMemoryProvider()
	buf := []byte("abc")
	_ = m.Set(context.Background(), "k", buf, 0)
	buf[0] = 'z'
	got, _ := m.Get(context.Background(), "k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller buffer: %q", got)
	}
}
