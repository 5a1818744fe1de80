//go:build !(rp2040 || rp2350)

package kv_test

import (
	"context"
	"errors"
	"testing"

	"sensorbridge-go/x/kv"
)

func newBadgerStore(t *testing.T) kv.Store {
	t.Helper()
	s, err := kv.NewBadger(kv.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func stores(t *testing.T) map[string]kv.Store {
	return map[string]kv.Store{
		"memory": kv.NewMemory(),
		"badger": newBadgerStore(t),
	}
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	key := kv.Key{"config", "ssid"}
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := s.Set(ctx, key, []byte("HomeNet")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx, key)
			if err != nil || string(got) != "HomeNet" {
				t.Fatalf("Get = %q, %v", got, err)
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete missing: %v", err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestBatchSet(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.BatchSet(ctx, []kv.Entry{
				{Key: kv.Key{"config", "upl_ms"}, Value: []byte("5000")},
				{Key: kv.Key{"config", "upl_tok"}, Value: []byte("abc")},
			})
			if err != nil {
				t.Fatalf("BatchSet: %v", err)
			}
			for k, want := range map[string]string{"upl_ms": "5000", "upl_tok": "abc"} {
				got, err := s.Get(ctx, kv.Key{"config", k})
				if err != nil || string(got) != want {
					t.Fatalf("Get(%s) = %q, %v", k, got, err)
				}
			}
		})
	}
}

func TestMemory_FailWrites(t *testing.T) {
	m := kv.NewMemory()
	m.FailWrites = true
	if err := m.Set(context.Background(), kv.Key{"a"}, nil); err == nil {
		t.Fatal("expected write failure")
	}
}

func TestKeyString(t *testing.T) {
	if got := (kv.Key{"config", "upl_tok"}).String(); got != "config:upl_tok" {
		t.Fatalf("String() = %q", got)
	}
}
