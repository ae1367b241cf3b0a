package ttlstore

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryBackendSetGetDelete(t *testing.T) {
	backend := NewInMemoryBackend()
	ctx := context.Background()

	if err := backend.Set(ctx, "inat_total_1", []byte(`{"total":5,"exp":1}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, ok, err := backend.Get(ctx, "inat_total_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected stored record")
	}
	if string(raw) != `{"total":5,"exp":1}` {
		t.Fatalf("unexpected payload %q", raw)
	}

	if err := backend.Delete(ctx, "inat_total_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := backend.Get(ctx, "inat_total_1"); ok {
		t.Fatalf("expected record to be gone after delete")
	}
}

func TestInMemoryBackendExpiresByTTL(t *testing.T) {
	backend := NewInMemoryBackend()
	ctx := context.Background()

	if err := backend.Set(ctx, "k", []byte("v"), 20*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, ok, err := backend.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected expired record, ok=%v err=%v", ok, err)
	}
	if backend.Len() != 0 {
		t.Fatalf("expected expired record to be removed, len=%d", backend.Len())
	}
}

func TestInMemoryBackendRequiresKey(t *testing.T) {
	backend := NewInMemoryBackend()
	if err := backend.Set(context.Background(), "  ", nil, 0); err == nil {
		t.Fatalf("expected key validation error")
	}
}
