package ttlstore

import (
	"context"
	"io"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewPostgresBackendRequiresDSN(t *testing.T) {
	t.Parallel()

	if _, err := NewPostgresBackend(context.Background(), "   "); err == nil {
		t.Fatalf("expected postgres dsn validation error")
	}
}

func TestPostgresBackendStoreRoundTrip(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set TEST_POSTGRES_DSN to run postgres integration tests")
	}
	ctx := context.Background()

	backend, err := NewPostgresBackend(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}
	t.Cleanup(backend.Close)

	prefix := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12] + "_"
	store := New(backend, Config{Prefix: prefix}, nil, log.New(io.Discard, "", 0))

	if err := store.Set(ctx, 55, 550); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, 55, 551); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	total, ok := store.Get(ctx, 55)
	if !ok || total != 551 {
		t.Fatalf("expected 551, got %d ok=%v", total, ok)
	}
	if _, err := backend.Purge(ctx); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if err := backend.Delete(ctx, store.Key(55)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := store.Get(ctx, 55); ok {
		t.Fatalf("expected miss after delete")
	}
}
