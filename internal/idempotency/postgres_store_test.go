package idempotency

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestPostgresStoreLifecycle(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	key := "test-key-" + time.Now().Format("150405.000000")
	body := []byte(`{"sender":"0xabc","metadataUri":"ipfs://QmTest"}`)
	rec := Record{
		StatusCode:  201,
		RequestHash: Fingerprint(body),
		Response:    []byte(`{"txHash":"0x01"}`),
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   time.Now().Add(time.Minute).UTC(),
	}

	if ok, err := store.Reserve(ctx, key, rec.RequestHash, rec.ExpiresAt); err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}
	if ok, err := store.Reserve(ctx, key, rec.RequestHash, rec.ExpiresAt); err != nil || ok {
		t.Fatalf("second reserve: ok=%v err=%v", ok, err)
	}
	if pending, _ := store.Get(ctx, key); pending == nil || !pending.Pending() {
		t.Fatalf("expected pending reservation, got %#v", pending)
	}
	if err := store.Release(ctx, key); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, err := store.Reserve(ctx, key, rec.RequestHash, rec.ExpiresAt); err != nil || !ok {
		t.Fatalf("reserve after release: ok=%v err=%v", ok, err)
	}

	if err := store.Save(ctx, key, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Release(ctx, key); err != nil {
		t.Fatalf("release completed: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.StatusCode != rec.StatusCode || !got.Matches(body) {
		t.Fatalf("unexpected record: %#v", got)
	}

	expired := rec
	expired.ExpiresAt = time.Now().Add(-time.Minute).UTC()
	if err := store.Save(ctx, key, expired); err != nil {
		t.Fatalf("save expired: %v", err)
	}
	if got, _ := store.Get(ctx, key); got != nil {
		t.Fatalf("expected expired record to be hidden")
	}
	if n, err := store.PurgeExpired(ctx); err != nil || n < 1 {
		t.Fatalf("purge: n=%d err=%v", n, err)
	}
}
