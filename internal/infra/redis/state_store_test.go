package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestStateStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStateStore(client, "qr:", time.Hour)

	if _, ok, err := store.Get(ctx, "quiz_1_endtime"); ok || err != nil {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}

	_ = store.Set(ctx, "quiz_1_endtime", "2026-10-17T10:00:00.000Z")
	if !mr.Exists("qr:quiz_1_endtime") {
		t.Fatalf("expected prefixed redis key to be set")
	}
	if ttl := mr.TTL("qr:quiz_1_endtime"); ttl != time.Hour {
		t.Fatalf("expected ttl of an hour, got %v", ttl)
	}
	v, ok, _ := store.Get(ctx, "quiz_1_endtime")
	if !ok || v != "2026-10-17T10:00:00.000Z" {
		t.Fatalf("unexpected value %q", v)
	}

	_ = store.Set(ctx, "quiz_1_index", "1")
	if err := store.Delete(ctx, "quiz_1_endtime", "quiz_1_index"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("qr:quiz_1_endtime") || mr.Exists("qr:quiz_1_index") {
		t.Fatalf("expected redis keys to be removed")
	}
}
