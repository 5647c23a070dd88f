package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStateStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	store := NewStateStore(path)
	if err := store.Set(ctx, "quiz_4_answers", `{"1":2}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = store.Set(ctx, "quiz_4_index", "1")

	reopened := NewStateStore(path)
	v, ok, err := reopened.Get(ctx, "quiz_4_answers")
	if err != nil || !ok || v != `{"1":2}` {
		t.Fatalf("expected persisted answers, got %q ok=%v err=%v", v, ok, err)
	}

	if err := reopened.Delete(ctx, "quiz_4_answers", "quiz_4_index"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "quiz_4_index"); ok {
		t.Fatalf("expected key deleted")
	}
}

func TestStateStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := NewStateStore(path).Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected decode error")
	}
}
