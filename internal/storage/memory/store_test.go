package memory

import (
	"context"
	"errors"
	"testing"

	"mangwale-chat/internal/storage"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get missing err = %v, want ErrNotFound", err)
	}
	if err := s.Put(ctx, "k", "v"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got, err := s.Get(ctx, "k"); err != nil || got != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("after delete err = %v", err)
	}
}
