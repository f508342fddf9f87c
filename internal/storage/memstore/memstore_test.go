package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

func TestStore_SetIfAbsent(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	ok, err := s.SetIfAbsent(ctx, "k", "v1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first set to win, ok=%v err=%v", ok, err)
	}
	ok, err = s.SetIfAbsent(ctx, "k", "v2", time.Minute)
	if err != nil {
		t.Fatalf("second set: %v", err)
	}
	if ok {
		t.Fatalf("expected second set to lose")
	}
	got, exists, err := s.Get(ctx, "k")
	if err != nil || !exists || got != "v1" {
		t.Fatalf("expected v1, got %q exists=%v err=%v", got, exists, err)
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	if _, err := s.SetIfAbsent(ctx, "k", "v1", 20*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	if _, exists, _ := s.Get(ctx, "k"); exists {
		t.Fatalf("expected key expired")
	}
	// An expired key is free for a new owner.
	ok, err := s.SetIfAbsent(ctx, "k", "v2", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected set over expired key, ok=%v err=%v", ok, err)
	}
}

func TestStore_CompareAndSwapMove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("moves when the value matches", func(t *testing.T) {
		t.Parallel()
		s := New()
		_, _ = s.SetIfAbsent(ctx, "src", "v1", time.Minute)

		moved, err := s.CompareAndSwapMove(ctx, "src", "v1", "dst", "v2", time.Minute)
		if err != nil || !moved {
			t.Fatalf("expected move, moved=%v err=%v", moved, err)
		}
		if _, exists, _ := s.Get(ctx, "src"); exists {
			t.Fatalf("expected src gone")
		}
		got, exists, _ := s.Get(ctx, "dst")
		if !exists || got != "v2" {
			t.Fatalf("expected dst=v2, got %q exists=%v", got, exists)
		}
	})

	t.Run("refuses on a stale value", func(t *testing.T) {
		t.Parallel()
		s := New()
		_, _ = s.SetIfAbsent(ctx, "src", "v1", time.Minute)

		moved, err := s.CompareAndSwapMove(ctx, "src", "stale", "dst", "v2", time.Minute)
		if err != nil {
			t.Fatalf("move: %v", err)
		}
		if moved {
			t.Fatalf("expected move refused")
		}
		if _, exists, _ := s.Get(ctx, "src"); !exists {
			t.Fatalf("expected src untouched")
		}
		if _, exists, _ := s.Get(ctx, "dst"); exists {
			t.Fatalf("expected dst untouched")
		}
	})

	t.Run("refuses on a missing source", func(t *testing.T) {
		t.Parallel()
		s := New()
		moved, err := s.CompareAndSwapMove(ctx, "src", "v1", "dst", "v2", time.Minute)
		if err != nil || moved {
			t.Fatalf("expected refusal, moved=%v err=%v", moved, err)
		}
	})
}

func TestStore_DeleteIfValue(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_, _ = s.SetIfAbsent(ctx, "k", "owner-1", time.Minute)

	deleted, err := s.DeleteIfValue(ctx, "k", "owner-2")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted {
		t.Fatalf("expected foreign delete refused")
	}
	deleted, err = s.DeleteIfValue(ctx, "k", "owner-1")
	if err != nil || !deleted {
		t.Fatalf("expected owner delete, deleted=%v err=%v", deleted, err)
	}
}

func TestStore_ExtendTTL(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_, _ = s.SetIfAbsent(ctx, "k", "v", 30*time.Millisecond)

	ok, err := s.ExtendTTL(ctx, "k", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected extend, ok=%v err=%v", ok, err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, exists, _ := s.Get(ctx, "k"); !exists {
		t.Fatalf("expected key alive after extend")
	}

	ok, err = s.ExtendTTL(ctx, "missing", time.Minute)
	if err != nil {
		t.Fatalf("extend missing: %v", err)
	}
	if ok {
		t.Fatalf("expected extend of missing key to report false")
	}
}

func TestDedupStore(t *testing.T) {
	t.Parallel()

	s := NewDedup()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	staleBefore := now.Add(-5 * time.Minute)

	out, err := s.TryAcquire(ctx, domain.BotTypeShop, 1, now, staleBefore)
	if err != nil || out != domain.DedupAcquired {
		t.Fatalf("expected acquired, out=%s err=%v", out, err)
	}
	out, err = s.TryAcquire(ctx, domain.BotTypeShop, 1, now, staleBefore)
	if err != nil || out != domain.DedupInProgress {
		t.Fatalf("expected in progress, out=%s err=%v", out, err)
	}

	if err := s.MarkProcessed(ctx, domain.BotTypeShop, 1, now); err != nil {
		t.Fatalf("mark: %v", err)
	}
	out, err = s.TryAcquire(ctx, domain.BotTypeShop, 1, now, staleBefore)
	if err != nil || out != domain.DedupAlreadyProcessed {
		t.Fatalf("expected already processed, out=%s err=%v", out, err)
	}

	// A stale unprocessed record is silently re-acquired.
	if _, err := s.TryAcquire(ctx, domain.BotTypeShop, 2, now.Add(-10*time.Minute), staleBefore.Add(-10*time.Minute)); err != nil {
		t.Fatalf("seed stale: %v", err)
	}
	out, err = s.TryAcquire(ctx, domain.BotTypeShop, 2, now, staleBefore)
	if err != nil || out != domain.DedupAcquired {
		t.Fatalf("expected stale re-acquire, out=%s err=%v", out, err)
	}

	// Marking a record that never existed must not create one.
	if err := s.MarkProcessed(ctx, domain.BotTypeShop, 3, now); err != nil {
		t.Fatalf("mark missing: %v", err)
	}
	out, err = s.TryAcquire(ctx, domain.BotTypeShop, 3, now, staleBefore)
	if err != nil || out != domain.DedupAcquired {
		t.Fatalf("expected acquired after orphan mark, out=%s err=%v", out, err)
	}
}
