package memory

import (
	"context"
	"testing"

	"quiz-battle-service/internal/domain"
)

func TestHubDeliversLatestAndDropsStale(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()

	_ = hub.Publish(ctx, domain.BattleSnapshot{SessionID: "s1", Version: 2, Status: domain.BattleActive})
	ch, cancel := hub.Subscribe("s1")
	defer cancel()

	initial := <-ch
	if initial.Version != 2 {
		t.Fatalf("expected initial snapshot v2, got v%d", initial.Version)
	}

	_ = hub.Publish(ctx, domain.BattleSnapshot{SessionID: "s1", Version: 1, Status: domain.BattleActive})
	_ = hub.Publish(ctx, domain.BattleSnapshot{SessionID: "s1", Version: 3, Status: domain.BattleActive})

	update := <-ch
	if update.Version != 3 {
		t.Fatalf("expected v3 after stale v1 was dropped, got v%d", update.Version)
	}
}

func TestHubSlowSubscriberKeepsNewest(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	ch, cancel := hub.Subscribe("s1")
	defer cancel()

	for v := int64(1); v <= 20; v++ {
		_ = hub.Publish(ctx, domain.BattleSnapshot{SessionID: "s1", Version: v, Status: domain.BattleActive})
	}

	var last domain.BattleSnapshot
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Version != 20 {
		t.Fatalf("expected newest snapshot to survive, got v%d", last.Version)
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("s1")
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
}
