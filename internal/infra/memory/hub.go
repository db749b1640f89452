package memory

import (
	"context"
	"sync"

	"quiz-battle-service/internal/domain"
)

// Hub fans battle snapshots out to in-process subscribers. It implements
// app.SnapshotPublisher and keeps the newest snapshot per session so late
// subscribers start from current state.
type Hub struct {
	mu          sync.Mutex
	latest      map[string]domain.BattleSnapshot
	subscribers map[string]map[chan domain.BattleSnapshot]struct{}
}

func NewHub() *Hub {
	return &Hub{
		latest:      make(map[string]domain.BattleSnapshot),
		subscribers: make(map[string]map[chan domain.BattleSnapshot]struct{}),
	}
}

// Publish delivers snap unless a newer version was already delivered.
func (h *Hub) Publish(_ context.Context, snap domain.BattleSnapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.latest[snap.SessionID]; ok && prev.Version >= snap.Version {
		return nil
	}
	if snap.Status.Terminal() && len(h.subscribers[snap.SessionID]) == 0 {
		delete(h.latest, snap.SessionID)
		return nil
	}
	h.latest[snap.SessionID] = snap
	h.broadcastLocked(snap)
	return nil
}

// Subscribe returns a channel of snapshots for one session.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(sessionID string) (<-chan domain.BattleSnapshot, func()) {
	ch := make(chan domain.BattleSnapshot, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[sessionID]
	if !ok {
		subs = make(map[chan domain.BattleSnapshot]struct{})
		h.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	if initial, ok := h.latest[sessionID]; ok {
		ch <- initial
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[sessionID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.subscribers, sessionID)
			if last, ok := h.latest[sessionID]; ok && last.Status.Terminal() {
				delete(h.latest, sessionID)
			}
		}
	}
	return ch, cancel
}

func (h *Hub) broadcastLocked(snap domain.BattleSnapshot) {
	for ch := range h.subscribers[snap.SessionID] {
		select {
		case ch <- snap:
		default:
			// full-state snapshots make the oldest pending one redundant
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
