package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-battle-service/internal/domain"
)

// Ledger is an in-memory append-only activity log keyed by user.
type Ledger struct {
	mu      sync.RWMutex
	records map[string][]domain.ActivityRecord
	seen    map[string]map[string]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{
		records: make(map[string][]domain.ActivityRecord),
		seen:    make(map[string]map[string]struct{}),
	}
}

func (l *Ledger) Append(_ context.Context, rec domain.ActivityRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys, ok := l.seen[rec.UserID]
	if !ok {
		keys = make(map[string]struct{})
		l.seen[rec.UserID] = keys
	}
	if _, dup := keys[rec.DedupKey]; dup {
		return domain.ErrDuplicateActivity
	}
	keys[rec.DedupKey] = struct{}{}
	l.records[rec.UserID] = append(l.records[rec.UserID], rec)
	return nil
}

// List returns the user's records ordered by OccurredAt; zero bounds are open.
func (l *Ledger) List(_ context.Context, userID string, from, to time.Time) ([]domain.ActivityRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ActivityRecord, 0, len(l.records[userID]))
	for _, rec := range l.records[userID] {
		if !from.IsZero() && rec.OccurredAt.Before(from) {
			continue
		}
		if !to.IsZero() && rec.OccurredAt.After(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

// ProfileStore keeps materialized profiles with optimistic versions.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]domain.Profile)}
}

func (s *ProfileStore) GetProfile(_ context.Context, userID string) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return domain.Profile{UserID: userID}, nil
	}
	return p, nil
}

func (s *ProfileStore) UpdateProfileIfVersion(_ context.Context, p domain.Profile, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profiles[p.UserID].Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	s.profiles[p.UserID] = p
	return nil
}

// TopicDirectory records the topics each user has completed.
type TopicDirectory struct {
	mu     sync.RWMutex
	topics map[string]map[string]struct{}
}

func NewTopicDirectory() *TopicDirectory {
	return &TopicDirectory{topics: make(map[string]map[string]struct{})}
}

func (d *TopicDirectory) MarkCompleted(_ context.Context, userID string, topics ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.topics[userID]
	if !ok {
		set = make(map[string]struct{})
		d.topics[userID] = set
	}
	for _, t := range topics {
		set[t] = struct{}{}
	}
	return nil
}

func (d *TopicDirectory) CompletedTopics(_ context.Context, userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.topics[userID]))
	for t := range d.topics[userID] {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}
