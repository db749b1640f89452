package redis

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-battle-service/internal/domain"
)

// appendScript claims the dedup key and appends the entry in one step.
var appendScript = redis.NewScript(`
if redis.call('SET', KEYS[1], '1', 'NX') then
  redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
  return 1
end
return 0
`)

// Ledger stores each user's activity log as a sorted set scored by occurrence time
// (ZADD ledger:{user} <unix ms> <json>), with a dedup marker per (user, key).
type Ledger struct {
	client *redis.Client
}

func NewLedger(client *redis.Client) *Ledger {
	return &Ledger{client: client}
}

func (l *Ledger) Append(ctx context.Context, rec domain.ActivityRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	keys := []string{l.dedupKey(rec.UserID, rec.DedupKey), l.logKey(rec.UserID)}
	added, err := appendScript.Run(ctx, l.client, keys, rec.OccurredAt.UnixMilli(), data).Int()
	if err != nil {
		return err
	}
	if added == 0 {
		return domain.ErrDuplicateActivity
	}
	return nil
}

func (l *Ledger) List(ctx context.Context, userID string, from, to time.Time) ([]domain.ActivityRecord, error) {
	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !from.IsZero() {
		rng.Min = strconv.FormatInt(from.UnixMilli(), 10)
	}
	if !to.IsZero() {
		rng.Max = strconv.FormatInt(to.UnixMilli(), 10)
	}
	members, err := l.client.ZRangeByScore(ctx, l.logKey(userID), rng).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.ActivityRecord, 0, len(members))
	for _, m := range members {
		var rec domain.ActivityRecord
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (l *Ledger) logKey(userID string) string {
	return "ledger:" + userID
}

func (l *Ledger) dedupKey(userID, key string) string {
	return "ledger:" + userID + ":dedup:" + key
}

// ProfileStore keeps the materialized streak and counters per user.
type ProfileStore struct {
	client *redis.Client
}

func NewProfileStore(client *redis.Client) *ProfileStore {
	return &ProfileStore{client: client}
}

func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	p := domain.Profile{UserID: userID}
	if err := getJSON(ctx, s.client, s.key(userID), nil, &p); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

func (s *ProfileStore) UpdateProfileIfVersion(ctx context.Context, p domain.Profile, expectedVersion int64) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	key := s.key(p.UserID)
	return compareAndSet(ctx, s.client, key, expectedVersion, nil, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, key, data, 0)
	})
}

func (s *ProfileStore) key(userID string) string {
	return "profile:" + userID
}

// TopicDirectory reads completed topics from a set per user, maintained by the learning profile owner.
type TopicDirectory struct {
	client *redis.Client
}

func NewTopicDirectory(client *redis.Client) *TopicDirectory {
	return &TopicDirectory{client: client}
}

func (d *TopicDirectory) MarkCompleted(ctx context.Context, userID string, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	members := make([]interface{}, 0, len(topics))
	for _, t := range topics {
		members = append(members, t)
	}
	return d.client.SAdd(ctx, d.key(userID), members...).Err()
}

func (d *TopicDirectory) CompletedTopics(ctx context.Context, userID string) ([]string, error) {
	topics, err := d.client.SMembers(ctx, d.key(userID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(topics)
	return topics, nil
}

func (d *TopicDirectory) key(userID string) string {
	return "user:" + userID + ":completed_topics"
}
