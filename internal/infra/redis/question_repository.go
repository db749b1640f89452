package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-battle-service/internal/domain"
)

// QuestionLoader fetches the questions of one topic from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadTopic(ctx context.Context, topic string) ([]domain.Question, error)
}

// QuestionRepository caches per-topic question pools in Redis and falls back to a loader on cache miss.
// Pools are stored as: SET questions:{topic} <json array>
type QuestionRepository struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) QuestionsByTopic(ctx context.Context, topics []string) (map[string][]domain.Question, error) {
	out := make(map[string][]domain.Question, len(topics))
	for _, topic := range topics {
		qs, err := r.topic(ctx, topic)
		if err != nil {
			return nil, err
		}
		out[topic] = qs
	}
	return out, nil
}

func (r *QuestionRepository) topic(ctx context.Context, topic string) ([]domain.Question, error) {
	if qs, ok := r.cached(ctx, topic); ok {
		return qs, nil
	}

	result, err, _ := r.sf.Do(topic, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if qs, ok := r.cached(ctx, topic); ok {
			return qs, nil
		}
		qs, err := r.loader.LoadTopic(ctx, topic)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(qs); err == nil {
			_ = r.client.Set(ctx, r.key(topic), data, r.ttlWithJitter()).Err()
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.Question(nil), result.([]domain.Question)...), nil
}

// cached treats any Redis failure as a miss so the loader still serves.
func (r *QuestionRepository) cached(ctx context.Context, topic string) ([]domain.Question, bool) {
	raw, err := r.client.Get(ctx, r.key(topic)).Bytes()
	if err != nil {
		return nil, false
	}
	var qs []domain.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, false
	}
	return qs, true
}

func (r *QuestionRepository) key(topic string) string {
	return "questions:" + topic
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
