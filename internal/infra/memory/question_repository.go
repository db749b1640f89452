package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-battle-service/internal/domain"
)

// QuestionLoader fetches the questions of one topic from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadTopic(ctx context.Context, topic string) ([]domain.Question, error)
}

// QuestionRepository caches per-topic question pools with TTL to avoid repeated DB hits.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedTopic
}

type cachedTopic struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedTopic),
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
	if qs, ok := r.cached(topic); ok {
		return qs, nil
	}

	result, err, _ := r.sf.Do(topic, func() (interface{}, error) {
		if qs, ok := r.cached(topic); ok {
			return qs, nil
		}
		qs, err := r.loader.LoadTopic(ctx, topic)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[topic] = cachedTopic{
			questions: qs,
			expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
		}
		r.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.Question(nil), result.([]domain.Question)...), nil
}

func (r *QuestionRepository) cached(topic string) ([]domain.Question, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[topic]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return nil, false
	}
	return append([]domain.Question(nil), entry.questions...), true
}

func (r *QuestionRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a simple loader backed by an in-memory slice (useful for tests/demos).
type StaticQuestionLoader struct {
	byTopic map[string][]domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	byTopic := make(map[string][]domain.Question)
	for _, q := range questions {
		byTopic[q.Topic] = append(byTopic[q.Topic], q)
	}
	return &StaticQuestionLoader{byTopic: byTopic}
}

func (l *StaticQuestionLoader) LoadTopic(_ context.Context, topic string) ([]domain.Question, error) {
	return append([]domain.Question(nil), l.byTopic[topic]...), nil
}
