package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"quiz-battle-service/internal/domain"
)

// QuestionBank serves per-topic questions from the external provider when it is healthy
// and from the cached fallback pool otherwise.
type QuestionBank struct {
	provider     QuestionProvider
	fallback     QuestionRepository
	difficulty   string
	proposeCount int
	retries      int
	initialWait  time.Duration
}

// QuestionBankConfig tunes provider calls.
type QuestionBankConfig struct {
	Difficulty   string
	ProposeCount int
	Retries      int
	InitialWait  time.Duration
}

// NewQuestionBank builds a bank; provider may be nil to serve the fallback pool only.
func NewQuestionBank(provider QuestionProvider, fallback QuestionRepository, cfg QuestionBankConfig) *QuestionBank {
	if cfg.InitialWait <= 0 {
		cfg.InitialWait = 100 * time.Millisecond
	}
	return &QuestionBank{
		provider:     provider,
		fallback:     fallback,
		difficulty:   cfg.Difficulty,
		proposeCount: cfg.ProposeCount,
		retries:      cfg.Retries,
		initialWait:  cfg.InitialWait,
	}
}

func (b *QuestionBank) QuestionsByTopic(ctx context.Context, topics []string) (map[string][]domain.Question, error) {
	if b.provider != nil {
		grouped, err := b.propose(ctx, topics)
		if err == nil && len(grouped) > 0 {
			return grouped, nil
		}
		logrus.WithField("topics", topics).Warnf("question provider failed, serving fallback pool: %v", err)
	}
	if b.fallback == nil {
		return nil, fmt.Errorf("%w: no fallback question pool", domain.ErrResourceUnavailable)
	}
	grouped, err := b.fallback.QuestionsByTopic(ctx, topics)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrResourceUnavailable, err)
	}
	return grouped, nil
}

func (b *QuestionBank) propose(ctx context.Context, topics []string) (map[string][]domain.Question, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.initialWait
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(b.retries)), ctx)

	var proposed []domain.Question
	err := backoff.Retry(func() error {
		qs, err := b.provider.ProposeQuestions(ctx, topics, b.difficulty, b.proposeCount)
		if err != nil {
			return err
		}
		proposed = qs
		return nil
	}, policy)
	if err != nil {
		return nil, errors.Join(domain.ErrQuestionBankUnavailable, err)
	}
	return groupByTopic(topics, proposed), nil
}

// groupByTopic keeps only well-formed questions whose topic was requested.
func groupByTopic(topics []string, questions []domain.Question) map[string][]domain.Question {
	wanted := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		wanted[t] = struct{}{}
	}
	grouped := make(map[string][]domain.Question, len(topics))
	for _, q := range questions {
		if _, ok := wanted[q.Topic]; !ok || q.ID == "" || !hasCorrectOption(q) {
			continue
		}
		grouped[q.Topic] = append(grouped[q.Topic], q)
	}
	return grouped
}

func hasCorrectOption(q domain.Question) bool {
	for _, opt := range q.Options {
		if opt.Correct {
			return true
		}
	}
	return false
}
