package app

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"

	"quiz-battle-service/internal/domain"
)

// Selection is the outcome of a fair draw: the battle pool and the ordered questions.
type Selection struct {
	Pool      []string
	Questions []domain.Question
}

// FairnessSelector draws balanced question lists restricted to topics both players completed.
type FairnessSelector struct {
	questions QuestionRepository
}

func NewFairnessSelector(questions QuestionRepository) *FairnessSelector {
	return &FairnessSelector{questions: questions}
}

// Select computes the pool topicsA ∩ topicsB and draws count questions from it.
// The same seed and bank always produce the same list.
func (f *FairnessSelector) Select(ctx context.Context, topicsA, topicsB []string, count int, seed int64) (Selection, error) {
	pool := IntersectTopics(topicsA, topicsB)
	if len(pool) == 0 {
		return Selection{}, domain.ErrFairnessViolation
	}
	if count <= 0 {
		return Selection{}, fmt.Errorf("question count must be positive, got %d", count)
	}

	bank, err := f.questions.QuestionsByTopic(ctx, pool)
	if err != nil {
		return Selection{}, err
	}
	questions, err := drawBalanced(pool, bank, count, seed)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Pool: pool, Questions: questions}, nil
}

// IntersectTopics returns the sorted, de-duplicated intersection of the two topic sets.
func IntersectTopics(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, t := range NormalizeTopics(b) {
		inB[t] = struct{}{}
	}
	out := make([]string, 0)
	for _, t := range NormalizeTopics(a) {
		if _, ok := inB[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// NormalizeTopics trims, drops empties, de-duplicates and sorts topic names.
func NormalizeTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SeedFor derives a stable draw seed from an identifier.
func SeedFor(id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64())
}

// drawBalanced caps each topic at ceil(count/|pool|) in a first round-robin pass and
// lifts the cap in a second pass so exhausted topics do not starve the list.
func drawBalanced(pool []string, bank map[string][]domain.Question, count int, seed int64) ([]domain.Question, error) {
	rng := rand.New(rand.NewSource(seed))
	queues := make(map[string][]domain.Question, len(pool))
	available := 0
	for _, topic := range pool {
		qs := make([]domain.Question, 0, len(bank[topic]))
		for _, q := range bank[topic] {
			if q.Topic != "" && q.Topic != topic {
				continue
			}
			q.Topic = topic
			qs = append(qs, q)
		}
		sort.SliceStable(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })
		rng.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
		queues[topic] = qs
		available += len(qs)
	}

	perTopic := (count + len(pool) - 1) / len(pool)
	taken := make(map[string]int, len(pool))
	seen := make(map[string]struct{}, count)
	selected := make([]domain.Question, 0, count)

	next := func(topic string) (domain.Question, bool) {
		for len(queues[topic]) > 0 {
			q := queues[topic][0]
			queues[topic] = queues[topic][1:]
			if _, dup := seen[q.ID]; dup {
				continue
			}
			return q, true
		}
		return domain.Question{}, false
	}

	pass := func(capped bool) {
		for progress := true; progress && len(selected) < count; {
			progress = false
			for _, topic := range pool {
				if len(selected) == count {
					return
				}
				if capped && taken[topic] >= perTopic {
					continue
				}
				q, ok := next(topic)
				if !ok {
					continue
				}
				seen[q.ID] = struct{}{}
				taken[topic]++
				selected = append(selected, q)
				progress = true
			}
		}
	}
	pass(true)
	pass(false)

	if len(selected) < count {
		return nil, fmt.Errorf("%w: need %d, pool %v offers %d", domain.ErrInsufficientQuestions, count, pool, available)
	}
	return selected, nil
}
