package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-battle-service/internal/domain"
)

// QuestionLoader loads question JSONB from Postgres, one topic at a time.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadTopic(ctx context.Context, topic string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM questions WHERE topic=$1 ORDER BY id`, topic)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		q.Topic = topic
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return out, nil
}

// SaveQuestions upserts questions into the bank.
func (l *QuestionLoader) SaveQuestions(ctx context.Context, questions []domain.Question) error {
	for _, q := range questions {
		data, err := json.Marshal(q)
		if err != nil {
			return err
		}
		_, err = l.pool.Exec(ctx,
			`INSERT INTO questions (id, topic, data) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET topic = EXCLUDED.topic, data = EXCLUDED.data`,
			q.ID, q.Topic, data)
		if err != nil {
			return fmt.Errorf("save question %s: %w", q.ID, err)
		}
	}
	return nil
}
