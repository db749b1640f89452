package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"quiz-battle-service/internal/domain"
)

// versioned is a JSON record carrying an optimistic version.
type versioned struct {
	Version int64 `json:"version"`
}

// compareAndSet commits write only if the record at key still has expected as its version.
// A missing key reads as version 0 when missing is nil and fails with missing otherwise.
// Concurrent modification of key between WATCH and EXEC also reports a version conflict.
func compareAndSet(ctx context.Context, client *redis.Client, key string, expected int64, missing error, write func(pipe redis.Pipeliner)) error {
	err := client.Watch(ctx, func(tx *redis.Tx) error {
		var current versioned
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if missing != nil {
				return missing
			}
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &current); err != nil {
				return err
			}
		}
		if current.Version != expected {
			return domain.ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(pipe)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrVersionConflict
	}
	return err
}

func getJSON(ctx context.Context, client *redis.Client, key string, missing error, dst any) error {
	raw, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return missing
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
