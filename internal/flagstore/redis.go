package flagstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis is a Store kept in one Redis hash per student, for kiosk setups where
// several machines share a student's flags.
type Redis struct {
	rdb *redis.Client
	key string
}

// NewRedis creates a Redis store scoped to a student identifier.
func NewRedis(rdb *redis.Client, scope string) *Redis {
	return &Redis{rdb: rdb, key: fmt.Sprintf("proctor:%s:compromise_flags", scope)}
}

func (r *Redis) Get(ctx context.Context, testID uuid.UUID) (Flag, bool, error) {
	v, err := r.rdb.HGet(ctx, r.key, testID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Flag{}, false, nil
	}
	if err != nil {
		return Flag{}, false, fmt.Errorf("redis hget: %w", err)
	}
	var flag Flag
	if err := json.Unmarshal(v, &flag); err != nil {
		// Older entries hold a bare marker; they count as unreported.
		return Flag{}, true, nil
	}
	return flag, true, nil
}

func (r *Redis) Set(ctx context.Context, testID uuid.UUID, flag Flag) error {
	data, err := json.Marshal(flag)
	if err != nil {
		return fmt.Errorf("encode flag: %w", err)
	}
	if err := r.rdb.HSet(ctx, r.key, testID.String(), data).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, testID uuid.UUID) error {
	if err := r.rdb.HDel(ctx, r.key, testID.String()).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}
