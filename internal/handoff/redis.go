package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amanullahtanweer/interview-rehearsal/internal/questions"
	redis "github.com/redis/go-redis/v9"
)

const (
	fieldRole      = "role"
	fieldLevel     = "level"
	fieldQuestions = "questions"
)

// RedisStore keeps each setup in a hash at prefix+id.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(id string) string { return r.prefix + id }

func (r *RedisStore) Save(ctx context.Context, id string, s Setup) error {
	qs, err := json.Marshal(s.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}

	key := r.key(id)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key,
		fieldRole, s.Role,
		fieldLevel, string(s.Level),
		fieldQuestions, string(qs),
	)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis HSET %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, id string) (Setup, error) {
	key := r.key(id)
	vals, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Setup{}, fmt.Errorf("redis HGETALL %s: %w", key, err)
	}
	if len(vals) == 0 {
		return Setup{}, ErrNotFound
	}

	s := Setup{Role: vals[fieldRole], Level: questions.Level(vals[fieldLevel])}
	if raw := vals[fieldQuestions]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.Questions); err != nil {
			return Setup{}, fmt.Errorf("decode questions for %s: %w", key, err)
		}
	}
	return s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	key := r.key(id)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis DEL %s: %w", key, err)
	}
	return nil
}
