package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paymatrix/internal/methods/domain"
)

const keyPrefix = "paymatrix:"

// publishScript stores a run and moves the scope pointer only when the run is
// not older than the current one. Snowflake IDs exceed float precision, so
// they are compared as decimal strings (length first).
const publishScript = `
local cur = redis.call("GET", KEYS[1])
if cur then
  if string.len(cur) > string.len(ARGV[1]) or (string.len(cur) == string.len(ARGV[1]) and cur > ARGV[1]) then
    return 0
  end
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("SET", KEYS[2], ARGV[2], "PX", ttl)
else
  redis.call("SET", KEYS[2], ARGV[2])
end
redis.call("SET", KEYS[1], ARGV[1])
return 1
`

type RedisStore struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		return nil
	}
	return &RedisStore{
		client: client,
		script: redis.NewScript(publishScript),
		ttl:    ttl,
	}
}

func runKey(id snowflake.ID) string { return keyPrefix + "run:" + id.String() }
func scopeKey(scope string) string  { return keyPrefix + "latest:" + scope }

func (s *RedisStore) Publish(ctx context.Context, result *domain.LoadResult) error {
	if result == nil || result.RunID == 0 {
		return domain.ErrRunNotFound
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", result.RunID, err)
	}

	ok, err := s.script.Run(ctx, s.client,
		[]string{scopeKey(result.Scope), runKey(result.RunID)},
		result.RunID.String(), payload, s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return domain.ErrStaleRun
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, runID snowflake.ID) (*domain.LoadResult, error) {
	raw, err := s.client.Get(ctx, runKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	var result domain.LoadResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &result, nil
}

func (s *RedisStore) Latest(ctx context.Context, scope string) (*domain.LoadResult, error) {
	raw, err := s.client.Get(ctx, scopeKey(scope)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return nil, domain.ErrRunNotFound
	}
	return s.Get(ctx, id)
}
