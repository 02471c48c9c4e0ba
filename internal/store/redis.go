package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amishayyadav/lyftr/internal/models"
)

const (
	statsKey        = "stats:cache" // hash: gen, data
	statsGenKey     = "stats:gen"
	defaultStatsTTL = 30 * time.Second
)

// getStatsScript returns {gen} or {gen, data} when the entry matches gen.
var getStatsScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
local entry = redis.call('HMGET', KEYS[2], 'gen', 'data')
if entry[1] == gen then
	return {gen, entry[2]}
end
return {gen}
`)

// setStatsScript writes the entry only if ARGV[1] is still the current gen.
var setStatsScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[2], 'gen', gen, 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[2], ARGV[3])
return 1
`)

// RedisStore handles Redis operations for caching and rate limiting.
type RedisStore struct {
	client   *redis.Client
	statsTTL time.Duration
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string, statsTTL time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisStoreFromClient(client, statsTTL), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, statsTTL time.Duration) *RedisStore {
	if statsTTL <= 0 {
		statsTTL = defaultStatsTTL
	}
	return &RedisStore{client: client, statsTTL: statsTTL}
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetStats returns the cached stats for the current generation, or nil on a miss.
func (s *RedisStore) GetStats(ctx context.Context) (*models.Stats, uint64, error) {
	res, err := getStatsScript.Run(ctx, s.client, []string{statsGenKey, statsKey}).Slice()
	if err != nil {
		return nil, 0, fmt.Errorf("store: get cached stats: %w", err)
	}
	if len(res) == 0 {
		return nil, 0, errors.New("store: get cached stats: empty reply")
	}

	genStr, _ := res[0].(string)
	gen, err := strconv.ParseUint(genStr, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("store: parse stats generation %q: %w", genStr, err)
	}
	if len(res) < 2 {
		return nil, gen, nil
	}

	data, _ := res[1].(string)
	var stats models.Stats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		// Unreadable entries count as a miss; the next SetStats overwrites them.
		return nil, gen, nil
	}
	return &stats, gen, nil
}

// SetStats caches stats until the TTL expires, unless an insert bumped the
// generation since gen was read.
func (s *RedisStore) SetStats(ctx context.Context, gen uint64, stats *models.Stats) (bool, error) {
	data, err := json.Marshal(stats)
	if err != nil {
		return false, err
	}

	stored, err := setStatsScript.Run(ctx, s.client, []string{statsGenKey, statsKey},
		strconv.FormatUint(gen, 10), data, s.statsTTL.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("store: set cached stats: %w", err)
	}
	return stored == 1, nil
}

// InvalidateStats bumps the generation and drops the cached entry.
func (s *RedisStore) InvalidateStats(ctx context.Context) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, statsGenKey)
		pipe.Del(ctx, statsKey)
		return nil
	})
	return err
}
