package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ticketflow:guard:"

// acquireScript checks every key before writing any, so a partial grab can
// never happen. Returns an empty table on success, or {index, holder} for
// the first conflicting key.
var acquireScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
	local holder = redis.call('GET', key)
	if holder and holder ~= ARGV[1] then
		return {i, holder}
	end
end
for _, key in ipairs(KEYS) do
	redis.call('SET', key, ARGV[1])
end
return {}
`)

// releaseScript deletes only the keys the ticket owns.
var releaseScript = redis.NewScript(`
for _, key in ipairs(KEYS) do
	if redis.call('GET', key) == ARGV[1] then
		redis.call('DEL', key)
	end
end
return 0
`)

// RedisGuard stores locks in redis so every engine worker sees the same
// holders.
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

func NewRedisGuardFromURL(redisURL string) (*RedisGuard, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return &RedisGuard{client: redis.NewClient(opts)}, nil
}

func (g *RedisGuard) TryAcquire(ctx context.Context, ticketID string, resourceIDs []string) (*Conflict, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(resourceIDs))
	for i, resourceID := range resourceIDs {
		keys[i] = keyPrefix + resourceID
	}

	result, err := acquireScript.Run(ctx, g.client, keys, ticketID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to run acquire script: %w", err)
	}

	values, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected acquire script result type %T", result)
	}

	if len(values) == 0 {
		return nil, nil
	}

	index, ok := values[0].(int64)
	if !ok || index < 1 || int(index) > len(resourceIDs) {
		return nil, fmt.Errorf("unexpected acquire script conflict index %v", values[0])
	}

	holder, _ := values[1].(string)

	return &Conflict{
		ResourceID: resourceIDs[index-1],
		HolderID:   holder,
	}, nil
}

func (g *RedisGuard) Release(ctx context.Context, ticketID string, resourceIDs []string) error {
	if len(resourceIDs) == 0 {
		return nil
	}

	keys := make([]string, len(resourceIDs))
	for i, resourceID := range resourceIDs {
		keys[i] = keyPrefix + resourceID
	}

	err := releaseScript.Run(ctx, g.client, keys, ticketID).Err()
	if err != nil {
		return fmt.Errorf("failed to run release script: %w", err)
	}

	return nil
}

func (g *RedisGuard) Holder(ctx context.Context, resourceID string) (string, error) {
	holder, err := g.client.Get(ctx, keyPrefix+resourceID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}

		return "", fmt.Errorf("failed to read lock holder: %w", err)
	}

	return holder, nil
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}
