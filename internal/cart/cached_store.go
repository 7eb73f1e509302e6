package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// genTTL outlives any cart entry so a generation cannot reset under a
// reader that is still filling.
const genTTL = 24 * time.Hour

// fillScript stores the cart only if no write bumped the generation since
// the reader sampled it.
const fillScript = `
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return false
end
return redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
`

// invalidateScript bumps the generation and drops the entry in one step.
const invalidateScript = `
redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
return redis.call('DEL', KEYS[1])
`

// RedisClient is the subset of *redis.Client used by CachedStore.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// CachedStore is a cache-aside decorator. Reads go to Redis first; every write
// goes to the wrapped store and then invalidates the user's entry, including
// writes that failed on a version conflict. A read fills the cache only when
// no write invalidated it in between. Redis failures are logged and never fail
// the request.
type CachedStore struct {
	Store
	client RedisClient
	ttl    time.Duration
	log    zerolog.Logger
}

func NewCachedStore(inner Store, client RedisClient, ttl time.Duration, log zerolog.Logger) *CachedStore {
	return &CachedStore{Store: inner, client: client, ttl: ttl, log: log}
}

// Both keys share a hash tag so the scripts stay on one cluster slot.
func cacheKeys(userID string) (entry, gen string) {
	return fmt.Sprintf("cart:{%s}", userID), fmt.Sprintf("cart:{%s}:gen", userID)
}

func (s *CachedStore) FindByUser(ctx context.Context, userID string) (*Cart, error) {
	key, genKey := cacheKeys(userID)

	raw, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var c Cart
		if jerr := json.Unmarshal(raw, &c); jerr == nil {
			return &c, nil
		}
		s.log.Warn().Str("key", key).Msg("dropping undecodable cart cache entry")
		s.invalidate(ctx, userID)
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("key", key).Msg("cart cache read failed")
	}

	gen, genErr := s.client.Get(ctx, genKey).Result()
	if errors.Is(genErr, redis.Nil) {
		gen, genErr = "0", nil
	}

	c, err := s.Store.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		s.log.Warn().Err(genErr).Str("key", genKey).Msg("cart cache generation read failed")
		return c, nil
	}

	body, err := json.Marshal(c)
	if err == nil {
		err = s.client.Eval(ctx, fillScript, []string{key, genKey}, gen, body, s.ttl.Milliseconds()).Err()
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("key", key).Msg("cart cache write failed")
	}
	return c, nil
}

func (s *CachedStore) Create(ctx context.Context, c *Cart) error {
	defer s.invalidate(ctx, c.UserID)
	return s.Store.Create(ctx, c)
}

func (s *CachedStore) Save(ctx context.Context, c *Cart) error {
	defer s.invalidate(ctx, c.UserID)
	return s.Store.Save(ctx, c)
}

func (s *CachedStore) DeleteByUser(ctx context.Context, userID string) (*Cart, error) {
	defer s.invalidate(ctx, userID)
	return s.Store.DeleteByUser(ctx, userID)
}

func (s *CachedStore) invalidate(ctx context.Context, userID string) {
	key, genKey := cacheKeys(userID)
	if err := s.client.Eval(ctx, invalidateScript, []string{key, genKey}, genTTL.Milliseconds()).Err(); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("cart cache invalidate failed")
	}
}
