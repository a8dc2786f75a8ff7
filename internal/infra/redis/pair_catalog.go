package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"wavelink-service/internal/domain"
	"wavelink-service/internal/infra/memory"
	"wavelink-service/internal/wordpair"
)

const catalogKey = "wordpairs:catalog"

// PairCatalog caches the word pair catalog in Redis and falls back to a loader on cache miss.
// Pairs are stored as: HSET wordpairs:catalog {pairID} {json}
type PairCatalog struct {
	client *redis.Client
	loader memory.PairLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewPairCatalog(client *redis.Client, loader memory.PairLoader, ttl time.Duration) *PairCatalog {
	return &PairCatalog{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *PairCatalog) ListPairs(ctx context.Context, filter domain.PairFilter) ([]domain.WordPair, error) {
	if pairs, ok := c.cached(ctx); ok {
		return wordpair.Filter(pairs, filter), nil
	}

	result, err, _ := c.sf.Do(catalogKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pairs, ok := c.cached(ctx); ok {
			return pairs, nil
		}

		pairs, err := c.loader.LoadPairs(ctx)
		if err != nil {
			return nil, err
		}

		pipe := c.client.TxPipeline()
		pipe.Del(ctx, catalogKey)
		for _, p := range pairs {
			raw, err := json.Marshal(p)
			if err != nil {
				return nil, fmt.Errorf("encode pair %s: %w", p.ID, err)
			}
			pipe.HSet(ctx, catalogKey, p.ID, raw)
		}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, catalogKey, ttl)
		}
		// Cache fill is best-effort; the loaded pairs are still served.
		_, _ = pipe.Exec(ctx)
		return pairs, nil
	})
	if err != nil {
		return nil, err
	}
	return wordpair.Filter(result.([]domain.WordPair), filter), nil
}

func (c *PairCatalog) cached(ctx context.Context) ([]domain.WordPair, bool) {
	fields, err := c.client.HGetAll(ctx, catalogKey).Result()
	if err != nil || len(fields) == 0 {
		return nil, false
	}
	pairs := make([]domain.WordPair, 0, len(fields))
	for _, raw := range fields {
		var p domain.WordPair
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, false
		}
		pairs = append(pairs, p)
	}
	// Hash order is random; keep allocator input stable.
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ID < pairs[j].ID })
	return pairs, true
}

func (c *PairCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
