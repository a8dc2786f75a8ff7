package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"wavelink-service/internal/domain"
	"wavelink-service/internal/wordpair"
)

// PairLoader fetches the word pair catalog from a backing store.
type PairLoader interface {
	LoadPairs(ctx context.Context) ([]domain.WordPair, error)
}

const catalogKey = "catalog"

// PairCatalog caches the catalog with TTL to avoid repeated DB hits.
type PairCatalog struct {
	loader PairLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	pairs     []domain.WordPair
	expiresAt time.Time
}

func NewPairCatalog(loader PairLoader, ttl time.Duration) *PairCatalog {
	return &PairCatalog{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *PairCatalog) ListPairs(ctx context.Context, filter domain.PairFilter) ([]domain.WordPair, error) {
	if pairs, ok := c.cached(c.clock()); ok {
		return wordpair.Filter(pairs, filter), nil
	}

	result, err, _ := c.sf.Do(catalogKey, func() (interface{}, error) {
		now := c.clock()
		if pairs, ok := c.cached(now); ok {
			return pairs, nil
		}

		pairs, err := c.loader.LoadPairs(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.pairs = pairs
		c.expiresAt = now.Add(c.ttlWithJitter())
		c.mu.Unlock()
		return pairs, nil
	})
	if err != nil {
		return nil, err
	}
	return wordpair.Filter(result.([]domain.WordPair), filter), nil
}

func (c *PairCatalog) cached(now time.Time) ([]domain.WordPair, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pairs != nil && c.expiresAt.After(now) {
		return c.pairs, true
	}
	return nil, false
}

func (c *PairCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
