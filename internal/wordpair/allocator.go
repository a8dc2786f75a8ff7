// Package wordpair supplies seed word pairs that never repeat within a game.
package wordpair

import (
	"math/rand"
	"sync"
	"time"

	"wavelink-service/internal/domain"
)

// Allocator picks seed pairs uniformly at random.
type Allocator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewAllocator() *Allocator {
	return NewAllocatorWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewAllocatorWithRand is used by tests for deterministic picks.
func NewAllocatorWithRand(rnd *rand.Rand) *Allocator {
	return &Allocator{rnd: rnd}
}

// Pick returns a pair not present in used. On a game's first turn only easy
// pairs are candidates; afterwards every catalog pair not yet played is.
func (a *Allocator) Pick(pairs []domain.WordPair, used map[string]struct{}, first bool) (domain.WordPair, error) {
	candidates := make([]domain.WordPair, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := used[p.ID]; ok {
			continue
		}
		if first && !p.Easy {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return domain.WordPair{}, domain.ErrNoPairsAvailable
	}

	a.mu.Lock()
	i := a.rnd.Intn(len(candidates))
	a.mu.Unlock()
	return candidates[i], nil
}
