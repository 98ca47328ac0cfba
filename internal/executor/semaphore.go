package executor

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// semaphorePool hands out one weighted semaphore per provider-type key, sized by that
// type's configured max_in_flight, and reuses it across every run-item attempt that
// shares the key — mirroring original_source's _get_semaphore cache.
type semaphorePool struct {
	mu    sync.Mutex
	byKey map[string]*semaphore.Weighted
}

func newSemaphorePool() *semaphorePool {
	return &semaphorePool{byKey: make(map[string]*semaphore.Weighted)}
}

func (p *semaphorePool) get(key string, maxInFlight int) *semaphore.Weighted {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sem, ok := p.byKey[key]
	if !ok {
		sem = semaphore.NewWeighted(int64(maxInFlight))
		p.byKey[key] = sem
	}
	return sem
}
