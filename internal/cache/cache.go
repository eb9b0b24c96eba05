// Package cache holds the in-process caches and their cleanup loop.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"feeledger/internal/log"
)

type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Size() int
}

// Loading wraps a cache with a loader. Concurrent misses on the same key
// share one load. A load that overlaps an Invalidate of its key returns its
// value to the waiting callers but never stores it.
type Loading[T any] struct {
	cache Cache[T]
	group singleflight.Group
	load  func(ctx context.Context, key string) (T, error)

	mu   sync.Mutex
	gens map[string]uint64
}

func NewLoading[T any](c Cache[T], load func(ctx context.Context, key string) (T, error)) *Loading[T] {
	return &Loading[T]{cache: c, load: load, gens: map[string]uint64{}}
}

// Get returns the cached value or loads it. Load errors are not cached.
func (l *Loading[T]) Get(ctx context.Context, key string) (T, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}
	v, err, _ := l.group.Do(key, func() (any, error) {
		l.mu.Lock()
		gen := l.gens[key]
		l.mu.Unlock()

		v, err := l.load(ctx, key)
		if err != nil {
			return v, err
		}

		l.mu.Lock()
		if l.gens[key] == gen {
			l.cache.Set(key, v)
		}
		l.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate drops key so the next Get reloads it. Loads already in flight
// for key are detached and their results discarded.
func (l *Loading[T]) Invalidate(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gens[key]++
	l.cache.Delete(key)
	l.group.Forget(key)
}

// Cleaner is a cache that can drop its expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically cleans every registered cache.
type Manager struct {
	mu      sync.Mutex
	caches  []Cleaner
	logger  *log.Logger
	stop    chan struct{}
	done    chan struct{}
	started bool
}

func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Discard()
	}
	return &Manager{
		logger: logger.WithComponent(log.ComponentCache),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (m *Manager) Register(c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, c)
}

func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	go m.run(interval)
}

func (m *Manager) run(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := m.CleanAll(); n > 0 {
				m.logger.Debug("Expired cache entries removed", log.FieldCount, n)
			}
		case <-m.stop:
			return
		}
	}
}

// CleanAll runs one cleanup pass and returns the number of entries removed.
func (m *Manager) CleanAll() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()
	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop ends the cleanup loop if it was started.
func (m *Manager) Stop() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return
	}
	close(m.stop)
	<-m.done
}
