package ledger

import (
	"context"
	"time"

	"feeledger/internal/cache"
	"feeledger/internal/core"
)

// CachedSchedules fronts a ScheduleStore with a TTL cache. Class generation
// looks the same schedule up once per run and the HTTP API once per request.
type CachedSchedules struct {
	next   ScheduleStore
	lru    *cache.LRUCache[core.ClassFeeSchedule]
	loader *cache.Loading[core.ClassFeeSchedule]
}

var _ ScheduleStore = (*CachedSchedules)(nil)

func NewCachedSchedules(next ScheduleStore, size int, ttl time.Duration) *CachedSchedules {
	lru := cache.NewLRUCache[core.ClassFeeSchedule](size, ttl)
	return &CachedSchedules{
		next:   next,
		lru:    lru,
		loader: cache.NewLoading[core.ClassFeeSchedule](lru, next.FindSchedule),
	}
}

// Cleaner exposes the underlying cache to a cache.Manager.
func (c *CachedSchedules) Cleaner() cache.Cleaner { return c.lru }

func (c *CachedSchedules) Stats() cache.Stats { return c.lru.Stats() }

func (c *CachedSchedules) FindSchedule(ctx context.Context, className string) (core.ClassFeeSchedule, error) {
	return c.loader.Get(ctx, className)
}

func (c *CachedSchedules) UpsertSchedule(ctx context.Context, s core.ClassFeeSchedule) error {
	if err := c.next.UpsertSchedule(ctx, s); err != nil {
		return err
	}
	c.loader.Invalidate(s.ClassName)
	return nil
}

func (c *CachedSchedules) ListSchedules(ctx context.Context) ([]core.ClassFeeSchedule, error) {
	return c.next.ListSchedules(ctx)
}
