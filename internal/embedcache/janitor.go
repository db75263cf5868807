package embedcache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
)

// Janitor periodically purges expired cache entries.
type Janitor struct {
	scheduler *gocron.Scheduler
}

// StartJanitor schedules cache.Purge every interval and starts the scheduler.
func StartJanitor(ctx context.Context, cache *Cache, interval time.Duration) (*Janitor, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("janitor interval must be positive, got %s", interval)
	}
	logger := contextutil.LoggerFromContext(ctx)

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	_, err := s.Every(interval).Tag("embedcache-purge").WaitForSchedule().Do(func() {
		if n := cache.Purge(); n > 0 {
			logger.DebugContext(ctx, "purged expired embeddings", "removed", n, "remaining", cache.Len())
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule cache purge: %w", err)
	}
	s.StartAsync()
	return &Janitor{scheduler: s}, nil
}

// Stop stops the schedule. Safe on a nil Janitor.
func (j *Janitor) Stop() {
	if j == nil {
		return
	}
	j.scheduler.Stop()
}
