package prediction

import (
	"context"
	"time"

	"github.com/clinicflow/insight-engine/pkg/logging"
)

// Cleaner periodically evicts expired entries from both cache layers so a
// dead row is reclaimed even when nothing reads its key again.
type Cleaner struct {
	memory   *MemoryCache
	store    Store
	logger   *logging.Logger
	interval time.Duration
}

func NewCleaner(memory *MemoryCache, store Store, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Cleaner{
		memory:   memory,
		store:    store,
		logger:   logger,
		interval: 15 * time.Minute,
	}
}

func (c *Cleaner) WithInterval(interval time.Duration) *Cleaner {
	if interval > 0 {
		c.interval = interval
	}
	return c
}

// Start runs the sweep loop until ctx is cancelled.
func (c *Cleaner) Start(ctx context.Context) {
	if c.memory == nil && c.store == nil {
		return
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep performs a single eviction pass and reports how many persistent rows
// were removed. It is exported for one-shot invocations outside the loop.
func (c *Cleaner) Sweep(ctx context.Context) int64 {
	var swept int
	if c.memory != nil {
		swept = c.memory.Sweep()
	}

	var deleted int64
	if c.store != nil {
		n, err := c.store.DeleteExpired(ctx)
		if err != nil {
			c.logger.Error("prediction cache cleanup failed", "error", err)
		} else {
			deleted = n
		}
	}

	if swept > 0 || deleted > 0 {
		c.logger.Info("prediction cache cleanup", "memory_evicted", swept, "store_deleted", deleted)
	}
	return deleted
}
