package cache

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/ent0n29/saarthi/internal/observability"
)

// ResponseCache is a bounded newest-first ring of exchanges mirrored to a Store.
// Storage failures never reach callers: reads degrade to an empty cache and
// writes are logged.
type ResponseCache struct {
	store        Store
	capacity     int
	previewChars int
	logger       *zap.Logger
	metrics      *observability.Metrics

	mu   sync.Mutex
	ring []Exchange
	head int
	size int
}

func New(store Store, capacity, previewChars int, logger *zap.Logger, metrics *observability.Metrics) *ResponseCache {
	if capacity <= 0 {
		capacity = 5
	}
	if previewChars <= 0 {
		previewChars = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseCache{
		store:        store,
		capacity:     capacity,
		previewChars: previewChars,
		logger:       logger,
		metrics:      metrics,
		ring:         make([]Exchange, capacity),
	}
}

func (c *ResponseCache) Capacity() int { return c.capacity }

// Insert places ex at the front, evicting the oldest entry when full, and
// persists the whole sequence.
func (c *ResponseCache) Insert(ctx context.Context, ex Exchange) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pushFront(ex)
	c.metrics.SetCacheEntries(c.size)

	data, err := json.Marshal(c.snapshotLocked())
	if err != nil {
		c.logger.Error("cache encode failed", zap.Error(err))
		return
	}
	if err := c.store.Write(ctx, data); err != nil {
		c.logger.Warn("cache persist failed", zap.Error(err))
	}
}

// LoadAll re-reads the durable slot and replaces the in-memory ring with it.
// Missing, unreadable or malformed storage yields an empty cache.
func (c *ResponseCache) LoadAll(ctx context.Context) []Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.readLocked(ctx)
	c.resetLocked(entries)
	c.metrics.SetCacheEntries(c.size)
	return c.snapshotLocked()
}

// Entries returns the in-memory ring newest-first without touching storage.
func (c *ResponseCache) Entries() []Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Summarize renders up to limit in-memory entries for the offline transcript message.
func (c *ResponseCache) Summarize(limit int) string {
	return FormatSummary(c.Entries(), limit, c.previewChars)
}

func (c *ResponseCache) readLocked(ctx context.Context) []Exchange {
	data, err := c.store.Read(ctx)
	if err != nil {
		c.logger.Warn("cache read failed", zap.Error(err))
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	var entries []Exchange
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("cache slot is malformed, starting empty", zap.Error(err))
		return nil
	}
	return entries
}

func (c *ResponseCache) pushFront(ex Exchange) {
	c.head = (c.head - 1 + c.capacity) % c.capacity
	c.ring[c.head] = ex
	if c.size < c.capacity {
		c.size++
	}
}

// resetLocked loads entries (newest-first) into the ring, keeping at most capacity.
func (c *ResponseCache) resetLocked(entries []Exchange) {
	if len(entries) > c.capacity {
		entries = entries[:c.capacity]
	}
	clear(c.ring)
	c.head = 0
	c.size = len(entries)
	copy(c.ring, entries)
}

func (c *ResponseCache) snapshotLocked() []Exchange {
	out := make([]Exchange, c.size)
	for i := 0; i < c.size; i++ {
		out[i] = c.ring[(c.head+i)%c.capacity]
	}
	return out
}
