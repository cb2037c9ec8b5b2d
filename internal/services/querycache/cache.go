// Package querycache is the read-side cache over the event store. Entries
// are whole query results keyed by query shape with per-shape TTLs, and the
// cache subscribes to the internal bus so writes invalidate every window
// that could contain a changed event.
package querycache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ihaichao/stock-pulse/internal/interfaces"
	"github.com/ihaichao/stock-pulse/internal/models"
)

// Cache key builders. Every cacheable query shape has exactly one key so
// invalidation can enumerate what a changed event may affect.
const (
	KeyToday     = "events:today"
	KeyYesterday = "events:yesterday"

	upcomingPrefix = "events:upcoming:"
)

// KeyUpcoming returns the cache key for a subscriber's upcoming window.
func KeyUpcoming(subscriber string) string {
	return upcomingPrefix + subscriber
}

// KeyTicker returns the cache key for a per-ticker timeline query.
func KeyTicker(ticker string) string {
	return "events:ticker:" + ticker
}

// KeyMonth returns the cache key for a macro month query.
func KeyMonth(month time.Time) string {
	return "events:month:" + month.UTC().Format("2006-01")
}

// KeyDailySummary returns the cache key for a daily summary.
func KeyDailySummary(day time.Time, subscriber string) string {
	return "summary:" + day.UTC().Format("2006-01-02") + ":" + subscriber
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Cache is an in-memory TTL cache for query results. It is process-local:
// the service runs as a single instance and the store it fronts is embedded,
// so a shared cache tier would only add a network hop.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	logger  arbor.ILogger
	now     func() time.Time

	hits   uint64
	misses uint64
}

// NewCache creates an empty query cache.
func NewCache(logger arbor.ILogger) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the cached value for a key if present and unexpired.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().After(e.expiresAt) {
		c.mu.Lock()
		c.misses++
		if ok {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return e.value, true
}

// Set stores a value under a key for the given TTL. Non-positive TTLs are
// not cached at all.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	c.entries[key] = entry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	c.mu.Unlock()
}

// Invalidate drops the given keys.
func (c *Cache) Invalidate(keys ...string) {
	c.mu.Lock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	c.mu.Unlock()
}

// InvalidatePrefix drops every key sharing a prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// Flush drops everything.
func (c *Cache) Flush() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Stats returns hit/miss counters and the current entry count.
func (c *Cache) Stats() (hits, misses uint64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.entries)
}

// Bind subscribes the cache to write-path notifications on the bus. Every
// upserted event drops the rolling windows plus the ticker, month, and
// daily-summary keys it could appear under. Invalidation is deliberately
// conservative: dropping a window an event does not actually fall into only
// costs one rebuild.
func (c *Cache) Bind(bus interfaces.EventService) error {
	return bus.Subscribe(interfaces.EventEventsUpserted, func(ctx context.Context, event interfaces.Event) error {
		changed, ok := event.Payload.([]*models.Event)
		if !ok {
			c.logger.Warn().Msg("Unexpected events-upserted payload, flushing query cache")
			c.Flush()
			return nil
		}
		c.InvalidateFor(changed)
		return nil
	})
}

// InvalidateFor drops every cached window that could contain one of the
// given events.
func (c *Cache) InvalidateFor(changed []*models.Event) {
	if len(changed) == 0 {
		return
	}

	c.InvalidatePrefix(upcomingPrefix)

	keys := []string{KeyToday, KeyYesterday}
	for _, event := range changed {
		if event.Ticker != "" {
			keys = append(keys, KeyTicker(event.Ticker))
		}
		if event.Type == models.EventTypeMacro {
			keys = append(keys, KeyMonth(event.EventDate))
		}
	}
	c.Invalidate(keys...)

	// Daily summaries are keyed per subscriber, so the affected days are
	// cleared by prefix.
	seen := make(map[string]bool)
	for _, event := range changed {
		day := event.EventDate.UTC().Format("2006-01-02")
		if !seen[day] {
			seen[day] = true
			c.InvalidatePrefix("summary:" + day)
		}
	}

	c.logger.Debug().
		Int("changed_events", len(changed)).
		Msg("Query cache invalidated for upserted events")
}
