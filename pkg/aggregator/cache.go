package aggregator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/paperscope/paperscope/pkg/models"
	"github.com/paperscope/paperscope/pkg/source"
)

// queryCache memoizes aggregated results per session+query+filters for
// a TTL. Repeat queries inside one session are common (gap refinements
// often regenerate the same strings) and the vendor APIs are slow.
type queryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	result  *AggregatedSearchResult
	expires time.Time
}

func newQueryCache(ttl time.Duration) *queryCache {
	return &queryCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func cacheKey(sessionID string, opts source.SearchOptions) string {
	return strings.Join([]string{
		sessionID,
		models.NormalizeTitle(opts.Query),
		fmt.Sprintf("%d|%d|%d|%d|%t|%s",
			opts.Limit, opts.Offset, opts.YearFrom, opts.YearTo, opts.OpenAccess, opts.SortBy),
	}, "\x00")
}

func (c *queryCache) get(key string) (*AggregatedSearchResult, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.result, true
}

func (c *queryCache) put(key string, result *AggregatedSearchResult) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{result: result, expires: time.Now().Add(c.ttl)}
}
