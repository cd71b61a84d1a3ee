package enrich

import (
	"sync"
	"time"

	"github.com/paperscope/paperscope/pkg/models"
)

// paperCache is a process-wide enrichment cache. The same paper shows
// up across sessions and search rounds; lookups and PDF extraction are
// expensive enough to keep for a day.
type paperCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]paperEntry
}

type paperEntry struct {
	paper   *models.Paper
	expires time.Time
}

func newPaperCache(ttl time.Duration) *paperCache {
	return &paperCache{ttl: ttl, entries: make(map[string]paperEntry)}
}

func (c *paperCache) get(id string) (*models.Paper, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, id)
		return nil, false
	}
	clone := *entry.paper
	return &clone, true
}

func (c *paperCache) put(paper *models.Paper) {
	clone := *paper
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[paper.ID] = paperEntry{paper: &clone, expires: time.Now().Add(c.ttl)}
}
