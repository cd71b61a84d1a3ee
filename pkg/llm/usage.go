package llm

import "sync"

// UsageTracker accumulates token usage across all LLM calls in a session.
type UsageTracker struct {
	mu    sync.Mutex
	total TokenUsage
	calls int
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{}
}

// Add folds one call's usage into the running total.
func (t *UsageTracker) Add(usage TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total.Add(usage)
	t.calls++
}

// Total returns the accumulated usage and the number of calls.
func (t *UsageTracker) Total() (TokenUsage, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total, t.calls
}
