package aggregator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/paperscope/paperscope/pkg/config"
)

// errorHistoryLimit bounds the retained failure records per tracker.
const errorHistoryLimit = 100

// ErrorRecord is one retained source failure.
type ErrorRecord struct {
	Source    config.SourceName `json:"source"`
	Message   string            `json:"message"`
	Attempt   int               `json:"attempt"`
	Timestamp time.Time         `json:"timestamp"`
}

// SourceHealth is the health view of one source.
type SourceHealth struct {
	Available    bool   `json:"available"`
	RecentErrors int    `json:"recent_errors"`
	LastError    string `json:"last_error,omitempty"`
}

// HealthStatus is the aggregate health view served by the health
// endpoint.
type HealthStatus struct {
	Sources        map[config.SourceName]SourceHealth `json:"sources"`
	OverallHealthy bool                               `json:"overall_healthy"`
}

// healthTracker keeps a circuit breaker and bounded error history per
// source.
type healthTracker struct {
	mu       sync.Mutex
	breakers map[config.SourceName]*gobreaker.CircuitBreaker
	history  []ErrorRecord
}

func newHealthTracker(names []config.SourceName) *healthTracker {
	t := &healthTracker{breakers: make(map[config.SourceName]*gobreaker.CircuitBreaker, len(names))}
	for _, name := range names {
		t.breakers[name] = newBreaker(name)
	}
	return t
}

func newBreaker(name config.SourceName) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(name),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Source circuit state changed", "source", name, "from", from.String(), "to", to.String())
		},
	})
}

func (t *healthTracker) breaker(name config.SourceName) *gobreaker.CircuitBreaker {
	t.mu.Lock()
	defer t.mu.Unlock()
	cb, ok := t.breakers[name]
	if !ok {
		cb = newBreaker(name)
		t.breakers[name] = cb
	}
	return cb
}

func (t *healthTracker) recordFailure(name config.SourceName, err error, attempt int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, ErrorRecord{
		Source:    name,
		Message:   err.Error(),
		Attempt:   attempt,
		Timestamp: time.Now(),
	})
	if len(t.history) > errorHistoryLimit {
		t.history = t.history[len(t.history)-errorHistoryLimit:]
	}
}

// status builds the health view. A source counts as available while its
// circuit is not open.
func (t *healthTracker) status(minSuccessful int) *HealthStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-time.Hour)
	recent := make(map[config.SourceName]int)
	lastErr := make(map[config.SourceName]string)
	for _, rec := range t.history {
		if rec.Timestamp.After(cutoff) {
			recent[rec.Source]++
		}
		lastErr[rec.Source] = rec.Message
	}

	status := &HealthStatus{Sources: make(map[config.SourceName]SourceHealth, len(t.breakers))}
	availableCount := 0
	for name, cb := range t.breakers {
		available := cb.State() != gobreaker.StateOpen
		if available {
			availableCount++
		}
		status.Sources[name] = SourceHealth{
			Available:    available,
			RecentErrors: recent[name],
			LastError:    lastErr[name],
		}
	}
	status.OverallHealthy = availableCount >= minSuccessful
	return status
}
