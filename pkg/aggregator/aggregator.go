// Package aggregator coordinates searches across all registered
// literature sources: parallel fan-out with per-source retry and
// timeout, a fallback chain for degraded runs, cross-source
// deduplication with field-level merge, and per-source health tracking.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/models"
	"github.com/paperscope/paperscope/pkg/source"
)

// fallbackOrder is the fixed preference order for the fallback chain.
// OpenAlex first as the broadest keyless source.
var fallbackOrder = []config.SourceName{
	config.SourceOpenAlex,
	config.SourceSemanticScholar,
	config.SourceArxiv,
	config.SourceCORE,
	config.SourcePubMed,
}

// SourceFailure records why one source failed a search.
type SourceFailure struct {
	Source  config.SourceName `json:"source"`
	Message string            `json:"message"`
	Retries int               `json:"retries"`
}

// Metadata describes how an aggregated result was produced.
type Metadata struct {
	SuccessfulSources []config.SourceName `json:"successful_sources"`
	FailedSources     []SourceFailure     `json:"failed_sources,omitempty"`
	FromCache         bool                `json:"from_cache"`
	Domain            Domain              `json:"domain,omitempty"`
	Duration          time.Duration       `json:"duration"`
}

// AggregatedSearchResult is the outcome of one multi-source search.
type AggregatedSearchResult struct {
	Papers       []*models.Paper           `json:"papers"`
	TotalHits    int                       `json:"total_hits"`
	PerSource    map[config.SourceName]int `json:"per_source"`
	DedupedCount int                       `json:"deduped_count"`
	Metadata     Metadata                  `json:"metadata"`
}

// AggregationError reports that no source produced results, enumerating
// the per-source reasons.
type AggregationError struct {
	Failures []SourceFailure
}

func (e *AggregationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Source, f.Message))
	}
	return fmt.Sprintf("all sources failed: %v", parts)
}

// Aggregator fans searches out across the registry.
type Aggregator struct {
	registry *source.Registry
	cfg      config.AggregatorConfig
	cache    *queryCache
	health   *healthTracker
}

// New creates an Aggregator over the registered sources.
func New(registry *source.Registry, cfg config.AggregatorConfig) *Aggregator {
	return &Aggregator{
		registry: registry,
		cfg:      cfg,
		cache:    newQueryCache(cfg.CacheTTL),
		health:   newHealthTracker(registry.Names()),
	}
}

// Search runs one aggregated search. sessionID scopes the cache and may
// be empty. Partial source failure is normal; the error return is
// reserved for total failure.
func (a *Aggregator) Search(ctx context.Context, opts source.SearchOptions, sessionID string) (*AggregatedSearchResult, error) {
	start := time.Now()

	key := cacheKey(sessionID, opts)
	if cached, ok := a.cache.get(key); ok {
		out := *cached
		out.Metadata.FromCache = true
		slog.Debug("Aggregated search served from cache", "query", opts.Query, "session_id", sessionID)
		return &out, nil
	}

	selected, domain := a.selectSources(opts.Query)
	successes, failures := a.fanOut(ctx, selected, opts)

	// Degraded run: walk the fallback chain over sources we have not
	// tried yet until enough succeed or the chain is exhausted.
	if len(successes) < a.cfg.MinSuccessfulSources && a.cfg.EnableFallback {
		tried := make(map[config.SourceName]bool, len(selected))
		for _, name := range selected {
			tried[name] = true
		}
		for _, name := range fallbackOrder {
			if len(successes) >= a.cfg.MinSuccessfulSources {
				break
			}
			if tried[name] {
				continue
			}
			adapter, ok := a.registry.Get(name)
			if !ok {
				continue
			}
			tried[name] = true
			slog.Info("Trying fallback source", "source", name, "query", opts.Query)
			res, err := a.searchWithRetry(ctx, adapter, opts)
			if err != nil {
				failures = append(failures, SourceFailure{Source: name, Message: err.Error(), Retries: a.cfg.MaxRetries})
				continue
			}
			successes = append(successes, res)
		}
	}

	if len(successes) == 0 {
		return nil, &AggregationError{Failures: failures}
	}

	result := a.aggregate(successes, failures, opts)
	result.Metadata.Domain = domain
	result.Metadata.Duration = time.Since(start)
	a.cache.put(key, result)

	slog.Info("Aggregated search complete",
		"query", opts.Query,
		"sources_ok", len(result.Metadata.SuccessfulSources),
		"sources_failed", len(failures),
		"papers", len(result.Papers),
		"deduped", result.DedupedCount,
		"duration", result.Metadata.Duration)
	return result, nil
}

// selectSources resolves which sources to query for this search.
func (a *Aggregator) selectSources(query string) ([]config.SourceName, Domain) {
	available := make(map[config.SourceName]bool)
	for _, name := range a.registry.Names() {
		available[name] = true
	}

	if a.cfg.SmartSourceSelection && query != "" {
		domain := ClassifyDomain(query)
		var selected []config.SourceName
		for _, name := range domainPriority[domain] {
			if available[name] {
				selected = append(selected, name)
			}
		}
		if len(selected) > 0 {
			return selected, domain
		}
	}

	var selected []config.SourceName
	for _, name := range a.cfg.EnabledSources {
		if available[name] {
			selected = append(selected, name)
		}
	}
	if len(selected) == 0 {
		selected = a.registry.Names()
	}
	return selected, DomainGeneral
}

// fanOut launches one task per source and collects the outcomes.
func (a *Aggregator) fanOut(ctx context.Context, names []config.SourceName, opts source.SearchOptions) ([]*source.SearchResult, []SourceFailure) {
	var (
		mu        sync.Mutex
		successes []*source.SearchResult
		failures  []SourceFailure
	)
	var adapters []source.Adapter
	for _, name := range names {
		adapter, ok := a.registry.Get(name)
		if !ok {
			failures = append(failures, SourceFailure{Source: name, Message: "not registered"})
			continue
		}
		adapters = append(adapters, adapter)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, adapter := range adapters {
		g.Go(func() error {
			res, err := a.searchWithRetry(ctx, adapter, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, SourceFailure{Source: adapter.Name(), Message: err.Error(), Retries: a.cfg.MaxRetries})
				return nil
			}
			successes = append(successes, res)
			return nil
		})
	}
	_ = g.Wait()

	// Stable order keeps results reproducible across runs.
	sort.Slice(successes, func(i, j int) bool { return successes[i].Source < successes[j].Source })
	sort.Slice(failures, func(i, j int) bool { return failures[i].Source < failures[j].Source })
	return successes, failures
}

// searchWithRetry runs one source search under the attempt timeout,
// retrying transient failures with exponential backoff.
func (a *Aggregator) searchWithRetry(ctx context.Context, adapter source.Adapter, opts source.SearchOptions) (*source.SearchResult, error) {
	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := a.cfg.RetryDelay * (1 << (attempt - 1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		res, err := a.breakerSearch(ctx, adapter, opts)
		if err == nil {
			return res, nil
		}
		lastErr = err
		a.health.recordFailure(adapter.Name(), err, attempt)
		slog.Warn("Source search attempt failed",
			"source", adapter.Name(), "attempt", attempt, "error", err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !source.IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

// breakerSearch races the adapter call against the per-attempt timeout
// behind the source's circuit breaker.
func (a *Aggregator) breakerSearch(ctx context.Context, adapter source.Adapter, opts source.SearchOptions) (*source.SearchResult, error) {
	timeout := a.cfg.SearchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := a.health.breaker(adapter.Name()).Execute(func() (any, error) {
		return adapter.Search(ctx, opts)
	})
	if err != nil {
		return nil, err
	}
	return out.(*source.SearchResult), nil
}

// aggregate merges per-source results into the deduplicated, filtered,
// sorted final set.
func (a *Aggregator) aggregate(successes []*source.SearchResult, failures []SourceFailure, opts source.SearchOptions) *AggregatedSearchResult {
	var union []*models.Paper
	perSource := make(map[config.SourceName]int, len(successes))
	totalHits := 0
	successNames := make([]config.SourceName, 0, len(successes))
	for _, res := range successes {
		union = append(union, res.Papers...)
		perSource[res.Source] = len(res.Papers)
		totalHits += res.TotalHits
		successNames = append(successNames, res.Source)
	}

	papers, suppressed := Dedupe(union)
	papers = a.filterPapers(papers)
	a.sortPapers(papers, opts.SortBy)

	return &AggregatedSearchResult{
		Papers:       papers,
		TotalHits:    totalHits,
		PerSource:    perSource,
		DedupedCount: suppressed,
		Metadata: Metadata{
			SuccessfulSources: successNames,
			FailedSources:     failures,
		},
	}
}

func (a *Aggregator) filterPapers(papers []*models.Paper) []*models.Paper {
	if a.cfg.MinCitations <= 0 {
		return papers
	}
	out := papers[:0]
	for _, p := range papers {
		if p.CitationCount >= a.cfg.MinCitations {
			out = append(out, p)
		}
	}
	return out
}

// citationWindow is the count band within which availability and open
// access break ties instead of raw citation counts.
const citationWindow = 5

func (a *Aggregator) sortPapers(papers []*models.Paper, order config.SortOrder) {
	secondary := func(x, y *models.Paper) (bool, bool) {
		if x.Availability != y.Availability {
			return true, x.Availability > y.Availability
		}
		if a.cfg.PreferOpenAccess && x.OpenAccess != y.OpenAccess {
			return true, x.OpenAccess
		}
		return false, false
	}
	switch order {
	case config.SortByCitations:
		sort.SliceStable(papers, func(i, j int) bool {
			diff := papers[i].CitationCount - papers[j].CitationCount
			if diff > citationWindow || diff < -citationWindow {
				return diff > 0
			}
			if decided, less := secondary(papers[i], papers[j]); decided {
				return less
			}
			return false
		})
	case config.SortByDate:
		sort.SliceStable(papers, func(i, j int) bool {
			if papers[i].Year != papers[j].Year {
				return papers[i].Year > papers[j].Year
			}
			decided, less := secondary(papers[i], papers[j])
			return decided && less
		})
	default: // relevance keeps per-source order, secondary criteria only
		sort.SliceStable(papers, func(i, j int) bool {
			decided, less := secondary(papers[i], papers[j])
			return decided && less
		})
	}
}

// GetPaper routes a paper lookup through the registry.
func (a *Aggregator) GetPaper(ctx context.Context, id string) (*models.Paper, error) {
	return a.registry.GetPaper(ctx, id)
}

// HealthStatus reports per-source health for the health endpoint.
func (a *Aggregator) HealthStatus(ctx context.Context) *HealthStatus {
	return a.health.status(a.cfg.MinSuccessfulSources)
}
