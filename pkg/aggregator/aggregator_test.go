package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/models"
	"github.com/paperscope/paperscope/pkg/source"
)

func testConfig() config.AggregatorConfig {
	return config.AggregatorConfig{
		EnabledSources:       []config.SourceName{config.SourceSemanticScholar, config.SourceArxiv},
		MaxRetries:           2,
		RetryDelay:           time.Millisecond,
		SearchTimeout:        time.Second,
		MinSuccessfulSources: 1,
		EnableFallback:       true,
		CacheTTL:             time.Minute,
	}
}

func paper(id, title, doi string, citations int) *models.Paper {
	return &models.Paper{ID: id, Title: title, DOI: doi, CitationCount: citations, Abstract: "a"}
}

func newTestRegistry(t *testing.T, adapters ...source.Adapter) *source.Registry {
	t.Helper()
	reg := source.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, reg.Register(a))
	}
	return reg
}

func TestSearchAggregatesAcrossSources(t *testing.T) {
	s2 := source.NewMockAdapter(config.SourceSemanticScholar, "s2-",
		paper("s2-1", "Attention is all you need", "10.1/a", 100))
	ax := source.NewMockAdapter(config.SourceArxiv, "arxiv-",
		paper("arxiv-1", "Sparse transformers", "", 10))
	agg := New(newTestRegistry(t, s2, ax), testConfig())

	res, err := agg.Search(context.Background(), source.SearchOptions{Query: "transformers"}, "sess-1")
	require.NoError(t, err)
	assert.Len(t, res.Papers, 2)
	assert.Equal(t, 2, res.TotalHits)
	assert.Equal(t, 1, res.PerSource[config.SourceSemanticScholar])
	assert.Equal(t, 1, res.PerSource[config.SourceArxiv])
	assert.Empty(t, res.Metadata.FailedSources)
	assert.False(t, res.Metadata.FromCache)
}

func TestSearchPartialFailureIsNotFatal(t *testing.T) {
	s2 := source.NewMockAdapter(config.SourceSemanticScholar, "s2-",
		paper("s2-1", "Result", "", 5))
	ax := source.NewMockAdapter(config.SourceArxiv, "arxiv-")
	ax.SearchErrs = []error{
		&source.TransportError{Source: "arxiv", StatusCode: 503},
		&source.TransportError{Source: "arxiv", StatusCode: 503},
		&source.TransportError{Source: "arxiv", StatusCode: 503},
	}
	cfg := testConfig()
	cfg.EnableFallback = false
	agg := New(newTestRegistry(t, s2, ax), cfg)

	res, err := agg.Search(context.Background(), source.SearchOptions{Query: "q"}, "")
	require.NoError(t, err)
	assert.Len(t, res.Papers, 1)
	require.Len(t, res.Metadata.FailedSources, 1)
	assert.Equal(t, config.SourceArxiv, res.Metadata.FailedSources[0].Source)
	// Exhausted the retry budget before giving up.
	assert.Equal(t, 3, ax.SearchCalls())
}

func TestSearchNonRetryableStopsImmediately(t *testing.T) {
	s2 := source.NewMockAdapter(config.SourceSemanticScholar, "s2-")
	s2.SearchErrs = []error{&source.TransportError{Source: "s2", StatusCode: 401, Message: "unauthorized"}}
	ok := source.NewMockAdapter(config.SourceArxiv, "arxiv-", paper("arxiv-1", "t", "", 0))
	cfg := testConfig()
	cfg.EnableFallback = false
	agg := New(newTestRegistry(t, s2, ok), cfg)

	res, err := agg.Search(context.Background(), source.SearchOptions{Query: "q"}, "")
	require.NoError(t, err)
	assert.Len(t, res.Papers, 1)
	assert.Equal(t, 1, s2.SearchCalls())
}

func TestSearchFallbackChainRecoversDegradedRun(t *testing.T) {
	s2 := source.NewMockAdapter(config.SourceSemanticScholar, "s2-")
	s2.SearchErrs = []error{
		&source.TransportError{Source: "s2", StatusCode: 503},
		&source.TransportError{Source: "s2", StatusCode: 503},
		&source.TransportError{Source: "s2", StatusCode: 503},
	}
	oa := source.NewMockAdapter(config.SourceOpenAlex, "oa-",
		paper("oa-1", "Recovered", "", 3))

	cfg := testConfig()
	cfg.EnabledSources = []config.SourceName{config.SourceSemanticScholar}
	agg := New(newTestRegistry(t, s2, oa), cfg)

	res, err := agg.Search(context.Background(), source.SearchOptions{Query: "q"}, "")
	require.NoError(t, err)
	require.Len(t, res.Papers, 1)
	assert.Equal(t, "Recovered", res.Papers[0].Title)
	assert.Equal(t, []config.SourceName{config.SourceOpenAlex}, res.Metadata.SuccessfulSources)
	require.Len(t, res.Metadata.FailedSources, 1)
	assert.Equal(t, config.SourceSemanticScholar, res.Metadata.FailedSources[0].Source)
}

func TestSearchTotalFailure(t *testing.T) {
	s2 := source.NewMockAdapter(config.SourceSemanticScholar, "s2-")
	s2.SearchErrs = []error{
		&source.TransportError{Source: "s2", StatusCode: 400, Message: "bad query"},
	}
	cfg := testConfig()
	cfg.EnabledSources = []config.SourceName{config.SourceSemanticScholar}
	cfg.EnableFallback = false
	agg := New(newTestRegistry(t, s2), cfg)

	_, err := agg.Search(context.Background(), source.SearchOptions{Query: "q"}, "")
	require.Error(t, err)
	var aggErr *AggregationError
	require.ErrorAs(t, err, &aggErr)
	require.Len(t, aggErr.Failures, 1)
	assert.Contains(t, aggErr.Error(), "bad query")
}

func TestSearchServesFromCache(t *testing.T) {
	s2 := source.NewMockAdapter(config.SourceSemanticScholar, "s2-",
		paper("s2-1", "Cached", "", 0))
	cfg := testConfig()
	cfg.EnabledSources = []config.SourceName{config.SourceSemanticScholar}
	agg := New(newTestRegistry(t, s2), cfg)

	opts := source.SearchOptions{Query: "same query"}
	first, err := agg.Search(context.Background(), opts, "sess")
	require.NoError(t, err)
	assert.False(t, first.Metadata.FromCache)

	second, err := agg.Search(context.Background(), opts, "sess")
	require.NoError(t, err)
	assert.True(t, second.Metadata.FromCache)
	assert.Equal(t, 1, s2.SearchCalls())

	// A different session misses.
	_, err = agg.Search(context.Background(), opts, "other")
	require.NoError(t, err)
	assert.Equal(t, 2, s2.SearchCalls())
}

func TestSearchSmartSourceSelection(t *testing.T) {
	s2 := source.NewMockAdapter(config.SourceSemanticScholar, "s2-", paper("s2-1", "a", "", 0))
	ax := source.NewMockAdapter(config.SourceArxiv, "arxiv-", paper("arxiv-1", "b", "", 0))
	oa := source.NewMockAdapter(config.SourceOpenAlex, "oa-", paper("oa-1", "c", "", 0))
	pm := source.NewMockAdapter(config.SourcePubMed, "pubmed-", paper("pubmed-1", "d", "", 0))

	cfg := testConfig()
	cfg.SmartSourceSelection = true
	agg := New(newTestRegistry(t, s2, ax, oa, pm), cfg)

	res, err := agg.Search(context.Background(),
		source.SearchOptions{Query: "CAR-T cell therapy outcomes in cancer patients"}, "")
	require.NoError(t, err)
	assert.Equal(t, DomainBiomedical, res.Metadata.Domain)
	assert.Equal(t, 1, pm.SearchCalls())
	assert.Equal(t, 0, ax.SearchCalls())
}

func TestFilterAndSortByCitations(t *testing.T) {
	p1 := paper("s2-1", "low", "", 1)
	p2 := paper("s2-2", "high", "", 200)
	p3 := paper("s2-3", "near high open", "", 198)
	p3.OpenAccess = true
	p3.PDFURL = "https://x/pdf"
	p3.RecomputeAvailability()
	s2 := source.NewMockAdapter(config.SourceSemanticScholar, "s2-", p1, p2, p3)

	cfg := testConfig()
	cfg.EnabledSources = []config.SourceName{config.SourceSemanticScholar}
	cfg.MinCitations = 2
	cfg.PreferOpenAccess = true
	agg := New(newTestRegistry(t, s2), cfg)

	res, err := agg.Search(context.Background(),
		source.SearchOptions{Query: "q", SortBy: config.SortByCitations}, "")
	require.NoError(t, err)
	require.Len(t, res.Papers, 2)
	// Counts within the tie window, so availability decides.
	assert.Equal(t, "near high open", res.Papers[0].Title)
	assert.Equal(t, "high", res.Papers[1].Title)
}

func TestHealthStatus(t *testing.T) {
	s2 := source.NewMockAdapter(config.SourceSemanticScholar, "s2-")
	s2.SearchErrs = []error{
		&source.TransportError{Source: "s2", StatusCode: 400, Message: "boom"},
	}
	cfg := testConfig()
	cfg.EnabledSources = []config.SourceName{config.SourceSemanticScholar}
	cfg.EnableFallback = false
	agg := New(newTestRegistry(t, s2), cfg)

	_, _ = agg.Search(context.Background(), source.SearchOptions{Query: "q"}, "")

	status := agg.HealthStatus(context.Background())
	require.Contains(t, status.Sources, config.SourceSemanticScholar)
	sh := status.Sources[config.SourceSemanticScholar]
	assert.True(t, sh.Available)
	assert.Equal(t, 1, sh.RecentErrors)
	assert.Contains(t, sh.LastError, "boom")
	assert.True(t, status.OverallHealthy)
}
