package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/models"
	"github.com/paperscope/paperscope/pkg/source"
)

func testEnricher(t *testing.T, adapters ...source.Adapter) *Enricher {
	t.Helper()
	reg := source.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, reg.Register(a))
	}
	return New(reg, nil, config.EnricherConfig{Concurrency: 2})
}

func TestEnrichAlreadyAtTarget(t *testing.T) {
	e := testEnricher(t)
	p := &models.Paper{ID: "oa-1", Title: "t", Abstract: "present"}

	res, err := e.Enrich(context.Background(), p, models.WithAbstract)
	require.NoError(t, err)
	assert.False(t, res.Enriched)
	assert.Equal(t, models.WithAbstract, res.NewLevel)
	assert.Empty(t, res.Sources)
}

func TestEnrichViaSemanticScholarAbstract(t *testing.T) {
	s2 := source.NewMockAdapter(config.SourceSemanticScholar, "s2-",
		&models.Paper{ID: "s2-9", Title: "Graph neural networks", DOI: "10.1/gnn",
			Abstract: "A detailed abstract retrieved from the secondary source."})
	e := testEnricher(t, s2)

	p := &models.Paper{ID: "oa-1", Title: "Graph neural networks", DOI: "10.1/gnn"}
	res, err := e.Enrich(context.Background(), p, models.WithAbstract)
	require.NoError(t, err)
	assert.True(t, res.Enriched)
	assert.Equal(t, models.MetadataOnly, res.PreviousLevel)
	assert.Equal(t, models.WithAbstract, res.NewLevel)
	assert.Contains(t, res.Sources, "semantic-scholar")
	assert.Equal(t, "oa-1", p.ID)
	assert.NotEmpty(t, p.Abstract)
}

func TestEnrichViaArxivPDFLink(t *testing.T) {
	ax := source.NewMockAdapter(config.SourceArxiv, "arxiv-",
		&models.Paper{ID: "arxiv-2301.00001", Title: "Scaling laws",
			Abstract: "An abstract long enough to not need replacement from other sources, covering scaling behavior in depth and at length for the test.",
			PDFURL:   "https://arxiv.org/pdf/2301.00001"})
	e := testEnricher(t, ax)

	p := &models.Paper{ID: "arxiv-2301.00001", Title: "Scaling laws", Abstract: "short"}
	res, err := e.Enrich(context.Background(), p, models.WithPDFLink)
	require.NoError(t, err)
	assert.True(t, res.Enriched)
	assert.Equal(t, models.WithPDFLink, res.NewLevel)
	assert.Contains(t, res.Sources, "arxiv")
}

func TestEnrichLookupFailureIsRecordedNotFatal(t *testing.T) {
	s2 := source.NewMockAdapter(config.SourceSemanticScholar, "s2-")
	s2.SearchErrs = []error{&source.TransportError{Source: "s2", StatusCode: 503, Message: "down"}}
	e := testEnricher(t, s2)

	p := &models.Paper{ID: "oa-1", Title: "Unfindable paper"}
	res, err := e.Enrich(context.Background(), p, models.WithAbstract)
	require.NoError(t, err)
	assert.False(t, res.Enriched)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "semantic-scholar")
}

func TestEnrichServesFromCache(t *testing.T) {
	s2 := source.NewMockAdapter(config.SourceSemanticScholar, "s2-",
		&models.Paper{ID: "s2-9", Title: "Cached paper", DOI: "10.1/c",
			Abstract: "A detailed abstract retrieved once and then cached for later sessions."})
	e := testEnricher(t, s2)

	first := &models.Paper{ID: "oa-1", Title: "Cached paper", DOI: "10.1/c"}
	_, err := e.Enrich(context.Background(), first, models.WithAbstract)
	require.NoError(t, err)
	calls := s2.SearchCalls()

	second := &models.Paper{ID: "oa-1", Title: "Cached paper", DOI: "10.1/c"}
	res, err := e.Enrich(context.Background(), second, models.WithAbstract)
	require.NoError(t, err)
	assert.Contains(t, res.Sources, "cache")
	assert.NotEmpty(t, second.Abstract)
	assert.Equal(t, calls, s2.SearchCalls())
}

func TestEnrichExtractsSectionsFromFullText(t *testing.T) {
	e := testEnricher(t)
	p := &models.Paper{ID: "oa-1", Title: "t",
		FullText: "Introduction\nWe begin here.\nResults\nIt works.\n"}

	res, err := e.Enrich(context.Background(), p, models.WithFullText)
	require.NoError(t, err)
	assert.Equal(t, models.WithFullText, res.NewLevel)
	require.Len(t, p.Sections, 2)
	assert.Equal(t, models.SectionIntroduction, p.Sections[0].Type)
	assert.Equal(t, models.SectionResults, p.Sections[1].Type)
}

func TestEnrichBatchPreservesOrder(t *testing.T) {
	e := testEnricher(t)
	papers := []*models.Paper{
		{ID: "oa-1", Title: "a", Abstract: "x"},
		{ID: "oa-2", Title: "b", Abstract: "y"},
		{ID: "oa-3", Title: "c", Abstract: "z"},
	}
	results := e.EnrichBatch(context.Background(), papers, models.WithAbstract)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, papers[i].ID, res.Paper.ID)
	}
}

func TestArxivIDResolution(t *testing.T) {
	tests := []struct {
		name  string
		paper models.Paper
		want  string
	}{
		{"by id prefix", models.Paper{ID: "arxiv-2301.00001"}, "arxiv-2301.00001"},
		{"by abs url", models.Paper{ID: "oa-1", URL: "https://arxiv.org/abs/2301.00001"}, "arxiv-2301.00001"},
		{"by pdf url", models.Paper{ID: "oa-1", PDFURL: "https://arxiv.org/pdf/2301.00001.pdf"}, "arxiv-2301.00001"},
		{"not arxiv", models.Paper{ID: "oa-1", URL: "https://nature.com/x"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, arxivID(&tt.paper, "arxiv-"))
		})
	}
}
