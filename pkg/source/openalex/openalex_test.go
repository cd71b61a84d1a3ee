package openalex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/models"
	"github.com/paperscope/paperscope/pkg/source"
)

const worksPayload = `{
  "meta": {"count": 1},
  "results": [{
    "id": "https://openalex.org/W2741809807",
    "title": "Transformer architectures for protein folding",
    "doi": "https://doi.org/10.1234/tf.2021",
    "publication_year": 2021,
    "cited_by_count": 412,
    "language": "en",
    "abstract_inverted_index": {"Attention": [0], "improves": [1], "folding": [2]},
    "open_access": {"is_oa": true, "oa_url": "https://example.org/oa.pdf"},
    "primary_location": {
      "landing_page_url": "https://example.org/paper",
      "pdf_url": "https://example.org/paper.pdf",
      "source": {"display_name": "Nature Methods"}
    },
    "biblio": {"volume": "18", "issue": "4", "first_page": "100", "last_page": "110"},
    "authorships": [{
      "author": {"display_name": "Ada Lovelace", "orcid": "https://orcid.org/0000-0001-2345-6789"},
      "institutions": [{"display_name": "Analytical Engine Institute"}]
    }],
    "concepts": [
      {"display_name": "Machine learning", "score": 0.8},
      {"display_name": "Chemistry", "score": 0.1}
    ]
  }]
}`

func testAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a := New(srv.Client(), "")
	a.baseURL = srv.URL
	return a
}

func TestSearchMapsWorkToPaper(t *testing.T) {
	var gotQuery string
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(worksPayload))
	})

	res, err := a.Search(context.Background(), source.SearchOptions{Query: "protein folding", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "protein folding", gotQuery)
	assert.Equal(t, 1, res.TotalHits)
	require.Len(t, res.Papers, 1)

	p := res.Papers[0]
	assert.Equal(t, "oa-W2741809807", p.ID)
	assert.Equal(t, "Transformer architectures for protein folding", p.Title)
	assert.Equal(t, "Attention improves folding", p.Abstract)
	assert.Equal(t, "10.1234/tf.2021", p.DOI)
	assert.Equal(t, 2021, p.Year)
	assert.Equal(t, 412, p.CitationCount)
	assert.True(t, p.OpenAccess)
	assert.Equal(t, "https://example.org/paper.pdf", p.PDFURL)
	assert.Equal(t, "Nature Methods", p.Journal)
	assert.Equal(t, "100-110", p.Pages)
	assert.Equal(t, []string{"Machine learning"}, p.Subjects)
	require.Len(t, p.Authors, 1)
	assert.Equal(t, "Ada Lovelace", p.Authors[0].Name)
	assert.Equal(t, "0000-0001-2345-6789", p.Authors[0].ORCID)
	assert.Equal(t, []string{"Analytical Engine Institute"}, p.Authors[0].Affiliations)
	assert.True(t, p.HasOrigin(string(config.SourceOpenAlex)))
	assert.Equal(t, models.WithPDFLink, p.Availability)
}

func TestSearchBuildsFilters(t *testing.T) {
	var gotFilter, gotSort string
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("filter")
		gotSort = r.URL.Query().Get("sort")
		_, _ = w.Write([]byte(`{"meta":{"count":0},"results":[]}`))
	})

	_, err := a.Search(context.Background(), source.SearchOptions{
		Query:      "q",
		YearFrom:   2019,
		YearTo:     2023,
		OpenAccess: true,
		SortBy:     config.SortByCitations,
	})
	require.NoError(t, err)
	assert.Equal(t, "from_publication_date:2019-01-01,to_publication_date:2023-12-31,is_oa:true", gotFilter)
	assert.Equal(t, "cited_by_count:desc", gotSort)
}

func TestSearchSurfacesHTTPErrorsAsTransport(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := a.Search(context.Background(), source.SearchOptions{Query: "q"})
	require.Error(t, err)
	assert.True(t, source.IsRetryable(err))
}

func TestGetPaperNotFound(t *testing.T) {
	a := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	_, err := a.GetPaper(context.Background(), "oa-Wmissing")
	assert.ErrorIs(t, err, source.ErrPaperNotFound)

	_, err = a.GetPaper(context.Background(), "arxiv-123")
	assert.ErrorIs(t, err, source.ErrPaperNotFound)
}

func TestReconstructAbstract(t *testing.T) {
	assert.Equal(t, "", reconstructAbstract(nil))
	assert.Equal(t, "a b a", reconstructAbstract(map[string][]int{"a": {0, 2}, "b": {1}}))
}
