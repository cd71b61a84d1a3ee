package crossref

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscope/paperscope/pkg/source"
)

const workPayload = `{
  "message": {
    "DOI": "10.1038/s41586-021-03819-2",
    "title": ["Highly accurate protein structure prediction with AlphaFold"],
    "URL": "https://doi.org/10.1038/s41586-021-03819-2",
    "volume": "596",
    "issue": "7873",
    "page": "583-589",
    "author": [
      {"given": "John", "family": "Jumper"},
      {"given": "Richard", "family": "Evans"}
    ],
    "container-title": ["Nature"],
    "publisher": "Springer",
    "issued": {"date-parts": [[2021, 7]]},
    "is-referenced-by-count": 21000
  }
}`

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.Client(), "")
	c.baseURL = srv.URL
	return c
}

func TestLookupResolvesDOI(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "10.1038")
		_, _ = w.Write([]byte(workPayload))
	})

	p, err := c.Lookup(context.Background(), "https://doi.org/10.1038/s41586-021-03819-2")
	require.NoError(t, err)
	assert.Equal(t, "10.1038/s41586-021-03819-2", p.DOI)
	assert.Equal(t, "Highly accurate protein structure prediction with AlphaFold", p.Title)
	assert.Equal(t, 2021, p.Year)
	assert.Equal(t, "Nature", p.Journal)
	assert.Equal(t, "583-589", p.Pages)
	assert.Equal(t, 21000, p.CitationCount)
	require.Len(t, p.Authors, 2)
	assert.Equal(t, "John Jumper", p.Authors[0].Name)
}

func TestLookupUnregisteredDOI(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	_, err := c.Lookup(context.Background(), "10.9999/none")
	assert.ErrorIs(t, err, source.ErrPaperNotFound)
}

func TestLookupEmptyDOI(t *testing.T) {
	c := New(nil, "")
	_, err := c.Lookup(context.Background(), "")
	assert.ErrorIs(t, err, source.ErrPaperNotFound)
}

func TestFindByBibliographic(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AlphaFold Jumper", r.URL.Query().Get("query.bibliographic"))
		_, _ = w.Write([]byte(`{"message":{"items":[` + workPayloadInner + `]}}`))
	})

	p, err := c.FindByBibliographic(context.Background(), "AlphaFold Jumper")
	require.NoError(t, err)
	assert.Equal(t, "10.1038/s41586-021-03819-2", p.DOI)
}

func TestFindByBibliographicNoMatch(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"items":[]}}`))
	})
	_, err := c.FindByBibliographic(context.Background(), "nonsense query")
	assert.ErrorIs(t, err, source.ErrPaperNotFound)
}

const workPayloadInner = `{
  "DOI": "10.1038/s41586-021-03819-2",
  "title": ["Highly accurate protein structure prediction with AlphaFold"],
  "issued": {"date-parts": [[2021, 7]]}
}`
