// Package crossref implements a lookup client for the Crossref REST
// API. It backs citation validation: resolving a DOI or a bibliographic
// query to the registered metadata so cited papers can be checked
// against the record.
package crossref

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paperscope/paperscope/pkg/models"
	"github.com/paperscope/paperscope/pkg/source"
)

const defaultBaseURL = "https://api.crossref.org"

// Client queries Crossref works.
type Client struct {
	httpClient *http.Client
	throttle   *source.Throttle
	baseURL    string
	mailto     string
}

// New creates a Crossref client. mailto routes requests through the
// polite pool and may be empty.
func New(httpClient *http.Client, mailto string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		throttle:   source.NewThrottle(10, 5),
		baseURL:    defaultBaseURL,
		mailto:     mailto,
	}
}

// Lookup resolves a DOI to its registered metadata. Returns
// source.ErrPaperNotFound for unregistered DOIs.
func (c *Client) Lookup(ctx context.Context, doi string) (*models.Paper, error) {
	doi = models.NormalizeDOI(doi)
	if doi == "" {
		return nil, source.ErrPaperNotFound
	}
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	var payload struct {
		Message workMessage `json:"message"`
	}
	err := c.getJSON(ctx, "/works/"+url.PathEscape(doi), &payload)
	if err != nil {
		var te *source.TransportError
		if errors.As(err, &te) && te.StatusCode == http.StatusNotFound {
			return nil, source.ErrPaperNotFound
		}
		return nil, err
	}
	return payload.Message.toPaper(), nil
}

// FindByBibliographic searches works by free-form citation text (title
// plus authors) and returns the best match, or ErrPaperNotFound when
// Crossref has no candidate.
func (c *Client) FindByBibliographic(ctx context.Context, query string) (*models.Paper, error) {
	if strings.TrimSpace(query) == "" {
		return nil, source.ErrPaperNotFound
	}
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("query.bibliographic", query)
	q.Set("rows", "3")
	if c.mailto != "" {
		q.Set("mailto", c.mailto)
	}
	var payload struct {
		Message struct {
			Items []workMessage `json:"items"`
		} `json:"message"`
	}
	if err := c.getJSON(ctx, "/works?"+q.Encode(), &payload); err != nil {
		return nil, err
	}
	if len(payload.Message.Items) == 0 {
		return nil, source.ErrPaperNotFound
	}
	return payload.Message.Items[0].toPaper(), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &source.TransportError{Source: "crossref", Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &source.TransportError{
			Source:     "crossref",
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &source.TransportError{Source: "crossref", Message: "decoding response: " + err.Error(), Err: err}
	}
	return nil
}

type workMessage struct {
	DOI    string   `json:"DOI"`
	Title  []string `json:"title"`
	URL    string   `json:"URL"`
	Volume string   `json:"volume"`
	Issue  string   `json:"issue"`
	Page   string   `json:"page"`
	Author []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"author"`
	ContainerTitle []string `json:"container-title"`
	Publisher      string   `json:"publisher"`
	Issued         struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
	IsReferencedByCount int `json:"is-referenced-by-count"`
}

func (w *workMessage) toPaper() *models.Paper {
	p := &models.Paper{
		DOI:           models.NormalizeDOI(w.DOI),
		URL:           w.URL,
		Volume:        w.Volume,
		Issue:         w.Issue,
		Pages:         w.Page,
		CitationCount: w.IsReferencedByCount,
	}
	p.ID = "doi-" + p.DOI
	if len(w.Title) > 0 {
		p.Title = w.Title[0]
	}
	if len(w.ContainerTitle) > 0 {
		p.Journal = w.ContainerTitle[0]
	}
	for _, au := range w.Author {
		name := strings.TrimSpace(au.Given + " " + au.Family)
		if name != "" {
			p.Authors = append(p.Authors, models.Author{Name: name})
		}
	}
	if len(w.Issued.DateParts) > 0 && len(w.Issued.DateParts[0]) > 0 {
		p.Year = w.Issued.DateParts[0][0]
	}
	p.AddOrigin("crossref")
	p.RecomputeAvailability()
	return p
}
